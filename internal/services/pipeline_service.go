package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"salesforecast/internal/config"
	apperrors "salesforecast/internal/errors"
	"salesforecast/internal/infrastructure"
	"salesforecast/internal/pipeline"
)

// Pipeline run states.
const (
	RunIdle      = "idle"
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// PipelineRunner executes one pipeline run.
type PipelineRunner interface {
	RunWithID(ctx context.Context, id string, cfg *config.Config) (*pipeline.Result, error)
}

// RunStatus is a snapshot of the latest pipeline run.
type RunStatus struct {
	RunID      string           `json:"run_id,omitempty"`
	State      string           `json:"state"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Error      string           `json:"error,omitempty"`
	Result     *pipeline.Result `json:"result,omitempty"`
}

// PipelineService runs the training pipeline in the background, one run at
// a time, and swaps the freshly saved bundle into the predictor.
type PipelineService struct {
	runner    PipelineRunner
	cfg       *config.Config
	predictor *PredictionService
	logger    *slog.Logger

	mu      sync.Mutex
	status  RunStatus
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewPipelineService creates the service. predictor may be nil, in which
// case finished runs are not loaded for serving.
func NewPipelineService(runner PipelineRunner, cfg *config.Config, predictor *PredictionService, logger *slog.Logger) *PipelineService {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PipelineService{
		runner:    runner,
		cfg:       cfg,
		predictor: predictor,
		logger:    logger.With(slog.String("component", "pipeline_service")),
		status:    RunStatus{State: RunIdle},
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// Start launches a run and returns immediately. The run outlives the
// request that started it; only Shutdown cancels it.
func (s *PipelineService) Start(ctx context.Context) (RunStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.State == RunRunning {
		return s.status, apperrors.Unavailable("pipeline run %s is already in progress", s.status.RunID).
			WithContext("run_id", s.status.RunID)
	}
	if s.baseCtx.Err() != nil {
		return s.status, apperrors.Unavailable("pipeline service is shutting down")
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	s.status = RunStatus{RunID: id, State: RunRunning, StartedAt: &now}

	runCtx := infrastructure.WithTraceID(s.baseCtx, infrastructure.GetTraceID(ctx))
	s.wg.Add(1)
	go s.execute(runCtx, id)

	s.logger.InfoContext(ctx, "pipeline run started", slog.String("run_id", id))
	return s.status, nil
}

func (s *PipelineService) execute(ctx context.Context, id string) {
	defer s.wg.Done()

	res, err := s.runner.RunWithID(ctx, id, s.cfg)
	if err == nil && s.predictor != nil {
		if rerr := s.predictor.Reload(ctx, res.BundleDir); rerr != nil {
			s.logger.ErrorContext(ctx, "trained bundle could not be loaded",
				slog.String("run_id", id),
				slog.String("error", rerr.Error()))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.status.FinishedAt = &now
	if err != nil {
		s.status.State = RunFailed
		s.status.Error = err.Error()
		return
	}
	s.status.State = RunSucceeded
	s.status.Result = res
}

// Status returns the latest run.
func (s *PipelineService) Status() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Wait blocks until no run is in progress.
func (s *PipelineService) Wait() {
	s.wg.Wait()
}

// Shutdown cancels an in-flight run and waits for it, bounded by ctx.
func (s *PipelineService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
