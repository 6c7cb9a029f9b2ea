package app

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"salesforecast/internal/config"
	apperrors "salesforecast/internal/errors"
	"salesforecast/internal/infrastructure"
	"salesforecast/internal/middleware"
	"salesforecast/internal/pipeline"
	"salesforecast/internal/services"
	ws "salesforecast/internal/websocket"
)

// AppName is logged at startup and shown on the fallback dashboard page.
const AppName = services.ServiceName

var (
	// Version and BuildTime are set at link time with -ldflags "-X".
	Version   = infrastructure.ServiceVersion
	BuildTime = ""
	// BuildID is a short identifier for this build.
	BuildID = generateBuildID()
)

func generateBuildID() string {
	h := sha256.New()
	h.Write([]byte(Version))
	h.Write([]byte(BuildTime))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics
	WebSocketHub  *ws.Hub
	ErrorHandler  *apperrors.ErrorHandler
	Services      *ServiceContainer

	serverErr chan error
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Health     *services.HealthService
	Data       *services.DataService
	Prediction *services.PredictionService
	Pipeline   *services.PipelineService
}

// New loads the configuration at configPath (empty searches the default
// locations), initialises the global logger and builds the application.
func New(ctx context.Context, configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return NewApplication(ctx, cfg, logger)
}

// NewApplication wires every component from cfg. Nothing listens until
// Start is called.
func NewApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger.InfoContext(ctx, "Application starting",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.String("build_id", BuildID))

	if err := cfg.Paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	cfg.Paths.LogPathResolution(logger)

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	metrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}
	wsMetrics, err := ws.NewMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create websocket metrics: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		Metrics:       metrics,
		WebSocketHub:  ws.NewHub(logger, ws.WithMetrics(wsMetrics)),
		ErrorHandler:  apperrors.NewErrorHandler(logger, false),
		serverErr:     make(chan error, 1),
	}

	if err := a.initializeServices(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	a.setupRouter()
	a.createServer()
	return a, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices(ctx context.Context) error {
	cfg := a.Config

	prediction, err := services.NewPredictionService(ctx, cfg.Paths.ModelsDir, a.Metrics, a.Logger)
	if err != nil {
		return fmt.Errorf("prediction service: %w", err)
	}

	opts := services.DataOptions{
		SalesColumn:    cfg.Pipeline.TargetColumn,
		CategoryColumn: cfg.Pipeline.GroupColumn,
		DateLayouts:    cfg.Pipeline.DateLayouts,
	}
	if cfg.Pipeline.DateColumn != "" {
		opts.DateColumns = []string{cfg.Pipeline.DateColumn}
	}
	data, err := services.NewDataService(ctx, cfg.Paths.InputPath(cfg.Pipeline.InputFile), opts, a.Logger)
	if err != nil {
		return fmt.Errorf("data service: %w", err)
	}

	runner := pipeline.NewRunner(a.Logger,
		pipeline.WithObserver(pipeline.LogObserver(a.Logger)),
		pipeline.WithObserver(a.WebSocketHub),
		pipeline.WithTracer(a.OTelProviders.Tracer),
		pipeline.WithMetrics(a.Metrics))

	a.Services = &ServiceContainer{
		Health:     services.NewHealthService(Version, BuildTime, cfg.Paths, prediction, a.WebSocketHub, a.Logger),
		Data:       data,
		Prediction: prediction,
		Pipeline:   services.NewPipelineService(runner, cfg, prediction, a.Logger),
	}
	return nil
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start runs the websocket hub and begins serving in the background.
// Listener failures are reported by Run.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	a.WebSocketHub.Start()

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			a.serverErr <- err
		}
	}()

	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings", slog.String("warnings", err.Error()))
	}
	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)),
		slog.Bool("models_loaded", a.Services.Prediction.Loaded()),
		slog.String("data_source", a.Services.Data.Source()))
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := a.Services.Pipeline.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("pipeline shutdown: %w", err))
	}
	a.WebSocketHub.Stop()

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run serves until ctx is cancelled, SIGINT or SIGTERM arrives, or the
// listener fails, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.InfoContext(ctx, "Received shutdown signal")
	case serveErr = <-a.serverErr:
	}

	stopErr := a.Stop(context.WithoutCancel(ctx))
	return errors.Join(serveErr, stopErr)
}

// performStartupHealthCheck verifies the output directories are writable.
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	paths := a.Config.Paths
	var warnings []string

	directories := map[string]string{
		"Data":    paths.DataDir,
		"Models":  paths.ModelsDir,
		"Reports": paths.ReportsDir,
		"Logs":    paths.LogsDir,
	}
	for name, dir := range directories {
		if dir == "" {
			continue
		}
		testFile := filepath.Join(dir, ".write_test")
		if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s directory not writable: %s", name, dir))
		} else {
			os.Remove(testFile)
		}
	}

	if paths.WebDir != "" && !config.FileExists(filepath.Join(paths.WebDir, "index.html")) {
		a.Logger.InfoContext(ctx, "Dashboard page not found, serving built-in index",
			slog.String("web_dir", paths.WebDir))
	}

	if len(warnings) > 0 {
		return fmt.Errorf("startup health check warnings: %s", strings.Join(warnings, "; "))
	}
	a.Logger.InfoContext(ctx, "Startup health check passed")
	return nil
}

// corsConfig allows the configured origins, or any origin when none are set.
func (a *Application) corsConfig() middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		MaxAge:         300,
	}
}

// requestTimeout bounds API handlers; it never applies to /ws.
func (a *Application) requestTimeout() time.Duration {
	if a.Config.Server.WriteTimeout > 0 {
		return a.Config.Server.WriteTimeout
	}
	return 15 * time.Second
}
