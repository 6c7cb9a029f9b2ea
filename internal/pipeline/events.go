package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Status is the state of a stage in an Event.
type Status string

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Event reports progress of one run.
type Event struct {
	RunID   string    `json:"run_id"`
	Stage   string    `json:"stage"`
	Status  Status    `json:"status"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// Observer receives run events. Notify must not block for long; the runner
// calls observers synchronously.
type Observer interface {
	Notify(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) Notify(ctx context.Context, e Event) { f(ctx, e) }

// LogObserver writes events to logger.
func LogObserver(logger *slog.Logger) Observer {
	logger = logger.With(slog.String("component", "pipeline_events"))
	return ObserverFunc(func(ctx context.Context, e Event) {
		level := slog.LevelDebug
		switch e.Status {
		case StatusFailed:
			level = slog.LevelError
		case StatusSkipped:
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "pipeline event",
			slog.String("run_id", e.RunID),
			slog.String("stage", e.Stage),
			slog.String("status", string(e.Status)),
			slog.String("message", e.Message))
	})
}
