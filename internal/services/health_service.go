package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"salesforecast/internal/config"
)

// ServiceName identifies this service in health payloads.
const ServiceName = "Sales Prediction ML Dashboard"

// ClientCounter reports connected websocket clients.
type ClientCounter interface {
	ClientCount() int
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Service   string                   `json:"service"`
	Version   string                   `json:"version"`
	Timestamp time.Time                `json:"timestamp"`
	Uptime    float64                  `json:"uptime_seconds"`
	Runtime   map[string]any           `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual component health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version   string    `json:"version"`
	BuildTime string    `json:"build_time,omitempty"`
	GoVersion string    `json:"go_version"`
	OS        string    `json:"os"`
	Arch      string    `json:"arch"`
	StartTime time.Time `json:"start_time"`
	Uptime    float64   `json:"uptime_seconds"`
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	buildTime string
	paths     config.PathsConfig
	predictor *PredictionService
	hub       ClientCounter
	startTime time.Time
	logger    *slog.Logger
}

// NewHealthService creates a health service. predictor and hub may be nil.
func NewHealthService(version, buildTime string, paths config.PathsConfig, predictor *PredictionService, hub ClientCounter, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		buildTime: buildTime,
		paths:     paths,
		predictor: predictor,
		hub:       hub,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "healthy",
		Service:   ServiceName,
		Version:   hs.version,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(hs.startTime).Seconds(),
		Runtime: map[string]any{
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
	hs.logger.DebugContext(ctx, "health check", slog.String("status", status.Status))
	return status
}

// ReadinessCheck reports per-component readiness. Serving simulated
// predictions is degraded, not unready.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := hs.HealthCheck(ctx)
	status.Status = "ready"
	status.Services = map[string]ServiceHealth{
		"models": hs.checkModels(),
		"data":   hs.checkDataDir(),
	}
	if hs.hub != nil {
		status.Services["websocket"] = ServiceHealth{
			Status:  "ready",
			Message: fmt.Sprintf("%d clients connected", hs.WebSocketClients()),
		}
	}
	for _, s := range status.Services {
		if s.Status == "not_ready" {
			status.Status = "not_ready"
			break
		}
	}
	return status
}

// Version returns version information
func (hs *HealthService) Version() VersionInfo {
	return VersionInfo{
		Version:   hs.version,
		BuildTime: hs.buildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		StartTime: hs.startTime.UTC(),
		Uptime:    time.Since(hs.startTime).Seconds(),
	}
}

// WebSocketClients returns the number of connected websocket clients.
func (hs *HealthService) WebSocketClients() int {
	if hs.hub == nil {
		return 0
	}
	return hs.hub.ClientCount()
}

func (hs *HealthService) checkModels() ServiceHealth {
	if hs.predictor == nil || !hs.predictor.Loaded() {
		return ServiceHealth{Status: "degraded", Message: "no trained models, serving simulated predictions"}
	}
	info := hs.predictor.Models()
	return ServiceHealth{Status: "ready", Message: "run " + info.RunID + ", best " + info.Best}
}

func (hs *HealthService) checkDataDir() ServiceHealth {
	if hs.paths.DataDir == "" {
		return ServiceHealth{Status: "ready"}
	}
	if _, err := os.Stat(hs.paths.DataDir); err != nil {
		return ServiceHealth{Status: "not_ready", Message: "data directory not found: " + hs.paths.DataDir}
	}
	return ServiceHealth{Status: "ready"}
}
