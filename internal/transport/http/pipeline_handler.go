package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "salesforecast/internal/errors"
	"salesforecast/internal/services"
)

// PipelineStarter is the part of services.PipelineService the handler needs.
type PipelineStarter interface {
	Start(ctx context.Context) (services.RunStatus, error)
	Status() services.RunStatus
}

// PipelineHandler starts training runs. Stage progress is streamed to
// websocket clients, not returned here.
type PipelineHandler struct {
	service      PipelineStarter
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewPipelineHandler creates a pipeline handler.
func NewPipelineHandler(service PipelineStarter, logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *PipelineHandler {
	return &PipelineHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "pipeline_handler")),
		errorHandler: errorHandler,
	}
}

// Routes mounts under /api.
func (h *PipelineHandler) Routes(r chi.Router) {
	r.Route("/pipeline", func(r chi.Router) {
		r.Post("/run", h.Run)
		r.Get("/status", h.Status)
	})
}

// Run handles POST /api/pipeline/run
func (h *PipelineHandler) Run(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Start(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, status)
}

// Status handles GET /api/pipeline/status
func (h *PipelineHandler) Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Status())
}
