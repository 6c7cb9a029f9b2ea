package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "salesforecast/internal/errors"
	"salesforecast/internal/middleware"
	"salesforecast/internal/services"
)

// DataService is the part of services.DataService the handler needs.
type DataService interface {
	Stats(ctx context.Context) (*services.SalesStats, error)
	Records(ctx context.Context, limit int) (*services.DataPage, error)
	Categories(ctx context.Context) (*services.CategoryBreakdown, error)
}

// DataHandler serves the dataset summaries behind the dashboard charts.
type DataHandler struct {
	service      DataService
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewDataHandler creates a new data handler with RFC 7807 error handling
func NewDataHandler(service DataService, logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *DataHandler {
	return &DataHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "data_handler")),
		errorHandler: errorHandler,
	}
}

// Routes mounts under /api.
func (h *DataHandler) Routes(r chi.Router) {
	r.Get("/stats", h.GetStats)
	r.Get("/data", h.GetData)
	r.Get("/categories", h.GetCategories)
}

// GetStats handles GET /api/stats
func (h *DataHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, stats)
}

// GetData handles GET /api/data?limit=N. The limit defaults to 50.
func (h *DataHandler) GetData(w http.ResponseWriter, r *http.Request) {
	limit, err := middleware.QueryInt(r, "limit", 1, services.MaxDataLimit, services.DefaultDataLimit)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	page, err := h.service.Records(r.Context(), limit)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.logger.DebugContext(r.Context(), "records served",
		slog.Int("limit", limit),
		slog.Int("rows", len(page.Data)),
		slog.String("request_id", middleware.GetReqID(r.Context())))
	render.JSON(w, r, page)
}

// GetCategories handles GET /api/categories
func (h *DataHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	breakdown, err := h.service.Categories(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, breakdown)
}
