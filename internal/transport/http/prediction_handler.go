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

// Predictor is the part of services.PredictionService the handler needs.
type Predictor interface {
	Predict(ctx context.Context, features map[string]float64, modelName string) (*services.PredictionResult, error)
	Models() services.ModelsInfo
}

// PredictRequest is the body of POST /api/predict. Price and Quantity are
// the flat form older dashboard clients send; they are merged into Features.
type PredictRequest struct {
	Features map[string]float64 `json:"features" validate:"omitempty,max=256"`
	Model    string             `json:"model" validate:"omitempty,max=128"`
	Price    *float64           `json:"price" validate:"omitempty,gte=0"`
	Quantity *float64           `json:"quantity" validate:"omitempty,gte=0"`
}

// PredictResponse flattens the first prediction next to the full result.
type PredictResponse struct {
	Prediction float64 `json:"prediction"`
	Status     string  `json:"status"`
	*services.PredictionResult
}

// PredictionHandler serves model predictions.
type PredictionHandler struct {
	service      Predictor
	validator    *middleware.Validator
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewPredictionHandler creates a prediction handler.
func NewPredictionHandler(service Predictor, validator *middleware.Validator, logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *PredictionHandler {
	return &PredictionHandler{
		service:      service,
		validator:    validator,
		logger:       logger.With(slog.String("component", "prediction_handler")),
		errorHandler: errorHandler,
	}
}

// Routes mounts under /api.
func (h *PredictionHandler) Routes(r chi.Router) {
	r.Post("/predict", h.Predict)
	r.Get("/models", h.GetModels)
}

// Predict handles POST /api/predict
func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := h.validator.DecodeJSON(w, r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	features := make(map[string]float64, len(req.Features)+2)
	for k, v := range req.Features {
		features[k] = v
	}
	if req.Price != nil {
		features["price"] = *req.Price
	}
	if req.Quantity != nil {
		features["quantity"] = *req.Quantity
	}

	res, err := h.service.Predict(r.Context(), features, req.Model)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp := PredictResponse{Status: "success", PredictionResult: res}
	if len(res.Predictions) > 0 {
		resp.Prediction = res.Predictions[0].Value
	}
	h.logger.InfoContext(r.Context(), "prediction served",
		slog.Int("features", len(features)),
		slog.Int("models", len(res.Predictions)),
		slog.Bool("simulated", res.Simulated),
		slog.String("request_id", middleware.GetReqID(r.Context())))
	render.JSON(w, r, resp)
}

// GetModels handles GET /api/models
func (h *PredictionHandler) GetModels(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Models())
}
