package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesforecast/internal/config"
	"salesforecast/internal/dataset"
	apperrors "salesforecast/internal/errors"
	"salesforecast/internal/middleware"
	"salesforecast/internal/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePredictor records the features it was asked to score.
type fakePredictor struct {
	got   map[string]float64
	model string
	err   error
}

func (f *fakePredictor) Predict(_ context.Context, features map[string]float64, modelName string) (*services.PredictionResult, error) {
	f.got, f.model = features, modelName
	if f.err != nil {
		return nil, f.err
	}
	return &services.PredictionResult{
		Predictions: []services.Prediction{{Model: "Linear Regression", Kind: "linear_regression", Value: 42}},
		Best:        "Linear Regression",
	}, nil
}

func (f *fakePredictor) Models() services.ModelsInfo {
	return services.ModelsInfo{Loaded: true, Best: "Linear Regression", Features: []string{"Price"}}
}

func newTestRouter(t *testing.T, predictor Predictor) http.Handler {
	t.Helper()
	logger := testLogger()
	eh := apperrors.NewErrorHandler(logger, false)

	ds := dataset.MustNew(
		dataset.NewCategorical("Category", []string{"Furniture", "Technology", "Furniture"}),
		dataset.NewNumeric("Sales", []float64{100, 300, 200}),
	)
	data := services.NewDataServiceFromDataset(ds, "memory", services.DataOptions{}, logger)
	health := services.NewHealthService("1.0.0", "", config.PathsConfig{DataDir: t.TempDir()}, nil, nil, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.NotFound(eh.NotFound)
	r.Route("/api", func(r chi.Router) {
		NewHealthHandler(health, logger).Routes(r)
		NewDataHandler(data, logger, eh).Routes(r)
		NewPredictionHandler(predictor, middleware.NewValidator(1024, logger), logger, eh).Routes(r)
	})
	r.Get("/", ServeDashboard("", services.ServiceName))
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.Contains(rec.Header().Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestHealthRoutes(t *testing.T) {
	h := newTestRouter(t, &fakePredictor{})

	rec, body := do(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, services.ServiceName, body["service"])
	assert.Equal(t, "1.0.0", body["version"])

	rec, body = do(t, h, http.MethodGet, "/api/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])

	rec, body = do(t, h, http.MethodGet, "/api/version", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["go_version"])
}

func TestDataRoutes(t *testing.T) {
	h := newTestRouter(t, &fakePredictor{})

	tests := []struct {
		name   string
		target string
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{
			name:   "stats",
			target: "/api/stats",
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, 3.0, body["total_records"])
				assert.Equal(t, 200.0, body["mean_sales"])
				assert.Equal(t, 600.0, body["total_sales"])
			},
		},
		{
			name:   "data default limit",
			target: "/api/data",
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Len(t, body["data"], 3)
				assert.Equal(t, 3.0, body["total_records"])
			},
		},
		{
			name:   "data with limit",
			target: "/api/data?limit=1",
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Len(t, body["data"], 1)
			},
		},
		{
			name:   "data bad limit",
			target: "/api/data?limit=abc",
			status: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, apperrors.TypeValidation, body["type"])
				assert.NotEmpty(t, body["trace_id"])
			},
		},
		{
			name:   "data limit too large",
			target: "/api/data?limit=5000",
			status: http.StatusBadRequest,
		},
		{
			name:   "categories",
			target: "/api/categories",
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "Category", body["category_column"])
				cats := body["categories"].(map[string]any)
				furniture := cats["Furniture"].(map[string]any)
				assert.Equal(t, 300.0, furniture["sum"])
				assert.Equal(t, 2.0, furniture["count"])
			},
		},
		{
			name:   "unknown route",
			target: "/api/nope",
			status: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, h, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestPredictRoute(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		status     int
		wantFeat   map[string]float64
		wantModel  string
		wantDetail string
	}{
		{
			name:      "features and model",
			body:      `{"features":{"Price":10,"Quantity":2},"model":"Linear Regression"}`,
			status:    http.StatusOK,
			wantFeat:  map[string]float64{"Price": 10, "Quantity": 2},
			wantModel: "Linear Regression",
		},
		{
			name:     "flat price and quantity",
			body:     `{"price":20,"quantity":3}`,
			status:   http.StatusOK,
			wantFeat: map[string]float64{"price": 20, "quantity": 3},
		},
		{
			name:       "negative price",
			body:       `{"price":-1}`,
			status:     http.StatusBadRequest,
			wantDetail: "price must be greater than or equal to 0",
		},
		{
			name:   "malformed json",
			body:   `{"features":`,
			status: http.StatusBadRequest,
		},
		{
			name:   "shape mismatch",
			body:   `{"features":{"Price":1}}`,
			err:    apperrors.ShapeMismatch("missing [Quantity]"),
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "unknown model",
			body:   `{"features":{"Price":1},"model":"x"}`,
			err:    apperrors.MissingInput("model %q not in bundle", "x"),
			status: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePredictor{err: tt.err}
			rec, body := do(t, newTestRouter(t, p), http.MethodPost, "/api/predict", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.wantDetail != "" {
				assert.Contains(t, body["detail"], tt.wantDetail)
			}
			if tt.status != http.StatusOK {
				return
			}
			assert.Equal(t, tt.wantFeat, p.got)
			assert.Equal(t, tt.wantModel, p.model)
			assert.Equal(t, 42.0, body["prediction"])
			assert.Equal(t, "success", body["status"])
			assert.Len(t, body["predictions"], 1)
		})
	}
}

func TestPredictRoute_SimulatedBaseline(t *testing.T) {
	svc := services.NewPredictionServiceFromBundle(nil, nil, testLogger())
	rec, body := do(t, newTestRouter(t, svc), http.MethodPost, "/api/predict", `{"price":20,"quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 69.0, body["prediction"])
	assert.Equal(t, true, body["simulated"])
}

func TestModelsRoute(t *testing.T) {
	rec, body := do(t, newTestRouter(t, &fakePredictor{}), http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["loaded"])
	assert.Equal(t, "Linear Regression", body["best"])
}

func TestServeDashboard(t *testing.T) {
	rec := httptest.NewRecorder()
	ServeDashboard("", "Sales").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "POST /api/predict")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>custom</h1>"), 0o644))
	rec = httptest.NewRecorder()
	ServeDashboard(dir, "Sales").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "custom")
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

type fakeStarter struct {
	err    error
	status services.RunStatus
}

func (f *fakeStarter) Start(context.Context) (services.RunStatus, error) { return f.status, f.err }
func (f *fakeStarter) Status() services.RunStatus                         { return f.status }

func TestPipelineRoutes(t *testing.T) {
	eh := apperrors.NewErrorHandler(testLogger(), false)
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"already running", apperrors.Unavailable("pipeline run r1 is already in progress"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starter := &fakeStarter{err: tt.err, status: services.RunStatus{RunID: "r1", State: services.RunRunning}}
			r := chi.NewRouter()
			r.Route("/api", NewPipelineHandler(starter, testLogger(), eh).Routes)

			rec, body := do(t, r, http.MethodPost, "/api/pipeline/run", "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.err == nil {
				assert.Equal(t, "r1", body["run_id"])
				assert.Equal(t, services.RunRunning, body["state"])
			}

			rec, body = do(t, r, http.MethodGet, "/api/pipeline/status", "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "r1", body["run_id"])
		})
	}
}
