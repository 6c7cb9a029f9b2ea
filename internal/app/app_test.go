package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesforecast/internal/config"
	"salesforecast/internal/dataset"
	"salesforecast/internal/services"
	ws "salesforecast/internal/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig points every path into a temporary directory. With withData
// a 120-day synthetic sales file is written as the pipeline input.
func testConfig(t *testing.T, withData bool) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.PathsConfig{
		DataDir:    filepath.Join(dir, "data"),
		ModelsDir:  filepath.Join(dir, "models"),
		ReportsDir: filepath.Join(dir, "reports"),
		LogsDir:    filepath.Join(dir, "logs"),
	}
	cfg.Pipeline.InputFile = filepath.Join(cfg.Paths.DataDir, "sales.csv")
	cfg.Pipeline.Models.Disabled = []string{"random_forest", "gradient_boosting"}
	if withData {
		sample := dataset.GenerateSample(dataset.SampleConfig{
			Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			Days:  120,
			Seed:  7,
		})
		require.NoError(t, dataset.SaveCSV(sample, cfg.Pipeline.InputFile))
	}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) (*Application, *httptest.Server) {
	t.Helper()
	a, err := NewApplication(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	a.WebSocketHub.Start()
	srv := httptest.NewServer(a.Router)
	t.Cleanup(func() {
		srv.Close()
		require.NoError(t, a.Stop(context.Background()))
	})
	return a, srv
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func postJSON(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestApplication_ServesWithoutDataOrModels(t *testing.T) {
	a, srv := newTestApp(t, testConfig(t, false))
	assert.Equal(t, "sample", a.Services.Data.Source())
	assert.False(t, a.Services.Prediction.Loaded())

	code, body := getJSON(t, srv.URL+"/api/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, body = getJSON(t, srv.URL+"/api/stats")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 100.0, body["total_records"])

	code, body = postJSON(t, srv.URL+"/api/predict", `{"price":100,"quantity":2}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 230.0, body["prediction"])
	assert.Equal(t, true, body["simulated"])

	code, body = getJSON(t, srv.URL+"/api/missing")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "/api/missing", body["instance"])
}

func TestApplication_MetricsAndDashboard(t *testing.T) {
	_, srv := newTestApp(t, testConfig(t, false))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "go_goroutines")

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestApplication_PipelineRunStreamsAndReloads(t *testing.T) {
	a, srv := newTestApp(t, testConfig(t, true))

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var first ws.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, ws.TypeConnection, first.Type)

	code, body := postJSON(t, srv.URL+"/api/pipeline/run", `{}`)
	require.Equal(t, http.StatusAccepted, code)
	runID, _ := body["run_id"].(string)
	require.NotEmpty(t, runID)

	var event ws.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, ws.TypePipelineEvent, event.Type)
	data, ok := event.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, runID, data["run_id"])

	a.Services.Pipeline.Wait()
	status := a.Services.Pipeline.Status()
	require.Equal(t, services.RunSucceeded, status.State, status.Error)
	require.True(t, a.Services.Prediction.Loaded())

	code, body = getJSON(t, srv.URL+"/api/models")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, runID, body["run_id"])

	features := map[string]float64{}
	for _, f := range a.Services.Prediction.Models().Features {
		features[f] = 1
	}
	payload, err := json.Marshal(map[string]any{"features": features})
	require.NoError(t, err)
	code, body = postJSON(t, srv.URL+"/api/predict", string(payload))
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, false, body["simulated"])
	assert.Equal(t, runID, body["run_id"])

	code, body = postJSON(t, srv.URL+"/api/predict", `{"features":{"Price":1}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "SHAPE_MISMATCH", body["error_code"])
}
