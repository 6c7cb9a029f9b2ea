package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesforecast/internal/dataset"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// writeConfig points every path into dir and keeps only the linear model so
// a full run stays fast.
func writeConfig(t *testing.T, dir, input string) string {
	t.Helper()
	yml := fmt.Sprintf(`paths:
  data_dir: %[1]s/data
  models_dir: %[1]s/models
  reports_dir: %[1]s/reports
  logs_dir: %[1]s/logs
pipeline:
  input_file: %[2]s
  models:
    disabled: [random_forest, gradient_boosting]
`, dir, input)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	return path
}

func TestGenerateCmd(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "sales.csv")
	stdout, err := execute(t, "generate", "--output", out, "--days", "30", "--seed", "3", "--start", "2024-02-01")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Wrote 30 rows")

	ds, err := dataset.Load(context.Background(), out, dataset.LoadOptions{DateColumns: []string{"Date"}})
	require.NoError(t, err)
	assert.Equal(t, 30, ds.NumRows())
	assert.Equal(t, []string{"Date", "Product", "Region", "Sales", "Quantity", "Price"}, ds.Names())
}

func TestGenerateCmd_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad start", []string{"generate", "--start", "01/02/2024"}, "invalid --start"},
		{"zero days", []string{"generate", "--days", "0"}, "--days must be at least 1"},
		{"extra arg", []string{"generate", "x"}, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInfoCmd(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "sales.csv")
	_, err := execute(t, "generate", "-o", input, "--days", "20")
	require.NoError(t, err)
	cfgPath := writeConfig(t, dir, input)

	stdout, err := execute(t, "--config", cfgPath, "info")
	require.NoError(t, err)
	assert.Contains(t, stdout, "20 rows x 6 columns (3 numeric, 2 categorical, 1 temporal)")
	assert.Contains(t, stdout, "COLUMN")
	assert.Contains(t, stdout, "Sales")

	stdout, err = execute(t, "--config", cfgPath, "info", input, "--json")
	require.NoError(t, err)
	var info dataset.Info
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, 20, info.Rows)
	assert.Equal(t, 1, info.Temporal)

	_, err = execute(t, "--config", cfgPath, "info", filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestRunAndPredictCmd(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "sales.csv")
	_, err := execute(t, "generate", "-o", input, "--days", "120", "--seed", "11")
	require.NoError(t, err)
	cfgPath := writeConfig(t, dir, input)

	stdout, err := execute(t, "--config", cfgPath, "run", "--no-reports")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Best model: Linear Regression")
	assert.Contains(t, stdout, filepath.Join(dir, "models"))
	assert.FileExists(t, filepath.Join(dir, "models", "manifest.json"))

	scored := filepath.Join(dir, "scored.csv")
	_, err = execute(t, "--config", cfgPath, "predict", input, "-o", scored)
	require.NoError(t, err)

	f, err := os.Open(scored)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Contains(t, records[0], "predicted_linear_regression")
	// Lag and rolling windows leave the first rows without complete features.
	assert.Less(t, len(records)-1, 120)
	assert.Greater(t, len(records)-1, 100)

	stdout, err = execute(t, "predict", input, "--models-dir", filepath.Join(dir, "models"), "--model", "Linear Regression")
	require.NoError(t, err)
	assert.Contains(t, stdout, "predicted_linear_regression")

	_, err = execute(t, "predict", input, "--models-dir", filepath.Join(dir, "models"), "--model", "nope")
	assert.Error(t, err)
}

func TestPredictCmd_RequiresInput(t *testing.T) {
	_, err := execute(t, "predict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestPredictionColumn(t *testing.T) {
	assert.Equal(t, "predicted_random_forest", predictionColumn("Random Forest"))
	assert.Equal(t, "predicted_linear_regression", predictionColumn("Linear Regression"))
}

func TestDatasetsAndInfoLatest(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	_, err := execute(t, "generate", "-o", filepath.Join(dataDir, "sales.csv"), "--days", "15")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "notes.txt"), []byte("x"), 0o644))
	cfgPath := writeConfig(t, dir, "sales.csv")

	stdout, err := execute(t, "--config", cfgPath, "datasets")
	require.NoError(t, err)
	assert.Contains(t, stdout, "sales.csv")
	assert.NotContains(t, stdout, "notes.txt")

	stdout, err = execute(t, "--config", cfgPath, "datasets", "--pattern", "returns_*")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No datasets found")

	stdout, err = execute(t, "--config", cfgPath, "info", "--latest")
	require.NoError(t, err)
	assert.Contains(t, stdout, "15 rows x 6 columns")
}
