package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "auto", cfg.Pipeline.MissingStrategy)
	assert.Equal(t, int64(42), cfg.Pipeline.RandomState)
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
pipeline:
  input_file: train.csv
  target_column: Revenue
  lags: [1, 14]
  models:
    disabled: [gradient_boosting]
    random_forest:
      trees: 25
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "untouched keys keep defaults")
	assert.Equal(t, "train.csv", cfg.Pipeline.InputFile)
	assert.Equal(t, "Revenue", cfg.Pipeline.TargetColumn)
	assert.Equal(t, []int{1, 14}, cfg.Pipeline.Lags)
	assert.Equal(t, []string{"gradient_boosting"}, cfg.Pipeline.Models.Disabled)
	assert.Equal(t, 25, cfg.Pipeline.Models.RandomForest.Trees)
	assert.Equal(t, 0.1, cfg.Pipeline.Models.GradientBoosting.LearningRate)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("SALES_SERVER_PORT", "7070")
	t.Setenv("SALES_PIPELINE_MISSING_STRATEGY", "MEDIAN")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "median", cfg.Pipeline.MissingStrategy)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown missing strategy", "pipeline:\n  missing_strategy: interpolate\n"},
		{"unknown scaling", "pipeline:\n  scaling: robust\n"},
		{"test size out of range", "pipeline:\n  test_size: 1.5\n"},
		{"non-positive lag", "pipeline:\n  lags: [0]\n"},
		{"unknown estimator", "pipeline:\n  models:\n    disabled: [xgboost]\n"},
		{"unknown aggregation", "pipeline:\n  group_column: Region\n  agg_column: Sales\n  agg_funcs: [mode]\n"},
		{"aggregation without group", "pipeline:\n  agg_funcs: [mean]\n"},
		{"bad port", "server:\n  port: 70000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPathsConfig(t *testing.T) {
	root := t.TempDir()
	paths := PathsConfig{
		DataDir:    filepath.Join(root, "data"),
		ModelsDir:  filepath.Join(root, "models"),
		ReportsDir: filepath.Join(root, "reports"),
	}

	require.NoError(t, paths.EnsureDirectories())
	assert.True(t, FileExists(paths.ModelsDir))
	assert.Equal(t, filepath.Join(paths.DataDir, "train.csv"), paths.InputPath("train.csv"))

	abs := filepath.Join(root, "other.csv")
	assert.Equal(t, abs, paths.InputPath(abs))
}
