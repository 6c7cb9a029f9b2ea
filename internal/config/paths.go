package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	ModelsDir  string `yaml:"models_dir" envconfig:"MODELS_DIR" validate:"required"`
	ReportsDir string `yaml:"reports_dir" envconfig:"REPORTS_DIR" validate:"required"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
	// WebDir holds the optional dashboard index.html.
	WebDir string `yaml:"web_dir" envconfig:"WEB_DIR"`
}

// EnsureDirectories creates every configured directory that does not exist yet.
func (p PathsConfig) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.ModelsDir, p.ReportsDir, p.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// InputPath resolves a pipeline input file against the data directory.
// Absolute paths and paths that already exist are returned unchanged.
func (p PathsConfig) InputPath(file string) string {
	if filepath.IsAbs(file) || FileExists(file) {
		return file
	}
	return filepath.Join(p.DataDir, file)
}

// FileExists reports whether path names an existing file or directory.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LogPathResolution logs resolved directories for debugging.
func (p PathsConfig) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("resolved paths",
		slog.String("data_dir", p.DataDir),
		slog.String("models_dir", p.ModelsDir),
		slog.String("reports_dir", p.ReportsDir),
		slog.String("logs_dir", p.LogsDir),
		slog.String("web_dir", p.WebDir),
	)
}
