package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"salesforecast/internal/config"
	apperrors "salesforecast/internal/errors"
	"salesforecast/internal/features"
	"salesforecast/internal/model"
	"salesforecast/internal/preprocess"
)

// Bundle file names inside a bundle directory.
const (
	ManifestFile     = "manifest.json"
	PreprocessorFile = "preprocessor.json"
	FeaturesFile     = "features.json"
	manifestVersion  = 2
)

// ModelEntry locates one persisted model.
type ModelEntry struct {
	Name string     `json:"name"`
	Kind model.Kind `json:"kind"`
	File string     `json:"file"`
}

// Manifest describes a saved run: what to feed the models and how they
// scored.
type Manifest struct {
	Version    int                   `json:"version"`
	RunID      string                `json:"run_id"`
	CreatedAt  time.Time             `json:"created_at"`
	Target     string                `json:"target"`
	Features   []string              `json:"features"`
	Models     []ModelEntry          `json:"models"`
	Best       string                `json:"best"`
	Comparison []model.Ranking       `json:"comparison"`
	Pipeline   config.PipelineConfig `json:"pipeline"`
}

// Bundle is everything needed to score new data after a run. Features holds
// the bin edges and group tables fitted during feature engineering.
type Bundle struct {
	Manifest     Manifest
	Preprocessor *preprocess.Preprocessor
	Features     features.State
	Models       []*model.Model
}

// Model returns the named model, or the best one when name is empty.
func (b *Bundle) Model(name string) (*model.Model, error) {
	if name == "" {
		name = b.Manifest.Best
	}
	for _, m := range b.Models {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, apperrors.MissingInput("model %q not in bundle", name)
}

// SaveBundle writes the manifest, preprocessor and feature state, and one gob
// file per model into dir.
func SaveBundle(ctx context.Context, dir string, b *Bundle) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.NewStorageError("create bundle directory", err)
	}

	b.Manifest.Version = manifestVersion
	b.Manifest.Models = b.Manifest.Models[:0]
	for _, m := range b.Models {
		entry := ModelEntry{Name: m.Name, Kind: m.Kind, File: m.Kind.String() + ".gob"}
		if err := model.Save(m, filepath.Join(dir, entry.File)); err != nil {
			return err
		}
		b.Manifest.Models = append(b.Manifest.Models, entry)
	}

	if err := writeJSON(filepath.Join(dir, PreprocessorFile), b.Preprocessor.State()); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, FeaturesFile), b.Features); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, ManifestFile), b.Manifest); err != nil {
		return err
	}
	slog.Default().DebugContext(ctx, "bundle saved", slog.String("dir", dir), slog.Int("models", len(b.Models)))
	return nil
}

// LoadBundle reads a bundle written by SaveBundle.
func LoadBundle(ctx context.Context, dir string, logger *slog.Logger) (*Bundle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var man Manifest
	if err := readJSON(filepath.Join(dir, ManifestFile), &man); err != nil {
		return nil, err
	}
	if man.Version != manifestVersion {
		return nil, apperrors.InvalidParameter("bundle %s has version %d, want %d", dir, man.Version, manifestVersion)
	}

	var st preprocess.State
	if err := readJSON(filepath.Join(dir, PreprocessorFile), &st); err != nil {
		return nil, err
	}
	pre, err := preprocess.FromState(st, logger)
	if err != nil {
		return nil, fmt.Errorf("restore preprocessor: %w", err)
	}

	var fst features.State
	if err := readJSON(filepath.Join(dir, FeaturesFile), &fst); err != nil {
		return nil, err
	}

	b := &Bundle{Manifest: man, Preprocessor: pre, Features: fst}
	for _, e := range man.Models {
		m, err := model.Load(filepath.Join(dir, e.File), e.Kind)
		if err != nil {
			return nil, err
		}
		m.Name = e.Name
		b.Models = append(b.Models, m)
	}
	logger.InfoContext(ctx, "bundle loaded",
		slog.String("dir", dir),
		slog.String("run_id", man.RunID),
		slog.Int("models", len(b.Models)),
		slog.String("best", man.Best))
	return b, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.NewStorageError("encode "+filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.NewStorageError("write "+path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return apperrors.MissingInput("%s not found", path)
	}
	if err != nil {
		return apperrors.NewStorageError("read "+path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.NewParsingError("decode "+path, err)
	}
	return nil
}
