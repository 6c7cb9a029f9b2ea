package model

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"

	apperrors "salesforecast/internal/errors"
)

const envelopeVersion = 1

// envelope is the on-disk form of a model. Payload is the gob encoding of
// the concrete estimator and Checksum its BLAKE2b-256 digest.
type envelope struct {
	Version  int
	Kind     Kind
	Name     string
	Features []string
	Payload  []byte
	Checksum [blake2b.Size256]byte
}

func newEstimator(k Kind) (Regressor, error) {
	switch k {
	case LinearRegression:
		return &LinearRegressor{}, nil
	case RandomForest:
		return &Forest{}, nil
	case GradientBoosting:
		return &Booster{}, nil
	}
	return nil, apperrors.InvalidParameter("unknown model kind %d", int(k))
}

// Save writes m to path, creating parent directories. The file is written
// to a temporary name first and renamed into place.
func Save(m *Model, path string) error {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(m.Estimator); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("encode model %q", m.Name), err)
	}
	env := envelope{
		Version:  envelopeVersion,
		Kind:     m.Kind,
		Name:     m.Name,
		Features: m.Features,
		Payload:  payload.Bytes(),
		Checksum: blake2b.Sum256(payload.Bytes()),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.NewStorageError("create model directory", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return apperrors.NewStorageError("create model file", err)
	}
	if err := gob.NewEncoder(f).Encode(&env); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperrors.NewStorageError(fmt.Sprintf("write model %q", m.Name), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return apperrors.NewStorageError("close model file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperrors.NewStorageError("rename model file", err)
	}
	return nil
}

// Load reads a model written by Save and checks it is of the expected kind.
func Load(path string, kind Kind) (*Model, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, apperrors.MissingInput("model file %s not found", path)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("open model file", err)
	}
	defer f.Close()

	var env envelope
	if err := gob.NewDecoder(f).Decode(&env); err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("decode model file %s", path), err)
	}
	if env.Version != envelopeVersion {
		return nil, apperrors.InvalidParameter("model file %s has version %d, want %d", path, env.Version, envelopeVersion)
	}
	if env.Kind != kind {
		return nil, apperrors.InvalidParameter("model file %s holds %s, want %s", path, env.Kind, kind)
	}
	if blake2b.Sum256(env.Payload) != env.Checksum {
		return nil, apperrors.NewParsingError(fmt.Sprintf("model file %s failed checksum", path), nil)
	}
	est, err := newEstimator(env.Kind)
	if err != nil {
		return nil, err
	}
	if err := gob.NewDecoder(bytes.NewReader(env.Payload)).Decode(est); err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("decode %s payload", env.Kind), err)
	}
	return &Model{Name: env.Name, Kind: env.Kind, Features: env.Features, Estimator: est}, nil
}

// SaveModel persists a registered model.
func (t *Trainer) SaveModel(ctx context.Context, name, path string) error {
	m, err := t.Model(name)
	if err != nil {
		return err
	}
	if err := Save(m, path); err != nil {
		return err
	}
	t.logger.InfoContext(ctx, "model saved", "model", name, "path", path)
	return nil
}

// LoadModel reads a model file and registers it under name, or under the
// stored name when name is empty.
func (t *Trainer) LoadModel(ctx context.Context, path, name string, kind Kind) (*Model, error) {
	m, err := Load(path, kind)
	if err != nil {
		return nil, err
	}
	if name != "" {
		m.Name = name
	}
	t.register(m)
	t.logger.InfoContext(ctx, "model loaded", "model", m.Name, "kind", kind.String(), "path", path)
	return m, nil
}
