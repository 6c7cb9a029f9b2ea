// Package preprocess cleans datasets before feature engineering and training:
// imputation, duplicate removal, outlier treatment, categorical encoding and
// scaling. Fitted encoders and scalers are kept so the exact same
// transformation can be replayed on test or serving data.
package preprocess

import (
	"context"
	"log/slog"

	"salesforecast/internal/dataset"
)

// Preprocessor holds the state fitted by HandleMissingValues,
// EncodeCategorical and ScaleFeatures. It is not safe for concurrent fitting;
// ReplayMissing and Transform only read.
type Preprocessor struct {
	logger *slog.Logger

	fills    []FillValue
	encoders []Encoder
	scaler   *Scaler
}

// New returns a Preprocessor logging to logger, or slog.Default when nil.
func New(logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{logger: logger.With(slog.String("component", "preprocess"))}
}

// Scaler returns the fitted scaler, or nil before ScaleFeatures.
func (p *Preprocessor) Scaler() *Scaler { return p.scaler }

// Encoders returns fitted encoders in the order they were fitted.
func (p *Preprocessor) Encoders() []Encoder { return append([]Encoder(nil), p.encoders...) }

// Transform replays every fitted encoder and then the scaler on ds without
// refitting anything.
func (p *Preprocessor) Transform(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	out := ds
	for _, enc := range p.encoders {
		var err error
		if out, err = enc.Transform(out); err != nil {
			return nil, err
		}
	}
	if p.scaler != nil {
		var err error
		if out, err = p.scaler.Transform(out); err != nil {
			return nil, err
		}
	}
	p.logger.DebugContext(ctx, "replayed preprocessing",
		slog.Int("encoders", len(p.encoders)),
		slog.Bool("scaled", p.scaler != nil))
	return out, nil
}
