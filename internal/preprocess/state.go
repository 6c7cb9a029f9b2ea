package preprocess

import (
	"log/slog"
	"slices"

	apperrors "salesforecast/internal/errors"
)

// EncoderState is the serialisable form of a fitted encoder.
type EncoderState struct {
	Method     EncodingMethod `json:"method"`
	Column     string         `json:"column"`
	Categories []string       `json:"categories"`
}

// State is the serialisable form of a Preprocessor, stored in model bundles.
type State struct {
	Fills    []FillValue    `json:"fills,omitempty"`
	Encoders []EncoderState `json:"encoders,omitempty"`
	Scaler   *Scaler        `json:"scaler,omitempty"`
}

// State snapshots the fitted fills, encoders and scaler.
func (p *Preprocessor) State() State {
	st := State{Fills: p.Fills()}
	for _, enc := range p.encoders {
		es := EncoderState{Method: enc.Method(), Column: enc.Column()}
		switch e := enc.(type) {
		case *LabelEncoder:
			es.Categories = slices.Clone(e.Classes)
		case *OneHotEncoder:
			es.Categories = slices.Clone(e.Categories)
		}
		st.Encoders = append(st.Encoders, es)
	}
	if p.scaler != nil {
		s := *p.scaler
		st.Scaler = &s
	}
	return st
}

// FromState rebuilds a Preprocessor able to Transform new data.
func FromState(st State, logger *slog.Logger) (*Preprocessor, error) {
	p := New(logger)
	for _, fv := range st.Fills {
		set := 0
		for _, ok := range []bool{fv.Number != nil, fv.Text != nil, fv.Time != nil} {
			if ok {
				set++
			}
		}
		if fv.Column == "" || set != 1 {
			return nil, apperrors.InvalidParameter("fill state for %q must hold exactly one value", fv.Column)
		}
	}
	p.fills = slices.Clone(st.Fills)
	for _, es := range st.Encoders {
		switch es.Method {
		case EncodingLabel:
			p.encoders = append(p.encoders, NewLabelEncoder(es.Column, es.Categories))
		case EncodingOneHot:
			p.encoders = append(p.encoders, &OneHotEncoder{Name: es.Column, Categories: slices.Clone(es.Categories)})
		default:
			return nil, unsupported("encoding method", es.Method)
		}
	}
	if st.Scaler != nil {
		s := st.Scaler
		if len(s.Center) != len(s.Columns) || len(s.Scale) != len(s.Columns) {
			return nil, apperrors.ShapeMismatch("scaler state has %d columns, %d centers and %d scales",
				len(s.Columns), len(s.Center), len(s.Scale))
		}
		copied := *s
		p.scaler = &copied
	}
	return p, nil
}
