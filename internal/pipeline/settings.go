package pipeline

import (
	"context"

	"salesforecast/internal/config"
	"salesforecast/internal/dataset"
	"salesforecast/internal/features"
	"salesforecast/internal/model"
	"salesforecast/internal/preprocess"
)

// settings are the closed enums parsed from a PipelineConfig.
type settings struct {
	missing    preprocess.MissingStrategy
	outliers   bool
	outlier    preprocess.OutlierMethod
	encoding   preprocess.EncodingMethod
	scale      bool
	scaling    preprocess.ScalingMethod
	aggFuncs   []features.AggFunc
	disabled   []model.Kind
	rfParams   model.RandomForestParams
	gbParams   model.BoostingParams
	dateLayout []string
}

func parseSettings(p config.PipelineConfig) (settings, error) {
	var (
		s   settings
		err error
	)
	if s.missing, err = preprocess.ParseMissingStrategy(p.MissingStrategy); err != nil {
		return s, err
	}
	if p.OutlierMethod != "" {
		s.outliers = true
		if s.outlier, err = preprocess.ParseOutlierMethod(p.OutlierMethod); err != nil {
			return s, err
		}
	}
	if s.encoding, err = preprocess.ParseEncodingMethod(p.Encoding); err != nil {
		return s, err
	}
	if p.Scaling != "" {
		s.scale = true
		if s.scaling, err = preprocess.ParseScalingMethod(p.Scaling); err != nil {
			return s, err
		}
	}
	if s.aggFuncs, err = features.ParseAggFuncs(p.AggFuncs); err != nil {
		return s, err
	}
	for _, name := range p.Models.Disabled {
		k, err := model.ParseKind(name)
		if err != nil {
			return s, err
		}
		s.disabled = append(s.disabled, k)
	}

	seed := uint64(p.RandomState)
	rf := p.Models.RandomForest
	s.rfParams = model.RandomForestParams{
		Trees:          rf.Trees,
		MaxDepth:       rf.MaxDepth,
		MinSamplesLeaf: rf.MinSamplesLeaf,
		Workers:        rf.Workers,
		Seed:           seed,
	}
	gb := p.Models.GradientBoosting
	s.gbParams = model.BoostingParams{
		Trees:          gb.Trees,
		LearningRate:   gb.LearningRate,
		MaxDepth:       gb.MaxDepth,
		MinSamplesLeaf: 1,
		Subsample:      gb.Subsample,
		Seed:           seed,
	}
	s.dateLayout = p.DateLayouts
	return s, nil
}

// featureStep is one feature engineering operation.
type featureStep struct {
	name string
	run  func(ctx context.Context, eng *features.Engineer, ds *dataset.Dataset) (*dataset.Dataset, error)
}

// featureSteps lists the enabled feature operations in execution order. The
// same list is replayed when scoring new data.
func featureSteps(p config.PipelineConfig, s settings) []featureStep {
	var steps []featureStep
	if p.DateColumn != "" {
		steps = append(steps, featureStep{"date_features", func(ctx context.Context, eng *features.Engineer, ds *dataset.Dataset) (*dataset.Dataset, error) {
			if !ds.HasColumn(p.DateColumn) {
				return ds, nil
			}
			return eng.CreateDateFeatures(ctx, ds, p.DateColumn)
		}})
	}
	if len(p.Lags) > 0 {
		steps = append(steps, featureStep{"lag_features", func(ctx context.Context, eng *features.Engineer, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return eng.CreateLagFeatures(ctx, ds, p.TargetColumn, p.Lags)
		}})
	}
	if len(p.RollingWindows) > 0 {
		steps = append(steps, featureStep{"rolling_features", func(ctx context.Context, eng *features.Engineer, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return eng.CreateRollingFeatures(ctx, ds, p.TargetColumn, p.RollingWindows)
		}})
	}
	if p.GroupColumn != "" && len(s.aggFuncs) > 0 {
		steps = append(steps, featureStep{"aggregation_features", func(ctx context.Context, eng *features.Engineer, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return eng.CreateAggregationFeatures(ctx, ds, p.GroupColumn, p.AggColumn, s.aggFuncs)
		}})
	}
	if len(p.InteractionColumns) > 0 {
		steps = append(steps, featureStep{"interaction_features", func(ctx context.Context, eng *features.Engineer, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return eng.CreateInteractionFeatures(ctx, ds, p.InteractionColumns)
		}})
	}
	if len(p.PolynomialColumns) > 0 && p.PolynomialDegree >= 2 {
		steps = append(steps, featureStep{"polynomial_features", func(ctx context.Context, eng *features.Engineer, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return eng.CreatePolynomialFeatures(ctx, ds, p.PolynomialColumns, p.PolynomialDegree)
		}})
	}
	if p.BinColumn != "" {
		steps = append(steps, featureStep{"binning_features", func(ctx context.Context, eng *features.Engineer, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return eng.CreateBinningFeatures(ctx, ds, p.BinColumn, features.Binning{Bins: p.Bins})
		}})
	}
	return steps
}

// modellingTable drops configured and temporal columns and any categorical
// column left after encoding.
func modellingTable(ds *dataset.Dataset, p config.PipelineConfig) (*dataset.Dataset, []string) {
	drop := append([]string(nil), p.DropColumns...)
	drop = append(drop, ds.TemporalNames()...)
	drop = append(drop, ds.CategoricalNames()...)
	return ds.Drop(drop...), drop
}
