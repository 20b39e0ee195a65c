package pipeline

import (
	"go.uber.org/zap"

	"github.com/blackrockforest/forestdata/pkg/config"
	csvdest "github.com/blackrockforest/forestdata/pkg/connector/destinations/csv"
	csvsource "github.com/blackrockforest/forestdata/pkg/connector/sources/csv"
	"github.com/blackrockforest/forestdata/pkg/errors"
	"github.com/blackrockforest/forestdata/pkg/metrics"
	"github.com/blackrockforest/forestdata/pkg/observability"
	"github.com/blackrockforest/forestdata/pkg/transform"
)

// RDHSuffix is appended to a dataset name to label its RDH post-pass.
const RDHSuffix = ".rdh"

// Deps are the collaborators shared by every pipeline of a run.
type Deps struct {
	Logger  *zap.Logger
	Metrics *metrics.Collector
	Tracer  *observability.Tracer
}

func (d Deps) options() []Option {
	return []Option{WithLogger(d.Logger), WithMetrics(d.Metrics), WithTracer(d.Tracer)}
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Build returns the pipelines of one dataset in execution order: the
// recipe for its kind, then the RDH post-pass when it has baselines.
func Build(cfg *config.Config, d config.Dataset, deps Deps) ([]*Pipeline, error) {
	var stages []Stage
	var err error
	switch d.Kind {
	case config.KindDendrometer:
		stages, err = DendrometerStages(d)
	case config.KindEnvironmental:
		stages, err = EnvironmentalStages(d)
	default:
		err = errors.Newf(errors.ErrorTypeConfig, "unknown dataset kind %q", d.Kind)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), "failed to build recipe").
			WithDetail("dataset", d.Name)
	}

	_, level, err := cfg.Compression.Settings()
	if err != nil {
		return nil, err
	}

	readerOptions := csvsource.Options{
		MetadataRows:    cfg.Reader.MetadataRows,
		SkipAfterHeader: cfg.Reader.SkipAfterHeader,
	}
	primary := New(d.Name,
		csvsource.NewCSVSource(cfg.InputPath(d), readerOptions, deps.logger()),
		csvdest.NewCSVDestination(cfg.OutputPath(d), deps.logger(), csvdest.WithLevel(level)),
		deps.options()...)
	for _, s := range stages {
		primary.AddStage(s)
	}
	pipelines := []*Pipeline{primary}

	if d.Kind == config.KindDendrometer && d.RDH != nil {
		processed := cfg.OutputPath(d)
		post := New(d.Name+RDHSuffix,
			csvsource.NewCSVSource(processed, csvsource.ProcessedOptions(), deps.logger()),
			csvdest.NewCSVDestination(processed, deps.logger(), csvdest.WithLevel(level)),
			deps.options()...)
		for _, s := range RDHStages(d) {
			post.AddStage(s)
		}
		pipelines = append(pipelines, post)
	}
	return pipelines, nil
}

// DendrometerStages returns project, window (the rename window when the
// dataset renames), the optional rename, and aggregate.
func DendrometerStages(d config.Dataset) ([]Stage, error) {
	if d.Aggregation == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "dendrometer dataset has no aggregation")
	}

	window, err := d.FilterWindow().Bounds()
	if err != nil {
		return nil, err
	}

	stages := []Stage{
		ProjectStage(d.Columns, columnPolicy(d)),
		WindowStage(window),
	}
	if d.Rename != nil {
		stages = append(stages, RenameStage(d.Rename.From, d.Rename.To))
	}

	groups := make([]transform.Aggregation, len(d.Aggregation.Groups))
	for i, g := range d.Aggregation.Groups {
		groups[i] = transform.Aggregation{
			Columns:     g.Columns,
			MeanLabel:   g.MeanLabel,
			StdDevLabel: g.StdDevLabel,
		}
	}
	return append(stages, AggregateStage(groups...)), nil
}

// EnvironmentalStages returns project and window.
func EnvironmentalStages(d config.Dataset) ([]Stage, error) {
	window, err := d.Window.Bounds()
	if err != nil {
		return nil, err
	}
	return []Stage{
		ProjectStage(d.Columns, columnPolicy(d)),
		WindowStage(window),
	}, nil
}

// RDHStages returns the conversion of the sensor columns of a processed
// dendrometer file, located by their post-rename names. Sensors dropped by
// a lenient projection are skipped; appended aggregate columns are left
// alone.
func RDHStages(d config.Dataset) []Stage {
	var baselines []transform.Baseline
	if d.RDH != nil {
		baselines = d.RDH.Baselines
	}
	return []Stage{RDHStage(baselines, d.ProcessedSensorColumns(), columnPolicy(d))}
}

func columnPolicy(d config.Dataset) transform.ColumnPolicy {
	if d.LenientColumns {
		return transform.Lenient
	}
	return transform.Strict
}
