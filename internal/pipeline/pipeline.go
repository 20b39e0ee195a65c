// Package pipeline runs forestdata datasets: it reads one export, passes
// the table through an ordered list of stages and writes the result.
//
// # Overview
//
// The pipeline package provides:
//   - Pipeline: a Source, named Stages and a Destination run in order
//   - Stage constructors for the transform package operations
//   - Recipes that turn a configured dataset into pipelines
//   - Runner: every configured dataset in order, failures isolated
//   - Report: a JSON summary of a run
//
// # Basic Usage
//
//	p := pipeline.New("lowland", source, destination, pipeline.WithLogger(logger))
//	p.AddStage(pipeline.ProjectStage(columns, transform.Strict))
//	p.AddStage(pipeline.WindowStage(window))
//	result, err := p.Run(ctx)
//
// Each stage receives the previous stage's table and returns a new one; no
// stage modifies the table it was given. A run is synchronous and holds the
// whole file in memory.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/blackrockforest/forestdata/pkg/errors"
	"github.com/blackrockforest/forestdata/pkg/logger"
	"github.com/blackrockforest/forestdata/pkg/metrics"
	"github.com/blackrockforest/forestdata/pkg/observability"
	"github.com/blackrockforest/forestdata/pkg/table"
)

// Source supplies the table a pipeline starts from.
type Source interface {
	Name() string
	Read(ctx context.Context) (*table.Table, error)
}

// Destination consumes the table a pipeline produces.
type Destination interface {
	Name() string
	Write(ctx context.Context, t *table.Table) error
}

// StageFunc transforms a table. It must not modify its input.
type StageFunc func(ctx context.Context, t *table.Table) (*table.Table, error)

// Stage is a named step of a pipeline.
type Stage struct {
	Name  string
	Apply StageFunc
}

// StageResult describes one executed stage.
type StageResult struct {
	Name       string        `json:"name"`
	RowsIn     int           `json:"rows_in"`
	RowsOut    int           `json:"rows_out"`
	Duration   time.Duration `json:"-"`
	DurationMS float64       `json:"duration_ms"`
}

// Result describes a completed run. Row counts exclude the header.
type Result struct {
	RowsRead    int           `json:"rows_read"`
	RowsWritten int           `json:"rows_written"`
	Stages      []StageResult `json:"stages"`
	Duration    time.Duration `json:"-"`
	DurationMS  float64       `json:"duration_ms"`
}

// Pipeline reads a table from a Source, applies its stages in order and
// writes the result to a Destination.
type Pipeline struct {
	name        string
	source      Source
	destination Destination
	stages      []Stage

	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  *observability.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records row counts and stage durations in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Pipeline) { p.metrics = c }
}

// WithTracer opens a span for the run and one per stage.
func WithTracer(t *observability.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// New creates a pipeline with no stages. name labels logs, metrics and
// spans; it is normally the dataset name.
func New(name string, source Source, destination Destination, opts ...Option) *Pipeline {
	p := &Pipeline{
		name:        name,
		source:      source,
		destination: destination,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer, _ = observability.NewTracer(observability.TracingConfig{ExporterType: observability.ExporterNone})
	}
	return p
}

// AddStage appends a stage. Stages run in the order they are added.
func (p *Pipeline) AddStage(s Stage) {
	p.stages = append(p.stages, s)
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// StageNames returns the stage names in execution order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Run executes the pipeline once. On error nothing is written unless the
// failure happened in the destination itself.
func (p *Pipeline) Run(ctx context.Context) (result *Result, err error) {
	start := time.Now()
	log := logger.FromContext(ctx, p.logger).With(zap.String("pipeline", p.name))

	ctx, span := p.tracer.Start(ctx, "pipeline."+p.name,
		attribute.String("pipeline.source", p.source.Name()),
		attribute.String("pipeline.destination", p.destination.Name()),
	)
	defer func() { span.End(err) }()

	log.Info("starting pipeline",
		zap.String("input", p.source.Name()),
		zap.String("output", p.destination.Name()),
		zap.Int("stages", len(p.stages)))

	result = &Result{Stages: make([]StageResult, 0, len(p.stages))}

	t, err := p.read(ctx)
	if err != nil {
		return nil, err
	}
	result.RowsRead = t.DataLen()
	span.SetAttribute("rows.read", result.RowsRead)

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "pipeline canceled").
				WithDetail("stage", stage.Name)
		}

		sr, out, err := p.apply(ctx, stage, t)
		if err != nil {
			log.Error("stage failed", append(logger.ErrorFields(err), zap.String("stage", stage.Name))...)
			return nil, err
		}
		result.Stages = append(result.Stages, sr)
		log.Debug("stage completed",
			zap.String("stage", stage.Name),
			zap.Int("rows_in", sr.RowsIn),
			zap.Int("rows_out", sr.RowsOut),
			zap.Duration("duration", sr.Duration))
		t = out
	}

	if err := p.write(ctx, t); err != nil {
		return nil, err
	}
	result.RowsWritten = t.DataLen()
	result.Duration = time.Since(start)
	result.DurationMS = float64(result.Duration.Microseconds()) / 1000
	span.SetAttribute("rows.written", result.RowsWritten)

	log.Info("pipeline completed",
		zap.Int("rows_read", result.RowsRead),
		zap.Int("rows_written", result.RowsWritten),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (p *Pipeline) read(ctx context.Context) (t *table.Table, err error) {
	ctx, span := p.tracer.Start(ctx, "read", attribute.String("file", p.source.Name()))
	defer func() { span.End(err) }()

	t, err = p.source.Read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), "read failed").
			WithDetail("pipeline", p.name).
			WithDetail("input", p.source.Name())
	}
	if p.metrics != nil {
		p.metrics.ObserveRead(p.name, t.DataLen())
	}
	return t, nil
}

func (p *Pipeline) apply(ctx context.Context, stage Stage, in *table.Table) (sr StageResult, out *table.Table, err error) {
	ctx = context.WithValue(ctx, logger.StageKey, stage.Name)
	ctx, span := p.tracer.Start(ctx, "stage."+stage.Name)
	defer func() { span.End(err) }()

	timer := metrics.NewTimer(stage.Name)
	out, err = stage.Apply(ctx, in)
	if err != nil {
		return sr, nil, errors.Wrap(err, errors.TypeOf(err), fmt.Sprintf("stage %s failed", stage.Name)).
			WithDetail("pipeline", p.name).
			WithDetail("stage", stage.Name)
	}

	sr = StageResult{
		Name:     stage.Name,
		RowsIn:   in.DataLen(),
		RowsOut:  out.DataLen(),
		Duration: timer.Stop(),
	}
	sr.DurationMS = float64(sr.Duration.Microseconds()) / 1000
	span.SetAttribute("rows.in", sr.RowsIn)
	span.SetAttribute("rows.out", sr.RowsOut)
	if p.metrics != nil {
		p.metrics.ObserveStage(p.name, stage.Name, sr.RowsIn, sr.RowsOut, sr.Duration)
	}
	return sr, out, nil
}

func (p *Pipeline) write(ctx context.Context, t *table.Table) (err error) {
	ctx, span := p.tracer.Start(ctx, "write", attribute.String("file", p.destination.Name()))
	defer func() { span.End(err) }()

	if err = p.destination.Write(ctx, t); err != nil {
		return errors.Wrap(err, errors.TypeOf(err), "write failed").
			WithDetail("pipeline", p.name).
			WithDetail("output", p.destination.Name())
	}
	if p.metrics != nil {
		p.metrics.ObserveWritten(p.name, t.DataLen())
	}
	return nil
}
