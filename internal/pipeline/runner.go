package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/blackrockforest/forestdata/pkg/config"
	"github.com/blackrockforest/forestdata/pkg/errors"
	"github.com/blackrockforest/forestdata/pkg/logger"
	"github.com/blackrockforest/forestdata/pkg/observability"
)

// Runner processes configured datasets one after another. A failing
// dataset is recorded and the next one still runs.
type Runner struct {
	cfg  *config.Config
	deps Deps
	now  func() time.Time
}

// NewRunner creates a runner over cfg.
func NewRunner(cfg *config.Config, deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer, _ = observability.NewTracer(observability.TracingConfig{ExporterType: observability.ExporterNone})
	}
	return &Runner{cfg: cfg, deps: deps, now: time.Now}
}

// Run processes every configured dataset in configuration order. The
// returned error combines every dataset failure; the report is returned
// either way.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	return r.run(ctx, r.cfg.Datasets)
}

// RunDatasets processes the named datasets in the order given. Unknown
// names fail the call before anything runs.
func (r *Runner) RunDatasets(ctx context.Context, names ...string) (*Report, error) {
	datasets := make([]config.Dataset, 0, len(names))
	for _, name := range names {
		d, ok := r.cfg.Dataset(name)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeConfig, "unknown dataset %q", name).
				WithDetail("dataset", name)
		}
		datasets = append(datasets, d)
	}
	return r.run(ctx, datasets)
}

func (r *Runner) run(ctx context.Context, datasets []config.Dataset) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: r.now().UTC(),
		Datasets:  make([]DatasetReport, 0, len(datasets)),
	}
	ctx = context.WithValue(ctx, logger.RunIDKey, report.RunID)
	log := logger.FromContext(ctx, r.deps.Logger)

	ctx, span := r.deps.Tracer.Start(ctx, "run", attribute.Int("datasets", len(datasets)))
	log.Info("run started", zap.Int("datasets", len(datasets)))

	var errs error
	for _, d := range datasets {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, errors.ErrorTypeInternal, "run canceled").
				WithDetail("dataset", d.Name))
			break
		}

		dr, err := r.runDataset(ctx, d)
		report.add(dr)
		if r.deps.Metrics != nil {
			r.deps.Metrics.RecordRun(d.Name, err)
		}
		errs = multierr.Append(errs, err)
	}

	report.FinishedAt = r.now().UTC()
	span.SetAttribute("datasets.failed", report.Failed)
	span.End(errs)

	log.Info("run finished",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))

	return report, errs
}

// runDataset runs the pipelines of d in order and stops at the first
// failure, so an RDH post-pass never runs over a stale processed file.
func (r *Runner) runDataset(ctx context.Context, d config.Dataset) (DatasetReport, error) {
	start := r.now()
	ctx = context.WithValue(ctx, logger.DatasetKey, d.Name)
	log := logger.FromContext(ctx, r.deps.Logger)

	dr := DatasetReport{
		Name:   d.Name,
		Kind:   string(d.Kind),
		Input:  r.cfg.InputPath(d),
		Output: r.cfg.OutputPath(d),
		Status: StatusSucceeded,
	}

	err := r.execute(ctx, d, &dr)
	dr.DurationMS = float64(r.now().Sub(start).Microseconds()) / 1000
	if err != nil {
		dr.Status = StatusFailed
		dr.Error = err.Error()
		dr.ErrorType = string(errors.TypeOf(err))
		log.Error("dataset failed", logger.ErrorFields(err)...)
		return dr, errors.Wrap(err, errors.TypeOf(err), "dataset failed").
			WithDetail("dataset", d.Name)
	}
	return dr, nil
}

func (r *Runner) execute(ctx context.Context, d config.Dataset, dr *DatasetReport) error {
	pipelines, err := Build(r.cfg, d, r.deps)
	if err != nil {
		return err
	}
	for _, p := range pipelines {
		result, err := p.Run(ctx)
		if err != nil {
			return err
		}
		dr.Pipelines = append(dr.Pipelines, PipelineReport{Name: p.Name(), Result: *result})
	}
	return nil
}
