// Package observability provides OpenTelemetry tracing for forestdata runs
package observability

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/blackrockforest/forestdata/pkg/errors"
)

// TracerName is the instrumentation scope of pipeline spans.
const TracerName = "github.com/blackrockforest/forestdata/pipeline"

// Exporter names accepted by TracingConfig.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	// ExporterType is none or stdout
	ExporterType string
	// Output receives stdout spans; nil means os.Stdout
	Output io.Writer
}

// Tracer starts pipeline spans and owns the provider behind them.
type Tracer struct {
	provider *sdktrace.TracerProvider // nil when tracing is off
	tracer   trace.Tracer
}

// NewTracer builds a tracer for the configured exporter. With no exporter
// every span is a no-op.
func NewTracer(cfg TracingConfig) (*Tracer, error) {
	switch cfg.ExporterType {
	case "", ExporterNone:
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(TracerName)}, nil
	case ExporterStdout:
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create stdout exporter")
		}
		return NewTracerWithExporter(cfg, exporter)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown trace exporter %q", cfg.ExporterType)
	}
}

// NewTracerWithExporter builds a tracer that hands every finished span to
// exporter synchronously. A run is short, so spans are not batched.
func NewTracerWithExporter(cfg TracingConfig, exporter sdktrace.SpanExporter) (*Tracer, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create resource")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(exporter),
	)
	return &Tracer{provider: tp, tracer: tp.Tracer(TracerName)}, nil
}

// Start opens a span named name under ctx.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, &Span{span: span}
}

// Shutdown flushes and stops the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to shut down tracer provider")
	}
	return nil
}

// Span represents a tracing span
type Span struct {
	span       trace.Span
	attributes []attribute.KeyValue
}

// SetAttribute adds an attribute to the span. Attributes are applied
// together when the span ends.
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// End records err, if any, sets the status and ends the span.
func (s *Span) End(err error) {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetAttributes(attribute.String("error.type", string(errors.TypeOf(err))))
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
