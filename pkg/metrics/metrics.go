// Package metrics provides run metrics for forestdata using Prometheus.
//
// # Overview
//
// A pipeline run is a short batch job, so metrics are collected into a
// private registry and written once, at the end of the run, to a textfile
// that node_exporter's textfile collector picks up.
//
// # Basic Usage
//
//	collector := metrics.NewCollector()
//
//	timer := metrics.NewTimer("aggregate")
//	out, err := stage.Apply(ctx, in)
//	collector.ObserveStage("mnt-misery", "aggregate", in.DataLen(), out.DataLen(), timer.Stop())
//
//	collector.RecordRun("mnt-misery", err)
//	_ = collector.WriteTextfile("/var/lib/node_exporter/forestdata.prom")
//
// # Metric Types
//
// Counter: rows read, written and dropped, run outcomes
// Gauge: time of the last successful run per dataset
// Histogram: stage durations
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blackrockforest/forestdata/pkg/errors"
)

const namespace = "forestdata"

// Run outcome label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Collector records the metrics of one forestdata process. Each collector
// owns its registry so tests and repeated runs do not collide.
type Collector struct {
	registry      *prometheus.Registry
	rowsRead      *prometheus.CounterVec   // Data rows read per dataset
	rowsWritten   *prometheus.CounterVec   // Data rows written per dataset
	rowsDropped   *prometheus.CounterVec   // Data rows removed per stage
	stageDuration *prometheus.HistogramVec // Stage latency distribution
	runs          *prometheus.CounterVec   // Run outcomes
	lastSuccess   *prometheus.GaugeVec     // Unix time of last success
}

// NewCollector creates a collector with a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		rowsRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_read_total",
				Help:      "Data rows read from raw exports",
			},
			[]string{"dataset"},
		),
		rowsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_written_total",
				Help:      "Data rows written to processed files",
			},
			[]string{"dataset"},
		),
		rowsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_dropped_total",
				Help:      "Data rows removed by a pipeline stage",
			},
			[]string{"dataset", "stage"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage duration in seconds",
				Buckets: []float64{
					0.0001, // 100μs - small projections
					0.001,  // 1ms
					0.01,   // 10ms - typical station export
					0.1,    // 100ms
					1,      // 1s - large or compressed files
					10,
				},
			},
			[]string{"dataset", "stage"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Dataset runs by outcome and error type",
			},
			[]string{"dataset", "status", "error_type"},
		),
		lastSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful run",
			},
			[]string{"dataset"},
		),
	}
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRead adds rows read from a dataset's input.
func (c *Collector) ObserveRead(dataset string, rows int) {
	c.rowsRead.WithLabelValues(dataset).Add(float64(rows))
}

// ObserveWritten adds rows written to a dataset's output.
func (c *Collector) ObserveWritten(dataset string, rows int) {
	c.rowsWritten.WithLabelValues(dataset).Add(float64(rows))
}

// ObserveStage records a stage's duration and the rows it removed.
func (c *Collector) ObserveStage(dataset, stage string, rowsIn, rowsOut int, d time.Duration) {
	c.stageDuration.WithLabelValues(dataset, stage).Observe(d.Seconds())
	if rowsOut < rowsIn {
		c.rowsDropped.WithLabelValues(dataset, stage).Add(float64(rowsIn - rowsOut))
	}
}

// RecordRun counts a finished dataset run. A nil err is a success.
func (c *Collector) RecordRun(dataset string, err error) {
	if err != nil {
		c.runs.WithLabelValues(dataset, StatusFailure, string(errors.TypeOf(err))).Inc()
		return
	}
	c.runs.WithLabelValues(dataset, StatusSuccess, "").Inc()
	c.lastSuccess.WithLabelValues(dataset).SetToCurrentTime()
}

// WriteTextfile writes every metric in the textfile exposition format.
// The file is written to a temporary name and renamed into place.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create metrics directory").
			WithDetail("path", path)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write metrics textfile").
			WithDetail("path", path)
	}
	return nil
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
// The name parameter is for identification in logs or metrics.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer's name.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It may be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
