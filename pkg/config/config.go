package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/blackrockforest/forestdata/pkg/compression"
	csvsource "github.com/blackrockforest/forestdata/pkg/connector/sources/csv"
	"github.com/blackrockforest/forestdata/pkg/errors"
	"github.com/blackrockforest/forestdata/pkg/transform"
)

// DefaultMetadataRows is the number of device metadata rows that precede
// the header in a raw export.
const DefaultMetadataRows = csvsource.DefaultMetadataRows

// Config is the complete forestdata configuration.
type Config struct {
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Reader      ReaderConfig      `yaml:"reader" json:"reader"`
	Compression CompressionConfig `yaml:"compression" json:"compression"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics" json:"metrics"`
	Tracing     TracingConfig     `yaml:"tracing" json:"tracing"`
	Datasets    []Dataset         `yaml:"datasets" json:"datasets"`
}

// PathsConfig holds the directories at the pipeline boundary.
type PathsConfig struct {
	// LocalDir is where the fetch layer leaves raw exports
	LocalDir string `yaml:"local_dir" json:"local_dir"`
	// ProcessedDir receives the processed files
	ProcessedDir string `yaml:"processed_dir" json:"processed_dir"`
}

// ReaderConfig controls how leading rows of a raw export are dropped.
type ReaderConfig struct {
	// MetadataRows are dropped before the header
	MetadataRows int `yaml:"metadata_rows" json:"metadata_rows"`
	// SkipAfterHeader drops units or descriptor rows following the header
	SkipAfterHeader int `yaml:"skip_after_header" json:"skip_after_header"`
}

// CompressionConfig selects the codec of processed files.
type CompressionConfig struct {
	// Algorithm is none, gzip, zstd or lz4
	Algorithm string `yaml:"algorithm" json:"algorithm"`
	// Level is fastest, default, better or best
	Level string `yaml:"level" json:"level"`
}

// Settings parses the algorithm and level.
func (c CompressionConfig) Settings() (compression.Algorithm, compression.Level, error) {
	algo, err := compression.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return compression.None, compression.Default, errors.Wrap(err, errors.ErrorTypeConfig, "invalid compression.algorithm")
	}
	level, err := compression.ParseLevel(c.Level)
	if err != nil {
		return compression.None, compression.Default, errors.Wrap(err, errors.ErrorTypeConfig, "invalid compression.level")
	}
	return algo, level, nil
}

// LoggingConfig selects the zap level and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig controls the Prometheus textfile written after a run.
type MetricsConfig struct {
	// Textfile is the output path; empty disables export
	Textfile string `yaml:"textfile" json:"textfile"`
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	// Exporter is none or stdout
	Exporter string `yaml:"exporter" json:"exporter"`
}

// DatasetKind selects the recipe applied to a dataset.
type DatasetKind string

const (
	// KindDendrometer projects, filters, optionally renames, aggregates and
	// optionally converts to RDH deltas.
	KindDendrometer DatasetKind = "dendrometer"
	// KindEnvironmental projects and filters.
	KindEnvironmental DatasetKind = "environmental"
)

// AggregationMode selects how many mean groups a dendrometer dataset has.
type AggregationMode string

const (
	// AggregationSingle computes one group over all sensor columns.
	AggregationSingle AggregationMode = "single"
	// AggregationTwoGroup computes one group per species.
	AggregationTwoGroup AggregationMode = "two_group"
)

// Dataset describes one raw export and how to process it.
type Dataset struct {
	Name string      `yaml:"name" json:"name"`
	Kind DatasetKind `yaml:"kind" json:"kind"`
	// File is the export name, shared by input and output
	File string `yaml:"file" json:"file"`
	// Columns is the keep list, timestamp first
	Columns        []string           `yaml:"columns" json:"columns"`
	LenientColumns bool               `yaml:"lenient_columns" json:"lenient_columns"`
	Window         TimeWindow         `yaml:"window" json:"window"`
	Rename         *RenameConfig      `yaml:"rename,omitempty" json:"rename,omitempty"`
	Aggregation    *AggregationConfig `yaml:"aggregation,omitempty" json:"aggregation,omitempty"`
	RDH            *RDHConfig         `yaml:"rdh,omitempty" json:"rdh,omitempty"`
}

// TimeWindow is an inclusive range in "YYYY-MM-DD HH:MM:SS" form. Either
// side may be empty.
type TimeWindow struct {
	Start string `yaml:"start,omitempty" json:"start,omitempty"`
	End   string `yaml:"end,omitempty" json:"end,omitempty"`
}

// RenameConfig rewrites tree labels. Its window replaces the dataset window.
type RenameConfig struct {
	From   string     `yaml:"from" json:"from"`
	To     string     `yaml:"to" json:"to"`
	Window TimeWindow `yaml:"window" json:"window"`
}

// AggregationConfig lists the statistics groups of a dendrometer dataset.
type AggregationConfig struct {
	Mode   AggregationMode    `yaml:"mode" json:"mode"`
	Groups []AggregationGroup `yaml:"groups" json:"groups"`
}

// AggregationGroup is one set of columns reduced to a mean and, when
// StdDevLabel is set, a population standard deviation.
type AggregationGroup struct {
	Columns     []string `yaml:"columns" json:"columns"`
	MeanLabel   string   `yaml:"mean_label" json:"mean_label"`
	StdDevLabel string   `yaml:"std_dev_label,omitempty" json:"std_dev_label,omitempty"`
}

// RDHConfig holds one baseline per sensor column, in keep-list order.
type RDHConfig struct {
	Baselines []transform.Baseline `yaml:"baselines" json:"baselines"`
}

// Default returns a configuration with the reader and observability
// defaults and no datasets.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			LocalDir:     "/tmp/blackrock/current",
			ProcessedDir: "/tmp/processed",
		},
		Reader: ReaderConfig{
			MetadataRows: DefaultMetadataRows,
		},
		Compression: CompressionConfig{
			Algorithm: string(compression.None),
			Level:     "default",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter: "none",
		},
	}
}

// InputPath returns the raw export path of d.
func (c *Config) InputPath(d Dataset) string {
	return filepath.Join(c.Paths.LocalDir, d.File)
}

// OutputPath returns the processed file path of d. With compression
// configured the algorithm's extension is appended, unless the file name
// already ends in a compression extension.
func (c *Config) OutputPath(d Dataset) string {
	path := filepath.Join(c.Paths.ProcessedDir, d.File)
	algo, _, err := c.Compression.Settings()
	if err != nil || compression.AlgorithmForPath(path) != compression.None {
		return path
	}
	return path + compression.Extension(algo)
}

// Dataset returns the dataset with the given name.
func (c *Config) Dataset(name string) (Dataset, bool) {
	for _, d := range c.Datasets {
		if d.Name == name {
			return d, true
		}
	}
	return Dataset{}, false
}

// Bounds parses the window. Empty sides become zero times.
func (w TimeWindow) Bounds() (transform.Window, error) {
	var out transform.Window
	var err error
	if w.Start != "" {
		if out.Start, err = time.Parse(transform.TimestampLayout, w.Start); err != nil {
			return transform.Window{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid window start").
				WithDetail("value", w.Start)
		}
	}
	if w.End != "" {
		if out.End, err = time.Parse(transform.TimestampLayout, w.End); err != nil {
			return transform.Window{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid window end").
				WithDetail("value", w.End)
		}
	}
	if !out.Start.IsZero() && !out.End.IsZero() && out.End.Before(out.Start) {
		return transform.Window{}, errors.New(errors.ErrorTypeConfig, "window ends before it starts").
			WithDetail("start", w.Start).
			WithDetail("end", w.End)
	}
	return out, nil
}

// FilterWindow returns the window applied before aggregation: the rename
// window when the dataset renames, its own window otherwise.
func (d Dataset) FilterWindow() TimeWindow {
	if d.Rename != nil {
		return d.Rename.Window
	}
	return d.Window
}

// SensorColumns returns the keep list without the leading timestamp.
func (d Dataset) SensorColumns() []string {
	if len(d.Columns) == 0 {
		return nil
	}
	return d.Columns[1:]
}

// ProcessedSensorColumns returns the sensor column names as they appear in
// the processed file, after the rename.
func (d Dataset) ProcessedSensorColumns() []string {
	sensors := d.SensorColumns()
	out := make([]string, len(sensors))
	for i, name := range sensors {
		if d.Rename != nil && d.Rename.From != "" {
			name = strings.ReplaceAll(name, d.Rename.From, d.Rename.To)
		}
		out[i] = name
	}
	return out
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Paths.LocalDir == "" {
		return errors.New(errors.ErrorTypeConfig, "paths.local_dir is required")
	}
	if c.Paths.ProcessedDir == "" {
		return errors.New(errors.ErrorTypeConfig, "paths.processed_dir is required")
	}
	if c.Reader.MetadataRows < 0 {
		return errors.New(errors.ErrorTypeConfig, "reader.metadata_rows cannot be negative")
	}
	if c.Reader.SkipAfterHeader < 0 {
		return errors.New(errors.ErrorTypeConfig, "reader.skip_after_header cannot be negative")
	}
	if _, _, err := c.Compression.Settings(); err != nil {
		return err
	}
	switch c.Tracing.Exporter {
	case "", "none", "stdout":
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown tracing exporter %q", c.Tracing.Exporter)
	}

	seen := make(map[string]struct{}, len(c.Datasets))
	for i := range c.Datasets {
		d := &c.Datasets[i]
		if err := d.Validate(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid dataset").
				WithDetail("index", i).
				WithDetail("dataset", d.Name)
		}
		if _, dup := seen[d.Name]; dup {
			return errors.Newf(errors.ErrorTypeConfig, "duplicate dataset name %q", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}

// Validate checks one dataset.
func (d *Dataset) Validate() error {
	if d.Name == "" {
		return errors.New(errors.ErrorTypeConfig, "name is required")
	}
	if d.File == "" {
		return errors.New(errors.ErrorTypeConfig, "file is required")
	}
	if len(d.Columns) == 0 {
		return errors.New(errors.ErrorTypeConfig, "columns is required")
	}
	if _, err := d.Window.Bounds(); err != nil {
		return err
	}

	switch d.Kind {
	case KindDendrometer:
		return d.validateDendrometer()
	case KindEnvironmental:
		if d.Rename != nil || d.Aggregation != nil || d.RDH != nil {
			return errors.New(errors.ErrorTypeConfig,
				"environmental datasets take no rename, aggregation or rdh section")
		}
		return nil
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown kind %q", d.Kind)
	}
}

func (d *Dataset) validateDendrometer() error {
	if d.Rename != nil {
		if d.Rename.From == "" {
			return errors.New(errors.ErrorTypeConfig, "rename.from is required")
		}
		if _, err := d.Rename.Window.Bounds(); err != nil {
			return err
		}
	}

	if d.Aggregation == nil {
		return errors.New(errors.ErrorTypeConfig, "aggregation is required for dendrometer datasets")
	}
	want := 0
	switch d.Aggregation.Mode {
	case AggregationSingle:
		want = 1
	case AggregationTwoGroup:
		want = 2
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown aggregation mode %q", d.Aggregation.Mode)
	}
	if len(d.Aggregation.Groups) != want {
		return errors.Newf(errors.ErrorTypeConfig,
			"aggregation mode %s takes %d group(s), got %d", d.Aggregation.Mode, want, len(d.Aggregation.Groups))
	}
	for i, g := range d.Aggregation.Groups {
		if len(g.Columns) == 0 {
			return errors.Newf(errors.ErrorTypeConfig, "aggregation group %d has no columns", i)
		}
		if g.MeanLabel == "" {
			return errors.Newf(errors.ErrorTypeConfig, "aggregation group %d has no mean_label", i)
		}
	}

	if d.RDH != nil && len(d.RDH.Baselines) == 0 {
		return errors.New(errors.ErrorTypeConfig, "rdh.baselines is empty")
	}
	return nil
}
