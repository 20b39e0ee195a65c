// Package csv reads logger exports into tables.
//
// Exports follow a numeric-quoting convention: quoted tokens are strings and
// bare tokens are decimal numbers. The reader keeps that distinction in the
// cell types, drops the device-metadata rows that precede the header, and
// checks that every data row lines up with the header.
package csv

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/blackrockforest/forestdata/pkg/compression"
	"github.com/blackrockforest/forestdata/pkg/errors"
	"github.com/blackrockforest/forestdata/pkg/table"
)

// DefaultMetadataRows is the number of device-metadata rows that precede
// the header in a raw logger export.
const DefaultMetadataRows = 3

// Options controls how an export is turned into a table.
type Options struct {
	// MetadataRows are dropped from the top of the file; the next row is
	// the header.
	MetadataRows int
	// SkipAfterHeader drops descriptor rows (units, aggregation kind) that
	// sit between the header and the first data row.
	SkipAfterHeader int
}

// DefaultOptions returns the options for a raw logger export.
func DefaultOptions() Options {
	return Options{MetadataRows: DefaultMetadataRows}
}

// ProcessedOptions returns the options for a file this tool wrote, which
// starts directly with its header.
func ProcessedOptions() Options {
	return Options{}
}

// CSVSource reads one file into a table.
type CSVSource struct {
	path    string
	options Options
	logger  *zap.Logger
}

// NewCSVSource creates a source for path. A nil logger disables logging.
func NewCSVSource(path string, options Options, logger *zap.Logger) *CSVSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSource{
		path:    path,
		options: options,
		logger:  logger.With(zap.String("file", path)),
	}
}

// Name returns the file path.
func (s *CSVSource) Name() string {
	return s.path
}

// Read loads the whole file. Paths ending in a compression extension are
// decompressed on the fly.
func (s *CSVSource) Read(ctx context.Context) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	file, err := os.Open(s.path) //nolint:gosec // G304: path comes from validated configuration
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open CSV file").
			WithDetail("path", s.path)
	}
	defer file.Close()

	algo := compression.AlgorithmForPath(s.path)
	reader, err := compression.NewReader(file, algo)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open compressed CSV file").
			WithDetail("path", s.path)
	}
	defer reader.Close()

	t, err := Parse(reader, s.options)
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), "failed to parse CSV file").
			WithDetail("path", s.path)
	}

	s.logger.Debug("CSV file read",
		zap.Int("rows", t.Len()),
		zap.Int("columns", t.Width()),
		zap.String("compression", string(algo)),
		zap.Duration("duration", time.Since(start)))

	return t, nil
}

// Parse decodes r into a table, applying the row-drop options.
func Parse(r io.Reader, options Options) (*table.Table, error) {
	if options.MetadataRows < 0 || options.SkipAfterHeader < 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "row skip counts cannot be negative")
	}

	records, err := newDecoder(r).readAll()
	if err != nil {
		return nil, err
	}

	if len(records) < options.MetadataRows {
		return nil, errors.Newf(errors.ErrorTypeMalformedInput,
			"file has %d rows, expected at least %d metadata rows",
			len(records), options.MetadataRows).
			WithDetail("rows", len(records))
	}
	records = records[options.MetadataRows:]

	if options.SkipAfterHeader > 0 && len(records) > 0 {
		if len(records)-1 < options.SkipAfterHeader {
			return nil, errors.Newf(errors.ErrorTypeMalformedInput,
				"file ends before the %d rows expected after the header",
				options.SkipAfterHeader)
		}
		records = append(records[:1:1], records[1+options.SkipAfterHeader:]...)
	}

	rows := make([]table.Row, len(records))
	for i, rec := range records {
		row := make(table.Row, len(rec))
		for j, f := range rec {
			row[j] = f.cell()
		}
		rows[i] = row
	}

	return table.New(rows)
}
