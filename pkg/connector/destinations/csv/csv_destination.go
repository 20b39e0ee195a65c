// Package csv writes tables back out in the numeric-quoting convention:
// string cells are quoted with embedded quotes doubled, number cells are
// written bare, and rows end with CRLF as in the logger exports.
package csv

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blackrockforest/forestdata/pkg/compression"
	"github.com/blackrockforest/forestdata/pkg/errors"
	"github.com/blackrockforest/forestdata/pkg/table"
)

const lineTerminator = "\r\n"

// CSVDestination writes a table to one file, replacing any previous
// content. The write is not atomic: a reader racing the write can observe a
// partial file.
type CSVDestination struct {
	path   string
	level  compression.Level
	logger *zap.Logger
}

// Option configures a CSVDestination.
type Option func(*CSVDestination)

// WithLevel sets the compression level used when the path names a
// compressed format.
func WithLevel(level compression.Level) Option {
	return func(d *CSVDestination) { d.level = level }
}

// NewCSVDestination creates a destination for path. A nil logger disables
// logging.
func NewCSVDestination(path string, logger *zap.Logger, opts ...Option) *CSVDestination {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &CSVDestination{
		path:   path,
		level:  compression.Default,
		logger: logger.With(zap.String("file", path)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the file path.
func (d *CSVDestination) Name() string {
	return d.path
}

// Write encodes t into the destination file, creating parent directories
// as needed. Paths ending in a compression extension are compressed.
func (d *CSVDestination) Write(ctx context.Context, t *table.Table) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create output directory").
			WithDetail("path", d.path)
	}

	file, err := os.Create(d.path) //nolint:gosec // G304: path comes from validated configuration
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create CSV file").
			WithDetail("path", d.path)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close CSV file")
		}
	}()

	algo := compression.AlgorithmForPath(d.path)
	cw, err := compression.NewWriter(file, algo, d.level)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open compressed writer")
	}

	if err := Encode(cw, t); err != nil {
		_ = cw.Close()
		return err
	}
	if err := cw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush compressed output")
	}

	d.logger.Debug("CSV file written",
		zap.Int("rows", t.Len()),
		zap.Int("columns", t.Width()),
		zap.String("compression", string(algo)),
		zap.Int("level", int(d.level)),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// Encode writes every row of t to w.
func Encode(w io.Writer, t *table.Table) error {
	bw := bufio.NewWriter(w)
	for i := 0; i < t.Len(); i++ {
		if err := writeRow(bw, t.Row(i)); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write row").WithDetail("row", i)
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush CSV output")
	}
	return nil
}

func writeRow(w *bufio.Writer, row table.Row) error {
	for i, c := range row {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := writeCell(w, c); err != nil {
			return err
		}
	}
	_, err := w.WriteString(lineTerminator)
	return err
}

func writeCell(w *bufio.Writer, c table.Cell) error {
	if f, ok := c.Float(); ok {
		_, err := w.WriteString(table.FormatNumber(f))
		return err
	}

	s, _ := c.Text()
	if err := w.WriteByte('"'); err != nil {
		return err
	}
	if _, err := w.WriteString(strings.ReplaceAll(s, `"`, `""`)); err != nil {
		return err
	}
	return w.WriteByte('"')
}
