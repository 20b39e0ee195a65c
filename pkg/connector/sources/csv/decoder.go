package csv

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/blackrockforest/forestdata/pkg/errors"
	"github.com/blackrockforest/forestdata/pkg/table"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// field is one raw token and whether it was enclosed in quotes.
type field struct {
	text   string
	quoted bool
}

// cell applies the numeric-quoting convention: quoted tokens are strings,
// bare tokens are numbers when they parse as one and strings otherwise.
func (f field) cell() table.Cell {
	if f.quoted {
		return table.String(f.text)
	}
	trimmed := strings.TrimSpace(f.text)
	if trimmed == "" {
		return table.String(f.text)
	}
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return table.Number(v)
	}
	return table.String(f.text)
}

// decoder splits comma-separated input into records while remembering which
// fields were quoted. encoding/csv drops that information, and the cell
// types depend on it. Input is handled byte by byte: every delimiter is
// ASCII, and field bytes are kept as read, valid UTF-8 or not.
type decoder struct {
	r    *bufio.Reader
	line int
	buf  bytes.Buffer
}

func newDecoder(r io.Reader) *decoder {
	return &decoder{r: bufio.NewReader(r), line: 1}
}

// readAll returns every non-blank record in the input.
func (d *decoder) readAll() ([][]field, error) {
	if err := d.skipBOM(); err != nil {
		return nil, err
	}

	var records [][]field
	for {
		rec, err := d.readRecord()
		if rec != nil {
			records = append(records, rec)
		}
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (d *decoder) skipBOM() error {
	head, err := d.r.Peek(len(utf8BOM))
	if err != nil && err != io.EOF {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to read input")
	}
	if bytes.Equal(head, utf8BOM) {
		_, _ = d.r.Discard(len(utf8BOM))
	}
	return nil
}

// readRecord reads one line. A blank line yields a nil record. io.EOF is
// returned together with the final record when the input lacks a trailing
// newline.
func (d *decoder) readRecord() ([]field, error) {
	var rec []field
	startLine := d.line

	for {
		f, term, err := d.readField(startLine)
		if err != nil && err != io.EOF {
			return nil, err
		}

		blank := term != ',' && len(rec) == 0 && !f.quoted && f.text == ""
		if !blank {
			rec = append(rec, f)
		}

		if err == io.EOF {
			return rec, io.EOF
		}
		if term == '\n' {
			return rec, nil
		}
	}
}

// readField reads a single field and reports the byte that ended it:
// ',' for a delimiter, '\n' for end of record, or 0 with io.EOF.
func (d *decoder) readField(startLine int) (field, byte, error) {
	d.buf.Reset()

	c, err := d.r.ReadByte()
	if err != nil {
		return field{}, 0, d.eof(err)
	}

	quoted := c == '"'
	if !quoted {
		if err := d.r.UnreadByte(); err != nil {
			return field{}, 0, errors.Wrap(err, errors.ErrorTypeInternal, "failed to unread byte")
		}
	} else if err := d.readQuoted(startLine); err != nil {
		return field{}, 0, err
	}

	// Bare text, or characters trailing a closing quote, runs to the next
	// delimiter or line end.
	for {
		c, err := d.r.ReadByte()
		if err != nil {
			return field{text: d.buf.String(), quoted: quoted}, 0, d.eof(err)
		}
		switch c {
		case ',':
			return field{text: d.buf.String(), quoted: quoted}, ',', nil
		case '\r':
			next, err := d.r.ReadByte()
			if err == nil && next != '\n' {
				_ = d.r.UnreadByte()
			}
			d.line++
			return field{text: d.buf.String(), quoted: quoted}, '\n', nil
		case '\n':
			d.line++
			return field{text: d.buf.String(), quoted: quoted}, '\n', nil
		default:
			d.buf.WriteByte(c)
		}
	}
}

// readQuoted consumes a quoted section after its opening quote, unescaping
// doubled quotes and keeping embedded line breaks.
func (d *decoder) readQuoted(startLine int) error {
	for {
		c, err := d.r.ReadByte()
		if err == io.EOF {
			return errors.Newf(errors.ErrorTypeMalformedInput,
				"unterminated quoted field starting on line %d", startLine).
				WithDetail("line", startLine)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to read input")
		}

		if c == '\n' {
			d.line++
		}
		if c != '"' {
			d.buf.WriteByte(c)
			continue
		}

		next, err := d.r.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to read input")
		}
		if next == '"' {
			d.buf.WriteByte('"')
			continue
		}
		return d.r.UnreadByte()
	}
}

func (d *decoder) eof(err error) error {
	if err == io.EOF {
		return io.EOF
	}
	return errors.Wrap(err, errors.ErrorTypeFile, "failed to read input")
}
