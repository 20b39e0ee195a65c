package table

import (
	"github.com/blackrockforest/forestdata/pkg/errors"
)

// Row is an ordered sequence of cells.
type Row []Cell

// Clone returns a copy of r.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Equal reports whether two rows hold equal cells in the same order.
func (r Row) Equal(o Row) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !r[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Names returns the row's cells as strings, as used for a header.
func (r Row) Names() []string {
	names := make([]string, len(r))
	for i, c := range r {
		names[i] = c.String()
	}
	return names
}

// Table is an ordered list of rows whose first row is the header.
type Table struct {
	rows []Row
}

// New builds a table from rows, requiring every row to match the header
// width. The rows are copied.
func New(rows []Row) (*Table, error) {
	if len(rows) > 0 {
		width := len(rows[0])
		for i, r := range rows[1:] {
			if len(r) != width {
				return nil, errors.Newf(errors.ErrorTypeMalformedInput,
					"row %d has %d cells, header has %d", i+1, len(r), width).
					WithDetail("row", i+1)
			}
		}
	}
	return FromRows(rows), nil
}

// FromRows builds a table from rows without checking widths. The rows are
// copied. Stages that append columns use it while building their output
// and rely on New or Validate where the invariant must hold.
func FromRows(rows []Row) *Table {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return &Table{rows: out}
}

// Empty returns a table with no rows.
func Empty() *Table {
	return &Table{}
}

// Len returns the number of rows including the header.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// IsEmpty reports whether the table has no rows at all.
func (t *Table) IsEmpty() bool {
	return t.Len() == 0
}

// DataLen returns the number of rows after the header.
func (t *Table) DataLen() int {
	if t.Len() == 0 {
		return 0
	}
	return len(t.rows) - 1
}

// Width returns the header cell count, or 0 for an empty table.
func (t *Table) Width() int {
	if t.Len() == 0 {
		return 0
	}
	return len(t.rows[0])
}

// Header returns a copy of row 0, or nil for an empty table.
func (t *Table) Header() Row {
	if t.Len() == 0 {
		return nil
	}
	return t.rows[0].Clone()
}

// Row returns a copy of row i.
func (t *Table) Row(i int) Row {
	return t.rows[i].Clone()
}

// Rows returns a copy of every row.
func (t *Table) Rows() []Row {
	out := make([]Row, t.Len())
	for i := range out {
		out[i] = t.rows[i].Clone()
	}
	return out
}

// Cell returns the cell at row i, column j.
func (t *Table) Cell(i, j int) Cell {
	return t.rows[i][j]
}

// ColumnIndex returns the first column whose header name equals name,
// scanning left to right, or -1.
func (t *Table) ColumnIndex(name string) int {
	if t.Len() == 0 {
		return -1
	}
	for i, c := range t.rows[0] {
		if s, ok := c.Text(); ok && s == name {
			return i
		}
	}
	return -1
}

// Validate checks that every row has the header's cell count.
func (t *Table) Validate() error {
	if t.Len() == 0 {
		return nil
	}
	width := len(t.rows[0])
	for i, r := range t.rows[1:] {
		if len(r) != width {
			return errors.Newf(errors.ErrorTypeMalformedInput,
				"row %d has %d cells, header has %d", i+1, len(r), width).
				WithDetail("row", i+1)
		}
	}
	return nil
}

// Equal reports whether two tables hold the same rows.
func (t *Table) Equal(o *Table) bool {
	if t.Len() != o.Len() {
		return false
	}
	for i := 0; i < t.Len(); i++ {
		if !t.rows[i].Equal(o.rows[i]) {
			return false
		}
	}
	return true
}
