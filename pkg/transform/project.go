package transform

import (
	"github.com/blackrockforest/forestdata/pkg/errors"
	"github.com/blackrockforest/forestdata/pkg/table"
)

// ColumnPolicy decides what Project does with a name missing from the
// header.
type ColumnPolicy int

const (
	// Strict fails with an unknown_column error.
	Strict ColumnPolicy = iota
	// Lenient skips the name.
	Lenient
)

// Project returns a table holding only the keep columns, ordered as in
// keep. Each name resolves to the first header cell equal to it. Row order
// and row count are unchanged. An empty table projects to an empty table.
func Project(t *table.Table, keep []string, policy ColumnPolicy) (*table.Table, error) {
	if t.IsEmpty() {
		return table.Empty(), nil
	}

	indices, err := resolveColumns(t, keep, policy)
	if err != nil {
		return nil, err
	}

	rows := make([]table.Row, t.Len())
	for i := range rows {
		row := make(table.Row, len(indices))
		for j, idx := range indices {
			row[j] = t.Cell(i, idx)
		}
		rows[i] = row
	}
	return table.FromRows(rows), nil
}

func resolveColumns(t *table.Table, names []string, policy ColumnPolicy) ([]int, error) {
	indices := make([]int, 0, len(names))
	var missing []string
	for _, name := range names {
		idx := t.ColumnIndex(name)
		if idx < 0 {
			missing = append(missing, name)
			continue
		}
		indices = append(indices, idx)
	}

	if len(missing) > 0 && policy == Strict {
		return nil, unknownColumns(t, missing)
	}
	return indices, nil
}

func unknownColumns(t *table.Table, missing []string) error {
	return errors.Newf(errors.ErrorTypeUnknownColumn,
		"column %q not found in header", missing[0]).
		WithDetail("missing", missing).
		WithDetail("header", t.Header().Names())
}
