package transform

import (
	"strings"

	"github.com/blackrockforest/forestdata/pkg/table"
)

// Rename replaces every non-overlapping occurrence of from with to in each
// string cell. Matching is literal. Number cells are untouched, and an
// empty from leaves the table unchanged.
func Rename(t *table.Table, from, to string) *table.Table {
	rows := t.Rows()
	if from == "" || from == to {
		return table.FromRows(rows)
	}

	for _, row := range rows {
		for j, c := range row {
			if s, ok := c.Text(); ok && strings.Contains(s, from) {
				row[j] = table.String(strings.ReplaceAll(s, from, to))
			}
		}
	}
	return table.FromRows(rows)
}
