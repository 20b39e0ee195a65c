package transform

import (
	"time"

	"github.com/blackrockforest/forestdata/pkg/errors"
	"github.com/blackrockforest/forestdata/pkg/table"
)

// TimestampLayout is the format of the first column of every export.
const TimestampLayout = "2006-01-02 15:04:05"

// Window is an inclusive time range. A zero Start or End leaves that side
// open.
type Window struct {
	Start time.Time
	End   time.Time
}

// IsUnbounded reports whether neither bound is set.
func (w Window) IsUnbounded() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Contains reports whether ts lies within the window, bounds included.
func (w Window) Contains(ts time.Time) bool {
	if !w.Start.IsZero() && ts.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && ts.After(w.End) {
		return false
	}
	return true
}

// ParseTimestamp reads a string cell in TimestampLayout. Number cells and
// text in any other shape return a timestamp_parse error.
func ParseTimestamp(c table.Cell) (time.Time, error) {
	s, ok := c.Text()
	if !ok {
		return time.Time{}, errors.New(errors.ErrorTypeTimestampParse, "timestamp cell is numeric")
	}
	ts, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.ErrorTypeTimestampParse, "invalid timestamp").
			WithDetail("value", s)
	}
	return ts, nil
}

// FilterWindow keeps the rows whose first cell is a timestamp inside w.
// Rows whose first cell is not a timestamp, the header among them, are
// always kept. Order is preserved. An unbounded window returns t itself.
func FilterWindow(t *table.Table, w Window) *table.Table {
	if w.IsUnbounded() {
		return t
	}

	rows := make([]table.Row, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		if len(row) > 0 {
			if ts, err := ParseTimestamp(row[0]); err == nil && !w.Contains(ts) {
				continue
			}
		}
		rows = append(rows, row)
	}
	return table.FromRows(rows)
}
