package transform

import (
	"github.com/montanaflynn/stats"

	"github.com/blackrockforest/forestdata/pkg/errors"
	"github.com/blackrockforest/forestdata/pkg/table"
)

// Mean returns sum(values) / len(values).
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, errors.New(errors.ErrorTypeEmptyInput, "mean of zero values")
	}
	m, err := stats.Mean(values)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, "mean failed")
	}
	return m, nil
}

// PopulationStdDev returns the standard deviation dividing by N, not N-1.
func PopulationStdDev(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, errors.New(errors.ErrorTypeEmptyInput, "standard deviation of zero values")
	}
	sd, err := stats.StandardDeviationPopulation(values)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, "standard deviation failed")
	}
	return sd, nil
}

// Aggregation describes the statistics appended for one group of columns.
type Aggregation struct {
	// Columns are header names of the numeric columns to combine.
	Columns []string
	// MeanLabel heads the appended mean column.
	MeanLabel string
	// StdDevLabel heads the appended standard deviation column. Empty means
	// no standard deviation column.
	StdDevLabel string
}

// Aggregate appends, for each group in order, a mean column and optionally
// a population standard deviation column. The header row receives the
// labels; every data row receives values computed from its own cells.
func Aggregate(t *table.Table, groups ...Aggregation) (*table.Table, error) {
	if t.IsEmpty() {
		return table.Empty(), nil
	}

	resolved := make([][]int, len(groups))
	for g, group := range groups {
		if len(group.Columns) == 0 {
			return nil, errors.New(errors.ErrorTypeEmptyInput, "aggregation group has no columns").
				WithDetail("label", group.MeanLabel)
		}
		idx, err := resolveColumns(t, group.Columns, Strict)
		if err != nil {
			return nil, err
		}
		resolved[g] = idx
	}

	rows := t.Rows()
	rows[0] = appendLabels(rows[0], groups)

	values := make([]float64, 0, 8)
	for i := 1; i < len(rows); i++ {
		for g, group := range groups {
			values = values[:0]
			for _, idx := range resolved[g] {
				v, err := numericCell(rows[i], i, idx)
				if err != nil {
					return nil, err
				}
				values = append(values, v)
			}

			mean, err := Mean(values)
			if err != nil {
				return nil, err
			}
			rows[i] = append(rows[i], table.Number(mean))

			if group.StdDevLabel != "" {
				sd, err := PopulationStdDev(values)
				if err != nil {
					return nil, err
				}
				rows[i] = append(rows[i], table.Number(sd))
			}
		}
	}

	return table.New(rows)
}

func appendLabels(header table.Row, groups []Aggregation) table.Row {
	for _, group := range groups {
		header = append(header, table.String(group.MeanLabel))
		if group.StdDevLabel != "" {
			header = append(header, table.String(group.StdDevLabel))
		}
	}
	return header
}

func numericCell(row table.Row, rowIdx, colIdx int) (float64, error) {
	v, ok := row[colIdx].Float()
	if !ok {
		return 0, errors.Newf(errors.ErrorTypeMalformedInput,
			"row %d column %d is not numeric", rowIdx, colIdx).
			WithDetail("row", rowIdx).
			WithDetail("column", colIdx).
			WithDetail("value", row[colIdx].String())
	}
	return v, nil
}
