package transform

import (
	"github.com/blackrockforest/forestdata/pkg/errors"
	"github.com/blackrockforest/forestdata/pkg/table"
)

// Baseline is a tree's diameter at breast height (cm) and the dendrometer
// voltage recorded at the same moment.
type Baseline struct {
	DBH     float64 `yaml:"dbh" json:"dbh"`
	Voltage float64 `yaml:"voltage" json:"voltage"`
}

// RDHDelta converts a dendrometer reading into the change in radius since
// the baseline. The radius is scaled by 10000 and each volt counts 5 units.
func RDHDelta(oldDBH, oldVoltage, currentVoltage float64) float64 {
	halfDiameterScaled := (oldDBH / 2) * 10000
	radialValue := halfDiameterScaled + (currentVoltage-oldVoltage)*5
	return radialValue - halfDiameterScaled
}

// ConvertRDH rewrites count contiguous columns starting at first, in every
// data row, with RDHDelta against baselines[column-first]. The header and
// every column outside the range pass through unchanged.
func ConvertRDH(t *table.Table, baselines []Baseline, first, count int) (*table.Table, error) {
	if err := checkBaselines(baselines, count); err != nil {
		return nil, err
	}
	if t.IsEmpty() {
		return table.Empty(), nil
	}
	if first < 0 || count < 0 || first+count > t.Width() {
		return nil, errors.Newf(errors.ErrorTypeMalformedInput,
			"columns %d..%d outside a table of width %d", first, first+count-1, t.Width())
	}

	targets := make([]rdhTarget, count)
	for offset := range targets {
		targets[offset] = rdhTarget{column: first + offset, baseline: baselines[offset]}
	}
	return convertRDH(t, targets)
}

// ConvertRDHColumns rewrites the named columns, in every data row, with
// RDHDelta against baselines[i] for columns[i]. Each name resolves to the
// first matching header cell, so the range follows the table actually read
// rather than a fixed position. A name missing from the header fails with
// unknown_column under Strict; under Lenient it is skipped along with its
// baseline.
func ConvertRDHColumns(t *table.Table, baselines []Baseline, columns []string, policy ColumnPolicy) (*table.Table, error) {
	if err := checkBaselines(baselines, len(columns)); err != nil {
		return nil, err
	}
	if t.IsEmpty() {
		return table.Empty(), nil
	}

	targets := make([]rdhTarget, 0, len(columns))
	var missing []string
	for i, name := range columns {
		idx := t.ColumnIndex(name)
		if idx < 0 {
			missing = append(missing, name)
			continue
		}
		targets = append(targets, rdhTarget{column: idx, baseline: baselines[i]})
	}
	if len(missing) > 0 && policy == Strict {
		return nil, unknownColumns(t, missing)
	}
	return convertRDH(t, targets)
}

type rdhTarget struct {
	column   int
	baseline Baseline
}

func checkBaselines(baselines []Baseline, count int) error {
	if len(baselines) < count {
		return errors.Newf(errors.ErrorTypeBaselineMismatch,
			"%d baselines supplied for %d columns", len(baselines), count).
			WithDetail("baselines", len(baselines)).
			WithDetail("columns", count)
	}
	return nil
}

func convertRDH(t *table.Table, targets []rdhTarget) (*table.Table, error) {
	rows := t.Rows()
	for i := 1; i < len(rows); i++ {
		for _, target := range targets {
			v, err := numericCell(rows[i], i, target.column)
			if err != nil {
				return nil, err
			}
			b := target.baseline
			rows[i][target.column] = table.Number(RDHDelta(b.DBH, b.Voltage, v))
		}
	}
	return table.FromRows(rows), nil
}
