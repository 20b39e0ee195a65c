package pipeline

import (
	"context"

	"github.com/blackrockforest/forestdata/pkg/table"
	"github.com/blackrockforest/forestdata/pkg/transform"
)

// Stage names used in logs, metrics and spans.
const (
	StageProject   = "project"
	StageWindow    = "window"
	StageRename    = "rename"
	StageAggregate = "aggregate"
	StageRDH       = "rdh"
)

// ProjectStage keeps the named columns in keep order.
func ProjectStage(keep []string, policy transform.ColumnPolicy) Stage {
	keep = append([]string(nil), keep...)
	return Stage{
		Name: StageProject,
		Apply: func(_ context.Context, t *table.Table) (*table.Table, error) {
			return transform.Project(t, keep, policy)
		},
	}
}

// WindowStage keeps rows whose timestamp falls inside w.
func WindowStage(w transform.Window) Stage {
	return Stage{
		Name: StageWindow,
		Apply: func(_ context.Context, t *table.Table) (*table.Table, error) {
			return transform.FilterWindow(t, w), nil
		},
	}
}

// RenameStage replaces from with to in every string cell.
func RenameStage(from, to string) Stage {
	return Stage{
		Name: StageRename,
		Apply: func(_ context.Context, t *table.Table) (*table.Table, error) {
			return transform.Rename(t, from, to), nil
		},
	}
}

// AggregateStage appends the statistics of each group.
func AggregateStage(groups ...transform.Aggregation) Stage {
	groups = append([]transform.Aggregation(nil), groups...)
	return Stage{
		Name: StageAggregate,
		Apply: func(_ context.Context, t *table.Table) (*table.Table, error) {
			return transform.Aggregate(t, groups...)
		},
	}
}

// RDHStage converts the named sensor columns into radial growth deltas,
// columns[i] against baselines[i]. Columns are found in the header of the
// table the stage receives.
func RDHStage(baselines []transform.Baseline, columns []string, policy transform.ColumnPolicy) Stage {
	baselines = append([]transform.Baseline(nil), baselines...)
	columns = append([]string(nil), columns...)
	return Stage{
		Name: StageRDH,
		Apply: func(_ context.Context, t *table.Table) (*table.Table, error) {
			return transform.ConvertRDHColumns(t, baselines, columns, policy)
		},
	}
}
