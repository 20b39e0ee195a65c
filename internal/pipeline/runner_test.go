package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/blackrockforest/forestdata/pkg/config"
	csvsource "github.com/blackrockforest/forestdata/pkg/connector/sources/csv"
	"github.com/blackrockforest/forestdata/pkg/errors"
	"github.com/blackrockforest/forestdata/pkg/metrics"
	"github.com/blackrockforest/forestdata/pkg/transform"
)

const rawDendrometer = `"TOA5","Mnt_Misery","CR1000","1234","CR1000.Std.32","CPU:dendro.CR1","5678","Table20"
"TS","RN","Volts","","mV","mV","mV","mV","mV","mV"
"","","Min","Smp","Avg","Max","Avg","Avg","Avg","Avg"
"TIMESTAMP","RECORD","Battery_Volt_MIN","ProgSig","Oak1_AVG","Oak1_MAX","Oak2_AVG","Oak3_AVG","Oak4_AVG","Oak5_AVG"
"2016-10-07 14:00:00",1,12.5,0,13,14,23,12,44,55
"2016-10-07 14:20:00",2,12.4,0,1,1.5,2,3,4,5
`

const rawEnvironmental = `"TOA5","Lowland","CR3000"
"TS","RN","Deg C"
"","","Avg"
"TIMESTAMP","RECORD","AvgTEMP_C","MinTEMP_C","AvgVP","TotalRain","SoilM_5cm","AvgPAR_Den"
"2016-09-10 16:00:00",10,18.5,17.2,1.2,0,0.31,410
"2016-09-10 17:00:00",11,18.1,17.9,1.3,0.2,0.32,350
"2016-09-10 18:00:00",12,17.0,16.4,1.3,0,0.32,NAN
`

var oaks = []string{"Oak1_AVG", "Oak2_AVG", "Oak3_AVG", "Oak4_AVG", "Oak5_AVG"}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.LocalDir = t.TempDir()
	cfg.Paths.ProcessedDir = filepath.Join(t.TempDir(), "processed")
	return cfg
}

func writeRaw(t *testing.T, cfg *config.Config, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.LocalDir, name), []byte(content), 0o600))
}

func dendrometerDataset() config.Dataset {
	return config.Dataset{
		Name:    "mnt-misery",
		Kind:    config.KindDendrometer,
		File:    "Mnt_Misery_Table20.csv",
		Columns: append([]string{"TIMESTAMP"}, oaks...),
		Aggregation: &config.AggregationConfig{
			Mode: config.AggregationSingle,
			Groups: []config.AggregationGroup{
				{Columns: oaks, MeanLabel: "Site AVG", StdDevLabel: "Site STD DEV"},
			},
		},
	}
}

func readProcessed(t *testing.T, path string) [][]string {
	t.Helper()
	tbl, err := csvsource.NewCSVSource(path, csvsource.ProcessedOptions(), nil).Read(context.Background())
	require.NoError(t, err)
	out := make([][]string, tbl.Len())
	for i := range out {
		out[i] = tbl.Row(i).Names()
	}
	return out
}

func TestDendrometerEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.Datasets = []config.Dataset{dendrometerDataset()}
	writeRaw(t, cfg, "Mnt_Misery_Table20.csv", rawDendrometer)

	report, err := NewRunner(cfg, Deps{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	out := filepath.Join(cfg.Paths.ProcessedDir, "Mnt_Misery_Table20.csv")
	data, err := os.ReadFile(out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\r\n"), "\r\n")
	require.Len(t, lines, 3)
	assert.Equal(t,
		`"TIMESTAMP","Oak1_AVG","Oak2_AVG","Oak3_AVG","Oak4_AVG","Oak5_AVG","Site AVG","Site STD DEV"`,
		lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `"2016-10-07 14:00:00",13.0,23.0,12.0,44.0,55.0,29.4,17.2116`), lines[1])
	assert.Equal(t, `"2016-10-07 14:20:00",1.0,2.0,3.0,4.0,5.0,3.0,1.4142135623730951`, lines[2])

	tbl, err := csvsource.NewCSVSource(out, csvsource.ProcessedOptions(), nil).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, 8, tbl.Width())
	sd, ok := tbl.Cell(1, 7).Float()
	require.True(t, ok)
	assert.InDelta(t, 17.21162, sd, 5e-6)
}

func TestDendrometerWithRenameAndRDH(t *testing.T) {
	cfg := testConfig(t)
	d := dendrometerDataset()
	d.Name = "white-oak"
	d.File = "White_Oak_Table20.csv"
	d.Rename = &config.RenameConfig{
		From:   "Oak",
		To:     "White_Oak",
		Window: config.TimeWindow{Start: "2016-10-07 14:20:00"},
	}
	d.Aggregation.Groups[0].Columns = []string{
		"White_Oak1_AVG", "White_Oak2_AVG", "White_Oak3_AVG", "White_Oak4_AVG", "White_Oak5_AVG",
	}
	d.RDH = &config.RDHConfig{Baselines: []transform.Baseline{
		{DBH: 32.1, Voltage: 0}, {DBH: 33.3, Voltage: 1}, {DBH: 46.7, Voltage: 2},
		{DBH: 30.0, Voltage: 3}, {DBH: 26.7, Voltage: 4},
	}}
	cfg.Datasets = []config.Dataset{d}
	writeRaw(t, cfg, d.File, rawDendrometer)

	report, err := NewRunner(cfg, Deps{}).Run(context.Background())
	require.NoError(t, err)

	dr, ok := report.Dataset("white-oak")
	require.True(t, ok)
	require.Len(t, dr.Pipelines, 2)
	assert.Equal(t, "white-oak"+RDHSuffix, dr.Pipelines[1].Name)

	rows := readProcessed(t, cfg.OutputPath(d))
	require.Len(t, rows, 2, "rename window drops the 14:00 row")
	assert.Equal(t, "White_Oak1_AVG", rows[0][1])
	// Each sensor reads one volt above its baseline, so every delta is 5.
	assert.Equal(t, []string{"2016-10-07 14:20:00", "5.0", "5.0", "5.0", "5.0", "5.0", "3.0", "1.4142135623730951"}, rows[1])
}

func TestLenientColumnsWithRDH(t *testing.T) {
	cfg := testConfig(t)
	d := dendrometerDataset()
	d.Columns = append(d.Columns, "Oak6_AVG")
	d.LenientColumns = true
	unit := transform.Baseline{DBH: 1, Voltage: 0}
	d.RDH = &config.RDHConfig{Baselines: []transform.Baseline{unit, unit, unit, unit, unit, unit}}
	cfg.Datasets = []config.Dataset{d}
	writeRaw(t, cfg, d.File, rawDendrometer)

	_, err := NewRunner(cfg, Deps{}).Run(context.Background())
	require.NoError(t, err)

	rows := readProcessed(t, cfg.OutputPath(d))
	require.Len(t, rows, 3)
	assert.Equal(t,
		[]string{"TIMESTAMP", "Oak1_AVG", "Oak2_AVG", "Oak3_AVG", "Oak4_AVG", "Oak5_AVG", "Site AVG", "Site STD DEV"},
		rows[0])
	assert.Equal(t,
		[]string{"2016-10-07 14:20:00", "5.0", "10.0", "15.0", "20.0", "25.0", "3.0", "1.4142135623730951"},
		rows[2], "aggregate columns keep their values")

	d.LenientColumns = false
	cfg.Datasets = []config.Dataset{d}
	_, err = NewRunner(cfg, Deps{}).Run(context.Background())
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnknownColumn))
}

func TestCompressedOutput(t *testing.T) {
	cfg := testConfig(t)
	cfg.Compression = config.CompressionConfig{Algorithm: "zstd", Level: "best"}
	d := dendrometerDataset()
	d.RDH = &config.RDHConfig{Baselines: []transform.Baseline{
		{DBH: 1, Voltage: 0}, {DBH: 1, Voltage: 0}, {DBH: 1, Voltage: 0}, {DBH: 1, Voltage: 0}, {DBH: 1, Voltage: 0},
	}}
	cfg.Datasets = []config.Dataset{d}
	writeRaw(t, cfg, d.File, rawDendrometer)

	report, err := NewRunner(cfg, Deps{}).Run(context.Background())
	require.NoError(t, err)

	out := cfg.OutputPath(d)
	assert.Equal(t, filepath.Join(cfg.Paths.ProcessedDir, "Mnt_Misery_Table20.csv.zst"), out)
	dr, _ := report.Dataset(d.Name)
	assert.Equal(t, out, dr.Output)

	rows := readProcessed(t, out)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2016-10-07 14:20:00", "5.0", "10.0", "15.0", "20.0", "25.0", "3.0", "1.4142135623730951"}, rows[2])

	_, statErr := os.Stat(filepath.Join(cfg.Paths.ProcessedDir, "Mnt_Misery_Table20.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestTwoGroupAggregation(t *testing.T) {
	cfg := testConfig(t)
	d := dendrometerDataset()
	d.Name = "mailleys-mill"
	d.File = "Mailley's_Mill_Table20Min.csv"
	d.Aggregation = &config.AggregationConfig{
		Mode: config.AggregationTwoGroup,
		Groups: []config.AggregationGroup{
			{Columns: oaks[:3], MeanLabel: "Red Oak AVG"},
			{Columns: oaks[3:], MeanLabel: "Chestnut Oak AVG"},
		},
	}
	cfg.Datasets = []config.Dataset{d}
	writeRaw(t, cfg, d.File, rawDendrometer)

	_, err := NewRunner(cfg, Deps{}).Run(context.Background())
	require.NoError(t, err)

	rows := readProcessed(t, cfg.OutputPath(d))
	assert.Equal(t, "Red Oak AVG", rows[0][6])
	assert.Equal(t, "Chestnut Oak AVG", rows[0][7])
	assert.Equal(t, []string{"16.0", "49.5"}, rows[1][6:])
	assert.Equal(t, []string{"2.0", "4.5"}, rows[2][6:])
}

func TestEnvironmentalEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	d := config.Dataset{
		Name:    "lowland",
		Kind:    config.KindEnvironmental,
		File:    "Lowland.csv",
		Columns: []string{"TIMESTAMP", "AvgTEMP_C", "AvgVP", "TotalRain", "SoilM_5cm", "AvgPAR_Den"},
		Window:  config.TimeWindow{Start: "2016-09-10 17:00:00"},
	}
	cfg.Datasets = []config.Dataset{d}
	writeRaw(t, cfg, d.File, rawEnvironmental)

	report, err := NewRunner(cfg, Deps{}).Run(context.Background())
	require.NoError(t, err)

	rows := readProcessed(t, cfg.OutputPath(d))
	require.Len(t, rows, 3)
	assert.Equal(t, d.Columns, rows[0])
	assert.Equal(t, []string{"2016-09-10 17:00:00", "18.1", "1.3", "0.2", "0.32", "350.0"}, rows[1])
	assert.Equal(t, "nan", rows[2][5], "bare NAN reads as a number and writes back as nan")

	dr, _ := report.Dataset("lowland")
	require.Len(t, dr.Pipelines, 1)
	assert.Equal(t, 3, dr.Pipelines[0].RowsRead)
	assert.Equal(t, 2, dr.Pipelines[0].RowsWritten)
}

func TestRunnerIsolatesFailures(t *testing.T) {
	cfg := testConfig(t)

	missing := dendrometerDataset()
	missing.Name = "missing"
	missing.File = "Missing.csv"

	badBaselines := dendrometerDataset()
	badBaselines.Name = "short-baselines"
	badBaselines.RDH = &config.RDHConfig{Baselines: []transform.Baseline{{DBH: 48.0, Voltage: 20.9}}}

	good := dendrometerDataset()
	good.Name = "good"
	good.File = "Good.csv"

	cfg.Datasets = []config.Dataset{missing, badBaselines, good}
	writeRaw(t, cfg, "Mnt_Misery_Table20.csv", rawDendrometer)
	writeRaw(t, cfg, "Good.csv", rawDendrometer)

	collector := metrics.NewCollector()
	report, err := NewRunner(cfg, Deps{Metrics: collector}).Run(context.Background())
	require.Error(t, err)

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	assert.True(t, errors.IsType(errs[0], errors.ErrorTypeFile))
	assert.True(t, errors.IsType(errs[1], errors.ErrorTypeBaselineMismatch))

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, report.Datasets, 3)
	assert.Equal(t, StatusFailed, report.Datasets[0].Status)
	assert.Equal(t, "file", report.Datasets[0].ErrorType)
	assert.Equal(t, "baseline_mismatch", report.Datasets[1].ErrorType)
	assert.Len(t, report.Datasets[1].Pipelines, 1, "first pass ran before the post-pass failed")
	assert.Equal(t, StatusSucceeded, report.Datasets[2].Status)

	_, statErr := os.Stat(filepath.Join(cfg.Paths.ProcessedDir, "Good.csv"))
	assert.NoError(t, statErr)

	n, gerr := testutil.GatherAndCount(collector.Registry(), "forestdata_runs_total")
	require.NoError(t, gerr)
	assert.Equal(t, 3, n)
}

func TestRunDatasets(t *testing.T) {
	cfg := testConfig(t)
	cfg.Datasets = []config.Dataset{dendrometerDataset()}
	writeRaw(t, cfg, "Mnt_Misery_Table20.csv", rawDendrometer)

	runner := NewRunner(cfg, Deps{})

	_, err := runner.RunDatasets(context.Background(), "nope")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, statErr := os.Stat(cfg.OutputPath(cfg.Datasets[0]))
	assert.True(t, os.IsNotExist(statErr), "nothing runs when a name is unknown")

	report, err := runner.RunDatasets(context.Background(), "mnt-misery")
	require.NoError(t, err)
	assert.Len(t, report.Datasets, 1)
	assert.NotEmpty(t, report.RunID)
}

func TestRunnerStopsWhenCanceled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Datasets = []config.Dataset{dendrometerDataset()}
	writeRaw(t, cfg, "Mnt_Misery_Table20.csv", rawDendrometer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewRunner(cfg, Deps{}).Run(ctx)
	require.Error(t, err)
	assert.Empty(t, report.Datasets)
}

func TestReportJSON(t *testing.T) {
	cfg := testConfig(t)
	cfg.Datasets = []config.Dataset{dendrometerDataset()}
	writeRaw(t, cfg, "Mnt_Misery_Table20.csv", rawDendrometer)

	report, err := NewRunner(cfg, Deps{}).Run(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf))
	assert.Contains(t, buf.String(), `"rows_written": 2`)
	assert.Contains(t, buf.String(), `"name": "aggregate"`)

	path := filepath.Join(t.TempDir(), "reports", "run.json")
	require.NoError(t, report.WriteFile(path))

	loaded, err := ReadReport(path)
	require.NoError(t, err)
	assert.Equal(t, report.RunID, loaded.RunID)
	require.Len(t, loaded.Datasets, 1)
	assert.Equal(t, 2, loaded.Datasets[0].Pipelines[0].RowsWritten)
	assert.Len(t, loaded.Datasets[0].Pipelines[0].Stages, 3)
}

func TestBuildRecipes(t *testing.T) {
	cfg := testConfig(t)

	d := dendrometerDataset()
	pipelines, err := Build(cfg, d, Deps{})
	require.NoError(t, err)
	require.Len(t, pipelines, 1)
	assert.Equal(t, []string{StageProject, StageWindow, StageAggregate}, pipelines[0].StageNames())

	d.Rename = &config.RenameConfig{From: "Red_Oak", To: "White_Oak"}
	d.RDH = &config.RDHConfig{Baselines: make([]transform.Baseline, 5)}
	pipelines, err = Build(cfg, d, Deps{})
	require.NoError(t, err)
	require.Len(t, pipelines, 2)
	assert.Equal(t, []string{StageProject, StageWindow, StageRename, StageAggregate}, pipelines[0].StageNames())
	assert.Equal(t, []string{StageRDH}, pipelines[1].StageNames())

	env := config.Dataset{Name: "lowland", Kind: config.KindEnvironmental, File: "Lowland.csv", Columns: []string{"TIMESTAMP"}}
	pipelines, err = Build(cfg, env, Deps{})
	require.NoError(t, err)
	assert.Equal(t, []string{StageProject, StageWindow}, pipelines[0].StageNames())

	env.Kind = "soil"
	_, err = Build(cfg, env, Deps{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
