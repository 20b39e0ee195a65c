package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackrockforest/forestdata/internal/pipeline"
	"github.com/blackrockforest/forestdata/pkg/config"
)

const lowlandExport = `"TOA5","Lowland","CR3000"
"TS","RN","Deg C"
"","","Avg"
"TIMESTAMP","RECORD","AvgTEMP_C","TotalRain"
"2016-09-10 16:00:00",10,18.5,0
"2016-09-10 17:00:00",11,18.1,0.2
"2016-09-10 18:00:00",12,17.0,NAN
`

const testConfigYAML = `paths:
  local_dir: ${FORESTDATA_TEST_LOCAL}
  processed_dir: ${FORESTDATA_TEST_PROCESSED}
logging:
  level: error
datasets:
  - name: lowland
    kind: environmental
    file: Lowland.csv
    columns: [TIMESTAMP, AvgTEMP_C, TotalRain]
    window:
      start: "2016-09-10 17:00:00"
  - name: missing
    kind: environmental
    file: Missing.csv
    columns: [TIMESTAMP]
`

type fixture struct {
	config    string
	processed string
	dir       string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	local := filepath.Join(dir, "current")
	processed := filepath.Join(dir, "processed")
	require.NoError(t, os.MkdirAll(local, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(local, "Lowland.csv"), []byte(lowlandExport), 0o600))

	t.Setenv("FORESTDATA_TEST_LOCAL", local)
	t.Setenv("FORESTDATA_TEST_PROCESSED", processed)

	path := filepath.Join(dir, "forestdata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o600))
	return fixture{config: path, processed: processed, dir: dir}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "forestdata v"+version)
	assert.Contains(t, out, "OS/Arch:")
}

func TestListCommand(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "list", "--config", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "lowland")
	assert.Contains(t, out, "environmental")
	assert.Contains(t, out, filepath.Join(f.processed, "Lowland.csv"))
}

func TestListMissingConfig(t *testing.T) {
	_, err := execute(t, "list", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestProcessCommand(t *testing.T) {
	f := newFixture(t)
	reportPath := filepath.Join(f.dir, "reports", "run.json")
	textfile := filepath.Join(f.dir, "metrics", "forestdata.prom")

	out, err := execute(t, "process", "lowland",
		"--config", f.config,
		"--report", reportPath,
		"--metrics-textfile", textfile,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded")

	data, err := os.ReadFile(filepath.Join(f.processed, "Lowland.csv"))
	require.NoError(t, err)
	assert.Equal(t,
		"\"TIMESTAMP\",\"AvgTEMP_C\",\"TotalRain\"\r\n"+
			"\"2016-09-10 17:00:00\",18.1,0.2\r\n"+
			"\"2016-09-10 18:00:00\",17.0,nan\r\n",
		string(data))

	report, err := pipeline.ReadReport(reportPath)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 0, report.Failed)

	prom, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "forestdata_runs_total")
}

func TestRunCommandReportsFailures(t *testing.T) {
	f := newFixture(t)
	reportPath := filepath.Join(f.dir, "run.json")

	out, err := execute(t, "run", "--config", f.config, "--report", reportPath)
	require.Error(t, err)
	assert.True(t, strings.Contains(out, "missing"))

	report, rerr := pipeline.ReadReport(reportPath)
	require.NoError(t, rerr)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	d, ok := report.Dataset("missing")
	require.True(t, ok)
	assert.Equal(t, pipeline.StatusFailed, d.Status)
	assert.Equal(t, "file", d.ErrorType)
}

func TestProcessUnknownDataset(t *testing.T) {
	f := newFixture(t)

	_, err := execute(t, "process", "nowhere", "--config", f.config)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(f.processed, "Lowland.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestProcessRequiresName(t *testing.T) {
	_, err := execute(t, "process")
	require.Error(t, err)
}

func TestUnknownExporterFlag(t *testing.T) {
	f := newFixture(t)

	_, err := execute(t, "process", "lowland", "--config", f.config, "--trace-exporter", "jaeger")
	require.Error(t, err)
}

func TestConfigCommandPrintsEffectiveConfig(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "config", "--config", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "processed_dir: "+f.processed)
	assert.Contains(t, out, "metadata_rows: 3")
	assert.Contains(t, out, "name: lowland")
}

func TestConfigCommandSaves(t *testing.T) {
	f := newFixture(t)
	saved := filepath.Join(f.dir, "effective.yaml")

	_, err := execute(t, "config", "--config", f.config, "--output", saved)
	require.NoError(t, err)

	original, err := config.Load(f.config)
	require.NoError(t, err)
	loaded, err := config.Load(saved)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestCompressedProcess(t *testing.T) {
	f := newFixture(t)
	data, err := os.ReadFile(f.config)
	require.NoError(t, err)
	compressed := strings.Replace(string(data), "logging:", "compression:\n  algorithm: gzip\n  level: best\nlogging:", 1)
	require.NoError(t, os.WriteFile(f.config, []byte(compressed), 0o600))

	_, err = execute(t, "process", "lowland", "--config", f.config)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(f.processed, "Lowland.csv.gz"))
	assert.NoError(t, err)
}
