package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/blackrockforest/forestdata/pkg/errors"
)

// Dataset outcomes.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// PipelineReport is the result of one pipeline of a dataset.
type PipelineReport struct {
	Name string `json:"name"`
	Result
}

// DatasetReport is the outcome of one dataset.
type DatasetReport struct {
	Name       string           `json:"name"`
	Kind       string           `json:"kind"`
	Input      string           `json:"input"`
	Output     string           `json:"output"`
	Status     string           `json:"status"`
	Error      string           `json:"error,omitempty"`
	ErrorType  string           `json:"error_type,omitempty"`
	DurationMS float64          `json:"duration_ms"`
	Pipelines  []PipelineReport `json:"pipelines"`
}

// Report summarizes a run.
type Report struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Datasets   []DatasetReport `json:"datasets"`
}

func (r *Report) add(d DatasetReport) {
	if d.Status == StatusSucceeded {
		r.Succeeded++
	} else {
		r.Failed++
	}
	r.Datasets = append(r.Datasets, d)
}

// Dataset returns the report of the named dataset.
func (r *Report) Dataset(name string) (DatasetReport, bool) {
	for _, d := range r.Datasets {
		if d.Name == name {
			return d, true
		}
	}
	return DatasetReport{}, false
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to marshal report")
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write report")
	}
	return nil
}

// WriteFile writes the report to path, replacing any previous report.
func (r *Report) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create report directory").
			WithDetail("path", path)
	}
	f, err := os.Create(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create report").
			WithDetail("path", path)
	}
	if err := r.WriteJSON(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close report").
			WithDetail("path", path)
	}
	return nil
}

// ReadReport loads a report written by WriteFile.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read report").
			WithDetail("path", path)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformedInput, "failed to decode report").
			WithDetail("path", path)
	}
	return &r, nil
}
