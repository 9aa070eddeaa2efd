// Package report writes the YAML summary of a finished batch run.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/phrazzld/llmbatch/internal/redact"
	"github.com/phrazzld/llmbatch/internal/task"
)

// Summary is the document written to the run summary file.
type Summary struct {
	RunID      string        `yaml:"run_id"`
	StartedAt  time.Time     `yaml:"started_at"`
	FinishedAt time.Time     `yaml:"finished_at"`
	Duration   time.Duration `yaml:"duration"`
	Output     string        `yaml:"output"`
	Status     string        `yaml:"status"`
	Error      string        `yaml:"error,omitempty"`

	Dataset  DatasetSummary `yaml:"dataset"`
	Progress task.Progress  `yaml:"progress"`
	Failures []Failure      `yaml:"failures,omitempty"`

	Config map[string]any `yaml:"config,omitempty"`
}

// DatasetSummary describes the resume scan.
type DatasetSummary struct {
	Total   int `yaml:"total"`
	Done    int `yaml:"already_done"`
	Pending int `yaml:"pending"`
}

// Failure describes one failed item.
type Failure struct {
	Index int    `yaml:"index"`
	ID    string `yaml:"id"`
	Stage string `yaml:"stage"`
	Error string `yaml:"error"`
}

// Run status values.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusAborted   = "aborted"
)

// NewSummary builds a summary from a run report and the error Run returned.
// Error messages are stored with credentials redacted.
// rep may be nil when the run failed before any item was dispatched.
func NewSummary(rep *task.Report, runErr error, output string, config map[string]any) Summary {
	s := Summary{
		Output: output,
		Status: StatusSucceeded,
		Config: config,
	}
	if runErr != nil {
		s.Status = StatusFailed
		s.Error = redact.Error(runErr)
	}
	if rep == nil {
		return s
	}

	s.RunID = rep.RunID
	s.StartedAt = rep.StartedAt
	s.FinishedAt = rep.FinishedAt
	s.Duration = rep.FinishedAt.Sub(rep.StartedAt)
	s.Dataset = DatasetSummary{
		Total:   rep.Resume.Total,
		Done:    rep.Resume.Done,
		Pending: rep.Resume.Pending,
	}
	s.Progress = rep.Progress
	if rep.Aborted {
		s.Status = StatusAborted
	}

	for _, f := range rep.Failures {
		s.Failures = append(s.Failures, Failure{
			Index: f.Index,
			ID:    f.ID,
			Stage: string(f.Stage),
			Error: redact.Error(f.Err),
		})
	}
	return s
}

// WriteSummary encodes s as YAML to path, replacing any previous file.
func WriteSummary(path string, s Summary) error {
	if path == "" {
		return errors.New("summary path is empty")
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary %s: %w", path, err)
	}
	return nil
}

// ReadSummary decodes a summary written by WriteSummary.
func ReadSummary(path string) (Summary, error) {
	var s Summary
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read summary %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to decode summary %s: %w", path, err)
	}
	return s, nil
}
