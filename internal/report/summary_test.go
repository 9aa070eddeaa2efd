package report

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/llmbatch/internal/resume"
	"github.com/phrazzld/llmbatch/internal/task"
)

func sampleReport() *task.Report {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &task.Report{
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Resume:     resume.Stats{Total: 10, Done: 4, Pending: 6},
		Progress:   task.Progress{Total: 6, Completed: 4, Failed: 1, Skipped: 1, Elapsed: 90 * time.Second},
		Failures: []*task.ItemError{
			{Index: 7, ID: "8", Stage: task.StageCall, Err: errors.New("quota exceeded")},
		},
	}
}

func TestNewSummary(t *testing.T) {
	runErr := errors.New("batch finished with failures")

	s := NewSummary(sampleReport(), runErr, "out/tasks.jsonl", map[string]any{"nthreads": 4})

	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, runErr.Error(), s.Error)
	assert.Equal(t, 90*time.Second, s.Duration)
	assert.Equal(t, DatasetSummary{Total: 10, Done: 4, Pending: 6}, s.Dataset)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, Failure{Index: 7, ID: "8", Stage: "call", Error: "quota exceeded"}, s.Failures[0])
}

func TestNewSummaryStatus(t *testing.T) {
	ok := NewSummary(&task.Report{RunID: "r"}, nil, "out", nil)
	assert.Equal(t, StatusSucceeded, ok.Status)
	assert.Empty(t, ok.Error)

	aborted := NewSummary(&task.Report{RunID: "r", Aborted: true}, errors.New("batch aborted"), "out", nil)
	assert.Equal(t, StatusAborted, aborted.Status)

	noReport := NewSummary(nil, errors.New("scan failed"), "out", nil)
	assert.Equal(t, StatusFailed, noReport.Status)
	assert.Empty(t, noReport.RunID)
}

func TestWriteAndReadSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "log.yaml")
	want := NewSummary(sampleReport(), nil, "out/tasks.jsonl", map[string]any{"llm_model": "gemini-2.0-flash"})

	require.NoError(t, WriteSummary(path, want))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_id: run-1")
	assert.Contains(t, string(data), "duration: 1m30s")
	assert.Contains(t, string(data), "already_done: 4")

	got, err := ReadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, want.RunID, got.RunID)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, want.Duration, got.Duration)
	assert.Equal(t, want.Progress, got.Progress)
	assert.Equal(t, want.Failures, got.Failures)
	assert.Equal(t, "gemini-2.0-flash", got.Config["llm_model"])
}

func TestWriteSummaryErrors(t *testing.T) {
	assert.Error(t, WriteSummary("", Summary{}))

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	assert.Error(t, WriteSummary(filepath.Join(blocker, "log.yaml"), Summary{}))

	_, err := ReadSummary(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestNewSummaryRedactsCredentials(t *testing.T) {
	rep := sampleReport()
	rep.Failures[0].Err = errors.New("dial postgres://app:hunter22@db/records: refused")

	s := NewSummary(rep, errors.New("api_key=abcdefghijklmnop rejected"), "out", nil)

	assert.NotContains(t, s.Error, "abcdefghijklmnop")
	assert.NotContains(t, s.Failures[0].Error, "hunter22")
}
