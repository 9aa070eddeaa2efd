package api

import (
	"github.com/phrazzld/llmbatch/internal/task"
)

// ProgressResponse defines the payload of the progress endpoint.
type ProgressResponse struct {
	RunID          string  `json:"run_id"`
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	Failed         int     `json:"failed"`
	Skipped        int     `json:"skipped"`
	Pending        int     `json:"pending"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Done           bool    `json:"done"`
}

func newProgressResponse(runID string, p task.Progress) ProgressResponse {
	return ProgressResponse{
		RunID:          runID,
		Total:          p.Total,
		Completed:      p.Completed,
		Failed:         p.Failed,
		Skipped:        p.Skipped,
		Pending:        p.Pending,
		ElapsedSeconds: p.Elapsed.Seconds(),
		Done:           runID != "" && p.Pending == 0,
	}
}
