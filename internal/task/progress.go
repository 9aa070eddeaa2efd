package task

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Progress is a point-in-time view of a run.
type Progress struct {
	Total     int           `json:"total" yaml:"total"`         // items pending when the run started
	Completed int           `json:"completed" yaml:"completed"` // items whose record was appended
	Failed    int           `json:"failed" yaml:"failed"`
	Skipped   int           `json:"skipped" yaml:"skipped"` // items with nothing to persist
	Pending   int           `json:"pending" yaml:"pending"` // items not finished yet
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Finished returns the number of items that reached a final state.
func (p Progress) Finished() int {
	return p.Completed + p.Failed + p.Skipped
}

// LogValue implements slog.LogValuer for structured logging.
func (p Progress) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("total", p.Total),
		slog.Int("completed", p.Completed),
		slog.Int("failed", p.Failed),
		slog.Int("skipped", p.Skipped),
		slog.Int("pending", p.Pending),
		slog.Duration("elapsed", p.Elapsed),
	)
}

// Observer receives run progress. Calls come from a single goroutine per run.
type Observer interface {
	// RunStarted is called once the pending set is known.
	RunStarted(runID string, p Progress)
	// ItemFinished is called after every processed item.
	ItemFinished(res Result, p Progress)
}

// Tracker counts item outcomes and implements Observer. Its counters use
// atomic operations so a status endpoint can read them while workers run.
type Tracker struct {
	runID     atomic.Value
	started   atomic.Int64
	total     atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

var _ Observer = (*Tracker)(nil)

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.runID.Store("")
	return t
}

// RunStarted resets the counters for a new run.
func (t *Tracker) RunStarted(runID string, p Progress) {
	t.runID.Store(runID)
	t.started.Store(time.Now().UnixNano())
	t.total.Store(int64(p.Total))
	t.completed.Store(0)
	t.failed.Store(0)
	t.skipped.Store(0)
}

// ItemFinished records the outcome of one item.
func (t *Tracker) ItemFinished(res Result, _ Progress) {
	t.record(res)
}

func (t *Tracker) record(res Result) {
	switch {
	case res.Err != nil:
		t.failed.Add(1)
	case res.Record == nil:
		t.skipped.Add(1)
	default:
		t.completed.Add(1)
	}
}

// RunID returns the identifier of the current run.
func (t *Tracker) RunID() string {
	id, _ := t.runID.Load().(string)
	return id
}

// Snapshot returns the current progress.
func (t *Tracker) Snapshot() Progress {
	p := Progress{
		Total:     int(t.total.Load()),
		Completed: int(t.completed.Load()),
		Failed:    int(t.failed.Load()),
		Skipped:   int(t.skipped.Load()),
	}
	p.Pending = p.Total - p.Finished()
	if started := t.started.Load(); started > 0 {
		p.Elapsed = time.Since(time.Unix(0, started))
	}
	return p
}
