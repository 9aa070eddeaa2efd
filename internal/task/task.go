package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phrazzld/llmbatch/internal/domain"
)

// AssembleFunc turns an item into the input of the remote call. It must not
// perform I/O beyond read-only lookups.
type AssembleFunc func(ctx context.Context, item domain.Item) (any, error)

// CallFunc performs the remote call, usually through generation.Caller.
type CallFunc func(ctx context.Context, item domain.Item, input any) (any, error)

// PostProcessFunc builds the record to persist from the call result. A nil
// record with a nil error means the item was processed but nothing is stored.
type PostProcessFunc func(ctx context.Context, item domain.Item, input, raw any) (domain.Record, error)

// Callbacks are the per-item processing steps. Assemble is optional; when nil
// the item itself is the call input.
type Callbacks struct {
	Assemble    AssembleFunc
	Call        CallFunc
	PostProcess PostProcessFunc
}

// ErrInvalidCallbacks is returned when a required callback is missing.
var ErrInvalidCallbacks = errors.New("invalid task callbacks")

// Validate checks that the required callbacks are set.
func (c Callbacks) Validate() error {
	if c.Call == nil {
		return fmt.Errorf("%w: call is required", ErrInvalidCallbacks)
	}
	if c.PostProcess == nil {
		return fmt.Errorf("%w: post-process is required", ErrInvalidCallbacks)
	}
	return nil
}

// WorkItem is one unit of work sent to a pool worker: the item, its dataset
// position and the callbacks that process it.
type WorkItem struct {
	Index     int
	Item      domain.Item
	Callbacks Callbacks
}

// Result is the outcome of processing one item. A nil Record with a nil Err
// marks an item that was processed with nothing to persist.
type Result struct {
	Index   int
	ID      string
	Record  domain.Record
	Err     error
	Elapsed time.Duration
}

// Skipped reports whether the item produced no record and no error.
func (r Result) Skipped() bool {
	return r.Err == nil && r.Record == nil
}

// Stage names the pipeline step an item failed in.
type Stage string

// Pipeline stages.
const (
	StageAssemble    Stage = "assemble"
	StageCall        Stage = "call"
	StagePostProcess Stage = "post_process"
	StageAppend      Stage = "append"
)

// ErrPanic marks a callback that panicked.
var ErrPanic = errors.New("callback panicked")

// ErrIdentifierMismatch is returned when a record carries an identifier that
// differs from its item's.
var ErrIdentifierMismatch = errors.New("record identifier does not match item")

// ItemError describes the failure of a single item.
type ItemError struct {
	Index int
	ID    string
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s (index %d) failed at %s: %v", e.ID, e.Index, e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ItemError) Unwrap() error {
	return e.Err
}

// BatchError aggregates the item failures of a run.
type BatchError struct {
	Failures []*ItemError
	// Aborted is set when dispatch stopped early because of fail-fast or
	// cancellation.
	Aborted bool
	// Cause is the context error when the run was cancelled.
	Cause error
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	var b strings.Builder
	if e.Aborted {
		b.WriteString("batch aborted")
	} else {
		b.WriteString("batch finished with failures")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (%v)", e.Cause)
	}
	fmt.Fprintf(&b, ": %d item(s) failed", len(e.Failures))
	for i, f := range e.Failures {
		if i == 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Failures)-i)
			break
		}
		b.WriteString("; ")
		b.WriteString(f.Error())
	}
	return b.String()
}

// Unwrap exposes every item failure to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// TaskQueueReader provides read-only access to the work channel
// allowing workers to consume items without the ability to enqueue
type TaskQueueReader interface {
	// GetChannel returns a read-only channel for consuming work items
	GetChannel() <-chan WorkItem
}

// TaskQueueWriter provides write access to the task queue
type TaskQueueWriter interface {
	// Enqueue adds an item, blocking while the queue is full
	Enqueue(ctx context.Context, item WorkItem) error

	// Close closes the task queue, preventing further submission
	Close()
}
