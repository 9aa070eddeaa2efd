package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrQueueClosed is returned when enqueueing to a closed TaskQueue.
var ErrQueueClosed = errors.New("task queue is closed")

// TaskQueue implements a buffered task queue that satisfies both
// TaskQueueReader and TaskQueueWriter interfaces. A queue has a single
// producer: Enqueue and Close must not be called concurrently.
type TaskQueue struct {
	items     chan WorkItem
	logger    *slog.Logger
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewTaskQueue creates a new task queue with the specified buffer size
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	if size < 0 {
		size = 0
	}
	return &TaskQueue{
		items:  make(chan WorkItem, size),
		logger: logger,
	}
}

// Enqueue adds an item to the queue, waiting for free capacity until ctx is done
func (q *TaskQueue) Enqueue(ctx context.Context, item WorkItem) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	select {
	case q.items <- item:
		q.logger.Debug("item enqueued",
			"index", item.Index,
			"queue_len", len(q.items),
			"queue_cap", cap(q.items))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the task queue, preventing further submission. Workers drain
// the remaining items before they stop.
func (q *TaskQueue) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.items)
		q.logger.Debug("task queue closed")
	})
}

// GetChannel returns a read-only channel for consuming work items
func (q *TaskQueue) GetChannel() <-chan WorkItem {
	return q.items
}
