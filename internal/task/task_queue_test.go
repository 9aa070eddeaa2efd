package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/llmbatch/internal/domain"
)

func TestTaskQueue_EnqueueAndClose(t *testing.T) {
	t.Parallel()
	q := NewTaskQueue(2, setupTestLogger())

	require.NoError(t, q.Enqueue(context.Background(), WorkItem{Index: 0, Item: domain.Item{"id": 1}}))
	require.NoError(t, q.Enqueue(context.Background(), WorkItem{Index: 1}))

	q.Close()
	q.Close() // closing twice is harmless

	assert.ErrorIs(t, q.Enqueue(context.Background(), WorkItem{}), ErrQueueClosed)

	var got []int
	for item := range q.GetChannel() {
		got = append(got, item.Index)
	}
	assert.Equal(t, []int{0, 1}, got, "queued items survive Close")
}

func TestTaskQueue_EnqueueBlocksUntilContextDone(t *testing.T) {
	t.Parallel()
	q := NewTaskQueue(1, setupTestLogger())
	require.NoError(t, q.Enqueue(context.Background(), WorkItem{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Enqueue(ctx, WorkItem{Index: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTaskQueue_EnqueueWaitsForConsumer(t *testing.T) {
	t.Parallel()
	q := NewTaskQueue(0, setupTestLogger())

	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(context.Background(), WorkItem{Index: 7})
	}()

	item := <-q.GetChannel()
	assert.Equal(t, 7, item.Index)
	assert.NoError(t, <-done)
}
