package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/phrazzld/llmbatch/internal/domain"
	"github.com/phrazzld/llmbatch/internal/platform/logger"
)

func setupTestLogger() *slog.Logger {
	_, log := logger.NewTestLogger()
	return log
}

func makeDataset(n int) domain.Dataset {
	ds := make(domain.Dataset, n)
	for i := range ds {
		ds[i] = domain.Item{"id": i + 1, "question": fmt.Sprintf("q%d", i+1)}
	}
	return ds
}

// echoCallbacks answer every item with its question and count call invocations.
func echoCallbacks(calls *atomic.Int64) Callbacks {
	return Callbacks{
		Assemble: func(_ context.Context, item domain.Item) (any, error) {
			return fmt.Sprintf("prompt:%v", item["question"]), nil
		},
		Call: func(_ context.Context, _ domain.Item, input any) (any, error) {
			if calls != nil {
				calls.Add(1)
			}
			return fmt.Sprintf("answer to %v", input), nil
		},
		PostProcess: func(_ context.Context, _ domain.Item, _ any, raw any) (domain.Record, error) {
			return domain.Record{"response": raw}, nil
		},
	}
}

// recordingObserver captures observer notifications.
type recordingObserver struct {
	mu       sync.Mutex
	runIDs   []string
	started  []Progress
	finished []Result
	last     Progress
}

func (o *recordingObserver) RunStarted(runID string, p Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runIDs = append(o.runIDs, runID)
	o.started = append(o.started, p)
}

func (o *recordingObserver) ItemFinished(res Result, p Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, res)
	o.last = p
}

var errBoom = errors.New("boom")
