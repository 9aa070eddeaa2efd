package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ProcessFunc handles one work item on a pool worker.
type ProcessFunc func(ctx context.Context, item WorkItem) Result

// WorkerPool manages a fixed number of worker goroutines that process items
// from a task queue and publish one Result per processed item.
type WorkerPool struct {
	// taskQueue provides read access to the items to be processed
	taskQueue TaskQueueReader

	// workerCount is the number of concurrent workers to start
	workerCount int

	// process runs a single item
	process ProcessFunc

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// results receives the outcome of every processed item
	results chan Result

	// idField names the item identifier reported for recovered panics
	idField string

	// logger for structured logging
	logger *slog.Logger

	startOnce sync.Once
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int

	// IDField names the identifier field of every item. Empty means
	// domain.DefaultIDField.
	IDField string
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(taskQueue TaskQueueReader, config WorkerPoolConfig, process ProcessFunc, logger *slog.Logger) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	return &WorkerPool{
		taskQueue:   taskQueue,
		workerCount: workerCount,
		process:     process,
		idField:     config.IDField,
		results:     make(chan Result, workerCount),
		logger:      logger,
	}
}

// Start launches the workers and returns the results channel, which is
// closed once every worker has stopped.
//
// ctx is passed to each item. stop ends the workers early: items still queued
// when stop is done are discarded unprocessed, while items already being
// processed run to completion.
func (p *WorkerPool) Start(ctx, stop context.Context) <-chan Result {
	p.startOnce.Do(func() {
		p.logger.Debug("starting worker pool", "worker_count", p.workerCount)
		for i := 0; i < p.workerCount; i++ {
			p.wg.Add(1)
			go p.worker(ctx, stop, i)
		}
		go func() {
			p.wg.Wait()
			close(p.results)
		}()
	})
	return p.results
}

// WorkerCount returns the number of workers the pool runs.
func (p *WorkerPool) WorkerCount() int {
	return p.workerCount
}

func (p *WorkerPool) worker(ctx, stop context.Context, id int) {
	defer p.wg.Done()
	p.logger.Debug("starting worker", "worker_id", id)

	items := p.taskQueue.GetChannel()
	for {
		select {
		case <-stop.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return
		case item, ok := <-items:
			if !ok {
				p.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}
			if stop.Err() != nil {
				p.logger.Debug("discarding queued item after stop",
					"worker_id", id, "index", item.Index)
				return
			}
			p.results <- p.safeProcess(ctx, item, id)
		}
	}
}

// safeProcess turns a panic inside process into a failed Result so one bad
// item cannot take down the pool.
func (p *WorkerPool) safeProcess(ctx context.Context, item WorkItem, workerID int) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker recovered from panic",
				"worker_id", workerID,
				"index", item.Index,
				"panic", fmt.Sprint(r))
			id, _ := item.Item.ID(p.idField)
			res = Result{
				Index: item.Index,
				ID:    id,
				Err:   &ItemError{Index: item.Index, ID: id, Stage: StageCall, Err: fmt.Errorf("%w: %v", ErrPanic, r)},
			}
		}
	}()
	return p.process(ctx, item)
}
