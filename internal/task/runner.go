package task

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/llmbatch/internal/domain"
	"github.com/phrazzld/llmbatch/internal/platform/logger"
	"github.com/phrazzld/llmbatch/internal/resume"
	"github.com/phrazzld/llmbatch/internal/store"
)

// RunnerConfig holds configuration for the batch runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process items.
	// Values of 1 or less process items sequentially on the calling goroutine.
	WorkerCount int

	// IDField names the identifier field of every item and record
	IDField string

	// FailFast stops dispatching new items after the first item failure.
	// Items already being processed run to completion.
	FailFast bool

	// QueueSize determines the buffer size of the in-memory task queue.
	// If zero, defaults to WorkerCount
	QueueSize int
}

// Report describes a finished run.
type Report struct {
	RunID string
	// Results holds one entry per attempted item, sorted by dataset index.
	Results  []Result
	Failures []*ItemError
	Progress Progress
	Resume   resume.Stats
	// Aborted is set when items were left unattempted because of fail-fast
	// or cancellation.
	Aborted    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Runner executes batches against one record store.
type Runner struct {
	store     store.RecordStore
	config    RunnerConfig
	logger    *slog.Logger
	pipeline  *Pipeline
	observers []Observer
	newRunID  func() string
}

// RunnerOption configures optional Runner collaborators.
type RunnerOption func(*Runner)

// WithObservers registers observers notified of run progress.
func WithObservers(observers ...Observer) RunnerOption {
	return func(r *Runner) {
		r.observers = append(r.observers, observers...)
	}
}

// WithRunIDFunc replaces the run identifier generator.
func WithRunIDFunc(fn func() string) RunnerOption {
	return func(r *Runner) {
		r.newRunID = fn
	}
}

// NewRunner creates a Runner appending to s.
func NewRunner(s store.RecordStore, config RunnerConfig, logger *slog.Logger, opts ...RunnerOption) *Runner {
	if config.IDField == "" {
		config.IDField = domain.DefaultIDField
	}
	if config.QueueSize <= 0 {
		config.QueueSize = max(config.WorkerCount, 1)
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runner{
		store:    s,
		config:   config,
		logger:   logger,
		pipeline: NewPipeline(s, config.IDField, logger),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes every item of dataset that has no record in the store yet.
//
// A resume scan failure aborts the run before any item is attempted. Item
// failures do not stop the run unless FailFast is set; either way they are
// returned together as a *BatchError alongside the report, which always
// holds the results of every attempted item.
func (r *Runner) Run(ctx context.Context, dataset domain.Dataset, callbacks Callbacks) (*Report, error) {
	if err := callbacks.Validate(); err != nil {
		return nil, err
	}

	runID := r.newRunID()
	log := r.logger.With(slog.String("run_id", runID))
	ctx = logger.WithLogger(ctx, log)

	pending, stats, err := resume.ScanWithStats(ctx, dataset, r.store, r.config.IDField)
	if err != nil {
		log.Error("resume scan failed", slog.String("error", err.Error()))
		return nil, err
	}

	report := &Report{
		RunID:     runID,
		Resume:    stats,
		StartedAt: time.Now(),
	}
	run := &runState{
		runner:  r,
		log:     log,
		tracker: NewTracker(),
	}
	run.tracker.RunStarted(runID, Progress{Total: stats.Pending})
	for _, o := range r.observers {
		o.RunStarted(runID, Progress{Total: stats.Pending, Pending: stats.Pending})
	}

	log.Info("batch started",
		slog.String("location", r.store.Location()),
		slog.Int("total", stats.Total),
		slog.Int("done", stats.Done),
		slog.Int("pending", stats.Pending),
		slog.Int("workers", r.config.WorkerCount))

	if r.config.WorkerCount <= 1 {
		r.runSequential(ctx, pending, callbacks, run)
	} else {
		r.runParallel(ctx, pending, callbacks, run)
	}
	if ctx.Err() != nil && run.tracker.Snapshot().Pending > 0 {
		run.aborted = true
	}

	slices.SortFunc(run.results, func(a, b Result) int { return a.Index - b.Index })
	report.Results = run.results
	report.Aborted = run.aborted
	report.FinishedAt = time.Now()
	report.Progress = run.tracker.Snapshot()
	for _, res := range run.results {
		var itemErr *ItemError
		if errors.As(res.Err, &itemErr) {
			report.Failures = append(report.Failures, itemErr)
		}
	}

	log.Info("batch finished",
		slog.Any("progress", report.Progress),
		slog.Bool("aborted", report.Aborted))

	if len(report.Failures) > 0 || report.Aborted {
		batchErr := &BatchError{Failures: report.Failures, Aborted: report.Aborted}
		if report.Aborted {
			batchErr.Cause = ctx.Err()
		}
		return report, batchErr
	}
	return report, nil
}

// runState is the per-run bookkeeping shared by the execution strategies.
// It is only touched from the goroutine collecting results.
type runState struct {
	runner  *Runner
	log     *slog.Logger
	tracker *Tracker
	results []Result
	aborted bool
}

func (s *runState) finish(res Result) {
	s.results = append(s.results, res)
	s.tracker.record(res)
	p := s.tracker.Snapshot()
	s.log.Info("progress",
		slog.Int("finished", p.Finished()),
		slog.Int("total", p.Total),
		slog.Any("progress", p))
	for _, o := range s.runner.observers {
		o.ItemFinished(res, p)
	}
}

func (r *Runner) runSequential(ctx context.Context, pending iter.Seq2[int, domain.Item], callbacks Callbacks, run *runState) {
	for index, item := range pending {
		if ctx.Err() != nil {
			run.aborted = true
			return
		}
		res := r.pipeline.Process(ctx, WorkItem{Index: index, Item: item, Callbacks: callbacks})
		run.finish(res)
		if res.Err != nil && r.config.FailFast {
			run.log.Warn("fail-fast: stopping after item failure", slog.Int("index", index))
			run.aborted = true
			return
		}
	}
}

func (r *Runner) runParallel(ctx context.Context, pending iter.Seq2[int, domain.Item], callbacks Callbacks, run *runState) {
	stopCtx, stop := context.WithCancel(ctx)
	defer stop()

	queue := NewTaskQueue(r.config.QueueSize, run.log)
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: r.config.WorkerCount, IDField: r.config.IDField}, r.pipeline.Process, run.log)
	results := pool.Start(ctx, stopCtx)

	go func() {
		defer queue.Close()
		for index, item := range pending {
			if err := queue.Enqueue(stopCtx, WorkItem{Index: index, Item: item, Callbacks: callbacks}); err != nil {
				return
			}
		}
	}()

	for res := range results {
		run.finish(res)
		if res.Err != nil && r.config.FailFast && !run.aborted {
			run.log.Warn("fail-fast: stopping dispatch after item failure", slog.Int("index", res.Index))
			run.aborted = true
			stop()
		}
	}
}
