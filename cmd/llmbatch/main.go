// Package main implements llmbatch, which runs an LLM completion over every
// item of a dataset and appends the results to a resumable output log.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/phrazzld/llmbatch/internal/api"
	"github.com/phrazzld/llmbatch/internal/config"
	"github.com/phrazzld/llmbatch/internal/dataset"
	"github.com/phrazzld/llmbatch/internal/generation"
	"github.com/phrazzld/llmbatch/internal/platform/gemini"
	"github.com/phrazzld/llmbatch/internal/platform/logger"
	"github.com/phrazzld/llmbatch/internal/platform/metrics"
	"github.com/phrazzld/llmbatch/internal/redact"
	"github.com/phrazzld/llmbatch/internal/report"
	"github.com/phrazzld/llmbatch/internal/store"
	"github.com/phrazzld/llmbatch/internal/task"
)

// newCompleter builds the remote completion backend. Tests replace it.
var newCompleter = func(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (generation.Completer, error) {
	return gemini.NewCompleter(ctx, cfg, log)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "llmbatch:", redact.Error(err))
		os.Exit(1)
	}
}

// run executes one batch. It returns the batch error when any item failed,
// after the run summary has been written.
func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	log, err := logger.Setup(cfg.LogConfig)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		log.Debug(fmt.Sprintf(format, v...))
	})); err != nil {
		log.Warn("failed to set GOMAXPROCS", "error", err)
	}

	maskedConfig, err := cfg.MaskedMap()
	if err != nil {
		return err
	}
	log.Info("configuration loaded", "config", maskedConfig)
	if cfg.Verbose {
		fmt.Fprint(os.Stderr, cfg.Pretty())
	}

	prompt, err := loadPromptTemplate(cfg.PromptTemplate)
	if err != nil {
		return err
	}

	ds, err := dataset.Load(ctx, strings.Split(cfg.InputPath, ",")...)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	records, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.Override {
		if r, ok := records.(store.Resetter); ok {
			if err := r.Reset(ctx); err != nil {
				return fmt.Errorf("failed to discard existing output: %w", err)
			}
			log.Warn("existing output discarded", "location", records.Location())
		}
	}

	completer, err := newCompleter(ctx, cfg.LLMConfig, log)
	if err != nil {
		return fmt.Errorf("failed to create completer: %w", err)
	}

	recorder := metrics.New()
	tracker := task.NewTracker()
	caller := generation.NewCaller(completer, callerConfig(cfg.LLMConfig), log,
		generation.WithAttemptObserver(recorder))

	if cfg.StatusAddr != "" {
		stopServer := startStatusServer(ctx, cfg.StatusAddr, tracker, recorder, log)
		defer stopServer()
	}

	runner := task.NewRunner(records, task.RunnerConfig{
		WorkerCount: cfg.NThreads,
		IDField:     cfg.IDKey,
		FailFast:    cfg.FailFast,
	}, log, task.WithObservers(tracker, recorder))

	rep, runErr := runner.Run(ctx, ds, completionCallbacks(prompt, caller, cfg.SystemPrompt, cfg.IDKey))

	if cfg.Log != "" {
		summary := report.NewSummary(rep, runErr, records.Location(), maskedConfig)
		if err := report.WriteSummary(cfg.Log, summary); err != nil {
			log.Error("failed to write run summary", "path", cfg.Log, "error", err)
			if runErr == nil {
				return err
			}
		}
	}

	var batchErr *task.BatchError
	if errors.As(runErr, &batchErr) {
		log.Error("batch did not complete",
			"failed", len(batchErr.Failures),
			"aborted", batchErr.Aborted)
	}
	return runErr
}

func callerConfig(cfg config.LLMConfig) generation.CallerConfig {
	return generation.CallerConfig{
		Provider:             cfg.Provider,
		Model:                cfg.Model,
		MaxTokens:            cfg.MaxTokens,
		Temperature:          cfg.Temperature,
		MaxAttempts:          cfg.MaxAttempts,
		Timeout:              cfg.Timeout,
		RetryInitialInterval: cfg.RetryInitialInterval,
		RetryMaxInterval:     cfg.RetryMaxInterval,
		RequestsPerSecond:    cfg.RequestsPerSecond,
		Debug:                cfg.Debug,
	}
}

// startStatusServer serves progress and metrics until the returned function
// is called.
func startStatusServer(ctx context.Context, addr string, tracker *task.Tracker, recorder *metrics.Recorder, log *slog.Logger) func() {
	router := api.NewRouter(api.NewStatusHandler(tracker, log), recorder.Handler(), log)
	srv := api.NewServer(addr, router, log)

	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.ListenAndServe(srvCtx); err != nil {
			log.Error("status server failed", "error", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
