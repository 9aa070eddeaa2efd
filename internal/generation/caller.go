package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Defaults applied by NewCaller to zero-valued settings.
const (
	DefaultMaxAttempts = 10
	DefaultTimeout     = 60 * time.Second
)

// Attempt outcomes reported to an AttemptObserver.
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeTimeout     = "timeout"
	OutcomeFatal       = "fatal"
)

const tracerName = "github.com/phrazzld/llmbatch/internal/generation"

// CallerConfig holds the per-run settings of a Caller.
type CallerConfig struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64

	// MaxAttempts bounds the attempts of one call. Zero means DefaultMaxAttempts.
	MaxAttempts int
	// Timeout bounds a single attempt. Zero means DefaultTimeout.
	Timeout time.Duration

	// RetryInitialInterval is the first delay after a retryable failure; it
	// grows exponentially with jitter up to RetryMaxInterval. Zero retries
	// immediately.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// RequestsPerSecond limits attempts across every goroutine sharing the
	// Caller. Zero disables the limit.
	RequestsPerSecond float64

	// Debug logs prompts and responses.
	Debug bool
}

// AttemptObserver receives the outcome and latency of every attempt.
type AttemptObserver interface {
	ObserveAttempt(outcome string, duration time.Duration)
}

// CallRequest is the input of one logical call.
type CallRequest struct {
	Prompt       string
	SystemPrompt string
	// CallID identifies the call in logs and errors, usually the item id.
	CallID string
}

// Caller performs completions with bounded retries. It is safe for
// concurrent use.
type Caller struct {
	completer Completer
	cfg       CallerConfig
	logger    *slog.Logger
	limiter   *rate.Limiter
	tracer    trace.Tracer
	observer  AttemptObserver
}

// CallerOption configures optional Caller collaborators.
type CallerOption func(*Caller)

// WithTracer sets the tracer used for attempt spans.
func WithTracer(t trace.Tracer) CallerOption {
	return func(c *Caller) {
		c.tracer = t
	}
}

// WithAttemptObserver registers o to receive every attempt outcome.
func WithAttemptObserver(o AttemptObserver) CallerOption {
	return func(c *Caller) {
		c.observer = o
	}
}

// NewCaller creates a Caller around completer.
//
// Parameters:
//   - completer: the provider performing single attempts
//   - cfg: model and retry settings; zero MaxAttempts and Timeout take defaults
//   - logger: a structured logger, slog.Default() when nil
//
// Returns:
//   - A ready Caller
func NewCaller(completer Completer, cfg CallerConfig, logger *slog.Logger, opts ...CallerOption) *Caller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryMaxInterval < cfg.RetryInitialInterval {
		cfg.RetryMaxInterval = cfg.RetryInitialInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Caller{
		completer: completer,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(math.Ceil(cfg.RequestsPerSecond))
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective settings after defaults were applied.
func (c *Caller) Config() CallerConfig {
	return c.cfg
}

// Call sends req to the model, retrying rate-limit and timeout failures.
//
// Parameters:
//   - ctx: cancellation of ctx stops the call at once and is never retried
//   - req: the prompt, optional system prompt and call identifier
//
// Returns:
//   - The first successful response
//   - An error wrapping ErrCompletionFailed for a non-retryable failure, or a
//     *CompletionExhaustedError when every attempt failed with a retryable error
func (c *Caller) Call(ctx context.Context, req CallRequest) (*Response, error) {
	request := Request{
		Provider:    c.cfg.Provider,
		Model:       c.cfg.Model,
		Messages:    buildMessages(req),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	log := c.logger.With(
		slog.String("call_id", req.CallID),
		slog.String("model", request.QualifiedModel()))

	if c.cfg.Debug {
		log.Info("llm request",
			slog.String("system_prompt", req.SystemPrompt),
			slog.String("prompt", req.Prompt))
	}

	bo := c.newBackOff()
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("call %q: waiting for rate limiter: %w", req.CallID, err)
			}
		}

		resp, err := c.attempt(ctx, request, req.CallID, attempt)
		if err == nil {
			log.Debug("completion succeeded", slog.Int("attempt", attempt))
			if c.cfg.Debug {
				log.Info("llm response",
					slog.String("response", resp.Text),
					slog.String("finish_reason", resp.FinishReason))
			}
			return resp, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("call %q aborted at attempt %d: %w", req.CallID, attempt, ctxErr)
		}

		if !IsRetryable(err) {
			log.Error("completion failed, not retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			if !errors.Is(err, ErrCompletionFailed) {
				err = fmt.Errorf("%w: %w", ErrCompletionFailed, err)
			}
			return nil, fmt.Errorf("call %q attempt %d: %w", req.CallID, attempt, err)
		}

		lastErr = err
		log.Warn("retryable completion failure",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.cfg.MaxAttempts),
			slog.String("error", err.Error()))

		if attempt < c.cfg.MaxAttempts {
			if err := c.pause(ctx, bo); err != nil {
				return nil, fmt.Errorf("call %q aborted at attempt %d: %w", req.CallID, attempt, err)
			}
		}
	}

	log.Error("completion attempts exhausted", slog.Int("attempts", c.cfg.MaxAttempts))
	return nil, &CompletionExhaustedError{
		CallID:   req.CallID,
		Attempts: c.cfg.MaxAttempts,
		LastErr:  lastErr,
	}
}

// attempt runs one completion under its own timeout.
func (c *Caller) attempt(ctx context.Context, req Request, callID string, n int) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	attemptCtx, span := c.tracer.Start(attemptCtx, "generation.attempt",
		trace.WithAttributes(
			attribute.String("call.id", callID),
			attribute.Int("attempt", n),
			attribute.String("model", req.QualifiedModel())))
	defer span.End()

	start := time.Now()
	resp, err := c.completer.Complete(attemptCtx, req)
	if err == nil && resp == nil {
		err = fmt.Errorf("%w: empty response", ErrInvalidResponse)
	}
	// the attempt deadline fired while the parent is still live
	if err != nil && ctx.Err() == nil && !errors.Is(err, ErrTimeout) &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded)) {
		err = fmt.Errorf("%w after %s: %w", ErrTimeout, c.cfg.Timeout, err)
	}
	c.observe(err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("finish_reason", resp.FinishReason))
	return resp, nil
}

func (c *Caller) observe(err error, d time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, ErrRateLimited):
		outcome = OutcomeRateLimited
	case errors.Is(err, ErrTimeout):
		outcome = OutcomeTimeout
	default:
		outcome = OutcomeFatal
	}
	c.observer.ObserveAttempt(outcome, d)
}

// newBackOff returns the delay schedule for one call, or nil for immediate
// retries.
func (c *Caller) newBackOff() *backoff.ExponentialBackOff {
	if c.cfg.RetryInitialInterval <= 0 {
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryInitialInterval
	bo.MaxInterval = c.cfg.RetryMaxInterval
	// attempts are bounded by MaxAttempts, not elapsed time
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func (c *Caller) pause(ctx context.Context, bo *backoff.ExponentialBackOff) error {
	if bo == nil {
		return nil
	}
	d := bo.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMessages(req CallRequest) []Message {
	messages := make([]Message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.SystemPrompt})
	}
	return append(messages, Message{Role: RoleUser, Content: req.Prompt})
}
