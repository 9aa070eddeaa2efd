package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/phrazzld/llmbatch/internal/domain"
	"github.com/phrazzld/llmbatch/internal/platform/logger"
	"github.com/phrazzld/llmbatch/internal/store"
)

const tracerName = "github.com/phrazzld/llmbatch/internal/task"

// summaryLimit bounds the record text included in progress lines.
const summaryLimit = 160

// AppendTimeout bounds the store append of a completed record. The append is
// detached from the item context so a completion that already succeeded is
// still persisted after cancellation.
const AppendTimeout = 30 * time.Second

// Pipeline processes single work items against one record store.
type Pipeline struct {
	store   store.RecordStore
	idField string
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewPipeline creates a Pipeline appending to s. An empty idField means
// domain.DefaultIDField.
func NewPipeline(s store.RecordStore, idField string, logger *slog.Logger) *Pipeline {
	if idField == "" {
		idField = domain.DefaultIDField
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:   s,
		idField: idField,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
	}
}

// Process runs assemble, call and post-process for w and appends the record,
// if any, with exactly one store append. Failures are returned in the Result
// as an *ItemError and never panic.
func (p *Pipeline) Process(ctx context.Context, w WorkItem) Result {
	start := time.Now()
	id, idErr := w.Item.ID(p.idField)

	ctx, span := p.tracer.Start(ctx, "task.process_item",
		trace.WithAttributes(
			attribute.Int("item.index", w.Index),
			attribute.String("item.id", id)))
	defer span.End()

	log := p.logger.With(slog.String("item_id", id), slog.Int("index", w.Index))
	ctx = logger.WithLogger(ctx, log)

	res := Result{Index: w.Index, ID: id}
	var (
		record domain.Record
		stage  Stage
		err    error
	)
	if idErr != nil {
		stage, err = StageAssemble, idErr
	} else {
		record, stage, err = p.run(ctx, w, id)
	}
	res.Elapsed = time.Since(start)

	if err != nil {
		res.Err = &ItemError{Index: w.Index, ID: id, Stage: stage, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage))
		log.Error("item failed",
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", res.Elapsed))
		return res
	}

	res.Record = record
	if record == nil {
		span.SetAttributes(attribute.Bool("item.skipped", true))
		log.Info("item completed",
			slog.String("result", "skipped"),
			slog.Duration("elapsed", res.Elapsed))
		return res
	}
	log.Info("item completed",
		slog.String("result", summarize(record)),
		slog.Duration("elapsed", res.Elapsed))
	return res
}

// run executes the callbacks in order and appends the record.
func (p *Pipeline) run(ctx context.Context, w WorkItem, id string) (record domain.Record, stage Stage, err error) {
	stage = StageAssemble
	defer func() {
		if r := recover(); r != nil {
			record = nil
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	var input any = w.Item
	if w.Callbacks.Assemble != nil {
		if input, err = w.Callbacks.Assemble(ctx, w.Item); err != nil {
			return nil, stage, err
		}
	}

	stage = StageCall
	if w.Callbacks.Call == nil {
		return nil, stage, fmt.Errorf("%w: call is required", ErrInvalidCallbacks)
	}
	raw, err := w.Callbacks.Call(ctx, w.Item, input)
	if err != nil {
		return nil, stage, err
	}

	stage = StagePostProcess
	if w.Callbacks.PostProcess == nil {
		return nil, stage, fmt.Errorf("%w: post-process is required", ErrInvalidCallbacks)
	}
	record, err = w.Callbacks.PostProcess(ctx, w.Item, input, raw)
	if err != nil {
		return nil, stage, err
	}
	if record == nil {
		return nil, stage, nil
	}
	if record, err = p.withIdentifier(record, w.Item, id); err != nil {
		return nil, stage, err
	}

	stage = StageAppend
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), AppendTimeout)
	defer cancel()
	if err := p.store.Append(appendCtx, []domain.Record{record}); err != nil {
		return nil, stage, err
	}
	return record, stage, nil
}

// withIdentifier makes sure record carries the item's identifier so resume
// scans recognise it.
func (p *Pipeline) withIdentifier(record domain.Record, item domain.Item, id string) (domain.Record, error) {
	if _, ok := record[p.idField]; !ok {
		record = record.Clone()
		record[p.idField] = item[p.idField]
		return record, nil
	}
	got, err := record.ID(p.idField)
	if err != nil {
		return nil, err
	}
	if got != id {
		return nil, fmt.Errorf("%w: record has %q, item has %q", ErrIdentifierMismatch, got, id)
	}
	return record, nil
}

func summarize(record domain.Record) string {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Sprintf("%d fields", len(record))
	}
	s := string(data)
	if utf8.RuneCountInString(s) <= summaryLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:summaryLimit]) + "..."
}
