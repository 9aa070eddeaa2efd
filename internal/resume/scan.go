package resume

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/phrazzld/llmbatch/internal/domain"
	"github.com/phrazzld/llmbatch/internal/platform/logger"
	"github.com/phrazzld/llmbatch/internal/store"
)

// ErrScanFailed is returned when the existing output cannot be trusted: the
// log is unreadable or malformed, or an item or record has no identifier.
// A failed scan never falls back to reprocessing the whole dataset.
var ErrScanFailed = errors.New("resume scan failed")

// Stats summarises a scan.
type Stats struct {
	Total   int // items in the dataset
	Done    int // items whose identifier is already in the log
	Pending int // items the sequence will yield
}

// Scan returns the (index, item) pairs of dataset whose identifier has no
// record in reader, in dataset order. The sequence is single-use: once it has
// been iterated, further iterations yield nothing.
func Scan(ctx context.Context, dataset domain.Dataset, reader store.RecordReader, idField string) (iter.Seq2[int, domain.Item], error) {
	seq, _, err := ScanWithStats(ctx, dataset, reader, idField)
	return seq, err
}

// ScanWithStats is Scan that also reports how many items are already done.
func ScanWithStats(ctx context.Context, dataset domain.Dataset, reader store.RecordReader, idField string) (iter.Seq2[int, domain.Item], Stats, error) {
	if idField == "" {
		idField = domain.DefaultIDField
	}
	log := logger.FromContext(ctx)

	ids := make([]string, len(dataset))
	for i, item := range dataset {
		id, err := item.ID(idField)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("%w: dataset item %d: %w", ErrScanFailed, i, err)
		}
		ids[i] = id
	}

	done, err := completedIDs(ctx, reader, idField)
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Total: len(dataset)}
	for _, id := range ids {
		if _, ok := done[id]; ok {
			stats.Done++
		}
	}
	stats.Pending = stats.Total - stats.Done

	log.Info("resume scan complete",
		slog.Int("total", stats.Total),
		slog.Int("done", stats.Done),
		slog.Int("pending", stats.Pending))

	var consumed atomic.Bool
	seq := func(yield func(int, domain.Item) bool) {
		if consumed.Swap(true) {
			return
		}
		for i, item := range dataset {
			if _, ok := done[ids[i]]; ok {
				continue
			}
			if !yield(i, item) {
				return
			}
		}
	}
	return seq, stats, nil
}

// completedIDs returns the identifiers of every record in the log, or an
// empty set when there is no log yet.
func completedIDs(ctx context.Context, reader store.RecordReader, idField string) (map[string]struct{}, error) {
	exists, err := reader.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanFailed, err)
	}
	if !exists {
		return map[string]struct{}{}, nil
	}

	records, err := reader.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanFailed, err)
	}

	done := make(map[string]struct{}, len(records))
	for i, r := range records {
		id, err := r.ID(idField)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrScanFailed, i, err)
		}
		done[id] = struct{}{}
	}
	return done, nil
}
