package store

import (
	"context"

	"github.com/phrazzld/llmbatch/internal/domain"
)

// RecordReader gives read access to an output log.
//
// Reads carry no locking contract against concurrent appends: a resume scan
// runs once, before any worker starts.
type RecordReader interface {
	// Exists reports whether any output has been written at the location.
	Exists(ctx context.Context) (bool, error)

	// ReadAll returns every record currently in the log, in write order.
	// A log that cannot be decoded fails with ErrMalformedRecord.
	ReadAll(ctx context.Context) ([]domain.Record, error)
}

// RecordStore is an append-only durable record log bound to one output
// location.
type RecordStore interface {
	RecordReader

	// Append writes records as whole, non-interleaved units. Concurrent
	// appends to the same location serialise; the exclusive lock is held only
	// for the duration of this call and released on every exit path.
	Append(ctx context.Context, records []domain.Record) error

	// Location identifies the output (file path or logical name).
	Location() string
}

// Resetter is implemented by stores that can discard existing output before
// a run started with override enabled.
type Resetter interface {
	Reset(ctx context.Context) error
}
