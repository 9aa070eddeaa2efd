package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/phrazzld/llmbatch/internal/domain"
	"github.com/phrazzld/llmbatch/internal/platform/jsonl"
	"github.com/phrazzld/llmbatch/internal/platform/logger"
	"github.com/phrazzld/llmbatch/internal/store"
)

const (
	existsQuery = `SELECT EXISTS (SELECT 1 FROM batch_records WHERE location = $1)`
	selectQuery = `SELECT seq, body FROM batch_records WHERE location = $1 ORDER BY seq`
	lockQuery   = `SELECT pg_advisory_xact_lock(hashtext($1))`
	insertQuery = `INSERT INTO batch_records (location, record_id, body) VALUES ($1, $2, $3)
		ON CONFLICT (location, record_id) DO NOTHING`
	deleteQuery = `DELETE FROM batch_records WHERE location = $1`
)

// DB is the database handle a RecordStore needs. *sql.DB implements it.
type DB interface {
	store.DBTX
	store.TxBeginner
}

// RecordStore implements store.RecordStore on the batch_records table.
type RecordStore struct {
	db       DB
	location string
	idField  string
}

// Interface guards
var (
	_ store.RecordStore = (*RecordStore)(nil)
	_ store.Resetter    = (*RecordStore)(nil)
)

// Option configures a RecordStore.
type Option func(*RecordStore)

// WithIDField makes Append reject records that lack field and stores the
// canonical identifier in the record_id column.
func WithIDField(field string) Option {
	return func(s *RecordStore) {
		s.idField = field
	}
}

// NewRecordStore returns a store bound to one logical output location.
func NewRecordStore(db DB, location string, opts ...Option) *RecordStore {
	s := &RecordStore{db: db, location: location}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to url through the pgx driver and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Location returns the logical output name.
func (s *RecordStore) Location() string {
	return s.location
}

// Exists reports whether any record was written to the location.
func (s *RecordStore) Exists(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, existsQuery, s.location).Scan(&exists); err != nil {
		return false, store.NewStoreError(s.location, "exists", "query failed", MapError(err))
	}
	return exists, nil
}

// ReadAll returns the records of the location in insertion order.
func (s *RecordStore) ReadAll(ctx context.Context) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectQuery, s.location)
	if err != nil {
		return nil, store.NewStoreError(s.location, "read", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var records []domain.Record
	for rows.Next() {
		var (
			seq  int64
			body []byte
		)
		if err := rows.Scan(&seq, &body); err != nil {
			return nil, store.NewStoreError(s.location, "read", "scan failed", MapError(err))
		}
		rec, err := jsonl.DecodeRecord(body)
		if err != nil {
			return nil, store.NewStoreError(s.location, "read", fmt.Sprintf("row %d", seq),
				fmt.Errorf("%w: %v", store.ErrMalformedRecord, err))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError(s.location, "read", "iteration failed", MapError(err))
	}
	return records, nil
}

// Append inserts records in one transaction. Appends to the same location
// serialise on an advisory lock released when the transaction ends. A record
// whose identifier is already stored for the location is ignored.
func (s *RecordStore) Append(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	type row struct {
		id   sql.NullString
		body []byte
	}
	rows := make([]row, 0, len(records))
	for i, rec := range records {
		var r row
		if s.idField != "" {
			id, err := rec.ID(s.idField)
			if err != nil {
				return store.NewStoreError(s.location, "append", fmt.Sprintf("record %d", i),
					fmt.Errorf("%w: %w", store.ErrInvalidRecord, err))
			}
			r.id = sql.NullString{String: id, Valid: true}
		}
		body, err := jsonl.EncodeRecord(rec)
		if err != nil {
			return store.NewStoreError(s.location, "append", fmt.Sprintf("record %d", i), err)
		}
		r.body = body
		rows = append(rows, r)
	}

	var duplicates int
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, lockQuery, s.location); err != nil {
			return fmt.Errorf("%w: %w", store.ErrLockFailed, err)
		}
		duplicates = 0
		for _, r := range rows {
			res, err := tx.ExecContext(ctx, insertQuery, s.location, r.id, string(r.body))
			if err != nil {
				return MapError(err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				duplicates++
			}
		}
		return nil
	})
	if err != nil {
		return store.NewStoreError(s.location, "append", "transaction failed", err)
	}

	log := logger.FromContext(ctx)
	if duplicates > 0 {
		log.Warn("duplicate records ignored",
			slog.String("location", s.location),
			slog.Int("count", duplicates))
	}
	log.Debug("records appended",
		slog.String("location", s.location),
		slog.Int("count", len(records)-duplicates))
	return nil
}

// Reset deletes every record of the location.
func (s *RecordStore) Reset(ctx context.Context) error {
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, lockQuery, s.location); err != nil {
			return fmt.Errorf("%w: %w", store.ErrLockFailed, err)
		}
		_, err := tx.ExecContext(ctx, deleteQuery, s.location)
		return MapError(err)
	})
	if err != nil {
		return store.NewStoreError(s.location, "reset", "transaction failed", err)
	}
	return nil
}
