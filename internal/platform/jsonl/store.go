package jsonl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/phrazzld/llmbatch/internal/domain"
	"github.com/phrazzld/llmbatch/internal/store"
)

// FileRecordStore implements store.RecordStore on a newline-delimited JSON file.
type FileRecordStore struct {
	path    string
	idField string
	open    func(path string) (logFile, error)
}

// Interface guards
var (
	_ store.RecordStore = (*FileRecordStore)(nil)
	_ store.Resetter    = (*FileRecordStore)(nil)
)

// Option configures a FileRecordStore.
type Option func(*FileRecordStore)

// WithIDField makes Append reject records that lack field.
func WithIDField(field string) Option {
	return func(s *FileRecordStore) {
		s.idField = field
	}
}

// NewFileRecordStore returns a store bound to path. Nothing is created on disk
// until the first Append.
func NewFileRecordStore(path string, opts ...Option) *FileRecordStore {
	s := &FileRecordStore{path: path, open: openLog}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the log path.
func (s *FileRecordStore) Location() string {
	return s.path
}

// Exists reports whether the log file is present.
func (s *FileRecordStore) Exists(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, store.NewStoreError(s.path, "stat", "cannot stat log", err)
	}
	if info.IsDir() {
		return false, store.NewStoreError(s.path, "stat", "log path is a directory", nil)
	}
	return true, nil
}

// ReadAll decodes every record in the log. Any undecodable line, including a
// final line missing its newline, fails with store.ErrMalformedRecord.
func (s *FileRecordStore) ReadAll(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readPath[domain.Record](s.path, true)
}

// Append writes records to the end of the log as one unit.
func (s *FileRecordStore) Append(ctx context.Context, records []domain.Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	if IsCompressed(s.path) {
		return store.NewStoreError(s.path, "append", "compressed log", store.ErrReadOnly)
	}
	if s.idField != "" {
		for i, r := range records {
			if _, idErr := r.ID(s.idField); idErr != nil {
				return store.NewStoreError(s.path, "append", fmt.Sprintf("record %d", i),
					fmt.Errorf("%w: %w", store.ErrInvalidRecord, idErr))
			}
		}
	}

	// encode before locking so the critical section is only the write
	data, err := encode(records)
	if err != nil {
		return store.NewStoreError(s.path, "append", "cannot encode records", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return store.NewStoreError(s.path, "append", "cannot create directory", err)
	}

	unlock, err := acquire(ctx, s.path)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}()

	return s.write(data)
}

func (s *FileRecordStore) write(data []byte) error {
	f, err := s.open(s.path)
	if err != nil {
		return store.NewStoreError(s.path, "append", "cannot open log", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return store.NewStoreError(s.path, "append", "cannot stat log", err)
	}
	size := info.Size()

	if _, err := f.Write(data); err != nil {
		return rollback(f, s.path, size, "write failed", err)
	}
	if err := f.Sync(); err != nil {
		return rollback(f, s.path, size, "fsync failed", err)
	}
	if err := f.Close(); err != nil {
		return store.NewStoreError(s.path, "append", "close failed", err)
	}
	return nil
}

// logFile is the part of *os.File the append path uses.
type logFile interface {
	Stat() (fs.FileInfo, error)
	Write(p []byte) (int, error)
	Sync() error
	Truncate(size int64) error
	Close() error
}

func openLog(path string) (logFile, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// rollback truncates the log back to size so a failed append leaves no
// partial line behind.
func rollback(f logFile, path string, size int64, msg string, cause error) error {
	if err := f.Truncate(size); err != nil {
		cause = errors.Join(cause, fmt.Errorf("truncate failed: %w", err))
	}
	_ = f.Sync()
	_ = f.Close()
	return store.NewStoreError(path, "append", msg, cause)
}

// Reset removes the log so the next run starts from scratch.
func (s *FileRecordStore) Reset(ctx context.Context) (err error) {
	if IsCompressed(s.path) {
		return store.NewStoreError(s.path, "reset", "compressed log", store.ErrReadOnly)
	}
	if _, statErr := os.Stat(filepath.Dir(s.path)); errors.Is(statErr, fs.ErrNotExist) {
		return nil
	}

	unlock, err := acquire(ctx, s.path)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return store.NewStoreError(s.path, "reset", "cannot remove log", err)
	}
	return nil
}
