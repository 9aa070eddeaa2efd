package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/llmbatch/internal/domain"
	"github.com/phrazzld/llmbatch/internal/store"
)

func TestFileRecordStore_ExistsAndReadAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "results.jsonl")
	s := NewFileRecordStore(path)

	exists, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists, "log should not exist before the first append")

	require.NoError(t, s.Append(ctx, []domain.Record{
		{"id": 1, "response": "a"},
		{"id": "2", "response": "<b>"},
	}))

	exists, err = s.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	records, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	id, err := records[0].ID("id")
	require.NoError(t, err)
	assert.Equal(t, "1", id)
	assert.Equal(t, "<b>", records[1]["response"])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<b>", "HTML characters should not be escaped")
	assert.True(t, strings.HasSuffix(string(raw), "\n"))
}

func TestFileRecordStore_AppendEmptyIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.jsonl")
	s := NewFileRecordStore(path)

	require.NoError(t, s.Append(ctx, nil))

	exists, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileRecordStore_WithIDField(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.jsonl")
	s := NewFileRecordStore(path, WithIDField("uid"))

	err := s.Append(ctx, []domain.Record{{"uid": "a"}, {"id": "b"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInvalidRecord)
	assert.ErrorIs(t, err, domain.ErrMissingIdentifier)

	exists, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists, "a rejected batch must not write anything")
}

func TestFileRecordStore_NilRecord(t *testing.T) {
	t.Parallel()
	s := NewFileRecordStore(filepath.Join(t.TempDir(), "results.jsonl"))

	err := s.Append(context.Background(), []domain.Record{nil})
	assert.ErrorIs(t, err, store.ErrInvalidRecord)
}

func TestFileRecordStore_MalformedLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  string
		wantLine string
	}{
		{name: "invalid json", content: "{\"id\":1}\nnot json\n", wantLine: "line 2"},
		{name: "array line", content: "[1,2]\n", wantLine: "line 1"},
		{name: "null line", content: "{\"id\":1}\n{\"id\":2}\nnull\n", wantLine: "line 3"},
		{name: "trailing data", content: "{\"id\":1} {\"id\":2}\n", wantLine: "line 1"},
		{name: "torn final line", content: "{\"id\":1}\n{\"id\":2}", wantLine: "line 2"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "results.jsonl")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o644))

			records, err := NewFileRecordStore(path).ReadAll(context.Background())

			require.Error(t, err)
			assert.Nil(t, records)
			assert.True(t, store.IsMalformed(err))
			assert.Contains(t, err.Error(), tc.wantLine)
		})
	}
}

func TestFileRecordStore_BlankLinesIgnored(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "results.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":1}\n\n{\"id\":2}\n"), 0o644))

	records, err := NewFileRecordStore(path).ReadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestFileRecordStore_ConcurrentAppends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.jsonl")

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			// a separate instance per writer shares only the path lock
			s := NewFileRecordStore(path)
			for i := 0; i < perWriter; i++ {
				id := fmt.Sprintf("%d-%d", w, i)
				errs <- s.Append(ctx, []domain.Record{{
					"id":      id,
					"payload": strings.Repeat("x", 4096),
				}})
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	records, err := NewFileRecordStore(path).ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, writers*perWriter)

	seen := make(map[string]bool, len(records))
	for _, r := range records {
		id, err := r.ID("id")
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate record %s", id)
		seen[id] = true
		assert.Len(t, r["payload"], 4096)
	}
}

func TestFileRecordStore_MultiRecordAppendIsContiguous(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.jsonl")

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			batch := make([]domain.Record, 5)
			for i := range batch {
				batch[i] = domain.Record{"id": fmt.Sprintf("%d-%d", w, i), "writer": w}
			}
			assert.NoError(t, NewFileRecordStore(path).Append(ctx, batch))
		}(w)
	}
	wg.Wait()

	records, err := NewFileRecordStore(path).ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 20)
	for start := 0; start < len(records); start += 5 {
		writer := records[start]["writer"]
		for i := start; i < start+5; i++ {
			assert.Equal(t, writer, records[i]["writer"], "batches must not interleave")
		}
	}
}

// shortWriteFile accepts only half of every write and then reports an IO error.
type shortWriteFile struct {
	*os.File
}

func (f shortWriteFile) Write(p []byte) (int, error) {
	n, _ := f.File.Write(p[:len(p)/2])
	return n, syscall.ENOSPC
}

func TestFileRecordStore_FailedWriteLeavesNoPartialLine(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.jsonl")
	s := NewFileRecordStore(path)
	require.NoError(t, s.Append(ctx, []domain.Record{{"id": 1}}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	s.open = func(path string) (logFile, error) {
		f, err := openLog(path)
		if err != nil {
			return nil, err
		}
		return shortWriteFile{File: f.(*os.File)}, nil
	}
	err = s.Append(ctx, []domain.Record{{"id": 2, "payload": strings.Repeat("x", 512)}})
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ENOSPC)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "the log must be rolled back to its previous size")

	s.open = openLog
	require.NoError(t, s.Append(ctx, []domain.Record{{"id": 3}}))
	records, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, json.Number("3"), records[1]["id"])
}

func TestFileRecordStore_HonoursLockFromAnotherHandle(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "results.jsonl")
	s := NewFileRecordStore(path)

	// a separate handle stands in for another process holding the lock
	other := flock.New(path + LockSuffix)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = s.Append(ctx, []domain.Record{{"id": 1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrLockFailed)

	done := make(chan error, 1)
	go func() {
		done <- s.Append(context.Background(), []domain.Record{{"id": 2}})
	}()

	select {
	case err := <-done:
		t.Fatalf("append finished while the lock was held: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, other.Unlock())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("append did not finish after the lock was released")
	}

	records, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, json.Number("2"), records[0]["id"])
}

func TestFileRecordStore_CanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewFileRecordStore(filepath.Join(t.TempDir(), "results.jsonl"))

	_, err := s.ReadAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	err = s.Append(ctx, []domain.Record{{"id": 1}})
	assert.ErrorIs(t, err, store.ErrLockFailed)
}

func TestFileRecordStore_Reset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.jsonl")
	s := NewFileRecordStore(path)

	require.NoError(t, s.Reset(ctx), "resetting a missing log is not an error")
	require.NoError(t, s.Append(ctx, []domain.Record{{"id": 1}}))
	require.NoError(t, s.Reset(ctx))

	exists, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileRecordStore_ResetMissingDirectory(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "missing", "results.jsonl")
	assert.NoError(t, NewFileRecordStore(path).Reset(context.Background()))
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestFileRecordStore_Gzip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.jsonl.gz")
	writeGzip(t, path, "{\"id\":1}\n{\"id\":2}\n")
	s := NewFileRecordStore(path)

	records, err := s.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	err = s.Append(ctx, []domain.Record{{"id": 3}})
	assert.ErrorIs(t, err, store.ErrReadOnly)
	assert.ErrorIs(t, s.Reset(ctx), store.ErrReadOnly)
}

func TestFileRecordStore_InvalidGzip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "results.jsonl.gz")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	_, err := NewFileRecordStore(path).ReadAll(context.Background())
	assert.True(t, store.IsMalformed(err))
}
