package jsonl

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/llmbatch/internal/domain"
	"github.com/phrazzld/llmbatch/internal/store"
)

func TestReadFile_ToleratesMissingFinalNewline(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "input.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":1,\"q\":\"a\"}\n{\"id\":2,\"q\":\"b\"}"), 0o644))

	items, err := ReadFile[domain.Item](path)

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, json.Number("2"), items[1]["id"], "numbers keep their literal form")
	assert.Equal(t, "b", items[1]["q"])
}

func TestReadFile_Missing(t *testing.T) {
	t.Parallel()
	_, err := ReadFile[domain.Item](filepath.Join(t.TempDir(), "missing.jsonl"))

	require.Error(t, err)
	var storeErr *store.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "read", storeErr.Operation)
}

func TestWriteFileRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "rows.jsonl")
	rows := []domain.Record{{"id": "a", "n": 1}, {"id": "b", "n": 2}}

	require.NoError(t, WriteFile(path, rows))
	require.NoError(t, WriteFile(path, rows[:1]), "WriteFile replaces existing content")

	got, err := ReadFile[domain.Record](path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0]["id"])
}

func TestWriteFile_Compressed(t *testing.T) {
	t.Parallel()
	err := WriteFile(filepath.Join(t.TempDir(), "rows.jsonl.gz"), []domain.Record{{"id": 1}})
	assert.ErrorIs(t, err, store.ErrReadOnly)
}

func TestAppendFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rows.jsonl")

	require.NoError(t, AppendFile(ctx, path, []domain.Record{{"id": 1}}))
	require.NoError(t, AppendFile(ctx, path, []domain.Record{{"id": 2}}))

	got, err := ReadFile[domain.Record](path)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReadMap(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rows.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(
		"{\"key\":1,\"v\":\"first\"}\n{\"key\":\"2\",\"v\":\"two\"}\n{\"key\":1.0,\"v\":\"last\"}\n"), 0o644))

	m, err := ReadMap(path, "key")

	require.NoError(t, err)
	require.Len(t, m, 2)
	assert.Equal(t, "last", m["1"]["v"])
	assert.Equal(t, "two", m["2"]["v"])
}

func TestReadMap_MissingKey(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rows.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"key\":1}\n{\"other\":2}\n"), 0o644))

	_, err := ReadMap(path, "key")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingIdentifier)
	assert.Contains(t, err.Error(), "row 2")
}
