package resume

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/llmbatch/internal/domain"
	"github.com/phrazzld/llmbatch/internal/platform/jsonl"
	"github.com/phrazzld/llmbatch/internal/store"
)

// mockReader is a store.RecordReader with call tracking.
type mockReader struct {
	exists    bool
	records   []domain.Record
	existsErr error
	readErr   error

	existsCalls int
	readCalls   int
}

func (m *mockReader) Exists(context.Context) (bool, error) {
	m.existsCalls++
	return m.exists, m.existsErr
}

func (m *mockReader) ReadAll(context.Context) ([]domain.Record, error) {
	m.readCalls++
	return m.records, m.readErr
}

type pair struct {
	index int
	id    any
}

func collect(t *testing.T, seq func(func(int, domain.Item) bool)) []pair {
	t.Helper()
	var out []pair
	for i, item := range seq {
		out = append(out, pair{index: i, id: item["id"]})
	}
	return out
}

func dataset(ids ...any) domain.Dataset {
	ds := make(domain.Dataset, len(ids))
	for i, id := range ids {
		ds[i] = domain.Item{"id": id}
	}
	return ds
}

func TestScan_NoOutputYieldsEverything(t *testing.T) {
	t.Parallel()
	reader := &mockReader{exists: false}

	seq, err := Scan(context.Background(), dataset(1, 2, 3), reader, "id")

	require.NoError(t, err)
	assert.Equal(t, []pair{{0, 1}, {1, 2}, {2, 3}}, collect(t, seq))
	assert.Equal(t, 1, reader.existsCalls)
	assert.Equal(t, 0, reader.readCalls, "a missing log must not be read")
}

func TestScan_SkipsCompletedIdentifiers(t *testing.T) {
	t.Parallel()
	reader := &mockReader{exists: true, records: []domain.Record{{"id": 2, "response": "done"}}}

	seq, err := Scan(context.Background(), dataset(1, 2, 3), reader, "id")

	require.NoError(t, err)
	assert.Equal(t, []pair{{0, 1}, {2, 3}}, collect(t, seq))
}

func TestScan_NumericAndStringIdentifiersMatch(t *testing.T) {
	t.Parallel()
	reader := &mockReader{exists: true, records: []domain.Record{{"id": "1"}, {"id": 3.0}}}

	seq, err := Scan(context.Background(), dataset(1, 2, "3"), reader, "id")

	require.NoError(t, err)
	assert.Equal(t, []pair{{1, 2}}, collect(t, seq))
}

func TestScan_LargeIntegerIdentifiers(t *testing.T) {
	t.Parallel()
	reader := &mockReader{exists: true, records: []domain.Record{{"id": json.Number("12345678901234567890")}}}
	ds := dataset(json.Number("12345678901234567890"), json.Number("12345678901234567891"))

	seq, err := Scan(context.Background(), ds, reader, "id")

	require.NoError(t, err)
	assert.Equal(t, []pair{{1, json.Number("12345678901234567891")}}, collect(t, seq))
}

func TestScan_CustomIDField(t *testing.T) {
	t.Parallel()
	ds := domain.Dataset{{"uid": "a"}, {"uid": "b"}}
	reader := &mockReader{exists: true, records: []domain.Record{{"uid": "a"}}}

	seq, err := Scan(context.Background(), ds, reader, "uid")

	require.NoError(t, err)
	var got []int
	for i := range seq {
		got = append(got, i)
	}
	assert.Equal(t, []int{1}, got)
}

func TestScan_SingleUse(t *testing.T) {
	t.Parallel()
	seq, err := Scan(context.Background(), dataset(1, 2), &mockReader{}, "id")
	require.NoError(t, err)

	assert.Len(t, collect(t, seq), 2)
	assert.Empty(t, collect(t, seq), "a consumed sequence yields nothing")
}

func TestScan_EarlyBreak(t *testing.T) {
	t.Parallel()
	seq, err := Scan(context.Background(), dataset(1, 2, 3), &mockReader{}, "id")
	require.NoError(t, err)

	for i := range seq {
		assert.Equal(t, 0, i)
		break
	}
}

func TestScan_Failures(t *testing.T) {
	t.Parallel()
	ioErr := errors.New("disk on fire")

	tests := []struct {
		name    string
		dataset domain.Dataset
		reader  *mockReader
		wantErr error
	}{
		{
			name:    "exists fails",
			dataset: dataset(1),
			reader:  &mockReader{existsErr: ioErr},
			wantErr: ioErr,
		},
		{
			name:    "malformed log",
			dataset: dataset(1),
			reader:  &mockReader{exists: true, readErr: store.ErrMalformedRecord},
			wantErr: store.ErrMalformedRecord,
		},
		{
			name:    "record without identifier",
			dataset: dataset(1),
			reader:  &mockReader{exists: true, records: []domain.Record{{"response": "x"}}},
			wantErr: domain.ErrMissingIdentifier,
		},
		{
			name:    "item without identifier",
			dataset: domain.Dataset{{"id": 1}, {"name": "x"}},
			reader:  &mockReader{},
			wantErr: domain.ErrMissingIdentifier,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			seq, err := Scan(context.Background(), tc.dataset, tc.reader, "id")

			require.Error(t, err)
			assert.Nil(t, seq)
			assert.ErrorIs(t, err, ErrScanFailed)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestScanWithStats(t *testing.T) {
	t.Parallel()
	reader := &mockReader{exists: true, records: []domain.Record{{"id": 2}, {"id": 4}, {"id": 99}}}

	_, stats, err := ScanWithStats(context.Background(), dataset(1, 2, 3, 4), reader, "")

	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 4, Done: 2, Pending: 2}, stats)
}

func TestScan_FileLog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s := jsonl.NewFileRecordStore(path)
	ds := dataset(1, 2, 3)

	require.NoError(t, s.Append(ctx, []domain.Record{{"id": 2}}))
	seq, err := Scan(ctx, ds, s, "id")
	require.NoError(t, err)
	assert.Equal(t, []pair{{0, 1}, {2, 3}}, collect(t, seq))

	// finish the remaining items; a second scan has nothing left
	require.NoError(t, s.Append(ctx, []domain.Record{{"id": 1}, {"id": 3}}))
	seq, err = Scan(ctx, ds, s, "id")
	require.NoError(t, err)
	assert.Empty(t, collect(t, seq))
}

func TestScan_MalformedFileLogFailsLoudly(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "out.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":1}\n{broken\n"), 0o644))

	seq, err := Scan(context.Background(), dataset(1, 2), jsonl.NewFileRecordStore(path), "id")

	assert.Nil(t, seq)
	assert.ErrorIs(t, err, ErrScanFailed)
	assert.True(t, store.IsMalformed(err))
}
