package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/llmbatch/internal/domain"
	"github.com/phrazzld/llmbatch/internal/store"
)

var _ store.RecordStore = (*MockRecordStore)(nil)

// MockRecordStore is an in-memory store.RecordStore for testing
type MockRecordStore struct {
	mu sync.Mutex

	// Records holds every appended record in append order
	Records []domain.Record

	// AppendFn, when set, runs before the records are stored; an error aborts the append
	AppendFn func(ctx context.Context, records []domain.Record) error

	// ReadErr is returned by ReadAll when set
	ReadErr error

	// AppendCalls counts Append invocations
	AppendCalls int

	// Loc is returned by Location
	Loc string
}

// NewMockRecordStore creates a store preloaded with records
func NewMockRecordStore(records ...domain.Record) *MockRecordStore {
	return &MockRecordStore{Records: records, Loc: "memory"}
}

// Exists reports whether any record was stored
func (m *MockRecordStore) Exists(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Records) > 0, nil
}

// ReadAll returns a copy of the stored records
func (m *MockRecordStore) ReadAll(context.Context) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	out := make([]domain.Record, len(m.Records))
	copy(out, m.Records)
	return out, nil
}

// Append stores records unless AppendFn overrides it
func (m *MockRecordStore) Append(ctx context.Context, records []domain.Record) error {
	m.mu.Lock()
	m.AppendCalls++
	fn := m.AppendFn
	m.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, records); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, records...)
	return nil
}

// Location returns Loc
func (m *MockRecordStore) Location() string {
	return m.Loc
}

// Snapshot returns the stored records and the number of Append calls
func (m *MockRecordStore) Snapshot() ([]domain.Record, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Record, len(m.Records))
	copy(out, m.Records)
	return out, m.AppendCalls
}
