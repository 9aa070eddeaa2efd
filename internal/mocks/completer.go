package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/llmbatch/internal/generation"
)

// MockCompleter implements generation.Completer for testing
type MockCompleter struct {
	// CompleteFn allows test cases to mock the Complete behavior
	CompleteFn func(ctx context.Context, req generation.Request) (*generation.Response, error)

	// Default response values
	Response *generation.Response
	Err      error

	// Call tracking for verification
	CompleteCalls struct {
		// mu protects the call tracking state for concurrent test cases
		mu sync.Mutex

		// Count tracks how many times Complete was called
		Count int

		// Requests contains all requests passed to Complete calls
		Requests []generation.Request
	}
}

// Complete implements the generation.Completer interface
func (m *MockCompleter) Complete(ctx context.Context, req generation.Request) (*generation.Response, error) {
	m.CompleteCalls.mu.Lock()
	m.CompleteCalls.Count++
	m.CompleteCalls.Requests = append(m.CompleteCalls.Requests, req)
	m.CompleteCalls.mu.Unlock()

	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, req)
	}
	return m.Response, m.Err
}

// Calls returns the number of Complete invocations so far
func (m *MockCompleter) Calls() int {
	m.CompleteCalls.mu.Lock()
	defer m.CompleteCalls.mu.Unlock()
	return m.CompleteCalls.Count
}

// NewMockCompleterWithText creates a MockCompleter that always answers text
func NewMockCompleterWithText(text string) *MockCompleter {
	return &MockCompleter{
		Response: &generation.Response{Text: text, FinishReason: "STOP"},
	}
}

// NewMockCompleterWithError creates a MockCompleter that always fails with err
func NewMockCompleterWithError(err error) *MockCompleter {
	return &MockCompleter{
		Err: err,
	}
}

// NewMockCompleterWithSequence creates a MockCompleter that fails with errs in
// order and answers text once they are used up
func NewMockCompleterWithSequence(text string, errs ...error) *MockCompleter {
	m := &MockCompleter{}
	var mu sync.Mutex
	next := 0
	m.CompleteFn = func(ctx context.Context, req generation.Request) (*generation.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		if next < len(errs) {
			err := errs[next]
			next++
			return nil, err
		}
		return &generation.Response{Text: text, FinishReason: "STOP"}, nil
	}
	return m
}

// Reset resets the call tracking state
func (m *MockCompleter) Reset() {
	m.CompleteCalls.mu.Lock()
	defer m.CompleteCalls.mu.Unlock()

	m.CompleteCalls.Count = 0
	m.CompleteCalls.Requests = nil
}
