// Package mocks provides centralized mock implementations for testing.
//
// Mocks use function fields for custom behavior and record their calls for
// verification:
//
//	import "github.com/phrazzld/llmbatch/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    completer := mocks.NewMockCompleterWithSequence("answer", generation.ErrRateLimited)
//	    caller := generation.NewCaller(completer, generation.CallerConfig{MaxAttempts: 3}, nil)
//
//	    // Use the caller in your test...
//	    assert.Equal(t, 2, completer.Calls())
//	}
//
// When adding a new mock to this package:
//  1. Create a new file named after the interface being mocked
//  2. Implement the mock struct with function fields for each interface method
//  3. Document any helper methods or special functionality
package mocks
