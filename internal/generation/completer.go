package generation

import (
	"context"
	"strings"
)

// Role names the author of a message.
type Role string

// Message roles understood by every provider.
const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Request is a single completion request.
type Request struct {
	// Provider is the backend name, e.g. "gemini". May be empty.
	Provider string
	// Model is the provider-specific model name.
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// QualifiedModel returns "provider/model", or just the model when no
// provider is set.
func (r Request) QualifiedModel() string {
	if r.Provider == "" || strings.HasPrefix(r.Model, r.Provider+"/") {
		return r.Model
	}
	return r.Provider + "/" + r.Model
}

// Response is the result of a successful completion.
type Response struct {
	Text         string
	Model        string
	FinishReason string
}

// Completer performs one completion attempt against a remote provider.
//
// Implementations must classify failures: errors wrapping ErrRateLimited or
// ErrTimeout are retried by Caller, anything else is treated as fatal.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
