// Package generation provides the boundary between the batch engine and
// remote LLM completion services.
//
// A Completer performs one completion request against a provider and
// classifies its failures as rate limits, timeouts or anything else. The
// Caller wraps a Completer with bounded retries: rate-limit and timeout
// failures are attempted again, every other failure is returned at once.
// Concrete providers live under internal/platform (for example Gemini).
package generation
