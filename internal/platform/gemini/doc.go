// Package gemini provides an implementation of the generation.Completer
// interface backed by Google's genai client, for both the Gemini API and
// Vertex AI backends.
//
// This package is an infrastructure adapter: it translates the provider-neutral
// generation.Request into genai contents and configuration, and translates
// genai failures into the generation error taxonomy.
//
// Key components:
//
// 1. Completer:
//   - Implements the generation.Completer interface
//   - Sends system messages as the system instruction and user messages as contents
//   - Joins the text parts of the first candidate into the response text
//
// 2. Error classification:
//   - HTTP 429 and RESOURCE_EXHAUSTED map to generation.ErrRateLimited
//   - HTTP 408/504, DEADLINE_EXCEEDED and network timeouts map to generation.ErrTimeout
//   - Everything else, including safety blocks, is wrapped in generation.ErrCompletionFailed
//
// Retries are not performed here; generation.Caller owns the retry policy.
package gemini
