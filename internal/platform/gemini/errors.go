package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/genai"

	"github.com/phrazzld/llmbatch/internal/generation"
)

// Error definitions for the gemini package.
var (
	// ErrContentBlocked is returned when the model stops for safety reasons.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrNoMessages is returned for a request without any user message.
	ErrNoMessages = errors.New("request has no user message")
)

// classify maps a genai failure onto the generation error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if apiErr, ok := asAPIError(err); ok {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
			return fmt.Errorf("%w: %w", generation.ErrRateLimited, err)
		case apiErr.Code == http.StatusRequestTimeout || apiErr.Code == http.StatusGatewayTimeout ||
			apiErr.Status == "DEADLINE_EXCEEDED":
			return fmt.Errorf("%w: %w", generation.ErrTimeout, err)
		default:
			return fmt.Errorf("%w: gemini status %d %s: %w",
				generation.ErrCompletionFailed, apiErr.Code, apiErr.Status, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", generation.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", generation.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", generation.ErrCompletionFailed, err)
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}
