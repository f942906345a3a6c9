package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrAllModelsExhausted is matched by errors.Is when every model in the
	// registry failed with a retryable error.
	ErrAllModelsExhausted = errors.New("all models exhausted")

	// ErrCancelled is returned by Session.Recv once the session's context
	// was cancelled. It wraps context.Canceled.
	ErrCancelled = fmt.Errorf("generation cancelled: %w", context.Canceled)
)

// TransportError describes a failed request against the completions endpoint.
type TransportError struct {
	Model      string
	StatusCode int    // 0 when the request never produced a response
	Body       string // Response body or in-band error message
	Err        error  // Underlying network or decode error, if any
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: API error (status %d): %v", e.Model, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: API error (status %d): %s", e.Model, e.StatusCode, e.Body)
	case e.Body != "":
		return fmt.Sprintf("%s: API error: %s", e.Model, e.Body)
	default:
		return fmt.Sprintf("%s: request failed: %v", e.Model, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ExhaustedError collects the per-model failures of a logical request in
// which every model failed with a retryable error.
type ExhaustedError struct {
	Attempts []error
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, err := range e.Attempts {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("%s after %d attempt(s): %s", ErrAllModelsExhausted, len(e.Attempts), strings.Join(parts, "; "))
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllModelsExhausted
}

// isRetryable reports whether err should move the request on to the next
// model: the service answered 503, or its error body says the model is
// unavailable. Everything else is fatal for the logical request.
func isRetryable(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	if te.StatusCode == http.StatusServiceUnavailable {
		return true
	}
	return strings.Contains(strings.ToLower(te.Body), "unavailable")
}
