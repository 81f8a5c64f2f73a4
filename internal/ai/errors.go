package ai

import (
	"context"
	"errors"
	"fmt"
)

// RequestError describes a failed call to the model endpoint. Either StatusCode is set
// (the server answered with a non-2xx status) or Err holds the transport failure.
type RequestError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s response status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s request failed: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed later: 408, 429, 5xx and
// transport failures other than caller cancellation.
func (e *RequestError) Retryable() bool {
	if e.StatusCode != 0 {
		return e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode >= 500
	}
	if e.Err == nil {
		return false
	}
	return !errors.Is(e.Err, context.Canceled)
}

func IsRetryable(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Retryable()
	}
	return false
}
