package app

import (
	"context"
	"errors"
	"fmt"

	"legalrag/internal/ai"
	"legalrag/internal/platform/qdrant"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrSessionNotFound = errors.New("session not found")
	ErrNoText          = errors.New("document has no extractable text")
	ErrMessageEmpty    = errors.New("message content is empty")
)

// Pipeline stages reported by StageError.
const (
	StageExtract  = "extract"
	StageEmbed    = "embed"
	StageStore    = "store"
	StageGenerate = "generate"
)

// StageError marks a failure of one pipeline stage and whether retrying the request
// may succeed.
type StageError struct {
	Stage     string
	Retryable bool
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Retryable: retryable(err), Err: err}
}

func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var reqErr *ai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Retryable()
	}
	var opErr *qdrant.OperationError
	if errors.As(err, &opErr) {
		return opErr.Retryable()
	}
	return false
}

// IsRetryable reports whether err is a StageError the caller may retry.
func IsRetryable(err error) bool {
	var se *StageError
	return errors.As(err, &se) && se.Retryable
}
