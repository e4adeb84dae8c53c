// Package advisor holds the error taxonomy and shared constants of the course
// recommendation pipeline. Only ValidationError ever reaches a caller; every
// other failure is absorbed by the keyword fallback.
package advisor

import (
	"errors"
	"fmt"

	"course-advisor-be/pkg/aihttp"
)

var (
	// ErrRetrievalUnavailable marks embedding or corpus lookup failures.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrProvider matches any embedding or completion provider failure.
	ErrProvider = aihttp.ErrProvider

	// ErrEmptyCorpus means no course has an embedding yet.
	ErrEmptyCorpus = errors.New("no embedded courses in corpus")
)

// ValidationError is a bad or empty client input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RetrievalError wraps an embedding or store failure. It matches
// ErrRetrievalUnavailable under errors.Is.
type RetrievalError struct {
	Stage string // "embed" | "search"
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval unavailable (%s): %v", e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

func (e *RetrievalError) Is(target error) bool {
	return target == ErrRetrievalUnavailable
}

// Output validation failure reasons.
const (
	ReasonUnparseable  = "unparseable"
	ReasonNotArray     = "not_array"
	ReasonMissingField = "missing_field"
	ReasonUngrounded   = "ungrounded"
	ReasonEmpty        = "empty"
)

// OutputValidationError means the model replied with malformed or ungrounded
// output. It signals prompt or model drift rather than an outage.
type OutputValidationError struct {
	Reason string
	Detail string
	Err    error
}

func (e *OutputValidationError) Error() string {
	if e.Detail == "" {
		return "model output rejected: " + e.Reason
	}
	return fmt.Sprintf("model output rejected: %s: %s", e.Reason, e.Detail)
}

func (e *OutputValidationError) Unwrap() error {
	return e.Err
}
