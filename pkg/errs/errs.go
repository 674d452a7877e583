// Package errs defines the error taxonomy shared by every capability
// boundary (graph store, embedding client, LLM client) plus the
// retry/backoff policy used to recover from the retryable kinds.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide whether to retry,
// degrade gracefully, or surface it.
type Kind int

const (
	// KindConnection is a transport failure reaching the graph, LLM, or
	// embedding backend. Retryable.
	KindConnection Kind = iota
	// KindTransient is a deadlock, timeout, or lock-contention failure at
	// the store. Retryable with backoff.
	KindTransient
	// KindConstraintViolation is a schema invariant violation at the
	// store. Not retryable.
	KindConstraintViolation
	// KindSchemaAlreadyExists is benign on index/constraint setup and is
	// swallowed at setup time only.
	KindSchemaAlreadyExists
	// KindQuery is a malformed query or unclassified store failure.
	// Surfaced, not retried.
	KindQuery
	// KindSchemaViolation is an LLM response that didn't match the
	// requested schema. Retried up to maxRetries, then surfaced.
	KindSchemaViolation
	// KindEmptyInput is an embedding request for empty or whitespace-only
	// text. Surfaced, never retried.
	KindEmptyInput
	// KindTimeoutExceeded is a deadline hit. Surfaced; the retriever may
	// still return a partial result.
	KindTimeoutExceeded
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "ConnectionError"
	case KindTransient:
		return "TransientError"
	case KindConstraintViolation:
		return "ConstraintViolation"
	case KindSchemaAlreadyExists:
		return "SchemaAlreadyExists"
	case KindQuery:
		return "QueryError"
	case KindSchemaViolation:
		return "SchemaViolation"
	case KindEmptyInput:
		return "EmptyInput"
	case KindTimeoutExceeded:
		return "TimeoutExceeded"
	default:
		return "UnknownError"
	}
}

// Retryable reports whether the error kind is worth retrying at all
// (KindConnection, KindTransient, KindSchemaViolation).
func (k Kind) Retryable() bool {
	switch k {
	case KindConnection, KindTransient, KindSchemaViolation:
		return true
	default:
		return false
	}
}

// Error is a classified failure: a Kind plus the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a classified Error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a classified Error around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As extracts the classified *Error from err, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it's a classified Error, else
// KindQuery (an unclassified failure is surfaced like a query error).
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindQuery
}

// Sentinel errors for conditions callers commonly check by identity.
var (
	ErrEmptyInput       = New(KindEmptyInput, "input text is empty")
	ErrAllSourcesFailed = New(KindQuery, "all retrieval sources failed")
)
