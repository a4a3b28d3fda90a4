// Package memerr defines the error taxonomy shared by every memg-core
// component. Errors are plain wrapped sentinels, not a custom exception
// hierarchy, following the style of github.com/orneryd/nornicdb's
// pkg/storage and pkg/nornicdb packages.
package memerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for API boundaries (transports, logs).
type Kind string

const (
	KindConfig            Kind = "config_error"
	KindSchema            Kind = "schema_error"
	KindValidation        Kind = "validation_error"
	KindResourceExhausted Kind = "resource_exhausted"
	KindDatabase          Kind = "database_error"
	KindPartialWrite      Kind = "partial_write_error"
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
)

// Sentinels for errors.Is comparisons. Component-specific errors should
// wrap one of these with fmt.Errorf("...: %w", ErrX) rather than defining
// new sentinels per package.
var (
	ErrConfig            = errors.New("config error")
	ErrSchema            = errors.New("schema error")
	ErrValidation        = errors.New("validation error")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrDatabase          = errors.New("database error")
	ErrPartialWrite      = errors.New("partial write")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
)

// Error is the structured error surfaced at API boundaries: Error()
// renders its operation, kind, cause and context into one message, which
// the transports report as a string.
type Error struct {
	Kind      Kind
	Operation string
	Context   map[string]any
	Err       error
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s: %v", e.Operation, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v (context: %v)", e.Operation, e.Kind, e.Err, e.Context)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a structured Error for the given operation, wrapping err
// (which should itself wrap one of the package sentinels).
func New(kind Kind, operation string, err error, context map[string]any) *Error {
	return &Error{Kind: kind, Operation: operation, Context: context, Err: err}
}

// Wrap is a convenience for the common case of no extra context.
func Wrap(kind Kind, operation string, err error) *Error {
	return New(kind, operation, err, nil)
}

// PartialWriteError reports which store succeeded when the other failed:
// the indexer writes the vector store first (cheap to
// delete) then the graph node; on graph failure it reports the vector
// point id so the caller can reconcile.
type PartialWriteError struct {
	SucceededStore string // "vector" or "graph"
	PointID        string
	Cause          error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write: %s store succeeded for id=%s, other store failed: %v",
		e.SucceededStore, e.PointID, e.Cause)
}

func (e *PartialWriteError) Unwrap() error { return ErrPartialWrite }

// Is allows errors.Is(err, ErrPartialWrite) to succeed without exposing
// the cause's chain.
func (e *PartialWriteError) Is(target error) bool {
	return target == ErrPartialWrite
}
