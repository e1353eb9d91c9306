// SPDX-License-Identifier: MIT

package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrKind classifies failures into the closed taxonomy used across the
// pipeline, scheduler and HTTP layers. Handlers map kinds to status
// codes; the pipeline maps kinds to retry and break policy.
type ErrKind string

// Error kind constants.
const (
	// KindValidation covers malformed requests, unknown job ids and
	// illegal state transitions.
	KindValidation ErrKind = "validation"

	// KindIO covers disk and filesystem failures.
	KindIO ErrKind = "io"

	// KindExternalTool covers transcoder/recognizer/separator subprocess failures.
	KindExternalTool ErrKind = "external_tool"

	// KindModelLoad covers supervisor failures to instantiate a variant.
	KindModelLoad ErrKind = "model_load_failed"

	// KindCircuitBreak marks a tripped segment-quality circuit.
	KindCircuitBreak ErrKind = "circuit_break"

	// KindCancelled marks cooperative cancellation.
	KindCancelled ErrKind = "cancelled"

	// KindInternal is everything else.
	KindInternal ErrKind = "internal"
)

// String implements fmt.Stringer.
func (k ErrKind) String() string {
	return string(k)
}

// IsValid checks whether the kind is one of the defined constants.
func (k ErrKind) IsValid() bool {
	switch k {
	case KindValidation, KindIO, KindExternalTool, KindModelLoad,
		KindCircuitBreak, KindCancelled, KindInternal:
		return true
	default:
		return false
	}
}

// Error is a classified error carrying an operation label for logs.
type Error struct {
	// Kind is the taxonomy bucket.
	Kind ErrKind

	// Op names the failing operation, e.g. "journal.save" or "queue.reorder".
	Op string

	// Err is the underlying cause, if any.
	Err error

	// Detail is a human-readable message when no cause exists.
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Detail)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and operation label.
func E(kind ErrKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef creates a classified error from a format string.
func Ef(kind ErrKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the taxonomy kind from an error chain.
//
// Unclassified errors report KindInternal; context cancellation and
// deadline expiry report KindCancelled regardless of wrapping.
func KindOf(err error) ErrKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrKind) bool {
	return KindOf(err) == kind
}
