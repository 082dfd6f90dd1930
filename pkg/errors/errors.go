// Package errors provides the pipeline error taxonomy. Every failure the
// pipeline can surface carries one of a small set of kinds so callers can
// distinguish malformed inputs from missing files without string matching.
package errors

import (
	"errors"
	"fmt"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// Kind identifies the class of a pipeline error.
type Kind string

const (
	// KindMalformedColumn: a column name does not decompose into a valid
	// (code, aggregation) pair, or the aggregation is unknown.
	KindMalformedColumn Kind = "MalformedColumn"
	// KindSchemaMismatch: a shard's runtime schema is incompatible with a
	// required cast (non-numeric data, overflow, missing key column).
	KindSchemaMismatch Kind = "SchemaMismatch"
	// KindConfigDrift: the persisted configuration guarding a cached artifact
	// does not match the current run's configuration.
	KindConfigDrift Kind = "ConfigDrift"
	// KindMissingPath: an expected shard, window, or corpus-wide file is absent.
	KindMissingPath Kind = "MissingPath"
	// KindOverwriteRefused: writing a derived artifact to an existing path
	// without explicit permission.
	KindOverwriteRefused Kind = "OverwriteRefused"
	// KindUnknown is used for wrapped errors with no assigned kind.
	KindUnknown Kind = "Unknown"
)

// Error is the pipeline error type carrying a kind, a message and a cause.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	cause error
}

var _ error = (*Error)(nil)

// E builds an error of the given kind.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Error implements error
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.cause != nil {
		str += fmt.Sprintf(" (%s)", e.cause)
	}
	return str
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches errors by kind so sentinel comparisons work across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
