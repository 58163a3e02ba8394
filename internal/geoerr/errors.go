// Package geoerr classifies engine failures so callers can decide whether to
// skip a network or abort a run.
package geoerr

import (
	"errors"
	"fmt"
)

// Kind identifies the failure class of an engine error.
type Kind int

const (
	// KindUnknown is reported for errors that did not originate in the engine.
	KindUnknown Kind = iota
	// KindValidation marks malformed input (out-of-range coordinates, empty sets).
	KindValidation
	// KindInsufficientData marks inputs below a metric's minimum size.
	KindInsufficientData
	// KindDegenerateGeometry marks zero-area extents and similar preconditions.
	KindDegenerateGeometry
	// KindProjection marks coordinate transform failures.
	KindProjection
)

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInsufficientData:
		return "insufficient_data"
	case KindDegenerateGeometry:
		return "degenerate_geometry"
	case KindProjection:
		return "projection"
	default:
		return "unknown"
	}
}

// Error is a classified engine error. Op names the operation that failed
// (e.g. "morans_i"); Err is an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Validationf returns a validation error for op.
func Validationf(op, format string, args ...any) *Error {
	return newf(KindValidation, op, format, args...)
}

// InsufficientDataf returns an insufficient-data error for op.
func InsufficientDataf(op, format string, args ...any) *Error {
	return newf(KindInsufficientData, op, format, args...)
}

// Degeneratef returns a degenerate-geometry error for op.
func Degeneratef(op, format string, args ...any) *Error {
	return newf(KindDegenerateGeometry, op, format, args...)
}

// Projectionf returns a projection error for op.
func Projectionf(op, format string, args ...any) *Error {
	return newf(KindProjection, op, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsValidation reports whether err carries a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsInsufficientData reports whether err carries an insufficient-data error.
func IsInsufficientData(err error) bool { return KindOf(err) == KindInsufficientData }

// IsDegenerate reports whether err carries a degenerate-geometry error.
func IsDegenerate(err error) bool { return KindOf(err) == KindDegenerateGeometry }

// IsProjection reports whether err carries a projection error.
func IsProjection(err error) bool { return KindOf(err) == KindProjection }
