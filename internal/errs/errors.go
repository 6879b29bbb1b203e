// Package errs provides the unified error type used across all of VTApi.
//
// Every subsystem (backends, query orchestration, entities, file store,
// server) wraps its native errors into *errs.Error before returning them to
// callers. Callers use the Is* predicates to handle errors without importing
// backend-specific packages.
//
// Usage:
//
//	// In a backend, wrap native errors:
//	return errs.Wrap(errs.ErrKindQueryFailed, "fetch failed", pgErr)
//
//	// In an entity, report a missing precondition:
//	return nil, errs.New(errs.ErrKindConfig, "dataset not specified")
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
// All backends (Postgres, SQLite, MySQL, MinIO, …) map their native errors
// to one of these kinds, giving callers a single consistent API.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows, no object, no dataset file
	ErrKindConnectionFailed         // cannot reach or authenticate to the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // statement execution error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied
	ErrKindConfig                   // bad or missing configuration
	ErrKindQueryBuild               // statement could not be rendered
	ErrKindDecode                   // column value could not be decoded
	ErrKindUninitialized            // result set used before a result was bound
	ErrKindUnsupported              // feature not available on this backend
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindConfig:
		return "config"
	case ErrKindQueryBuild:
		return "query_build"
	case ErrKindDecode:
		return "decode"
	case ErrKindUninitialized:
		return "uninitialized"
	case ErrKindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all VTApi subsystems.
// Backends produce it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a formatted message.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result
// (no rows, missing object, unknown dataset, …).
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a statement execution failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return KindOf(err) == ErrKindConfig
}

// IsQueryBuild reports whether a statement could not be rendered.
func IsQueryBuild(err error) bool {
	return KindOf(err) == ErrKindQueryBuild
}

// IsUninitialized reports whether a result set was read before being bound.
func IsUninitialized(err error) bool {
	return KindOf(err) == ErrKindUninitialized
}

// IsUnsupported reports whether the backend lacks the requested feature.
func IsUnsupported(err error) bool {
	return KindOf(err) == ErrKindUnsupported
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
