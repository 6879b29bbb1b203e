package database

import (
	"fmt"

	"github.com/koustreak/vtapi/internal/errs"
)

// --- Constructor helpers used by backends ---

// ErrUninitialized is returned by result set getters called with no bound
// result or with the cursor outside the result.
func ErrUninitialized(op string) *errs.Error {
	return errs.Newf(errs.ErrKindUninitialized, "%s: result set not positioned on a row", op)
}

// ErrNotConnected is returned by statements issued on a closed connection.
func ErrNotConnected(backend string) *errs.Error {
	return errs.Newf(errs.ErrKindConnectionFailed, "%s: not connected", backend)
}

// ErrNoQuery is returned when a sentinel instead of a statement reaches a
// connection.
func ErrNoQuery(query string) *errs.Error {
	return errs.Newf(errs.ErrKindQueryBuild, "refusing to run invalid statement %q", query)
}

// ErrUnsupported reports a feature the backend does not implement.
func ErrUnsupported(backend, feature string) *errs.Error {
	return errs.Newf(errs.ErrKindUnsupported, "%s: %s is not supported", backend, feature)
}

func decodeErr(what, raw string, cause error) *errs.Error {
	msg := fmt.Sprintf("cannot decode %s from %q", what, truncate(raw, 64))
	if cause == nil {
		return errs.New(errs.ErrKindDecode, msg)
	}
	return errs.Wrap(errs.ErrKindDecode, msg, cause)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
