package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/vtapi/internal/errs"
)

// PostgreSQL SQLSTATE codes and classes mapped to specific kinds.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnection       = "08"
	pgClassAuthorization    = "28"
	pgInsufficientPrivilege = "42501"
	pgQueryCanceled         = "57014"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := errs.ErrKindQueryFailed
		switch {
		case pgErr.Code == pgInsufficientPrivilege:
			kind = errs.ErrKindPermissionDenied
		case pgErr.Code == pgQueryCanceled:
			kind = errs.ErrKindTimeout
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == pgClassConnection:
			kind = errs.ErrKindConnectionFailed
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == pgClassAuthorization:
			kind = errs.ErrKindPermissionDenied
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
