package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/koustreak/vtapi/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied   = 1044
	errAccessDenied     = 1045
	errUnknownDatabase  = 1049
	errTooManyConns     = 1040
	errUserConnLimit    = 1203
	errDBCreateExists   = 1007
	errDuplicateEntry   = 1062
	errNoReferencedRow  = 1452
	errRowIsReferenced  = 1451
	errBadFieldError    = 1054
	errParseError       = 1064
	errNoSuchTable      = 1146
	errLockWaitTimeout  = 1205
	errQueryInterrupted = 1317
)

// mapError converts a driver error into an *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, mysql.ErrInvalidConn) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	// dial errors never reach the server
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errDBAccessDenied, errAccessDenied:
		return errs.ErrKindPermissionDenied
	case errUnknownDatabase:
		return errs.ErrKindNotFound
	case errTooManyConns, errUserConnLimit:
		return errs.ErrKindConnectionFailed
	case errLockWaitTimeout, errQueryInterrupted:
		return errs.ErrKindTimeout
	case errDuplicateEntry, errNoReferencedRow, errRowIsReferenced, errDBCreateExists:
		return errs.ErrKindQueryFailed
	case errBadFieldError, errParseError, errNoSuchTable:
		return errs.ErrKindQueryFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
