package local

import (
	"context"
	"errors"
	"io/fs"

	"github.com/koustreak/vtapi/internal/errs"
)

// mapError translates a filesystem error into a *errs.Error.
// It mirrors the mapError pattern used in the minio provider.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	case errors.Is(err, fs.ErrNotExist):
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case errors.Is(err, fs.ErrPermission):
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	case errors.Is(err, fs.ErrInvalid):
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
