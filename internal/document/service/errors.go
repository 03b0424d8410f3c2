package service

import (
	"context"
	"errors"

	"docket/internal/content"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/sentinel"
)

// wrapStoreErr translates store facts into coded errors. Coded errors pass
// through untouched so translation is safe to apply twice.
func wrapStoreErr(err error, action string) error {
	if err == nil {
		return nil
	}
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, action)
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "document not found")
	case errors.Is(err, sentinel.ErrAlreadyExists):
		return dErrors.Wrap(err, dErrors.CodeAlreadyRegistered, "document path is already registered")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, action)
	default:
		return dErrors.Wrap(err, dErrors.CodeStorageIO, action)
	}
}

// wrapContentErr classifies every content adapter failure as content_io.
func wrapContentErr(err error, action string) error {
	if err == nil {
		return nil
	}
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, action)
	case errors.Is(err, content.ErrOutsideRoot):
		return dErrors.Wrap(err, dErrors.CodeValidation, action)
	default:
		return dErrors.Wrap(err, dErrors.CodeContentIO, action)
	}
}

func codeLabel(err error) string {
	return string(dErrors.CodeOf(err))
}
