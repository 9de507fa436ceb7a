package service

import (
	"errors"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/getsentry/sentry-go"

	"github.com/mmynk/studygroup/internal/apperr"
)

// toConnectError maps a domain error onto a connect code. Errors that
// fit no category are logged, sent to Sentry and returned as Internal.
func toConnectError(op string, err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	switch {
	case apperr.IsValidation(err):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, apperr.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, apperr.ErrForbidden), errors.Is(err, apperr.ErrNotMember):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, apperr.ErrConflict):
		return connect.NewError(connect.CodeAborted, err)
	case apperr.IsRemote(err):
		return connect.NewError(connect.CodeUnavailable, err)
	}

	slog.Error(op+" failed with unclassified error", "error", err)
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("operation", op)
		sentry.CaptureException(err)
	})
	return connect.NewError(connect.CodeInternal, err)
}

// errUnauthenticated is returned when a handler runs without an identity
// in its context, which means the auth interceptor was not installed.
var errUnauthenticated = errors.New("no authenticated user")
