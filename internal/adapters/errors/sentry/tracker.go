package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"newsdesk/pkg/errors"
)

const flushTimeout = 2 * time.Second

// Tracker implements error tracking via Sentry
type Tracker struct {
	hub *sentry.Hub
}

var _ errors.Tracker = (*Tracker)(nil)

// New initializes the Sentry client
func New(dsn, environment, release string) (*Tracker, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init sentry")
	}

	return &Tracker{hub: sentry.CurrentHub()}, nil
}

// CaptureError sends an error to Sentry tagged with the request scope, if any
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	if err == nil {
		return nil
	}
	hub := t.hub.Clone()

	hub.ConfigureScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if rs, ok := errors.RequestScopeFrom(ctx); ok {
			scope.SetTag("request_id", rs.RequestID)
			scope.SetUser(sentry.User{ID: rs.UserID})
		}
		scope.SetLevel(levelFor(err))
	})

	hub.CaptureException(err)
	return nil
}

// Flush waits for pending events. Sentry reports a timeout as false.
func (t *Tracker) Flush(ctx context.Context) error {
	timeout := flushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !sentry.Flush(timeout) {
		return errors.Wrap(errors.ErrTimeout, "sentry flush")
	}
	return nil
}

// levelFor downgrades expected degradation to warnings
func levelFor(err error) sentry.Level {
	switch {
	case errors.Is(err, errors.ErrStageDegraded),
		errors.Is(err, errors.ErrAgentFailed),
		errors.Is(err, errors.ErrAgentTimeout),
		errors.Is(err, errors.ErrPreferenceConflict):
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}
