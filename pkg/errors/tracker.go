package errors

import (
	"context"
)

// Tracker defines the interface for error tracking services (Sentry, etc.)
type Tracker interface {
	// CaptureError sends an error to the tracking service
	CaptureError(ctx context.Context, err error, tags map[string]string) error

	// Flush waits for pending events to be sent
	Flush(ctx context.Context) error
}

// RequestScope identifies the request an error belongs to
type RequestScope struct {
	RequestID string
	UserID    string
}

type scopeKey struct{}

// WithRequestScope attaches the request scope to ctx for trackers
func WithRequestScope(ctx context.Context, scope RequestScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// RequestScopeFrom returns the scope stored by WithRequestScope
func RequestScopeFrom(ctx context.Context) (RequestScope, bool) {
	if ctx == nil {
		return RequestScope{}, false
	}
	s, ok := ctx.Value(scopeKey{}).(RequestScope)
	return s, ok
}
