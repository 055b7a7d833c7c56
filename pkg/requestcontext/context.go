// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets the values; services only read them, so confirmation logic never
// imports net/http:
//
//	identityID := requestcontext.IdentityID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests pin time the same way the middleware does:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	identityIDKey   struct{}
	sessionTokenKey struct{}
	requestIDKey    struct{}
	requestTimeKey  struct{}
)

// IdentityID retrieves the authenticated identity id, or "" when unauthenticated.
func IdentityID(ctx context.Context) string {
	if v, ok := ctx.Value(identityIDKey{}).(string); ok {
		return v
	}
	return ""
}

func WithIdentityID(ctx context.Context, identityID string) context.Context {
	return context.WithValue(ctx, identityIDKey{}, identityID)
}

// SessionToken retrieves the identity provider session token bound to the request.
func SessionToken(ctx context.Context) string {
	if v, ok := ctx.Value(sessionTokenKey{}).(string); ok {
		return v
	}
	return ""
}

func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionTokenKey{}, token)
}

func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for workers and the watcher scheduler.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
