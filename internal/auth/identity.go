// Package auth resolves the caller identity for each request. Identities
// travel as signed session tokens (cookie or bearer header) and are passed
// explicitly into every data operation.
package auth

import (
	"context"
	"errors"
)

// ErrUnauthenticated is returned when a request carries no valid session.
var ErrUnauthenticated = errors.New("authentication required")

// Identity is the authenticated caller.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

// Anonymous reports whether the identity is empty.
func (id Identity) Anonymous() bool {
	return id.UserID == ""
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity attached by the session middleware, or
// the anonymous identity.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(contextKey{}).(Identity)
	return id
}
