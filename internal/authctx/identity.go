// Package authctx carries the authenticated caller through a request's
// context, the way this codebase's auth middleware has always threaded
// identity — simplified here to the two roles this system actually has.
package authctx

import (
	"context"

	"github.com/google/uuid"
)

// Roles recognized by the control plane.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Identity represents the authenticated caller for the current request.
type Identity struct {
	UserID   uuid.UUID
	Username string
	Role     string
}

// IsAdmin reports whether the identity holds the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

type ctxKey string

const identityKey ctxKey = "identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context. Returns nil if unset.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}
