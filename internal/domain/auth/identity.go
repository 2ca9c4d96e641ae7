// Package auth decodes bearer tokens into caller identities.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// Roles recognized by the checkout API.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

var (
	// ErrInvalidToken is returned for malformed, forged or expired tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrUnauthenticated is returned when an endpoint requires an identity.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the identity lacks the required role.
	ErrForbidden = errors.New("insufficient permissions")
)

// Identity is the caller decoded from a bearer token.
type Identity struct {
	ID    string
	Email string
	Name  string
	Phone string
	Role  string
}

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// Authenticator decodes a raw bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

type identityKey struct{}

// WithIdentity stores id in the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
