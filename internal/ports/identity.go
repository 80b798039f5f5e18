package ports

import (
	"context"
	"errors"
)

// ErrUnauthenticated is returned when a credential cannot be resolved to a user.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is a resolved caller.
type Identity struct {
	UserID      string
	DisplayName string
}

// IdentityPort resolves caller credentials to a stable user id and display name.
type IdentityPort interface {
	// Resolve returns the identity for credential (a session token or user id, depending on the adapter).
	// Returns ErrUnauthenticated when the credential is invalid.
	Resolve(ctx context.Context, credential string) (Identity, error)
}
