package iam

import "context"

// Principal is the raw identity issued by the identity provider.
// Implementations: firebase/ (Firebase Auth REST), fake/ (testing).
type Principal interface {
	// UID returns the identity provider's unique id.
	UID() string

	// Email returns the principal's email address.
	Email() string

	// Token returns a bearer token. forceRefresh bypasses any cached token.
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// PrincipalSource exposes the currently signed-in principal, or nil.
type PrincipalSource interface {
	CurrentPrincipal() Principal
}

// IdentityProvider issues principals and notifies about sign-in state changes.
type IdentityProvider interface {
	PrincipalSource

	// Subscribe registers callbacks for sign-in state changes. onChange is
	// invoked once with the current principal (possibly nil) right after
	// registration and on every later change. onError may be nil.
	Subscribe(onChange func(Principal), onError func(error)) (unsubscribe func())

	// SignOut ends the provider session.
	SignOut(ctx context.Context) error
}

// AdminUserResolver maps a principal's bearer token to its AdminUser record.
// Failures carry an *APIError with the HTTP status.
type AdminUserResolver interface {
	CurrentAdminUser(ctx context.Context, token string) (*AdminUser, error)
}

// SnapshotStore persists the ActivitySnapshot between process restarts.
type SnapshotStore interface {
	// Load returns nil, nil when no snapshot is stored.
	Load(ctx context.Context) (*ActivitySnapshot, error)
	Save(ctx context.Context, snap ActivitySnapshot) error
	Delete(ctx context.Context) error
}

// SessionReader is the read side of the Session Engine consumed by route guards.
type SessionReader interface {
	State() SessionState
}

// Authorizer answers permission questions for the signed-in admin user.
type Authorizer interface {
	// Check returns true if the current admin user holds the permission token.
	Check(ctx context.Context, permission string) (bool, error)

	// CheckResource returns true if the current admin user can perform action on resource.
	CheckResource(ctx context.Context, resource, action string) (bool, error)

	// GetPermissions returns all permission tokens of the current admin user.
	GetPermissions(ctx context.Context) ([]string, error)
}
