package auth

import (
	"context"
	"errors"
)

// Provider errors.
var (
	// ErrNotSupported is returned by LoginFromCache when the provider has no
	// cached re-authentication capability.
	ErrNotSupported = errors.New("cached login not supported by provider")
)

// TokenCallback receives passive token updates from the identity provider.
// A non-nil token replaces the active one in place; nil revokes the session.
// Providers may invoke the callback from any goroutine at any time after the
// login call that registered it.
type TokenCallback func(token *string)

// Provider is the pluggable identity provider. Credential persistence,
// browser flows and platform login UI all live behind this interface; the
// controller only orchestrates.
//
// C is the provider's credential type; the controller treats it as opaque
// apart from extracting the bearer token.
type Provider[C any] interface {
	// Login runs an interactive login. onTokenChange stays registered for
	// passive refresh until a newer login attempt supersedes it.
	Login(ctx context.Context, onTokenChange TokenCallback) (C, error)

	// Logout invalidates the provider-side session. On failure the session
	// is assumed intact.
	Logout(ctx context.Context) error

	// ExtractToken returns the bearer token carried by the credentials.
	ExtractToken(credentials C) (string, error)
}

// CacheProvider is implemented by providers that can re-authenticate from
// persisted credentials without user interaction.
type CacheProvider[C any] interface {
	Provider[C]

	// LoginFromCache re-authenticates from cached credentials.
	LoginFromCache(ctx context.Context, onTokenChange TokenCallback) (C, error)
}

// TokenSetter is the slice of the transport boundary the controller needs.
type TokenSetter interface {
	SetAuth(ctx context.Context, token *string) error
}
