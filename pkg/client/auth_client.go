package client

import (
	"context"

	"github.com/fluxbase/flux-go/pkg/auth"
	"github.com/fluxbase/flux-go/pkg/transport"
	"github.com/fluxbase/flux-go/pkg/wirelog"
)

// AuthClient is a Client that additionally drives the login lifecycle
// against an identity provider. C is the provider's credential type.
type AuthClient[C any] struct {
	*Client
	controller *auth.Controller[C]
}

// NewWithAuth creates an auth-capable client over an existing transport.
func NewWithAuth[C any](core transport.Core, provider auth.Provider[C], cfg Config) *AuthClient[C] {
	c := New(core, cfg)
	return &AuthClient[C]{
		Client:     c,
		controller: auth.NewController(provider, core, c.logger),
	}
}

// OpenWithAuth creates an auth-capable client over the default WebSocket
// transport.
func OpenWithAuth[C any](cfg Config, provider auth.Provider[C]) (*AuthClient[C], error) {
	c, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return &AuthClient[C]{
		Client:     c,
		controller: auth.NewController(provider, c.core, c.logger),
	}, nil
}

// Login runs an interactive login through the identity provider, mirroring
// the resulting bearer token into the transport.
func (c *AuthClient[C]) Login(ctx context.Context) error {
	err := c.controller.Login(ctx)
	c.logAuth("login", err)
	return err
}

// LoginFromCache re-authenticates from cached provider credentials. Fails
// with auth.ErrNotSupported when the provider has no cache capability.
func (c *AuthClient[C]) LoginFromCache(ctx context.Context) error {
	err := c.controller.LoginFromCache(ctx)
	c.logAuth("login from cache", err)
	return err
}

// Logout invalidates the provider session and clears the transport token.
// On failure the auth state is left unchanged.
func (c *AuthClient[C]) Logout(ctx context.Context) error {
	err := c.controller.Logout(ctx)
	c.logAuth("logout", err)
	return err
}

// AuthStatus returns the current authentication snapshot.
func (c *AuthClient[C]) AuthStatus() auth.Status[C] {
	return c.controller.Status()
}

// WatchAuth returns a replay-latest view of the authentication state: the
// channel immediately carries the current status and conflates transitions
// the consumer is too slow to observe.
func (c *AuthClient[C]) WatchAuth(ctx context.Context) <-chan auth.Status[C] {
	return c.controller.Watch(ctx)
}

func (c *AuthClient[C]) logAuth(op string, err error) {
	event := wirelog.Event{
		Direction: wirelog.DirectionOut,
		Kind:      wirelog.KindAuth,
		Message:   op,
	}
	if err != nil {
		event.Message = op + " failed"
		event.ErrorClass = "auth"
	}
	c.log(event)
}
