package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Controller errors.
var (
	// ErrSuperseded is returned when a login attempt completed after a newer
	// attempt had already taken over.
	ErrSuperseded = errors.New("login attempt superseded")
)

// Controller owns the authentication state and the active bearer token.
//
// Provider calls run outside the controller lock (logins block on user
// interaction), but every state application (login completion, logout,
// passive refresh) is serialized under one mutex, so the final state is
// determined by order of completion. A generation counter ties each refresh
// callback to the login attempt that registered it; callbacks from
// superseded attempts are dropped.
type Controller[C any] struct {
	provider Provider[C]
	tokens   TokenSetter
	logger   *slog.Logger

	mu         sync.Mutex
	status     Status[C]
	generation uint64
	watchers   map[chan Status[C]]struct{}

	// onTransition, when set, observes every state change in order.
	onTransition func(Status[C])
}

// NewController creates a controller in StateUnauthenticated. A nil logger
// falls back to slog.Default.
func NewController[C any](provider Provider[C], tokens TokenSetter, logger *slog.Logger) *Controller[C] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller[C]{
		provider: provider,
		tokens:   tokens,
		logger:   logger,
		status:   Status[C]{State: StateUnauthenticated},
		watchers: make(map[chan Status[C]]struct{}),
	}
}

// Status returns the current snapshot.
func (c *Controller[C]) Status() Status[C] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// OnTransition registers a callback observing every state change, invoked
// under the controller lock so observations are lossless and ordered.
// Callbacks must return quickly and must not call back into the controller.
func (c *Controller[C]) OnTransition(fn func(Status[C])) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTransition = fn
}

// Watch returns a replay-latest view of the auth state: the channel
// immediately carries the current status, and thereafter the most recent
// status, conflating intermediate transitions the consumer was too slow to
// observe. The watcher is removed when ctx is done.
func (c *Controller[C]) Watch(ctx context.Context) <-chan Status[C] {
	ch := make(chan Status[C], 1)
	c.mu.Lock()
	ch <- c.status
	c.watchers[ch] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.watchers, ch)
		c.mu.Unlock()
	}()
	return ch
}

// Login runs an interactive login through the identity provider.
// StateLoading is published synchronously before the provider is invoked.
// On success the bearer token is pushed to the transport and
// StateAuthenticated is published; on failure the token is cleared and the
// state returns to StateUnauthenticated.
func (c *Controller[C]) Login(ctx context.Context) error {
	gen, cb := c.beginAttempt()
	creds, err := c.provider.Login(ctx, cb)
	return c.completeAttempt(ctx, gen, creds, err)
}

// LoginFromCache re-authenticates from cached provider credentials. When the
// provider has no cache capability it fails with ErrNotSupported before any
// state transition.
func (c *Controller[C]) LoginFromCache(ctx context.Context) error {
	cache, ok := c.provider.(CacheProvider[C])
	if !ok {
		return ErrNotSupported
	}
	gen, cb := c.beginAttempt()
	creds, err := cache.LoginFromCache(ctx, cb)
	return c.completeAttempt(ctx, gen, creds, err)
}

// Logout invalidates the provider session. On success the transport token is
// cleared and StateUnauthenticated published; on failure nothing changes.
func (c *Controller[C]) Logout(ctx context.Context) error {
	if err := c.provider.Logout(ctx); err != nil {
		c.logger.Warn("logout failed, auth state unchanged", "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++ // invalidate refresh callbacks from earlier logins
	if err := c.tokens.SetAuth(ctx, nil); err != nil {
		return fmt.Errorf("clearing transport token: %w", err)
	}
	c.apply(EventLoggedOut, *new(C))
	return nil
}

// beginAttempt claims a new login generation and publishes StateLoading.
func (c *Controller[C]) beginAttempt() (uint64, TokenCallback) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.apply(EventLoginStarted, *new(C))
	c.mu.Unlock()
	return gen, c.refreshCallback(gen)
}

// completeAttempt applies the outcome of a login attempt, unless a newer
// attempt has superseded it in the meantime.
func (c *Controller[C]) completeAttempt(ctx context.Context, gen uint64, creds C, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return ErrSuperseded
	}

	if err != nil {
		if clearErr := c.tokens.SetAuth(ctx, nil); clearErr != nil {
			c.logger.Warn("clearing transport token failed", "error", clearErr)
		}
		c.apply(EventLoginFailed, *new(C))
		return err
	}

	token, err := c.provider.ExtractToken(creds)
	if err == nil {
		err = c.tokens.SetAuth(ctx, &token)
	}
	if err != nil {
		if clearErr := c.tokens.SetAuth(ctx, nil); clearErr != nil {
			c.logger.Warn("clearing transport token failed", "error", clearErr)
		}
		c.apply(EventLoginFailed, *new(C))
		return err
	}

	c.apply(EventLoginSucceeded, creds)
	return nil
}

// refreshCallback builds the passive-refresh callback for one login
// generation. A fresh token updates the transport in place without a state
// transition; a nil token clears it and forces StateUnauthenticated. A
// callback from a superseded generation is ignored entirely.
func (c *Controller[C]) refreshCallback(gen uint64) TokenCallback {
	return func(token *string) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if gen != c.generation {
			c.logger.Debug("ignoring token refresh from superseded login attempt")
			return
		}

		if token == nil {
			if err := c.tokens.SetAuth(context.Background(), nil); err != nil {
				c.logger.Warn("clearing transport token failed", "error", err)
			}
			c.apply(EventTokenRevoked, *new(C))
			return
		}

		// Token updated in place; EventTokenRefreshed keeps the state as-is,
		// so nothing is re-published.
		if err := c.tokens.SetAuth(context.Background(), token); err != nil {
			c.logger.Warn("pushing refreshed token failed", "error", err)
		}
	}
}

// apply runs the pure transition and publishes the new status. Callers hold
// the controller lock.
func (c *Controller[C]) apply(e Event, creds C) {
	next := Transition(c.status.State, e)
	status := Status[C]{State: next}
	if next == StateAuthenticated {
		status.Credentials = creds
	}
	c.status = status
	c.logger.Debug("auth state transition", "event", e.String(), "state", next.String())

	if c.onTransition != nil {
		c.onTransition(status)
	}
	for ch := range c.watchers {
		// Conflate: replace a pending value the watcher has not read yet.
		select {
		case ch <- status:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- status:
			default:
			}
		}
	}
}
