package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type creds struct {
	UserID string
	Token  string
}

// fakeProvider scripts login outcomes and captures the refresh callback.
type fakeProvider struct {
	mu        sync.Mutex
	loginErr  error
	logoutErr error
	cacheErr  error
	creds     creds
	callback  TokenCallback
	logouts   int
}

func (p *fakeProvider) Login(_ context.Context, onTokenChange TokenCallback) (creds, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callback = onTokenChange
	if p.loginErr != nil {
		return creds{}, p.loginErr
	}
	return p.creds, nil
}

func (p *fakeProvider) Logout(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.logoutErr != nil {
		return p.logoutErr
	}
	p.logouts++
	return nil
}

func (p *fakeProvider) ExtractToken(c creds) (string, error) {
	return c.Token, nil
}

func (p *fakeProvider) refresh(token *string) {
	p.mu.Lock()
	cb := p.callback
	p.mu.Unlock()
	cb(token)
}

// cachingProvider additionally supports cached re-login.
type cachingProvider struct {
	fakeProvider
}

func (p *cachingProvider) LoginFromCache(_ context.Context, onTokenChange TokenCallback) (creds, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callback = onTokenChange
	if p.cacheErr != nil {
		return creds{}, p.cacheErr
	}
	return p.creds, nil
}

// fakeTokens records every token pushed to the transport.
type fakeTokens struct {
	mu     sync.Mutex
	tokens []*string
	err    error
}

func (f *fakeTokens) SetAuth(_ context.Context, token *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if token != nil {
		t := *token
		f.tokens = append(f.tokens, &t)
	} else {
		f.tokens = append(f.tokens, nil)
	}
	return nil
}

func (f *fakeTokens) last() (*string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tokens) == 0 {
		return nil, false
	}
	return f.tokens[len(f.tokens)-1], true
}

// captureStates records the full transition sequence.
func captureStates[C any](c *Controller[C]) func() []State {
	var mu sync.Mutex
	var states []State
	c.OnTransition(func(s Status[C]) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})
	return func() []State {
		mu.Lock()
		defer mu.Unlock()
		return append([]State(nil), states...)
	}
}

func statesEqual(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name  string
		state State
		event Event
		want  State
	}{
		{"login starts", StateUnauthenticated, EventLoginStarted, StateLoading},
		{"login succeeds", StateLoading, EventLoginSucceeded, StateAuthenticated},
		{"login fails", StateLoading, EventLoginFailed, StateUnauthenticated},
		{"logout", StateAuthenticated, EventLoggedOut, StateUnauthenticated},
		{"revoked", StateAuthenticated, EventTokenRevoked, StateUnauthenticated},
		{"refresh keeps authenticated", StateAuthenticated, EventTokenRefreshed, StateAuthenticated},
		{"refresh keeps loading", StateLoading, EventTokenRefreshed, StateLoading},
		{"relogin from authenticated", StateAuthenticated, EventLoginStarted, StateLoading},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transition(tt.state, tt.event); got != tt.want {
				t.Errorf("Transition(%v, %v) = %v, want %v", tt.state, tt.event, got, tt.want)
			}
		})
	}
}

func TestLoginSuccess(t *testing.T) {
	provider := &fakeProvider{creds: creds{UserID: "u1", Token: "tok-1"}}
	tokens := &fakeTokens{}
	c := NewController[creds](provider, tokens, nil)
	states := captureStates(c)

	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if !statesEqual(states(), []State{StateLoading, StateAuthenticated}) {
		t.Errorf("transitions = %v, want [LOADING AUTHENTICATED]", states())
	}

	status := c.Status()
	if status.State != StateAuthenticated {
		t.Errorf("State = %v, want StateAuthenticated", status.State)
	}
	if status.Credentials.UserID != "u1" {
		t.Errorf("Credentials.UserID = %q, want u1", status.Credentials.UserID)
	}

	last, ok := tokens.last()
	if !ok || last == nil || *last != "tok-1" {
		t.Errorf("transport token = %v, want tok-1", last)
	}
}

func TestLoginFailure(t *testing.T) {
	wantErr := errors.New("user cancelled")
	provider := &fakeProvider{loginErr: wantErr}
	tokens := &fakeTokens{}
	c := NewController[creds](provider, tokens, nil)
	states := captureStates(c)

	if err := c.Login(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("Login() error = %v, want %v", err, wantErr)
	}

	if !statesEqual(states(), []State{StateLoading, StateUnauthenticated}) {
		t.Errorf("transitions = %v, want [LOADING UNAUTHENTICATED]", states())
	}

	last, ok := tokens.last()
	if !ok || last != nil {
		t.Errorf("transport token = %v, want cleared", last)
	}
}

func TestLoginFromCacheWithoutCapability(t *testing.T) {
	provider := &fakeProvider{}
	c := NewController[creds](provider, &fakeTokens{}, nil)
	states := captureStates(c)

	if err := c.LoginFromCache(context.Background()); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("LoginFromCache() error = %v, want ErrNotSupported", err)
	}

	// No transition at all, not even Loading.
	if len(states()) != 0 {
		t.Errorf("transitions = %v, want none", states())
	}
	if got := c.Status().State; got != StateUnauthenticated {
		t.Errorf("State = %v, want StateUnauthenticated", got)
	}
}

func TestLoginFromCache(t *testing.T) {
	provider := &cachingProvider{fakeProvider: fakeProvider{creds: creds{Token: "cached"}}}
	tokens := &fakeTokens{}
	c := NewController[creds](provider, tokens, nil)

	if err := c.LoginFromCache(context.Background()); err != nil {
		t.Fatalf("LoginFromCache() error = %v", err)
	}
	if got := c.Status().State; got != StateAuthenticated {
		t.Errorf("State = %v, want StateAuthenticated", got)
	}
	last, _ := tokens.last()
	if last == nil || *last != "cached" {
		t.Errorf("transport token = %v, want cached", last)
	}
}

func TestLogout(t *testing.T) {
	provider := &fakeProvider{creds: creds{Token: "tok"}}
	tokens := &fakeTokens{}
	c := NewController[creds](provider, tokens, nil)

	c.Login(context.Background())
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if got := c.Status().State; got != StateUnauthenticated {
		t.Errorf("State = %v, want StateUnauthenticated", got)
	}
	last, _ := tokens.last()
	if last != nil {
		t.Errorf("transport token = %v, want cleared", last)
	}
	if provider.logouts != 1 {
		t.Errorf("provider logouts = %d, want 1", provider.logouts)
	}
}

func TestLogoutFailureKeepsState(t *testing.T) {
	provider := &fakeProvider{creds: creds{Token: "tok"}}
	tokens := &fakeTokens{}
	c := NewController[creds](provider, tokens, nil)
	c.Login(context.Background())

	wantErr := errors.New("network down")
	provider.mu.Lock()
	provider.logoutErr = wantErr
	provider.mu.Unlock()

	if err := c.Logout(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("Logout() error = %v, want %v", err, wantErr)
	}
	if got := c.Status().State; got != StateAuthenticated {
		t.Errorf("State after failed logout = %v, want StateAuthenticated", got)
	}
	last, _ := tokens.last()
	if last == nil || *last != "tok" {
		t.Errorf("transport token = %v, want tok intact", last)
	}
}

func TestPassiveRefreshUpdatesTokenWithoutTransition(t *testing.T) {
	provider := &fakeProvider{creds: creds{Token: "tok-1"}}
	tokens := &fakeTokens{}
	c := NewController[creds](provider, tokens, nil)
	c.Login(context.Background())
	states := captureStates(c)

	fresh := "tok-2"
	provider.refresh(&fresh)

	if len(states()) != 0 {
		t.Errorf("refresh published transitions: %v", states())
	}
	if got := c.Status().State; got != StateAuthenticated {
		t.Errorf("State = %v, want StateAuthenticated", got)
	}
	last, _ := tokens.last()
	if last == nil || *last != "tok-2" {
		t.Errorf("transport token = %v, want tok-2", last)
	}
}

func TestTokenRevocation(t *testing.T) {
	provider := &fakeProvider{creds: creds{Token: "tok"}}
	tokens := &fakeTokens{}
	c := NewController[creds](provider, tokens, nil)
	c.Login(context.Background())
	states := captureStates(c)

	provider.refresh(nil)

	// Straight to Unauthenticated, never through Loading.
	if !statesEqual(states(), []State{StateUnauthenticated}) {
		t.Errorf("transitions = %v, want [UNAUTHENTICATED]", states())
	}
	last, _ := tokens.last()
	if last != nil {
		t.Errorf("transport token = %v, want cleared", last)
	}
}

func TestStaleRefreshCallbackIgnored(t *testing.T) {
	provider := &fakeProvider{creds: creds{Token: "tok-1"}}
	tokens := &fakeTokens{}
	c := NewController[creds](provider, tokens, nil)
	c.Login(context.Background())

	provider.mu.Lock()
	stale := provider.callback
	provider.mu.Unlock()

	// A second login supersedes the first attempt's callback.
	provider.mu.Lock()
	provider.creds = creds{Token: "tok-2"}
	provider.mu.Unlock()
	c.Login(context.Background())

	stale(nil)

	if got := c.Status().State; got != StateAuthenticated {
		t.Errorf("State after stale revocation = %v, want StateAuthenticated", got)
	}
	last, _ := tokens.last()
	if last == nil || *last != "tok-2" {
		t.Errorf("transport token = %v, want tok-2", last)
	}
}

func TestLogoutInvalidatesRefreshCallback(t *testing.T) {
	provider := &fakeProvider{creds: creds{Token: "tok"}}
	tokens := &fakeTokens{}
	c := NewController[creds](provider, tokens, nil)
	c.Login(context.Background())
	c.Logout(context.Background())

	fresh := "late"
	provider.refresh(&fresh)

	last, _ := tokens.last()
	if last != nil {
		t.Errorf("transport token = %v, want still cleared", last)
	}
}

func TestWatchReplaysCurrentStatus(t *testing.T) {
	provider := &fakeProvider{creds: creds{Token: "tok"}}
	c := NewController[creds](provider, &fakeTokens{}, nil)
	c.Login(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := c.Watch(ctx)
	got := <-ch
	if got.State != StateAuthenticated {
		t.Errorf("replayed state = %v, want StateAuthenticated", got.State)
	}
}

func TestWatchConflatesToLatest(t *testing.T) {
	provider := &fakeProvider{creds: creds{Token: "tok"}}
	c := NewController[creds](provider, &fakeTokens{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := c.Watch(ctx)

	// The watcher never reads while a full login happens; the pending value
	// must be the latest state, not the stale replay.
	c.Login(context.Background())

	got := <-ch
	if got.State != StateAuthenticated {
		t.Errorf("conflated state = %v, want StateAuthenticated", got.State)
	}
}

func TestCredentialsClearedOutsideAuthenticated(t *testing.T) {
	provider := &fakeProvider{creds: creds{UserID: "u1", Token: "tok"}}
	c := NewController[creds](provider, &fakeTokens{}, nil)
	c.Login(context.Background())
	c.Logout(context.Background())

	status := c.Status()
	if status.Credentials.UserID != "" {
		t.Errorf("Credentials after logout = %+v, want zero", status.Credentials)
	}
}

func TestStateAndEventStrings(t *testing.T) {
	if got := StateLoading.String(); got != "LOADING" {
		t.Errorf("StateLoading.String() = %q", got)
	}
	if got := State(99).String(); got != "UNKNOWN" {
		t.Errorf("State(99).String() = %q", got)
	}
	if got := EventTokenRevoked.String(); got != "TOKEN_REVOKED" {
		t.Errorf("EventTokenRevoked.String() = %q", got)
	}
}
