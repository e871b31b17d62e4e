// Package auth mediates login, cached re-login and logout against a
// pluggable identity provider, mirrors the active bearer token into the
// transport, and publishes authentication state with replay-latest
// semantics.
package auth

// State is the authentication state variant.
type State uint8

const (
	// StateUnauthenticated is the initial state: no identity, no token.
	StateUnauthenticated State = iota

	// StateLoading indicates a login attempt is in flight.
	StateLoading

	// StateAuthenticated indicates a live identity with an active token.
	StateAuthenticated
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateLoading:
		return "LOADING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	default:
		return "UNKNOWN"
	}
}

// Event is an auth-affecting occurrence driving the state machine.
type Event uint8

const (
	// EventLoginStarted fires synchronously when a login attempt begins.
	EventLoginStarted Event = iota

	// EventLoginSucceeded fires when the identity provider returned
	// credentials and the token reached the transport.
	EventLoginSucceeded

	// EventLoginFailed fires when the provider or the token push failed.
	EventLoginFailed

	// EventLoggedOut fires when a logout completed at the provider.
	EventLoggedOut

	// EventTokenRefreshed fires when the provider delivered a fresh token
	// outside an explicit login. The token changes; the state does not.
	EventTokenRefreshed

	// EventTokenRevoked fires when the provider delivered a nil token,
	// invalidating the session without an explicit logout.
	EventTokenRevoked
)

// String returns a human-readable event name.
func (e Event) String() string {
	switch e {
	case EventLoginStarted:
		return "LOGIN_STARTED"
	case EventLoginSucceeded:
		return "LOGIN_SUCCEEDED"
	case EventLoginFailed:
		return "LOGIN_FAILED"
	case EventLoggedOut:
		return "LOGGED_OUT"
	case EventTokenRefreshed:
		return "TOKEN_REFRESHED"
	case EventTokenRevoked:
		return "TOKEN_REVOKED"
	default:
		return "UNKNOWN"
	}
}

// Transition is the pure state-transition function. It has no side effects
// and is exhaustively testable apart from the reactive plumbing around it.
func Transition(s State, e Event) State {
	switch e {
	case EventLoginStarted:
		return StateLoading
	case EventLoginSucceeded:
		return StateAuthenticated
	case EventLoginFailed:
		return StateUnauthenticated
	case EventLoggedOut:
		return StateUnauthenticated
	case EventTokenRevoked:
		return StateUnauthenticated
	case EventTokenRefreshed:
		// Refresh changes the active token, never the state.
		return s
	default:
		return s
	}
}

// Status is an observable snapshot: the state plus, when authenticated, the
// provider credentials. C is the provider's credential type.
type Status[C any] struct {
	State State

	// Credentials is meaningful only when State is StateAuthenticated;
	// otherwise it is the zero value.
	Credentials C
}
