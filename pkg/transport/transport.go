// Package transport defines the boundary between the client runtime and the
// protocol engine that owns the persistent connection to a Flux deployment.
//
// The Core interface deals exclusively in wire text: function arguments cross
// as per-argument encoded JSON, results come back as a single JSON document.
// Failures surface through a closed set of error types so callers can
// classify them without string matching. The package also ships a default
// Core implementation over WebSocket; embedders with their own engine only
// need to satisfy Core.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed Core.
var ErrClosed = errors.New("transport closed")

// Core is the request/response and subscription surface of the protocol
// engine. Implementations must be safe for concurrent use. Blocking is
// bounded by the supplied context; the engine owns any further timeout
// policy.
type Core interface {
	// Query executes a read-only function once and returns its result as
	// wire text.
	Query(ctx context.Context, name string, args map[string]string) (string, error)

	// Mutation executes a transactional write function once.
	Mutation(ctx context.Context, name string, args map[string]string) (string, error)

	// Action executes a general side-effecting function once.
	Action(ctx context.Context, name string, args map[string]string) (string, error)

	// Subscribe registers a live query. The sink receives the current result
	// and every subsequent update until the returned handle is cancelled.
	// Delivery happens on the engine's goroutines; sinks must not block.
	Subscribe(ctx context.Context, name string, args map[string]string, sink UpdateSink) (Handle, error)

	// SetAuth installs the bearer token the connection presents to the
	// deployment. A nil token clears any previously installed one.
	SetAuth(ctx context.Context, token *string) error

	// Close tears down the engine. Live subscriptions stop delivering and
	// pending calls fail with ErrClosed.
	Close() error
}

// UpdateSink receives push delivery for one live query.
type UpdateSink interface {
	// OnUpdate delivers a new result as wire text.
	OnUpdate(wire string)

	// OnError delivers a backend failure for the query. data carries the
	// application error payload as wire text when the backend attached one.
	OnError(message string, data *string)
}

// Handle cancels a live query. Cancel unregisters the query with the engine
// before returning and is safe to call more than once; after the first call
// returns, the sink observes no further delivery.
type Handle interface {
	Cancel()
}

// AppError is a deliberate, backend-thrown application error. The Data
// payload is preserved verbatim as wire text.
type AppError struct {
	Message string
	Data    string
	HasData bool
}

func (e *AppError) Error() string {
	return e.Message
}

// ServerError is a generic backend failure with no structured payload.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// InternalError is a failure inside the protocol engine itself.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return e.Message
}
