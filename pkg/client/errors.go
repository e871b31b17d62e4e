package client

import (
	"context"
	"errors"

	"github.com/fluxbase/flux-go/pkg/transport"
)

// Client errors.
var (
	// ErrClientClosed is returned by operations on a closed client.
	ErrClientClosed = errors.New("client is closed")
)

// ApplicationError is an error deliberately thrown by backend function code.
// It is recoverable; Data preserves the structured error payload verbatim as
// wire text for the application to decode.
type ApplicationError struct {
	Message string
	Data    string
	HasData bool
}

func (e *ApplicationError) Error() string {
	return e.Message
}

// ServerError is a generic backend failure without a structured payload.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// InternalError indicates a local shape or decode failure on a one-shot
// call: the wire data did not match the caller-declared type, which points
// at a caller/schema bug rather than a backend problem.
type InternalError struct {
	Message string
	Err     error
}

func (e *InternalError) Error() string {
	return e.Message
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// ProtocolViolation indicates a subscription update that failed to decode
// into the declared type. It is fatal to that subscription only: the stream
// terminates instead of delivering the violation as an ordinary failed item.
type ProtocolViolation struct {
	Message string
	Err     error
}

func (e *ProtocolViolation) Error() string {
	return e.Message
}

func (e *ProtocolViolation) Unwrap() error {
	return e.Err
}

// classify maps a transport boundary failure onto the client taxonomy.
// The mapping is 1:1 for the boundary's closed error set; context
// cancellation passes through untouched so callers can test for it.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, transport.ErrClosed) {
		return ErrClientClosed
	}

	var app *transport.AppError
	if errors.As(err, &app) {
		return &ApplicationError{Message: app.Message, Data: app.Data, HasData: app.HasData}
	}
	var srv *transport.ServerError
	if errors.As(err, &srv) {
		return &ServerError{Message: srv.Message}
	}
	var internal *transport.InternalError
	if errors.As(err, &internal) {
		return &InternalError{Message: internal.Message}
	}

	// Anything else from the engine is a connection-level failure; surface
	// it as a generic server failure with the cause preserved.
	return &ServerError{Message: err.Error()}
}

// errorClass names the taxonomy member for journaling.
func errorClass(err error) string {
	switch err.(type) {
	case nil:
		return ""
	case *ApplicationError:
		return "application"
	case *ServerError:
		return "server"
	case *InternalError:
		return "internal"
	case *ProtocolViolation:
		return "protocol"
	default:
		return "other"
	}
}
