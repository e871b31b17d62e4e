package client

import (
	"context"
	"fmt"

	"github.com/fluxbase/flux-go/pkg/value"
	"github.com/fluxbase/flux-go/pkg/wirelog"
)

// Query executes a read-only function once and decodes its result into T.
// Fields of T declared with the codec-aware types (value.Int64,
// value.Float64, value.Bytes) unwrap sentinel objects; plain numeric fields
// decode ordinary JSON numbers.
func Query[T any](ctx context.Context, c *Client, name string, args map[string]any) (T, error) {
	return call[T](ctx, c, name, args, c.core.Query)
}

// Mutation executes a transactional write function once and decodes its
// result into T.
func Mutation[T any](ctx context.Context, c *Client, name string, args map[string]any) (T, error) {
	return call[T](ctx, c, name, args, c.core.Mutation)
}

// Action executes a general side-effecting function once and decodes its
// result into T.
func Action[T any](ctx context.Context, c *Client, name string, args map[string]any) (T, error) {
	return call[T](ctx, c, name, args, c.core.Action)
}

// MutationVoid executes a mutation whose result is expected to be null.
// A non-null result fails with *InternalError: the caller's expectation and
// the backend schema disagree.
func MutationVoid(ctx context.Context, c *Client, name string, args map[string]any) error {
	return callVoid(ctx, c, name, args, c.core.Mutation)
}

// ActionVoid executes an action whose result is expected to be null.
func ActionVoid(ctx context.Context, c *Client, name string, args map[string]any) error {
	return callVoid(ctx, c, name, args, c.core.Action)
}

type callFunc func(ctx context.Context, name string, args map[string]string) (string, error)

// call runs one request/response round trip: encode arguments, execute,
// classify a failure or decode the single result.
func call[T any](ctx context.Context, c *Client, name string, args map[string]any, fn callFunc) (T, error) {
	var zero T

	res, err := execute(ctx, c, name, args, fn)
	if err != nil {
		return zero, err
	}

	var out T
	if err := value.Decode(res, &out); err != nil {
		return zero, &InternalError{
			Message: fmt.Sprintf("result of %q does not match declared type: %v", name, err),
			Err:     err,
		}
	}
	return out, nil
}

// callVoid runs a round trip whose only acceptable payload is null.
func callVoid(ctx context.Context, c *Client, name string, args map[string]any, fn callFunc) error {
	res, err := execute(ctx, c, name, args, fn)
	if err != nil {
		return err
	}

	v, err := value.Parse(res)
	if err != nil {
		return &InternalError{
			Message: fmt.Sprintf("unparseable result for void call %q: %v", name, err),
			Err:     err,
		}
	}
	if _, isNull := v.(value.Null); !isNull {
		return &InternalError{
			Message: fmt.Sprintf("void call %q returned a non-null result", name),
		}
	}
	return nil
}

// execute encodes arguments, journals the exchange and performs the call.
// Encode failures surface synchronously and untranslated
// (value.ErrUnsupportedValue, value.ErrInvalidArgument).
func execute(ctx context.Context, c *Client, name string, args map[string]any, fn callFunc) (string, error) {
	if c.isClosed() {
		return "", ErrClientClosed
	}

	wireArgs, err := value.EncodeArgs(args)
	if err != nil {
		return "", err
	}

	c.log(wirelog.Event{
		Direction: wirelog.DirectionOut,
		Kind:      wirelog.KindCall,
		Function:  name,
	})

	res, err := fn(ctx, name, wireArgs)
	if err != nil {
		cerr := classify(err)
		c.log(wirelog.Event{
			Direction:  wirelog.DirectionIn,
			Kind:       wirelog.KindResult,
			Function:   name,
			ErrorClass: errorClass(cerr),
			Message:    cerr.Error(),
		})
		return "", cerr
	}

	c.log(wirelog.Event{
		Direction: wirelog.DirectionIn,
		Kind:      wirelog.KindResult,
		Function:  name,
		Payload:   res,
	})
	return res, nil
}
