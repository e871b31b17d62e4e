package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/fluxbase/flux-go/pkg/subscription"
	"github.com/fluxbase/flux-go/pkg/value"
	"github.com/fluxbase/flux-go/pkg/wirelog"
)

// Result is one delivery on a typed subscription: either a decoded value or
// a backend failure. Failed results do not end the stream.
type Result[T any] struct {
	Value T
	Err   error
}

// Subscription is a live query delivering typed results. It is cold until
// the first Updates call and infinite until cancelled.
type Subscription[T any] struct {
	client *Client
	stream *subscription.Stream

	startOnce sync.Once
	out       chan Result[T]
}

// Subscribe creates a live query on the given function. Argument maps that
// encode to identical wire text share one Call Key and one transport
// registration; distinct keys never cross-deliver.
//
// Encode failures surface synchronously (value.ErrUnsupportedValue,
// value.ErrInvalidArgument).
func Subscribe[T any](c *Client, name string, args map[string]any) (*Subscription[T], error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}

	wireArgs, err := value.EncodeArgs(args)
	if err != nil {
		return nil, err
	}
	canonical, err := value.CanonicalArgs(args)
	if err != nil {
		return nil, err
	}

	key := subscription.Key{Name: name, Args: canonical}
	return &Subscription[T]{
		client: c,
		stream: c.subs.Subscribe(key, wireArgs),
		out:    make(chan Result[T]),
	}, nil
}

// Key returns the subscription's Call Key.
func (s *Subscription[T]) Key() subscription.Key {
	return s.stream.Key()
}

// Updates starts consumption and returns the result channel. The first call
// registers the query with the transport, which may block briefly; ctx
// bounds that registration and the consumer's lifetime: when ctx is done
// the subscription cancels itself.
//
// Backend errors arrive as failed results and the stream continues. An
// update that fails to decode into T is a protocol violation: the stream
// delivers a final *ProtocolViolation result and closes.
func (s *Subscription[T]) Updates(ctx context.Context) <-chan Result[T] {
	s.startOnce.Do(func() {
		s.client.log(wirelog.Event{
			Direction: wirelog.DirectionOut,
			Kind:      wirelog.KindSubscribe,
			Function:  s.stream.Key().Name,
			CallKey:   s.stream.Key().String(),
		})
		go s.pump(ctx)
	})
	return s.out
}

// Cancel tears the subscription down, synchronously unregistering at the
// transport when this was the Call Key's last consumer. Idempotent.
func (s *Subscription[T]) Cancel() {
	s.client.log(wirelog.Event{
		Direction: wirelog.DirectionOut,
		Kind:      wirelog.KindUnsubscribe,
		Function:  s.stream.Key().Name,
		CallKey:   s.stream.Key().String(),
	})
	s.stream.Cancel()
}

// pump decodes raw updates into typed results.
func (s *Subscription[T]) pump(ctx context.Context) {
	defer close(s.out)

	raw := s.stream.Updates(ctx)
	for {
		var (
			u  subscription.Update
			ok bool
		)
		select {
		case u, ok = <-raw:
		case <-ctx.Done():
			s.stream.Cancel()
			return
		}
		if !ok {
			return
		}

		s.client.log(wirelog.Event{
			Direction: wirelog.DirectionIn,
			Kind:      wirelog.KindUpdate,
			Function:  s.stream.Key().Name,
			CallKey:   s.stream.Key().String(),
		})

		if u.Err != nil {
			if !s.deliver(ctx, Result[T]{Err: classify(u.Err)}) {
				return
			}
			continue
		}

		var v T
		if err := value.Decode(u.Value, &v); err != nil {
			// A payload the declared type cannot represent is a schema
			// mismatch, not a business error: fatal to this stream.
			violation := &ProtocolViolation{
				Message: fmt.Sprintf("update for %q does not match declared type: %v", s.stream.Key().Name, err),
				Err:     err,
			}
			s.deliver(ctx, Result[T]{Err: violation})
			s.stream.Cancel()
			return
		}

		if !s.deliver(ctx, Result[T]{Value: v}) {
			return
		}
	}
}

// deliver sends a result to the consumer, cancelling on context expiry.
func (s *Subscription[T]) deliver(ctx context.Context, r Result[T]) bool {
	select {
	case s.out <- r:
		return true
	case <-ctx.Done():
		s.stream.Cancel()
		return false
	}
}
