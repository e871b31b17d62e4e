package subscription

import (
	"context"
	"sync"
	"sync/atomic"
)

// Stream is one consumer's view of a live query: a cold, unbounded,
// cancellable sequence of updates.
type Stream struct {
	mgr      *Manager
	key      Key
	wireArgs map[string]string

	startOnce sync.Once
	out       chan Update

	// done closes on Cancel; buffered updates are dropped at that point.
	done chan struct{}

	mu     sync.Mutex
	buf    []Update
	wake   chan struct{}
	closed bool

	cancelled atomic.Bool
}

// Key returns the stream's Call Key.
func (s *Stream) Key() Key {
	return s.key
}

// Updates starts consumption and returns the update channel. The first call
// performs the transport registration, which may block briefly; ctx bounds
// that registration. If registration fails, the failure is delivered as a
// single item and the channel closes. Subsequent calls return the same
// channel.
//
// The channel closes only on cancellation, manager shutdown, or registration
// failure; a live stream never completes on its own.
func (s *Stream) Updates(ctx context.Context) <-chan Update {
	s.startOnce.Do(func() {
		if err := s.mgr.activate(ctx, s); err != nil {
			if err != ErrCancelled {
				s.push(Update{Err: err})
			}
			s.closeLocal()
		}
		go s.pump()
	})
	return s.out
}

// Cancel tears the stream down. When this stream is its Call Key's last
// consumer, the transport unsubscribe is invoked synchronously before Cancel
// returns. Cancel is idempotent and safe to race with in-flight delivery:
// after it returns, nothing further is observed on the update channel.
func (s *Stream) Cancel() {
	if !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	s.mgr.detach(s)

	s.mu.Lock()
	s.closed = true
	s.buf = nil
	s.mu.Unlock()
	close(s.done)

	// A never-consumed stream still needs its channel closed.
	s.startOnce.Do(func() {
		go s.pump()
	})
}

// push appends an update for the consumer. It never blocks; the buffer grows
// as needed so the delivering goroutine is decoupled from the consumer.
func (s *Stream) push(u Update) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, u)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// fail delivers a terminal error and closes the stream locally.
func (s *Stream) fail(err error) {
	s.push(Update{Err: err})
	s.closeLocal()
}

// closeLocal stops accepting updates and lets the pump drain what is
// buffered before closing the consumer channel. Unlike Cancel it does not
// touch the transport.
func (s *Stream) closeLocal() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump moves buffered updates to the consumer channel.
func (s *Stream) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		items := s.buf
		s.buf = nil
		closed := s.closed
		s.mu.Unlock()

		for _, u := range items {
			select {
			case s.out <- u:
			case <-s.done:
				return
			}
		}
		if closed {
			return
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}
