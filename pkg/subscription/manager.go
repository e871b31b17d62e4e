package subscription

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/fluxbase/flux-go/pkg/transport"
)

// Subscription errors.
var (
	// ErrCancelled is returned when a stream is consumed after cancellation.
	ErrCancelled = errors.New("subscription cancelled")
)

// Key is the deduplication identity of a live query: the function name plus
// the canonical wire encoding of its arguments.
type Key struct {
	// Name is the fully qualified function name, e.g. "messages:list".
	Name string

	// Args is the canonical wire-encoded argument map. Identity depends on
	// this text, never on input object identity.
	Args string
}

// String returns the key in "name?args" form, used for logging.
func (k Key) String() string {
	return k.Name + "?" + k.Args
}

// Registrar is the slice of the transport boundary the manager needs.
// *transport.WebSocketCore and any other transport.Core satisfy it.
type Registrar interface {
	Subscribe(ctx context.Context, name string, args map[string]string, sink transport.UpdateSink) (transport.Handle, error)
}

// Update is one delivery on a stream. Either Value holds result wire text or
// Err holds a backend failure (*transport.AppError or *transport.ServerError).
type Update struct {
	Value string
	Err   error
}

// Manager tracks live queries by Call Key and routes transport callbacks to
// the streams consuming each key.
type Manager struct {
	mu      sync.Mutex
	reg     Registrar
	entries map[Key]*entry
	logger  *slog.Logger
	closed  bool
}

// entry is the shared state for one Call Key: the transport registration
// plus every stream attached to it. It is the transport's UpdateSink.
type entry struct {
	key Key

	mu         sync.Mutex
	streams    map[*Stream]struct{}
	handle     transport.Handle
	registered bool
}

// NewManager creates a subscription manager over the given registrar.
// A nil logger falls back to slog.Default.
func NewManager(reg Registrar, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		reg:     reg,
		entries: make(map[Key]*entry),
		logger:  logger,
	}
}

// Subscribe creates a cold stream for the given key. wireArgs is the
// per-argument encoded form the transport consumes; it must correspond to
// key.Args. No transport traffic occurs until the stream's first Updates
// call.
func (m *Manager) Subscribe(key Key, wireArgs map[string]string) *Stream {
	return &Stream{
		mgr:      m,
		key:      key,
		wireArgs: wireArgs,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		out:      make(chan Update),
	}
}

// Len returns the number of Call Keys with an active transport registration.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close cancels every live registration and terminates all streams.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.entries = make(map[Key]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		h := e.handle
		e.handle = nil
		streams := make([]*Stream, 0, len(e.streams))
		for s := range e.streams {
			streams = append(streams, s)
		}
		e.streams = make(map[*Stream]struct{})
		e.mu.Unlock()

		if h != nil {
			h.Cancel()
		}
		for _, s := range streams {
			s.closeLocal()
		}
	}
}

// activate attaches a stream to its entry and performs the transport
// registration if the stream is the key's first consumer. Called once per
// stream from Updates.
func (m *Manager) activate(ctx context.Context, s *Stream) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return transport.ErrClosed
	}
	if s.cancelled.Load() {
		m.mu.Unlock()
		return ErrCancelled
	}
	e := m.entries[s.key]
	if e == nil {
		e = &entry{key: s.key, streams: make(map[*Stream]struct{})}
		m.entries[s.key] = e
	}
	e.mu.Lock()
	e.streams[s] = struct{}{}
	first := !e.registered
	if first {
		e.registered = true
	}
	e.mu.Unlock()
	m.mu.Unlock()

	if !first {
		return nil
	}

	handle, err := m.reg.Subscribe(ctx, s.key.Name, s.wireArgs, e)
	if err != nil {
		m.logger.Warn("subscription registration failed",
			"function", s.key.Name, "error", err)
		m.dropEntry(e)
		e.mu.Lock()
		streams := make([]*Stream, 0, len(e.streams))
		for attached := range e.streams {
			streams = append(streams, attached)
		}
		e.streams = make(map[*Stream]struct{})
		e.mu.Unlock()
		for _, attached := range streams {
			if attached != s {
				attached.fail(err)
			}
		}
		return err
	}

	e.mu.Lock()
	if len(e.streams) == 0 {
		// Every consumer cancelled while registration was in flight.
		e.mu.Unlock()
		handle.Cancel()
		m.dropEntry(e)
		return ErrCancelled
	}
	e.handle = handle
	e.mu.Unlock()
	return nil
}

// detach removes a stream from its entry. When the stream was the key's last
// consumer, the transport registration is cancelled before detach returns.
func (m *Manager) detach(s *Stream) {
	m.mu.Lock()
	e := m.entries[s.key]
	if e == nil {
		m.mu.Unlock()
		return
	}
	e.mu.Lock()
	if _, attached := e.streams[s]; !attached {
		e.mu.Unlock()
		m.mu.Unlock()
		return
	}
	delete(e.streams, s)
	var handle transport.Handle
	if len(e.streams) == 0 {
		handle = e.handle
		e.handle = nil
		delete(m.entries, s.key)
	}
	e.mu.Unlock()
	m.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
}

// dropEntry removes an entry from the key map if it is still the current one.
func (m *Manager) dropEntry(e *entry) {
	m.mu.Lock()
	if m.entries[e.key] == e {
		delete(m.entries, e.key)
	}
	m.mu.Unlock()
}

// OnUpdate implements transport.UpdateSink. It fans a result out to every
// attached stream without blocking the delivering goroutine.
func (e *entry) OnUpdate(wire string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for s := range e.streams {
		s.push(Update{Value: wire})
	}
}

// OnError implements transport.UpdateSink. Backend failures are ordinary
// stream items; they never terminate the stream.
func (e *entry) OnError(message string, data *string) {
	var err error
	if data != nil {
		err = &transport.AppError{Message: message, Data: *data, HasData: true}
	} else {
		err = &transport.ServerError{Message: message}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for s := range e.streams {
		s.push(Update{Err: err})
	}
}
