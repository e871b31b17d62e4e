// Package connection tracks the lifecycle of the persistent link to a Flux
// deployment and drives automatic reconnection with exponential backoff.
// The WebSocket transport owns a Manager; the dial logic is injected so the
// package stays free of socket concerns.
package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Connection errors.
var (
	ErrClosed       = errors.New("connection manager closed")
	ErrNotConnected = errors.New("not connected")
)

// State represents the link state.
type State uint8

const (
	// StateDisconnected indicates no active link and no pending attempt.
	StateDisconnected State = iota

	// StateConnecting indicates an initial connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active link.
	StateConnected

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the manager has been shut down.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DialFunc establishes the link. It is called for the initial connection and
// for every reconnection attempt; on success the implementation is expected
// to have restored any per-connection state (auth, live queries) itself.
type DialFunc func(ctx context.Context) error

// Manager runs the connect/reconnect state machine.
type Manager struct {
	mu sync.RWMutex

	state   State
	backoff *Backoff
	dial    DialFunc

	dialTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reconnectCh chan struct{}

	onStateChange func(oldState, newState State)
}

// NewManager creates a manager around the given dial function.
func NewManager(dial DialFunc) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		state:       StateDisconnected,
		backoff:     NewBackoff(),
		dial:        dial,
		dialTimeout: 30 * time.Second,
		ctx:         ctx,
		cancel:      cancel,
		reconnectCh: make(chan struct{}, 1),
	}
	m.wg.Add(1)
	go m.reconnectLoop()
	return m
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnStateChange sets a callback invoked on every transition. The callback
// runs outside the manager lock.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// Connect performs the initial connection attempt.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	case StateConnected:
		m.mu.Unlock()
		return nil
	}
	old := m.state
	m.state = StateConnecting
	m.mu.Unlock()
	m.notify(old, StateConnecting)

	if err := m.dial(ctx); err != nil {
		m.transition(StateDisconnected)
		return err
	}

	m.mu.Lock()
	m.backoff.Reset()
	m.mu.Unlock()
	m.transition(StateConnected)
	return nil
}

// ConnectionLost reports that the link dropped. Reconnection starts in the
// background; live state is restored by the dial function on success.
func (m *Manager) ConnectionLost() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateReconnecting
	m.mu.Unlock()
	m.notify(old, StateReconnecting)

	select {
	case m.reconnectCh <- struct{}{}:
	default:
		// Attempt already pending.
	}
}

// Close shuts the manager down and stops any reconnection attempt.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateClosed
	m.mu.Unlock()
	m.notify(old, StateClosed)

	m.cancel()
	m.wg.Wait()
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

func (m *Manager) attemptReconnect() {
	for {
		m.mu.RLock()
		state := m.state
		m.mu.RUnlock()
		if state != StateReconnecting {
			return
		}

		delay := m.backoff.Next()
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.dialTimeout)
		err := m.dial(ctx)
		cancel()

		if err == nil {
			m.mu.Lock()
			if m.state != StateReconnecting {
				m.mu.Unlock()
				return
			}
			m.backoff.Reset()
			old := m.state
			m.state = StateConnected
			m.mu.Unlock()
			m.notify(old, StateConnected)
			return
		}
		// Failed; loop with the next backoff delay.
	}
}

// transition moves to a new state and fires the callback.
func (m *Manager) transition(to State) {
	m.mu.Lock()
	old := m.state
	if old == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = to
	m.mu.Unlock()
	m.notify(old, to)
}

func (m *Manager) notify(old, new State) {
	if old == new {
		return
	}
	m.mu.RLock()
	fn := m.onStateChange
	m.mu.RUnlock()
	if fn != nil {
		fn(old, new)
	}
}
