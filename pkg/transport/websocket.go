package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fluxbase/flux-go/pkg/connection"
)

const (
	defaultRequestTimeout   = 30 * time.Second
	defaultPingInterval     = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second

	syncPath = "/api/sync"
)

// WSConfig configures the default WebSocket transport.
type WSConfig struct {
	// URL is the deployment URL, e.g. "https://quiet-lemur-123.flux.site".
	// http(s) schemes are rewritten to ws(s).
	URL string

	// RequestTimeout bounds each request/response exchange (default: 30s).
	RequestTimeout time.Duration

	// PingInterval is the keepalive interval (default: 30s).
	PingInterval time.Duration

	// HandshakeTimeout bounds the WebSocket dial (default: 10s).
	HandshakeTimeout time.Duration

	// Logger receives transport diagnostics. Nil means slog.Default.
	Logger *slog.Logger
}

// WebSocketCore is the default Core implementation: a single WebSocket to
// the deployment's sync endpoint carrying JSON frames. The connection is
// established lazily on the first operation and re-established with
// exponential backoff when it drops; on reconnect the active token and all
// live queries are replayed so the session resumes where it left off.
type WebSocketCore struct {
	cfg    WSConfig
	logger *slog.Logger

	wsURL   string
	session string

	mgr *connection.Manager

	// connectMu single-flights the lazy initial dial.
	connectMu sync.Mutex

	// writeMu serializes writes; gorilla/websocket allows one writer.
	writeMu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	pending  map[string]chan callOutcome
	subs     map[string]*wsSubscription
	token    *string
	tokenSet bool
	closed   bool
}

var _ Core = (*WebSocketCore)(nil)

type callOutcome struct {
	value string
	err   error
}

type wsSubscription struct {
	id   string
	name string
	args map[string]string
	sink UpdateSink

	// mu serializes sink delivery against Cancel so no callback is
	// observed after Cancel returns.
	mu        sync.Mutex
	cancelled bool
}

// NewWebSocketCore creates a transport for the given deployment. No network
// traffic happens until the first operation.
func NewWebSocketCore(cfg WSConfig) (*WebSocketCore, error) {
	wsURL, err := syncURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &WebSocketCore{
		cfg:     cfg,
		logger:  logger,
		wsURL:   wsURL,
		session: uuid.NewString(),
		pending: make(map[string]chan callOutcome),
		subs:    make(map[string]*wsSubscription),
	}
	c.mgr = connection.NewManager(c.dial)
	c.mgr.OnStateChange(func(old, new connection.State) {
		logger.Debug("connection state changed",
			"from", old.String(),
			"to", new.String(),
		)
	})
	return c, nil
}

// syncURL rewrites a deployment URL to the WebSocket sync endpoint.
func syncURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("deployment URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid deployment URL %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q in deployment URL", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + syncPath
	return u.String(), nil
}

// Query implements Core.
func (c *WebSocketCore) Query(ctx context.Context, name string, args map[string]string) (string, error) {
	return c.roundTrip(ctx, frame{Type: frameQuery, Name: name, Args: args})
}

// Mutation implements Core.
func (c *WebSocketCore) Mutation(ctx context.Context, name string, args map[string]string) (string, error) {
	return c.roundTrip(ctx, frame{Type: frameMutation, Name: name, Args: args})
}

// Action implements Core.
func (c *WebSocketCore) Action(ctx context.Context, name string, args map[string]string) (string, error) {
	return c.roundTrip(ctx, frame{Type: frameAction, Name: name, Args: args})
}

// Subscribe implements Core. It registers the query with the server and
// waits for the acknowledgement; updates then flow to the sink from the
// read loop until the handle is cancelled.
func (c *WebSocketCore) Subscribe(ctx context.Context, name string, args map[string]string, sink UpdateSink) (Handle, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	sub := &wsSubscription{
		id:   uuid.NewString(),
		name: name,
		args: args,
		sink: sink,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.subs[sub.id] = sub
	c.mu.Unlock()

	_, err := c.roundTrip(ctx, frame{
		Type:           frameSubscribe,
		SubscriptionID: sub.id,
		Name:           name,
		Args:           args,
	})
	if err != nil {
		c.mu.Lock()
		delete(c.subs, sub.id)
		c.mu.Unlock()
		return nil, err
	}
	return &wsHandle{core: c, sub: sub}, nil
}

// SetAuth implements Core. The token is remembered for replay on reconnect
// and pushed to the server before SetAuth returns.
func (c *WebSocketCore) SetAuth(ctx context.Context, token *string) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if token != nil {
		t := *token
		c.token = &t
	} else {
		c.token = nil
	}
	c.tokenSet = true
	c.mu.Unlock()

	_, err := c.roundTrip(ctx, frame{Type: frameAuth, Token: token})
	return err
}

// Close implements Core.
func (c *WebSocketCore) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	pending := c.pending
	c.pending = make(map[string]chan callOutcome)
	c.subs = make(map[string]*wsSubscription)
	c.mu.Unlock()

	c.mgr.Close()

	for _, ch := range pending {
		ch <- callOutcome{err: ErrClosed}
	}

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}

// ensureConnected lazily establishes the connection on first use.
func (c *WebSocketCore) ensureConnected(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	switch c.mgr.State() {
	case connection.StateConnected:
		return nil
	case connection.StateClosed:
		return ErrClosed
	case connection.StateReconnecting:
		// The background loop owns the attempt; fail fast.
		return connection.ErrNotConnected
	default:
		return c.mgr.Connect(ctx)
	}
}

// dial establishes the WebSocket and replays session state. It serves both
// the initial connect and every reconnection attempt.
func (c *WebSocketCore) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.wsURL, err)
	}

	if err := writeFrame(conn, frame{Type: frameConnect, Session: c.session}); err != nil {
		conn.Close()
		return fmt.Errorf("sending connect frame: %w", err)
	}
	conn.SetPongHandler(func(string) error { return nil })

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	old := c.conn
	c.conn = conn
	token, tokenSet := c.token, c.tokenSet
	subs := make([]*wsSubscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	go c.readLoop(conn)
	go c.pingLoop(conn)

	// Restore per-connection state. These are fire and forget: a failure
	// here drops the fresh connection and the read loop triggers the next
	// reconnection attempt.
	if tokenSet {
		c.write(conn, frame{Type: frameAuth, Token: token})
	}
	for _, sub := range subs {
		c.write(conn, frame{
			Type:           frameSubscribe,
			SubscriptionID: sub.id,
			Name:           sub.name,
			Args:           sub.args,
		})
	}
	return nil
}

// roundTrip sends a request frame and waits for its result.
func (c *WebSocketCore) roundTrip(ctx context.Context, f frame) (string, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return "", err
	}

	f.ID = uuid.NewString()
	ch := make(chan callOutcome, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	conn := c.conn
	c.pending[f.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, f.ID)
		c.mu.Unlock()
	}()

	if conn == nil {
		return "", connection.ErrNotConnected
	}
	if err := c.write(conn, f); err != nil {
		return "", fmt.Errorf("writing %s frame: %w", f.Type, err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", fmt.Errorf("%s %q: request timed out after %s", f.Type, f.Name, c.cfg.RequestTimeout)
	case out := <-ch:
		return out.value, out.err
	}
}

func (c *WebSocketCore) write(conn *websocket.Conn, f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(conn, f)
}

func writeFrame(conn *websocket.Conn, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop dispatches incoming frames until the connection drops. Exactly
// one read loop runs per connection; a superseded loop exits without
// touching shared state.
func (c *WebSocketCore) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := c.conn == conn
			closed := c.closed
			c.mu.Unlock()
			if current && !closed {
				c.logger.Warn("connection lost", "error", err)
				c.mgr.ConnectionLost()
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		switch f.Type {
		case frameResult:
			c.dispatchResult(f)
		case frameUpdate:
			c.dispatchUpdate(f)
		default:
			c.logger.Warn("dropping frame of unknown type", "type", string(f.Type))
		}
	}
}

func (c *WebSocketCore) dispatchResult(f frame) {
	c.mu.Lock()
	ch := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.mu.Unlock()
	if ch == nil {
		return
	}

	if f.ErrorMessage != "" || f.ErrorKind != "" {
		ch <- callOutcome{err: resultError(f)}
		return
	}
	ch <- callOutcome{value: f.Value}
}

func (c *WebSocketCore) dispatchUpdate(f frame) {
	c.mu.Lock()
	sub := c.subs[f.SubscriptionID]
	c.mu.Unlock()
	if sub == nil {
		return
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.cancelled {
		return
	}
	if f.ErrorMessage != "" {
		sub.sink.OnError(f.ErrorMessage, f.ErrorData)
		return
	}
	sub.sink.OnUpdate(f.Value)
}

// pingLoop keeps the connection alive. It exits when the connection is
// replaced or the write fails.
func (c *WebSocketCore) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		current := c.conn == conn && !c.closed
		c.mu.Unlock()
		if !current {
			return
		}

		c.writeMu.Lock()
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// wsHandle cancels one live query.
type wsHandle struct {
	core *WebSocketCore
	sub  *wsSubscription
}

// Cancel implements Handle. After it returns the sink sees no further
// delivery; the server-side unregistration is sent before returning.
func (h *wsHandle) Cancel() {
	h.sub.mu.Lock()
	if h.sub.cancelled {
		h.sub.mu.Unlock()
		return
	}
	h.sub.cancelled = true
	h.sub.mu.Unlock()

	c := h.core
	c.mu.Lock()
	delete(c.subs, h.sub.id)
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed || conn == nil {
		return
	}
	if err := c.write(conn, frame{Type: frameUnsubscribe, SubscriptionID: h.sub.id}); err != nil {
		c.logger.Warn("failed to send unsubscribe", "error", err, "function", h.sub.name)
	}
}
