// Package client is the host surface of the Flux Go client runtime: typed
// one-shot calls, live query subscriptions, and (for auth-capable clients)
// the login lifecycle, all layered over the transport boundary.
package client

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fluxbase/flux-go/pkg/subscription"
	"github.com/fluxbase/flux-go/pkg/transport"
	"github.com/fluxbase/flux-go/pkg/wirelog"
)

// Client talks to one Flux deployment through a transport.Core.
// All methods are safe for concurrent use.
type Client struct {
	core    transport.Core
	subs    *subscription.Manager
	logger  *slog.Logger
	journal wirelog.Logger

	// ownedJournal is closed with the client when Open created it.
	ownedJournal *wirelog.FileLogger

	mu     sync.Mutex
	closed bool
}

// New creates a client over an existing transport. Embedders with their own
// protocol engine use this constructor; Open builds the default WebSocket
// transport from a Config.
func New(core transport.Core, cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	journal := cfg.Journal
	if journal == nil {
		journal = wirelog.NoopLogger{}
	}
	return &Client{
		core:    core,
		subs:    subscription.NewManager(core, logger),
		logger:  logger,
		journal: journal,
	}
}

// Open creates a client connected to cfg.DeploymentURL over the default
// WebSocket transport. The connection itself is established lazily on the
// first call that needs it.
func Open(cfg Config) (*Client, error) {
	if cfg.DeploymentURL == "" {
		return nil, fmt.Errorf("deployment URL is required")
	}

	var owned *wirelog.FileLogger
	if cfg.Journal == nil && cfg.JournalPath != "" {
		journal, err := wirelog.NewFileLogger(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("opening wire journal: %w", err)
		}
		owned = journal
		cfg.Journal = journal
	}

	core, err := newCore(cfg)
	if err != nil {
		if owned != nil {
			owned.Close()
		}
		return nil, err
	}
	c := New(core, cfg)
	c.ownedJournal = owned
	return c, nil
}

func newCore(cfg Config) (transport.Core, error) {
	return transport.NewWebSocketCore(transport.WSConfig{
		URL:            cfg.DeploymentURL,
		RequestTimeout: time.Duration(cfg.RequestTimeout),
		PingInterval:   time.Duration(cfg.PingInterval),
		Logger:         cfg.Logger,
	})
}

// Close cancels all live subscriptions and shuts the transport down.
// Safe to call multiple times; calls after Close fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.subs.Close()
	err := c.core.Close()
	if c.ownedJournal != nil {
		c.ownedJournal.Close()
	}
	return err
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// log emits a journal event, filling in the timestamp.
func (c *Client) log(event wirelog.Event) {
	event.Timestamp = time.Now()
	c.journal.Log(event)
}
