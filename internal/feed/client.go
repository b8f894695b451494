// Package feed consumes the live swap notification stream over WebSocket.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"solana-swap-feed/internal/domain"
)

// Config configures the feed client.
type Config struct {
	ReconnectDelay    time.Duration // first delay after a dropped connection
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration // extended by every message and pong
	WriteTimeout      time.Duration
	HandshakeTimeout  time.Duration
	Buffer            int // capacity of Events
	Header            http.Header
	Logger            *log.Logger
}

// DefaultConfig returns the default feed client configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		Buffer:            1024,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = c.ReconnectDelay
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.Buffer <= 0 {
		c.Buffer = d.Buffer
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Client is a reconnecting subscriber of the /ws notification stream.
// A single goroutine owns the connection; each connection lives for one session.
type Client struct {
	endpoint string
	config   Config
	logger   *log.Logger
	dialer   websocket.Dialer

	events chan domain.Notification

	cancel    context.CancelFunc
	stopped   chan struct{}
	closeOnce sync.Once

	reconnects atomic.Int64
}

// Dial connects to endpoint and starts streaming notifications.
// The first connection attempt must succeed; later drops are retried until Close.
func Dial(ctx context.Context, endpoint string, config *Config) (*Client, error) {
	var cfg Config
	if config != nil {
		cfg = *config
	}
	cfg = cfg.withDefaults()

	c := &Client{
		endpoint: endpoint,
		config:   cfg,
		logger:   cfg.Logger,
		dialer:   websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		events:   make(chan domain.Notification, cfg.Buffer),
		stopped:  make(chan struct{}),
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(runCtx, conn)

	return c, nil
}

// Events returns the notification stream. It is closed by Close.
func (c *Client) Events() <-chan domain.Notification {
	return c.events
}

// Reconnects returns how many times the connection has been re-established.
func (c *Client) Reconnects() int64 {
	return c.reconnects.Load()
}

// Close stops the client and waits for the connection to be released.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.stopped
	})
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, c.config.Header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", c.endpoint, err)
	}
	return conn, nil
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn) {
	defer close(c.stopped)
	defer close(c.events)

	for {
		c.session(ctx, conn)

		conn = c.redial(ctx)
		if conn == nil {
			return
		}
		c.reconnects.Add(1)
		c.logger.Printf("feed reconnected to %s", c.endpoint)
	}
}

// redial retries with exponential backoff. Returns nil once ctx is done.
func (c *Client) redial(ctx context.Context) *websocket.Conn {
	delay := c.config.ReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		conn, err := c.dial(ctx)
		if err == nil {
			return conn
		}
		if ctx.Err() != nil {
			return nil
		}

		delay = backoff(delay, c.config.MaxReconnectDelay)
		c.logger.Printf("feed reconnect failed (next in %s): %v", delay, err)
	}
}

func backoff(d, limit time.Duration) time.Duration {
	d *= 2
	if d > limit {
		return limit
	}
	return d
}

// session reads notifications from conn until it fails or ctx is done.
func (c *Client) session(ctx context.Context, conn *websocket.Conn) {
	sessCtx, stop := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.keepalive(sessCtx, conn)
	}()

	// Unblocks ReadMessage on shutdown.
	release := context.AfterFunc(ctx, func() {
		deadline := time.Now().Add(c.config.WriteTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	})

	defer func() {
		release()
		stop()
		wg.Wait()
		conn.Close()
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Printf("feed read error: %v", err)
			}
			return
		}

		var n domain.Notification
		if err := json.Unmarshal(message, &n); err != nil {
			c.logger.Printf("feed: skip undecodable message: %v", err)
			continue
		}

		select {
		case c.events <- n:
		case <-ctx.Done():
			return
		}
	}
}

// keepalive pings the server until ctx is done. A failed ping surfaces as a read error.
func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
		}
	}
}
