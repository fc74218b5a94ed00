package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a dialed connection to the relay under one role. Frames are read
// by Run on the caller's goroutine; Send may be called from any goroutine.
type Client struct {
	cfg    ClientConfig
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu   sync.Mutex
	lastPong  atomic.Int64 // unix nanos
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to cfg.URL, adding ?from=<role> when cfg.Role is set.
func Dial(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	target := cfg.URL
	if cfg.Role != "" {
		u, err := DialURL(cfg.URL, cfg.Role)
		if err != nil {
			return nil, err
		}
		target = u
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	c := &Client{cfg: cfg, ws: ws, logger: logger}
	c.touch()
	ws.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	logger.Debug("relay connected", "url", target, "role", string(cfg.Role))
	return c, nil
}

// Run reads frames until the connection ends, calling onFrame for each.
// It returns ErrStaleConnection when pongs stop arriving, ctx.Err() once
// ctx is done, and the read error otherwise.
func (c *Client) Run(ctx context.Context, onFrame func(Frame)) error {
	stop := make(chan struct{})
	defer close(stop)

	var stale atomic.Bool
	go c.watch(ctx, stop, &stale)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if stale.Load() {
				return ErrStaleConnection
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		onFrame(Frame{Data: data, ReceivedAt: time.Now()})
	}
}

// watch pings the relay while Run is reading and closes the connection when
// ctx ends or the relay stops answering.
func (c *Client) watch(ctx context.Context, stop <-chan struct{}, stale *atomic.Bool) {
	var tick <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			_ = c.Close()
			return
		case <-tick:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("ping failed", "error", err)
			}

			since := time.Since(time.Unix(0, c.lastPong.Load()))
			if c.cfg.PingTimeout > 0 && since > c.cfg.PingTimeout {
				c.logger.Warn("relay stopped answering pings", "silent_for", since)
				stale.Store(true)
				_ = c.Close()
				return
			}
		}
	}
}

// Send writes one text frame.
func (c *Client) Send(data []byte) error {
	if c.closed.Load() {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// SendJSON marshals v and writes it as one text frame.
func (c *Client) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return c.Send(data)
}

// Close sends a close frame and shuts the transport. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Client) touch() {
	c.lastPong.Store(time.Now().UnixNano())
}
