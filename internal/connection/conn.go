package connection

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/rota-relay/internal/buffer"
)

// Conn is the server side of one WebSocket peer.
//
// Frames passed to Send are queued in an unbounded outbox and written in
// order by a single writer goroutine, so callers never block on the network.
type Conn struct {
	id          string
	role        Role
	remoteAddr  string
	connectedAt time.Time

	cfg    ConnConfig
	logger *slog.Logger

	ws     *websocket.Conn
	outbox *buffer.Queue[[]byte]

	mu     sync.RWMutex
	open   bool
	closed bool

	writerDone chan struct{}
}

// NewConn wraps an upgraded WebSocket. The role is fixed for the lifetime
// of the connection.
func NewConn(ws *websocket.Conn, role Role, remoteAddr string, cfg ConnConfig, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()

	return &Conn{
		id:          id,
		role:        role,
		remoteAddr:  remoteAddr,
		connectedAt: time.Now(),
		cfg:         cfg,
		logger:      logger.With("conn_id", id, "role", string(role)),
		ws:          ws,
		outbox:      buffer.New[[]byte](cfg.OutboxSize),
		open:        true,
		writerDone:  make(chan struct{}),
	}
}

// ID returns the connection UUID.
func (c *Conn) ID() string { return c.id }

// Role returns the role resolved at handshake.
func (c *Conn) Role() Role { return c.role }

// RemoteAddr returns the peer address reported by the HTTP server.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// ConnectedAt returns when the connection was accepted.
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

// IsOpen reports whether frames can still be queued.
func (c *Conn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// Pending returns the number of frames waiting in the outbox.
func (c *Conn) Pending() int {
	return c.outbox.Len()
}

// Start launches the writer goroutine.
func (c *Conn) Start() {
	go c.writeLoop()
}

// Send queues one text frame.
func (c *Conn) Send(data []byte) error {
	if !c.IsOpen() {
		return ErrNotConnected
	}
	if !c.outbox.Push(data) {
		return ErrNotConnected
	}
	return nil
}

// ReadLoop blocks reading frames and hands each payload to onMessage until
// the peer disconnects. Text and binary frames are treated alike.
// It returns the error that ended the loop.
func (c *Conn) ReadLoop(onMessage func(data []byte)) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.markClosed()
			return err
		}
		onMessage(data)
	}
}

// Close stops the connection. Frames still queued are dropped.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.open = false
	c.mu.Unlock()

	c.outbox.Close()

	// WriteControl may run concurrently with the writer goroutine. The close
	// frame is best effort; the peer may already be gone.
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.ws.Close()
}

// Done is closed when the writer goroutine exits.
func (c *Conn) Done() <-chan struct{} {
	return c.writerDone
}

// markClosed stops accepting frames once the transport is gone.
func (c *Conn) markClosed() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	c.outbox.Close()
}

// writeLoop drains the outbox in order until it is closed.
func (c *Conn) writeLoop() {
	defer close(c.writerDone)

	for {
		batch := c.outbox.PopBatch(c.cfg.MaxBatch)
		if batch == nil {
			return
		}
		if !c.IsOpen() {
			return
		}

		for _, data := range batch {
			if c.cfg.WriteTimeout > 0 {
				_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed, closing connection", "error", err)
				c.markClosed()
				_ = c.ws.Close()
				return
			}
		}
	}
}
