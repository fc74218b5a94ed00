package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
)

// Role identifies which side of the relay a peer is on.
type Role string

const (
	RoleESP     Role = "esp"     // tracking device
	RoleSite    Role = "site"    // dashboard
	RoleUnknown Role = "unknown" // anything that did not identify itself
)

// Opposite returns the role that receives pass-through traffic from r.
// Unknown has no opposite and returns RoleUnknown.
func (r Role) Opposite() Role {
	switch r {
	case RoleESP:
		return RoleSite
	case RoleSite:
		return RoleESP
	default:
		return RoleUnknown
	}
}

// Peer is the view of a connection used by the registry, router, relay and
// broadcast engine.
type Peer interface {
	// ID returns the unique connection ID.
	ID() string

	// Role returns the role resolved at connect time.
	Role() Role

	// IsOpen reports whether the peer can still receive frames.
	IsOpen() bool

	// Send queues one text frame. Returns ErrNotConnected once closed.
	Send(data []byte) error
}

// ConnConfig configures server-side connections.
type ConnConfig struct {
	WriteTimeout time.Duration // Write deadline per frame
	OutboxSize   int           // Initial outbox capacity (grows on demand)
	MaxBatch     int           // Frames written per outbox drain
}

// DefaultConnConfig returns sensible defaults.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		WriteTimeout: 10 * time.Second,
		OutboxSize:   16,
		MaxBatch:     64,
	}
}

// ClientConfig configures a dialing client.
type ClientConfig struct {
	URL              string        // Relay URL (e.g., ws://localhost:8080/)
	Role             Role          // Added as ?from=<role> when set
	HandshakeTimeout time.Duration // 0 = no limit beyond ctx
	PingInterval     time.Duration // 0 disables pings
	PingTimeout      time.Duration // Silence after which the connection is stale
	WriteTimeout     time.Duration // Deadline for sends and pings
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// Frame is one message received by a Client.
type Frame struct {
	Data       []byte    // Raw payload
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// RegistryStats counts live peers per role.
type RegistryStats struct {
	ESP     int `json:"esp"`
	Site    int `json:"site"`
	Unknown int `json:"unknown"`
	Total   int `json:"total"`
}
