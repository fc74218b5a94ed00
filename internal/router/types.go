package router

import (
	"github.com/rickgao/rota-relay/internal/connection"
	"github.com/rickgao/rota-relay/internal/model"
)

// Config holds configuration for the Message Router.
type Config struct {
	QueueSize int // Initial event queue capacity (grows on demand)
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize: 1024,
	}
}

// PeerRegistry registers and removes peers.
type PeerRegistry interface {
	Register(p connection.Peer) connection.Role
	Unregister(p connection.Peer) bool
}

// StateStore is the mutable side of the shared telemetry state.
type StateStore interface {
	ApplyDeviceUpdate(u model.DeviceUpdate)
	ApplyTelemetryUpdate(u model.TelemetryUpdate)
	SetRouteInProgress(inProgress bool)
}

// Broadcaster sends state to dashboards and commands to the device.
type Broadcaster interface {
	BroadcastState() int
	SendCommand(action model.Action) int
}

// Relayer forwards unprocessed frames to the opposite role.
type Relayer interface {
	Relay(sender connection.Peer, raw []byte) int
}

// EventKind identifies a queued event.
type EventKind int

const (
	EventConnect EventKind = iota
	EventMessage
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventMessage:
		return "message"
	case EventDisconnect:
		return "disconnect"
	default:
		return "invalid"
	}
}

// Event is one unit of work for the router goroutine.
type Event struct {
	Kind EventKind
	Peer connection.Peer
	Data []byte // EventMessage only
}

// Outcome reports how Route handled a frame.
type Outcome int

const (
	OutcomeRelayed   Outcome = iota // invalid JSON or null, passed through
	OutcomeCommand                  // dashboard route command applied
	OutcomeTelemetry                // device telemetry applied
	OutcomeDropped                  // JSON from a dashboard with no known acao
	OutcomeIgnored                  // JSON from an unknown peer
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRelayed:
		return "relayed"
	case OutcomeCommand:
		return "command"
	case OutcomeTelemetry:
		return "telemetry"
	case OutcomeDropped:
		return "dropped"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "invalid"
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Connects         int64 `json:"connects"`
	Disconnects      int64 `json:"disconnects"`
	MessagesReceived int64 `json:"messages_received"`
	Commands         int64 `json:"commands"`
	Telemetry        int64 `json:"telemetry"`
	Relayed          int64 `json:"relayed"`
	Dropped          int64 `json:"dropped"`
	Ignored          int64 `json:"ignored"`
	QueueLength      int   `json:"queue_length"`
}
