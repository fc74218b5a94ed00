// Package broadcast fans the shared state out to dashboards and forwards
// dashboard commands to the device.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/rickgao/rota-relay/internal/connection"
	"github.com/rickgao/rota-relay/internal/model"
)

// PeerSource visits registered peers by role.
type PeerSource interface {
	ForRole(role connection.Role, fn func(connection.Peer))
}

// StateSource produces point-in-time copies of the shared state.
type StateSource interface {
	Snapshot() model.Snapshot
}

// Mirror receives a copy of every payload sent to peers.
type Mirror interface {
	PublishState(payload []byte)
	PublishCommand(payload []byte)
}

// Stats contains engine counters.
type Stats struct {
	Broadcasts int64 `json:"broadcasts"`
	Commands   int64 `json:"commands"`
	Deliveries int64 `json:"deliveries"`
	Skipped    int64 `json:"skipped"`
}

// Engine serializes the state once per broadcast and sends the same bytes
// to every open dashboard.
type Engine struct {
	peers  PeerSource
	state  StateSource
	mirror Mirror
	logger *slog.Logger

	// sendMu keeps two fan-outs from interleaving on any peer.
	sendMu sync.Mutex

	statsMu sync.Mutex
	stats   Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithMirror publishes every payload to m as well.
func WithMirror(m Mirror) Option {
	return func(e *Engine) {
		e.mirror = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates a broadcast engine.
func New(peers PeerSource, state StateSource, opts ...Option) *Engine {
	e := &Engine{
		peers:  peers,
		state:  state,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BroadcastState sends the current snapshot to every open site peer and
// returns how many accepted it.
func (e *Engine) BroadcastState() int {
	payload, err := json.Marshal(e.state.Snapshot())
	if err != nil {
		e.logger.Error("failed to encode state snapshot", "error", err)
		return 0
	}

	delivered, skipped := e.fanOut(connection.RoleSite, payload)

	e.statsMu.Lock()
	e.stats.Broadcasts++
	e.stats.Deliveries += int64(delivered)
	e.stats.Skipped += int64(skipped)
	e.statsMu.Unlock()

	if e.mirror != nil {
		e.mirror.PublishState(payload)
	}

	e.logger.Debug("state broadcast", "recipients", delivered, "bytes", len(payload))
	return delivered
}

// SendCommand forwards a route command to every open esp peer and returns
// how many accepted it.
func (e *Engine) SendCommand(action model.Action) int {
	payload, err := json.Marshal(model.Command{Action: action})
	if err != nil {
		e.logger.Error("failed to encode command", "action", string(action), "error", err)
		return 0
	}

	delivered, skipped := e.fanOut(connection.RoleESP, payload)

	e.statsMu.Lock()
	e.stats.Commands++
	e.stats.Deliveries += int64(delivered)
	e.stats.Skipped += int64(skipped)
	e.statsMu.Unlock()

	if e.mirror != nil {
		e.mirror.PublishCommand(payload)
	}

	e.logger.Debug("command forwarded to device", "action", string(action), "recipients", delivered)
	return delivered
}

// Stats returns a copy of the engine counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// fanOut sends payload to every open peer of role. Closed peers and failed
// sends are skipped without retry.
func (e *Engine) fanOut(role connection.Role, payload []byte) (delivered, skipped int) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	e.peers.ForRole(role, func(p connection.Peer) {
		if !p.IsOpen() {
			skipped++
			return
		}
		if err := p.Send(payload); err != nil {
			skipped++
			return
		}
		delivered++
	})
	return delivered, skipped
}
