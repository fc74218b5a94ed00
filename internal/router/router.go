package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/rickgao/rota-relay/internal/buffer"
	"github.com/rickgao/rota-relay/internal/connection"
	"github.com/rickgao/rota-relay/internal/model"
)

// Router serializes connection events and applies the routing rules.
type Router interface {
	// Start begins processing queued events.
	Start(ctx context.Context) error

	// Stop drains queued events and shuts down the router.
	Stop(ctx context.Context) error

	// Connect queues registration of a new peer.
	Connect(p connection.Peer) bool

	// Submit queues one inbound frame from p.
	Submit(p connection.Peer, data []byte) bool

	// Disconnect queues removal of p.
	Disconnect(p connection.Peer) bool

	// Route classifies and dispatches one frame synchronously. It must only
	// be called from the goroutine that owns the state.
	Route(p connection.Peer, raw []byte) Outcome

	// Stats returns current router statistics.
	Stats() Stats
}

// router is the internal implementation.
type router struct {
	cfg    Config
	logger *slog.Logger

	registry    PeerRegistry
	state       StateStore
	broadcaster Broadcaster
	relay       Relayer

	events *buffer.Queue[Event]

	// Lifecycle
	wg   sync.WaitGroup
	done chan struct{}

	// Stats
	mu          sync.RWMutex
	connects    int64
	disconnects int64
	received    int64
	commands    int64
	telemetry   int64
	relayed     int64
	dropped     int64
	ignored     int64
}

// NewRouter creates a new Message Router.
func NewRouter(cfg Config, registry PeerRegistry, state StateStore, broadcaster Broadcaster, relay Relayer, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	return &router{
		cfg:         cfg,
		logger:      logger,
		registry:    registry,
		state:       state,
		broadcaster: broadcaster,
		relay:       relay,
		events:      buffer.New[Event](cfg.QueueSize),
		done:        make(chan struct{}),
	}
}

// Start begins routing events. Cancelling ctx has the same effect as Stop
// without waiting.
func (r *router) Start(ctx context.Context) error {
	r.wg.Add(1)
	go r.eventLoop()

	go func() {
		select {
		case <-ctx.Done():
			r.events.Close()
		case <-r.done:
		}
	}()

	r.logger.Info("message router started", "queue_size", r.cfg.QueueSize)
	return nil
}

// Stop closes the event queue and waits for queued events to be handled.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping message router")
	r.events.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("message router stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("message router stop timed out", "pending", r.events.Len())
		return ctx.Err()
	}
}

func (r *router) Connect(p connection.Peer) bool {
	return r.events.Push(Event{Kind: EventConnect, Peer: p})
}

func (r *router) Submit(p connection.Peer, data []byte) bool {
	return r.events.Push(Event{Kind: EventMessage, Peer: p, Data: data})
}

func (r *router) Disconnect(p connection.Peer) bool {
	return r.events.Push(Event{Kind: EventDisconnect, Peer: p})
}

// eventLoop is the only goroutine that mutates state or the registry.
func (r *router) eventLoop() {
	defer r.wg.Done()
	defer close(r.done)

	for {
		ev, ok := r.events.Pop()
		if !ok {
			return
		}
		r.handle(ev)
	}
}

func (r *router) handle(ev Event) {
	switch ev.Kind {
	case EventConnect:
		r.handleConnect(ev.Peer)
	case EventMessage:
		r.Route(ev.Peer, ev.Data)
	case EventDisconnect:
		r.handleDisconnect(ev.Peer)
	default:
		r.logger.Warn("unknown event kind", "kind", ev.Kind)
	}
}

func (r *router) handleConnect(p connection.Peer) {
	role := r.registry.Register(p)

	r.mu.Lock()
	r.connects++
	r.mu.Unlock()

	r.logger.Debug("peer registered", "conn_id", p.ID(), "role", string(role))

	// New dashboards get the current state right away.
	if role == connection.RoleSite {
		r.broadcaster.BroadcastState()
	}
}

func (r *router) handleDisconnect(p connection.Peer) {
	if !r.registry.Unregister(p) {
		return
	}

	r.mu.Lock()
	r.disconnects++
	r.mu.Unlock()

	r.logger.Debug("peer unregistered", "conn_id", p.ID(), "role", string(p.Role()))
}

// Route handles one inbound frame:
//
//	invalid JSON or null   -> relayed verbatim to the opposite role
//	site + acao start/end  -> flag set, command to esp, state broadcast
//	site + anything else   -> dropped, including non-object JSON
//	esp                    -> telemetry merged, state broadcast
//	unknown                -> ignored
func (r *router) Route(p connection.Peer, raw []byte) Outcome {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	doc, ok := parseFrame(raw)
	if !ok {
		r.relay.Relay(p, raw)
		r.count(OutcomeRelayed)
		return OutcomeRelayed
	}

	var outcome Outcome
	switch p.Role() {
	case connection.RoleSite:
		outcome = r.routeCommand(p, doc)
	case connection.RoleESP:
		outcome = r.routeTelemetry(doc)
	default:
		outcome = OutcomeIgnored
		r.logger.Debug("ignoring message from unidentified peer", "conn_id", p.ID())
	}

	r.count(outcome)
	return outcome
}

func (r *router) routeCommand(p connection.Peer, doc map[string]any) Outcome {
	action, _ := model.ParseAction(doc)

	var inProgress bool
	switch action {
	case model.ActionStartRoute:
		inProgress = true
	case model.ActionFinishRoute:
		inProgress = false
	default:
		r.logger.Debug("dropping dashboard message", "conn_id", p.ID(), "acao", string(action))
		return OutcomeDropped
	}

	r.state.SetRouteInProgress(inProgress)
	devices := r.broadcaster.SendCommand(action)
	sites := r.broadcaster.BroadcastState()

	r.logger.Info("route command applied",
		"acao", string(action),
		"conn_id", p.ID(),
		"devices", devices,
		"dashboards", sites,
	)
	return OutcomeCommand
}

func (r *router) routeTelemetry(doc map[string]any) Outcome {
	dev, tel := model.ParseTelemetry(doc)
	if !dev.Empty() {
		r.state.ApplyDeviceUpdate(dev)
	}
	if !tel.Empty() {
		r.state.ApplyTelemetryUpdate(tel)
	}

	// Always broadcast, even when nothing was recognized.
	r.broadcaster.BroadcastState()
	return OutcomeTelemetry
}

func (r *router) count(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch o {
	case OutcomeRelayed:
		r.relayed++
	case OutcomeCommand:
		r.commands++
	case OutcomeTelemetry:
		r.telemetry++
	case OutcomeDropped:
		r.dropped++
	case OutcomeIgnored:
		r.ignored++
	}
}

// Stats returns current statistics.
func (r *router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		Connects:         r.connects,
		Disconnects:      r.disconnects,
		MessagesReceived: r.received,
		Commands:         r.commands,
		Telemetry:        r.telemetry,
		Relayed:          r.relayed,
		Dropped:          r.dropped,
		Ignored:          r.ignored,
		QueueLength:      r.events.Len(),
	}
}

// parseFrame decodes raw as a single JSON value. Numbers stay json.Number so
// one oversized value cannot reject the whole frame. Invalid JSON and a bare
// null report false. Values that are not objects decode to a nil map and
// carry no recognized keys.
func parseFrame(raw []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}
	if v == nil {
		return nil, false
	}

	doc, _ := v.(map[string]any)
	return doc, true
}
