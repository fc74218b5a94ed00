// Package relay forwards frames the router could not interpret to the
// opposite side of the relay.
package relay

import (
	"log/slog"

	"github.com/rickgao/rota-relay/internal/connection"
)

// PeerSource visits registered peers by role.
type PeerSource interface {
	ForRole(role connection.Role, fn func(connection.Peer))
}

// Relay is the pass-through channel between esp and site peers.
type Relay struct {
	peers  PeerSource
	logger *slog.Logger
}

// New creates a Relay over the given peer source.
func New(peers PeerSource, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{peers: peers, logger: logger}
}

// Relay forwards raw verbatim to every open peer of the sender's opposite
// role and returns how many peers accepted it. The sender, same-role peers
// and unknown peers never receive it.
func (r *Relay) Relay(sender connection.Peer, raw []byte) int {
	target := sender.Role().Opposite()
	if target == connection.RoleUnknown {
		return 0
	}

	delivered := 0
	r.peers.ForRole(target, func(p connection.Peer) {
		if p.ID() == sender.ID() || !p.IsOpen() {
			return
		}
		if err := p.Send(raw); err != nil {
			return
		}
		delivered++
	})

	r.logger.Debug("relayed unprocessed frame",
		"conn_id", sender.ID(),
		"from", string(sender.Role()),
		"to", string(target),
		"bytes", len(raw),
		"recipients", delivered,
	)
	return delivered
}
