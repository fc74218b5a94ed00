package connection

import (
	"log/slog"
	"sync"
)

// Registry tracks every live peer, indexed by role.
type Registry struct {
	mu     sync.RWMutex
	byRole map[Role]map[string]Peer
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		byRole: map[Role]map[string]Peer{
			RoleESP:     {},
			RoleSite:    {},
			RoleUnknown: {},
		},
		logger: logger,
	}
}

// Register adds p under its role and returns that role. Roles outside
// esp/site are filed as unknown.
func (r *Registry) Register(p Peer) Role {
	role := p.Role()
	if role != RoleESP && role != RoleSite {
		role = RoleUnknown
	}

	r.mu.Lock()
	r.byRole[role][p.ID()] = p
	total := r.totalLocked()
	r.mu.Unlock()

	r.logger.Debug("peer registered", "conn_id", p.ID(), "role", string(role), "total", total)
	return role
}

// Unregister removes p. Returns false if p was not registered.
func (r *Registry) Unregister(p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, peers := range r.byRole {
		if _, ok := peers[p.ID()]; ok {
			delete(peers, p.ID())
			return true
		}
	}
	return false
}

// ForRole calls fn for every registered peer of the given role. The peer
// set is copied first so fn may call back into the registry.
func (r *Registry) ForRole(role Role, fn func(Peer)) {
	for _, p := range r.Peers(role) {
		fn(p)
	}
}

// ForEach calls fn for every registered peer for which match returns true.
// A nil match selects all peers.
func (r *Registry) ForEach(match func(Peer) bool, fn func(Peer)) {
	r.mu.RLock()
	all := make([]Peer, 0, r.totalLocked())
	for _, peers := range r.byRole {
		for _, p := range peers {
			if match == nil || match(p) {
				all = append(all, p)
			}
		}
	}
	r.mu.RUnlock()

	for _, p := range all {
		fn(p)
	}
}

// Peers returns a copy of the peers registered under role.
func (r *Registry) Peers(role Role) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := r.byRole[role]
	out := make([]Peer, 0, len(peers))
	for _, p := range peers {
		out = append(out, p)
	}
	return out
}

// Count returns the number of peers registered under role.
func (r *Registry) Count(role Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRole[role])
}

// Stats returns peer counts per role.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RegistryStats{
		ESP:     len(r.byRole[RoleESP]),
		Site:    len(r.byRole[RoleSite]),
		Unknown: len(r.byRole[RoleUnknown]),
		Total:   r.totalLocked(),
	}
}

func (r *Registry) totalLocked() int {
	n := 0
	for _, peers := range r.byRole {
		n += len(peers)
	}
	return n
}
