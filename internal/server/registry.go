package server

import "sync"

// Registry is the set of peers that completed their handshake and have not
// yet left. Mutation and snapshotting share one lock, so a snapshot never
// contains a peer that is half added or half removed.
type Registry struct {
	mu    sync.RWMutex
	peers map[Peer]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[Peer]struct{}),
	}
}

// Register adds p and reports whether it was absent.
func (r *Registry) Register(p Peer) bool {
	if p == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[p]; ok {
		return false
	}
	r.peers[p] = struct{}{}
	return true
}

// Unregister removes p and reports whether it was present. Removing an
// absent peer is a no-op.
func (r *Registry) Unregister(p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[p]; !ok {
		return false
	}
	delete(r.peers, p)
	return true
}

// Contains reports whether p is registered.
func (r *Registry) Contains(p Peer) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[p]
	return ok
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot returns the members at a single point in time. The caller may
// iterate it without holding any lock.
func (r *Registry) Snapshot() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]Peer, 0, len(r.peers))
	for p := range r.peers {
		peers = append(peers, p)
	}
	return peers
}
