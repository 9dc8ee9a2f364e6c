// Package server coordinates member registration, frame broadcast, and
// departure cleanup for the relay via the Hub type.
package server

import (
	"log"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// Hub fans frames out to every registered peer. It is safe for concurrent
// use by any number of session goroutines.
type Hub struct {
	registry *Registry
}

// NewHub creates a Hub with an empty registry.
func NewHub() *Hub {
	return &Hub{registry: NewRegistry()}
}

// Count returns the number of registered peers.
func (h *Hub) Count() int {
	return h.registry.Len()
}

// IsMember reports whether p is currently registered.
func (h *Hub) IsMember(p Peer) bool {
	return h.registry.Contains(p)
}

// Join registers p and announces it to everyone else.
func (h *Hub) Join(p Peer) {
	if !h.registry.Register(p) {
		log.Printf("Peer %s (%s) already registered; skipping join", p.ID(), p.Addr())
		return
	}
	log.Printf("%s joined from %s [%s]. Total clients: %d", p.Nickname(), p.Addr(), p.ID(), h.registry.Len())
	h.Broadcast(protocol.Joined(p.Nickname()), p)
}

// Leave unregisters p, if it is still registered, and announces the
// departure to the remaining peers. The notice is sent even when a failed
// broadcast already removed p.
func (h *Hub) Leave(p Peer) {
	h.registry.Unregister(p)
	log.Printf("%s left from %s [%s]. Total clients: %d", p.Nickname(), p.Addr(), p.ID(), h.registry.Len())
	h.Broadcast(protocol.Left(p.Nickname()), nil)
}

// Relay attributes f to its sender and broadcasts it to everyone else.
func (h *Hub) Relay(from Peer, f protocol.Frame) {
	f.Nickname = from.Nickname()
	switch f.Kind {
	case protocol.KindTyping:
		log.Printf("  [%s is typing...]", f.Nickname)
	case protocol.KindStopped:
		log.Printf("  [%s stopped typing]", f.Nickname)
	default:
		log.Printf("%s: %s", f.Nickname, f.Text)
	}
	h.Broadcast(f, from)
}

// Broadcast delivers f to every registered peer except exclude and returns
// the number of successful deliveries. A peer whose delivery fails is
// unregistered and closed; the failure never reaches the caller.
func (h *Hub) Broadcast(f protocol.Frame, exclude Peer) int {
	peers := h.registry.Snapshot()

	delivered := 0
	var failed []Peer
	for _, p := range peers {
		if exclude != nil && p == exclude {
			continue
		}
		if err := p.Deliver(f); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error delivering %s frame to %s: %v", f.Kind, p.Addr(), err)
			}
			failed = append(failed, p)
			continue
		}
		delivered++
	}

	h.removeFailedPeers(failed)
	return delivered
}

// removeFailedPeers drops peers that could not be written to. Closing the
// transport unblocks the peer's own reader, which then runs its Leave.
func (h *Hub) removeFailedPeers(peers []Peer) {
	for _, p := range peers {
		if h.registry.Unregister(p) {
			log.Printf("Peer %s removed after failed delivery", p.Addr())
		}
		if err := p.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing peer %s: %v", p.Addr(), err)
		}
	}
}

// CloseAll closes the transport of every registered peer and returns how
// many were closed. Each peer's reader then observes the closure and leaves.
func (h *Hub) CloseAll() int {
	log.Println("Closing all client connections...")

	peers := h.registry.Snapshot()
	for _, p := range peers {
		if err := p.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing client connection from %s: %v", p.Addr(), err)
		}
	}

	log.Printf("Closed %d client connections", len(peers))
	return len(peers)
}
