// Package bridge is the server side of the sync channel: the authoritative
// inventory, the connection registry and the single-slot scan arbiter.
package bridge

import (
	"fmt"
	"sort"
	"sync"

	applog "stockroom/internal/log"
	"stockroom/internal/protocol"
)

// Peer is one connected client: an app instance or a scanner.
type Peer interface {
	ID() string
	Send(frame string) error
}

type Hub struct {
	mu    sync.RWMutex
	peers map[string]Peer
}

func NewHub() *Hub { return &Hub{peers: map[string]Peer{}} }

func (h *Hub) Register(p Peer) {
	h.mu.Lock()
	h.peers[p.ID()] = p
	h.mu.Unlock()
}

func (h *Hub) Unregister(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[id]; !ok {
		return false
	}
	delete(h.peers, id)
	return true
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// IDs lists connected peers in sorted order.
func (h *Hub) IDs() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Send delivers msg to one peer.
func (h *Hub) Send(id string, msg protocol.Message) error {
	h.mu.RLock()
	p, ok := h.peers[id]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("peer %s not connected", id)
	}
	raw, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return p.Send(raw)
}

// Broadcast delivers msg to every peer except the one named and returns how
// many sends succeeded. Failing peers are logged and skipped.
func (h *Hub) Broadcast(msg protocol.Message, except string) int {
	raw, err := protocol.Encode(msg)
	if err != nil {
		applog.Error(nil, "bridge.broadcast", err, map[string]any{"cmd": msg.Command.String()})
		return 0
	}
	h.mu.RLock()
	targets := make([]Peer, 0, len(h.peers))
	for id, p := range h.peers {
		if id != except {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	n := 0
	for _, p := range targets {
		if err := p.Send(raw); err != nil {
			applog.Warn(nil, "bridge.broadcast", err, map[string]any{"conn": p.ID(), "cmd": msg.Command.String()})
			continue
		}
		n++
	}
	return n
}
