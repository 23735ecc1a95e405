package relay

import (
	"slices"
	"sync"
)

// Hub holds the live endpoints of one session. It outlives the Relay: a
// suspended relay is rebuilt from the hub's endpoints.
type Hub struct {
	mu        sync.RWMutex
	endpoints []Endpoint
}

func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) Add(ep Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if slices.Contains(h.endpoints, ep) {
		return
	}
	h.endpoints = append(h.endpoints, ep)
}

func (h *Hub) Remove(ep Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.endpoints = slices.DeleteFunc(h.endpoints, func(e Endpoint) bool { return e == ep })
}

// Endpoints returns the open endpoints in acceptance order.
func (h *Hub) Endpoints() []Endpoint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Endpoint, 0, len(h.endpoints))
	for _, ep := range h.endpoints {
		if ep.IsOpen() {
			out = append(out, ep)
		}
	}
	return out
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.endpoints)
}
