// Package realtime fans chat events out to connected websocket clients.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/BradenHooton/agora/internal/models"
)

// Hub tracks live clients per user. A user may hold several connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
}

// unregister removes c and closes its send channel. Only the first call for a
// client has any effect.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
}

// Publish queues event for every connection of userID without blocking.
// Clients whose buffer is full are disconnected.
func (h *Hub) Publish(userID string, event *models.ChatEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode chat event", slog.String("type", event.Type), slog.Any("error", err))
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", slog.String("user_id", userID))
		h.unregister(c)
	}
}

// Connections returns the number of live connections for userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
