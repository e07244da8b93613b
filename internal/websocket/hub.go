package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ecoquest-ledger/internal/domain"
	"github.com/ecoquest-ledger/internal/metrics"
	"github.com/goccy/go-json"
)

// Message types
const (
	MessageTypeConnected     = "connected"
	MessageTypeProfileChange = "profile_change"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeError         = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string                `json:"type"`
	ClientID  string                `json:"client_id,omitempty"`
	Change    *domain.ProfileChange `json:"change,omitempty"`
	Error     string                `json:"error,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

type userMessage struct {
	userID string
	data   []byte
}

// Hub maintains the connected clients of each user and pushes their
// profile changes
type Hub struct {
	// Connected clients by user ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan userMessage

	mu     sync.RWMutex
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan userMessage, 256),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.userID]; !ok {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.mu.Unlock()
			metrics.WebsocketConnections.Inc()
			h.logger.Debug("client registered", "client_id", client.id, "user_id", client.userID)

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Stop stops the hub and closes every client
func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.userID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}
	close(client.send)
	metrics.WebsocketConnections.Dec()
	h.logger.Debug("client unregistered", "client_id", client.id, "user_id", client.userID)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.clients {
		for client := range clients {
			close(client.send)
			metrics.WebsocketConnections.Dec()
		}
		delete(h.clients, userID)
	}
}

// deliver sends a message to every client of one user
func (h *Hub) deliver(msg userMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[msg.userID] {
		select {
		case client.send <- msg.data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// PublishProfileChange queues a change for the user's connected clients
func (h *Hub) PublishProfileChange(_ context.Context, change domain.ProfileChange) error {
	data, err := json.Marshal(Message{
		Type:      MessageTypeProfileChange,
		Change:    &change,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- userMessage{userID: change.UserID, data: data}:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "user_id", change.UserID)
	}
	return nil
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// GetUserConnections returns the number of clients connected for a user
func (h *Hub) GetUserConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}
