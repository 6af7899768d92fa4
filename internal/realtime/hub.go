// Package realtime pushes events to connected clients over WebSocket.
// Clients obtain a short-lived token from the negotiate endpoint and redeem
// it on the upgrade request.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event names pushed to clients.
const (
	EventNewMessage        = "newMessage"
	EventConnectionRequest = "connectionRequest"
	EventKnowledgeUpdated  = "knowledgeUpdated"
)

// Envelope is the wire format for every pushed event.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// OnlineMarker records which users currently hold an open socket. Entries
// carry a TTL so a crashed server's marks age out on their own.
type OnlineMarker interface {
	MarkOnline(ctx context.Context, userID string, ttl time.Duration) error
	MarkOffline(ctx context.Context, userID string) error
}

const (
	onlineTTL           = 5 * time.Minute
	onlineRefreshPeriod = time.Minute
)

// Hub maintains active connections and routes events to a user's open
// sockets. One user can hold several connections at once.
type Hub struct {
	connections map[string]map[*Client]bool
	mu          sync.RWMutex

	register   chan *Client
	unregister chan *Client
	deliver    chan targetedEvent

	presence OnlineMarker

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

type targetedEvent struct {
	userID  string
	payload []byte
}

func NewHub(logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		connections: make(map[string]map[*Client]bool),
		register:    make(chan *Client, 64),
		unregister:  make(chan *Client, 64),
		deliver:     make(chan targetedEvent, 1024),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// SetPresence attaches the online marker. Call before Run.
func (h *Hub) SetPresence(presence OnlineMarker) {
	h.presence = presence
}

// Run is the hub's event loop. Call it in its own goroutine; Stop ends it.
func (h *Hub) Run() {
	refresh := time.NewTicker(onlineRefreshPeriod)
	defer refresh.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		case event := <-h.deliver:
			h.fanOut(event)
		case <-refresh.C:
			h.refreshPresence()
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()
}

// SendToUser pushes one event to every open connection of a user. Delivery
// is best effort; a user with no connections drops the event silently.
func (h *Hub) SendToUser(userID, eventType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	payload, err := json.Marshal(Envelope{
		Type:      eventType,
		Data:      raw,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	select {
	case h.deliver <- targetedEvent{userID: userID, payload: payload}:
		return nil
	default:
		return fmt.Errorf("deliver queue full, event dropped")
	}
}

// ConnectionCount returns the number of open sockets for a user.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connections[client.userID] == nil {
		h.connections[client.userID] = make(map[*Client]bool)
	}
	h.connections[client.userID][client] = true
	h.markOnline(client.userID)
	h.logger.Info("websocket client connected",
		zap.String("user_id", client.userID),
		zap.Int("user_connections", len(h.connections[client.userID])),
	)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.connections[client.userID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.connections, client.userID)
		h.markOffline(client.userID)
	}
	h.logger.Info("websocket client disconnected",
		zap.String("user_id", client.userID),
		zap.Int("user_connections", len(clients)),
	)
}

func (h *Hub) fanOut(event targetedEvent) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.connections[event.userID]))
	for client := range h.connections[event.userID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- event.payload:
		default:
			// Slow consumer: drop the socket rather than block the hub.
			h.logger.Warn("closing slow websocket client",
				zap.String("user_id", client.userID),
			)
			go func(c *Client) {
				h.unregister <- c
				_ = c.conn.Close()
			}(client)
		}
	}
}

func (h *Hub) markOnline(userID string) {
	if h.presence == nil {
		return
	}
	if err := h.presence.MarkOnline(context.Background(), userID, onlineTTL); err != nil {
		h.logger.Warn("presence mark failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (h *Hub) markOffline(userID string) {
	if h.presence == nil {
		return
	}
	if err := h.presence.MarkOffline(context.Background(), userID); err != nil {
		h.logger.Warn("presence unmark failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// refreshPresence re-marks every connected user so their TTLed online
// entries outlive the refresh interval.
func (h *Hub) refreshPresence() {
	if h.presence == nil {
		return
	}
	h.mu.RLock()
	users := make([]string, 0, len(h.connections))
	for userID := range h.connections {
		users = append(users, userID)
	}
	h.mu.RUnlock()

	for _, userID := range users {
		h.markOnline(userID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, clients := range h.connections {
		for client := range clients {
			close(client.send)
			_ = client.conn.Close()
		}
		delete(h.connections, userID)
	}
	h.logger.Info("all websocket connections closed")
}
