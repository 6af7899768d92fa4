package realtime

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"synapse/api/internal/auth"
)

// maxUserConnections caps concurrent sockets per user. A handful covers
// every real device; beyond that it is a reconnect loop eating file
// descriptors.
const maxUserConnections = 10

// Server upgrades HTTP requests to WebSocket connections. The upgrade is
// authenticated by the one-shot token minted at negotiate, carried in the
// token query parameter because browsers cannot set headers on a WebSocket
// handshake.
type Server struct {
	hub          *Hub
	socketSecret []byte
	logger       *zap.Logger
	upgrader     websocket.Upgrader
}

func NewServer(hub *Hub, socketSecret []byte, allowedOrigin string, logger *zap.Logger) *Server {
	return &Server{
		hub:          hub,
		socketSecret: socketSecret,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

func (s *Server) HandleConnect(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	identity, err := auth.ParseSocketToken(s.socketSecret, token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	if s.hub.ConnectionCount(identity.UserID) >= maxUserConnections {
		s.logger.Warn("connection cap reached",
			zap.String("user_id", identity.UserID),
			zap.Int("cap", maxUserConnections),
		)
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	newClient(identity.UserID, s.hub, conn, s.logger).start()
}
