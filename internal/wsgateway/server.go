package wsgateway

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/chart-engine/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HandleWebSocket returns an HTTP handler that authenticates the request,
// upgrades it, and registers the connection with the hub.
func (h *Hub) HandleWebSocket(authManager *AuthManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.registry.Count() >= h.config.MaxConnections {
			logger.Warn("Max connections reached, rejecting new connection",
				logger.Int("max_connections", h.config.MaxConnections),
			)
			http.Error(w, "Max connections reached", http.StatusServiceUnavailable)
			return
		}

		var userID string
		tokenString, err := authManager.ExtractToken(r.Header.Get("Authorization"), r.URL.Query().Get("token"))
		if err != nil {
			// Anonymous connections fall back to the default user
			userID = "default"
		} else {
			userID, err = authManager.ValidateToken(tokenString)
			if err != nil {
				logger.Warn("Invalid token, rejecting connection",
					logger.ErrorField(err),
				)
				http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
				return
			}
		}

		if h.config.MaxConnectionsPerUser > 0 && h.registry.CountByUser(userID) >= h.config.MaxConnectionsPerUser {
			logger.Warn("Per-user connection limit reached, rejecting connection",
				logger.String("user_id", userID),
				logger.Int("max_per_user", h.config.MaxConnectionsPerUser),
			)
			http.Error(w, "Too many connections for user", http.StatusTooManyRequests)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("Failed to upgrade connection",
				logger.ErrorField(err),
			)
			return
		}

		connectionID := uuid.New().String()
		wsConn := NewConnection(connectionID, userID, conn)
		h.Register(wsConn)

		logger.Info("WebSocket connection established",
			logger.String("connection_id", connectionID),
			logger.String("user_id", userID),
			logger.String("remote_addr", r.RemoteAddr),
		)
	}
}
