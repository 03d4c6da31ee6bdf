package wsgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/chart-engine/internal/config"
	"github.com/mohamedkhairy/chart-engine/internal/models"
	"github.com/mohamedkhairy/chart-engine/internal/storage"
	"github.com/mohamedkhairy/chart-engine/pkg/logger"
)

// Hub manages WebSocket connections and broadcasts chart updates
type Hub struct {
	config        config.WSGatewayConfig
	registry      *ConnectionRegistry
	redis         storage.RedisClient
	updateStream  string
	consumerGroup string
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	mu            sync.RWMutex
	running       bool
	stats         HubStats
}

// HubStats holds statistics about the hub
type HubStats struct {
	ConnectionsTotal  int64
	ConnectionsActive int64
	UpdatesReceived   int64
	UpdatesBroadcast  int64
	UpdatesDropped    int64
	MessagesSent      int64
	LastUpdateTime    time.Time
	mu                sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub(config config.WSGatewayConfig, redis storage.RedisClient, updateStream string, consumerGroup string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		config:        config,
		registry:      NewConnectionRegistry(),
		redis:         redis,
		updateStream:  updateStream,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		stats:         HubStats{},
	}
}

// Start starts the hub (consumes chart updates and broadcasts)
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	logger.Info("Starting WebSocket hub",
		logger.String("update_stream", h.updateStream),
		logger.String("consumer_group", h.consumerGroup),
	)

	h.wg.Add(1)
	go h.consumeUpdates()

	h.wg.Add(1)
	go h.monitorConnections()

	return nil
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	logger.Info("Stopping WebSocket hub")
	h.cancel()
	h.wg.Wait()
	logger.Info("WebSocket hub stopped")
}

// Register registers a new connection
func (h *Hub) Register(conn *Connection) {
	h.registry.Add(conn)
	h.incrementConnectionsTotal()

	logger.Info("Connection registered",
		logger.String("connection_id", conn.ID),
		logger.String("user_id", conn.UserID),
		logger.Int("total_connections", h.registry.Count()),
	)

	h.wg.Add(2)
	go h.writePump(conn)
	go h.readPump(conn)
}

// Unregister unregisters a connection. Both pumps and the stale-connection
// monitor call it; only the caller that wins the registry removal closes
// the connection.
func (h *Hub) Unregister(conn *Connection) {
	if !h.registry.Remove(conn.ID) {
		return
	}
	conn.Close()

	logger.Info("Connection unregistered",
		logger.String("connection_id", conn.ID),
		logger.String("user_id", conn.UserID),
		logger.Int("total_connections", h.registry.Count()),
	)
}

// ConnectionCount returns the number of active connections
func (h *Hub) ConnectionCount() int {
	return h.registry.Count()
}

// consumeUpdates consumes chart updates from the stream and broadcasts them
func (h *Hub) consumeUpdates() {
	defer h.wg.Done()

	messageChan, err := h.redis.ConsumeFromStream(
		h.ctx,
		h.updateStream,
		h.consumerGroup,
		"ws-gateway-1",
	)
	if err != nil {
		logger.Error("Failed to start consuming chart updates",
			logger.ErrorField(err),
			logger.String("stream", h.updateStream),
		)
		return
	}

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg, ok := <-messageChan:
			if !ok {
				logger.Warn("Chart update channel closed")
				return
			}

			update, err := h.deserializeUpdate(msg)
			if err != nil {
				logger.Error("Failed to deserialize chart update",
					logger.ErrorField(err),
					logger.String("message_id", msg.ID),
				)
				continue
			}

			h.incrementUpdatesReceived()
			h.broadcastUpdate(update)

			ackCtx, ackCancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = h.redis.AcknowledgeMessage(ackCtx, h.updateStream, h.consumerGroup, msg.ID)
			ackCancel()
			if err != nil {
				logger.Warn("Failed to acknowledge chart update",
					logger.ErrorField(err),
					logger.String("message_id", msg.ID),
				)
			}
		}
	}
}

// broadcastUpdate broadcasts a chart update to all subscribed connections
func (h *Hub) broadcastUpdate(update *models.ChartUpdate) {
	connections := h.registry.GetAll()
	sent := 0
	dropped := 0

	for _, conn := range connections {
		if conn.ShouldReceiveUpdate(update) {
			if err := conn.SendChartUpdate(update); err != nil {
				dropped++
				logger.Debug("Failed to send chart update to connection",
					logger.ErrorField(err),
					logger.String("connection_id", conn.ID),
				)
			} else {
				sent++
				h.incrementMessagesSent()
			}
		}
	}

	h.incrementUpdatesBroadcast()
	if dropped > 0 {
		h.incrementUpdatesDropped(int64(dropped))
	}

	logger.Debug("Broadcast chart update",
		logger.String("symbol", update.Symbol),
		logger.String("indicator", update.Indicator),
		logger.Int("sent", sent),
		logger.Int("dropped", dropped),
		logger.Int("total_connections", len(connections)),
	)
}

// deserializeUpdate deserializes a stream message into a ChartUpdate
func (h *Hub) deserializeUpdate(msg storage.StreamMessage) (*models.ChartUpdate, error) {
	updateValue, ok := msg.Values["update"]
	if !ok {
		return nil, fmt.Errorf("update field not found in message")
	}

	updateStr, ok := updateValue.(string)
	if !ok {
		return nil, fmt.Errorf("update field is not a string")
	}

	var update models.ChartUpdate
	if err := json.Unmarshal([]byte(updateStr), &update); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chart update: %w", err)
	}

	return &update, nil
}

// writePump pumps messages from the hub to the WebSocket connection
func (h *Hub) writePump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := conn.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain whatever else is queued into the same frame batch
			n := len(conn.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-conn.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (h *Hub) readPump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.UpdateLastPong()
		conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket error",
					logger.ErrorField(err),
					logger.String("connection_id", conn.ID),
				)
			}
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			conn.SendError("invalid_message", "failed to parse message")
			continue
		}

		if err := conn.HandleClientMessage(&clientMsg); err != nil {
			logger.Debug("Failed to handle client message",
				logger.ErrorField(err),
				logger.String("connection_id", conn.ID),
			)
		}
	}
}

// monitorConnections removes connections that stopped answering pings
func (h *Hub) monitorConnections() {
	defer h.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-ticker.C:
			connections := h.registry.GetAll()
			now := time.Now()
			staleThreshold := h.config.ReadTimeout * 2

			for _, conn := range connections {
				lastPong := conn.GetLastPong()
				if now.Sub(lastPong) > staleThreshold {
					logger.Info("Removing stale connection",
						logger.String("connection_id", conn.ID),
						logger.String("user_id", conn.UserID),
						logger.Duration("idle_time", now.Sub(lastPong)),
					)
					h.Unregister(conn)
				}
			}
		}
	}
}

// GetStats returns a snapshot of hub statistics
func (h *Hub) GetStats() HubStats {
	h.stats.mu.RLock()
	defer h.stats.mu.RUnlock()

	return HubStats{
		ConnectionsTotal:  h.stats.ConnectionsTotal,
		ConnectionsActive: int64(h.registry.Count()),
		UpdatesReceived:   h.stats.UpdatesReceived,
		UpdatesBroadcast:  h.stats.UpdatesBroadcast,
		UpdatesDropped:    h.stats.UpdatesDropped,
		MessagesSent:      h.stats.MessagesSent,
		LastUpdateTime:    h.stats.LastUpdateTime,
	}
}

func (h *Hub) incrementConnectionsTotal() {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	h.stats.ConnectionsTotal++
}

func (h *Hub) incrementUpdatesReceived() {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	h.stats.UpdatesReceived++
	h.stats.LastUpdateTime = time.Now()
}

func (h *Hub) incrementUpdatesBroadcast() {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	h.stats.UpdatesBroadcast++
}

func (h *Hub) incrementUpdatesDropped(count int64) {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	h.stats.UpdatesDropped += count
}

func (h *Hub) incrementMessagesSent() {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	h.stats.MessagesSent++
}
