package wsgateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/chart-engine/internal/models"
	"github.com/mohamedkhairy/chart-engine/pkg/logger"
)

// Connection represents a WebSocket connection with a client
type Connection struct {
	ID            string
	UserID        string
	Conn          *websocket.Conn
	Send          chan []byte
	Subscriptions map[string]bool // symbol or symbol:indicator -> subscribed
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
	lastPong      time.Time
	createdAt     time.Time
}

// NewConnection creates a new WebSocket connection
func NewConnection(id string, userID string, conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:            id,
		UserID:        userID,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		Subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
		createdAt:     time.Now(),
		lastPong:      time.Now(),
	}
}

// subscriptionKey builds the subscription map key for a symbol, optionally
// narrowed to a single indicator series.
func subscriptionKey(symbol, indicator string) string {
	if indicator == "" {
		return symbol
	}
	return symbol + ":" + indicator
}

// Subscribe subscribes to chart updates for a symbol. An empty indicator
// subscribes to every series published for the symbol.
func (c *Connection) Subscribe(symbol, indicator string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Subscriptions[subscriptionKey(symbol, indicator)] = true
}

// Unsubscribe removes a symbol or symbol+indicator subscription
func (c *Connection) Unsubscribe(symbol, indicator string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Subscriptions, subscriptionKey(symbol, indicator))
}

// IsSubscribed checks for an exact subscription entry
func (c *Connection) IsSubscribed(symbol, indicator string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Subscriptions[subscriptionKey(symbol, indicator)]
}

// ShouldReceiveUpdate checks if the connection should receive a chart update.
// A connection with no subscriptions receives everything; a bare symbol
// subscription matches every series for the symbol; a symbol+indicator
// subscription matches only that series.
func (c *Connection) ShouldReceiveUpdate(update *models.ChartUpdate) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.Subscriptions) == 0 {
		return true
	}
	if c.Subscriptions[update.Symbol] {
		return true
	}
	return c.Subscriptions[subscriptionKey(update.Symbol, update.Indicator)]
}

// UpdateLastPong updates the last pong time
func (c *Connection) UpdateLastPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = time.Now()
}

// GetLastPong returns the last pong time
func (c *Connection) GetLastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

// Close closes the connection. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.Send)
		c.Conn.Close()
	})
}

// ReadMessage reads a message from the connection
func (c *Connection) ReadMessage() (messageType int, p []byte, err error) {
	return c.Conn.ReadMessage()
}

// WriteJSON writes a JSON message to the connection
func (c *Connection) WriteJSON(v interface{}) error {
	c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.Conn.WriteJSON(v)
}

// SendChartUpdate queues a chart update for delivery to the client
func (c *Connection) SendChartUpdate(update *models.ChartUpdate) error {
	message := map[string]interface{}{
		"type": "chart_update",
		"data": update,
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	case <-time.After(1 * time.Second):
		logger.Warn("Failed to send chart update, channel full",
			logger.String("connection_id", c.ID),
			logger.String("user_id", c.UserID),
			logger.String("symbol", update.Symbol),
		)
		return nil // Drop message if channel is full
	}
}

// SendError sends an error message to the client
func (c *Connection) SendError(code string, message string) error {
	errorMsg := map[string]interface{}{
		"type":    "error",
		"code":    code,
		"message": message,
	}

	data, err := json.Marshal(errorMsg)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		// Drop error message if channel is full
		return nil
	}
}
