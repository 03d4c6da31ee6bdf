package wsgateway

import (
	"encoding/json"
	"fmt"

	"github.com/mohamedkhairy/chart-engine/pkg/logger"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
)

// ClientMessage represents a message from the client. Subscribe and
// unsubscribe take a single symbol or a list; the optional indicator
// narrows the subscription to one published series (e.g. "rsi_14").
type ClientMessage struct {
	Type      string          `json:"type"`
	Symbol    string          `json:"symbol,omitempty"`
	Symbols   []string        `json:"symbols,omitempty"`
	Indicator string          `json:"indicator,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ServerMessage represents a message to the client
type ServerMessage struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandleClientMessage handles a message from the client
func (c *Connection) HandleClientMessage(msg *ClientMessage) error {
	switch MessageType(msg.Type) {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		symbols := msg.Symbols
		if msg.Symbol != "" {
			symbols = append([]string{msg.Symbol}, symbols...)
		}
		if len(symbols) == 0 {
			return c.SendError("invalid_request", "symbol or symbols field required")
		}

		subscribe := MessageType(msg.Type) == MessageTypeSubscribe
		action := "subscribed"
		if !subscribe {
			action = "unsubscribed"
		}
		for _, symbol := range symbols {
			if subscribe {
				c.Subscribe(symbol, msg.Indicator)
			} else {
				c.Unsubscribe(symbol, msg.Indicator)
			}
		}

		logger.Debug("Client subscription changed",
			logger.String("connection_id", c.ID),
			logger.String("user_id", c.UserID),
			logger.String("action", action),
			logger.String("indicator", msg.Indicator),
			logger.Int("symbols", len(symbols)),
		)
		return c.SendSuccess(action, map[string]interface{}{
			"symbols":   symbols,
			"indicator": msg.Indicator,
		})

	case MessageTypePing:
		return c.SendPong()

	default:
		return c.SendError("unknown_message_type", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

// SendSuccess sends a success message to the client
func (c *Connection) SendSuccess(action string, data interface{}) error {
	message := ServerMessage{
		Type: "success",
		Data: map[string]interface{}{
			"action": action,
			"data":   data,
		},
	}
	return c.WriteJSON(message)
}

// SendPong sends a pong message to the client
func (c *Connection) SendPong() error {
	message := ServerMessage{
		Type: "pong",
	}
	return c.WriteJSON(message)
}
