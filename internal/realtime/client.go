package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/agora/internal/models"
	"github.com/BradenHooton/agora/internal/services"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 64 * 1024
	sendTimeout    = 10 * time.Second
)

// MessageSender delivers a direct message on behalf of a connected user.
type MessageSender interface {
	SendDirectMessage(ctx context.Context, senderID, receiverID, text string, upload *models.AttachmentUpload) (*services.SendResult, error)
}

// inboundFrame is what clients send over the socket.
type inboundFrame struct {
	ReceiverID string `json:"receiver_id"`
	Message    string `json:"message"`
}

// Client is one websocket connection of an authenticated user.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	sender MessageSender
	logger *slog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, userID string, buffer int, sender MessageSender, logger *slog.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, buffer),
		sender: sender,
		logger: logger,
	}
}

// readPump handles inbound frames until the connection fails.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("websocket closed unexpectedly", slog.String("user_id", c.userID), slog.Any("error", err))
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.reply("malformed message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	// Successful sends come back through the hub as chat_message events.
	if _, err := c.sender.SendDirectMessage(ctx, c.userID, frame.ReceiverID, frame.Message, nil); err != nil {
		c.reply(clientMessage(err))
		if models.Kind(err) == models.ErrInternalServer {
			c.logger.Error("websocket send failed", slog.String("user_id", c.userID), slog.Any("error", err))
		}
	}
}

// clientMessage returns the text shown to the user for err.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrSenderBlocked):
		return models.ErrSenderBlocked.Error()
	case models.Kind(err) == models.ErrInternalServer:
		return "message could not be sent"
	default:
		return err.Error()
	}
}

// reply sends an error event to this connection only.
func (c *Client) reply(msg string) {
	payload, err := json.Marshal(&models.ChatEvent{Type: models.EventError, Error: msg})
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, live := c.hub.clients[c.userID][c]; !live {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// writePump drains send and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
