// Package client is a websocket client for the challenge server.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/rpsbot/internal/rps"
	"github.com/lox/rpsbot/internal/server" // Reuse message types
)

// ErrNotConnected is returned when sending before Connect or after Disconnect.
var ErrNotConnected = errors.New("not connected")

// Handler handles one incoming message.
type Handler func(*server.Message)

// Client represents a WebSocket client connection to the server
type Client struct {
	serverURL string
	conn      *websocket.Conn
	send      chan *server.Message
	receive   chan *server.Message
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	connected bool
	closeOnce sync.Once

	handlers map[server.MessageType][]Handler
}

// NewClient creates a new WebSocket client
func NewClient(serverURL string, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		serverURL: serverURL,
		send:      make(chan *server.Message, 64),
		receive:   make(chan *server.Message, 64),
		logger:    logger.WithPrefix("client"),
		ctx:       ctx,
		cancel:    cancel,
		handlers:  make(map[server.MessageType][]Handler),
	}
}

// Endpoint converts a server address into its websocket URL. Plain host:port
// values and http(s) URLs are accepted.
func Endpoint(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		u, err = url.Parse("ws://" + serverURL)
		if err != nil {
			return "", fmt.Errorf("invalid server URL: %w", err)
		}
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// Connect establishes a WebSocket connection to the server
func (c *Client) Connect(ctx context.Context) error {
	endpoint, err := Endpoint(c.serverURL)
	if err != nil {
		return err
	}
	c.logger.Info("Connecting to server", "url", endpoint)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readPump()
	go c.writePump()
	go c.eventProcessor()

	c.logger.Info("Connected to server")
	return nil
}

// Disconnect closes the WebSocket connection
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		defer c.mu.Unlock()
		c.connected = false

		c.logger.Info("Disconnected from server")
	})
	return nil
}

// Done is closed once the client disconnects or loses the connection.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// On adds a handler for a message type. Handlers run one at a time in
// arrival order.
func (c *Client) On(t server.MessageType, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[t] = append(c.handlers[t], h)
}

// Send queues a message for the server
func (c *Client) Send(t server.MessageType, data any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	msg, err := server.NewMessage(t, data)
	if err != nil {
		return err
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrNotConnected
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Auth identifies the player
func (c *Client) Auth(p server.AuthData) error {
	return c.Send(server.MessageTypeAuth, p)
}

// Challenge challenges another connected player
func (c *Client) Challenge(targetID string, bestOf int) error {
	return c.Send(server.MessageTypeChallenge, server.ChallengeData{TargetID: targetID, BestOf: bestOf})
}

// Respond answers a challenge prompt
func (c *Client) Respond(sessionID string, accept bool) error {
	return c.Send(server.MessageTypeRespond, server.RespondData{SessionID: sessionID, Accept: accept})
}

// Move submits a move for the current round
func (c *Client) Move(sessionID string, move rps.Move) error {
	return c.Send(server.MessageTypeMove, server.MoveData{SessionID: sessionID, Move: move.String()})
}

// Queue joins matchmaking. A zero wait uses the server default.
func (c *Client) Queue(wait time.Duration) error {
	return c.Send(server.MessageTypeQueue, server.QueueData{WaitMinutes: int(wait / time.Minute)})
}

// Leave exits matchmaking
func (c *Client) Leave() error {
	return c.Send(server.MessageTypeLeave, struct{}{})
}

// readPump handles incoming messages from the server
func (c *Client) readPump() {
	defer func() { _ = c.Disconnect() }()

	for {
		var msg server.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.logger.Debug("Received message", "type", msg.Type)

		select {
		case c.receive <- &msg:
		case <-c.ctx.Done():
			return
		}
	}
}

// writePump handles outgoing messages to the server
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second) // Ping interval
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// eventProcessor dispatches incoming messages to registered handlers
func (c *Client) eventProcessor() {
	for {
		select {
		case msg := <-c.receive:
			c.mu.RLock()
			handlers := c.handlers[msg.Type]
			c.mu.RUnlock()

			if len(handlers) == 0 {
				c.logger.Debug("No handler for message type", "type", msg.Type)
			}
			for _, h := range handlers {
				h(msg)
			}
		case <-c.ctx.Done():
			return
		}
	}
}
