package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/rpsbot/internal/matchmaking"
	"github.com/lox/rpsbot/internal/rps"
	"github.com/lox/rpsbot/internal/session"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	player    session.Participant
	server    *Server
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	closeOnce sync.Once
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, server *Server, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		server: server,
		logger: logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client
func (c *Connection) SendMessage(msg *Message) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn("Connection send buffer full, closing connection", "player", c.Participant().ID)
		_ = c.Close() // Ignore close errors
		return ErrConnectionClosed
	}
}

// SetParticipant associates this connection with a player
func (c *Connection) SetParticipant(p session.Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.player = p
}

// Participant returns the associated player, zero before auth
func (c *Connection) Participant() session.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.player
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var (
	ErrConnectionClosed = websocket.ErrCloseSent
)

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }() // Ignore close errors during cleanup

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	player := c.Participant()
	c.logger.Debug("Received message", "type", msg.Type, "player", player.ID)

	if msg.Type == MessageTypeAuth {
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, "invalid_message", "Failed to parse auth data")
			return
		}
		c.handleAuth(msg, data)
		return
	}

	if player.ID == "" {
		c.sendError(msg, "not_authenticated", "Must authenticate first")
		return
	}
	svc := c.server.service
	if svc == nil {
		c.sendError(msg, "service_unavailable", "Service not available")
		return
	}

	switch msg.Type {
	case MessageTypeChallenge:
		var data ChallengeData
		if !c.decode(msg, &data) {
			return
		}
		info, err := svc.Challenge(player, data)
		if err != nil {
			c.sendFailure(msg, err)
			return
		}
		c.reply(msg, MessageTypeChallengeSent, ChallengeSentData{Session: info})

	case MessageTypeRespond:
		var data RespondData
		if !c.decode(msg, &data) {
			return
		}
		if err := svc.Respond(player, data); err != nil {
			c.sendFailure(msg, err)
		}

	case MessageTypeMove:
		var data MoveData
		if !c.decode(msg, &data) {
			return
		}
		round, err := svc.Move(player, data)
		if err != nil {
			c.sendFailure(msg, err)
			return
		}
		c.reply(msg, MessageTypeMoveAccepted, MoveAcceptedData{SessionID: data.SessionID, Round: round})

	case MessageTypeQueue:
		var data QueueData
		if len(msg.Data) > 0 && !c.decode(msg, &data) {
			return
		}
		ticket, err := svc.Queue(c.ctx, player, data)
		if err != nil {
			c.sendFailure(msg, err)
			return
		}
		out := QueueTicketData{Waiting: ticket.Session == nil, ExpiresAt: ticket.ExpiresAt}
		if ticket.Session != nil {
			out.SessionID = ticket.Session.ID
			out.ExpiresAt = time.Time{}
		}
		c.reply(msg, MessageTypeQueueTicket, out)

	case MessageTypeLeave:
		c.reply(msg, MessageTypeQueueLeft, QueueLeftData{Removed: svc.Leave(player)})

	case MessageTypeLeaderboard, MessageTypeRefresh:
		var data LeaderboardRequestData
		if len(msg.Data) > 0 && !c.decode(msg, &data) {
			return
		}
		lookup := svc.Leaderboard
		if msg.Type == MessageTypeRefresh {
			lookup = svc.Refresh
		}
		board, err := lookup(c.ctx, data.Tier)
		if err != nil {
			c.sendFailure(msg, err)
			return
		}
		c.reply(msg, MessageTypeLeaderboardData, LeaderboardResponseData{Board: board})

	case MessageTypeProfile:
		var data ProfileRequestData
		if len(msg.Data) > 0 && !c.decode(msg, &data) {
			return
		}
		id := data.PlayerID
		if id == "" {
			id = player.ID
		}
		profile, err := svc.Profile(c.ctx, id)
		if err != nil {
			c.sendFailure(msg, err)
			return
		}
		c.reply(msg, MessageTypeProfileData, profile)

	default:
		c.sendError(msg, "unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

func (c *Connection) handleAuth(msg *Message, data AuthData) {
	c.logger.Info("Auth request", "playerId", data.PlayerID, "playerName", data.PlayerName)

	if data.PlayerID == "" {
		c.sendError(msg, "invalid_auth", "Player id required")
		return
	}
	if current := c.Participant(); current.ID != "" && current.ID != data.PlayerID {
		c.sendError(msg, "invalid_auth", "Connection already authenticated as "+current.ID)
		return
	}

	p := session.Participant{ID: data.PlayerID, Name: data.PlayerName}
	if err := c.server.bind(c, p); err != nil {
		c.reply(msg, MessageTypeAuthResponse, AuthResponseData{Success: false, Error: err.Error()})
		return
	}

	c.reply(msg, MessageTypeAuthResponse, AuthResponseData{Success: true, PlayerID: p.ID})
	if c.server.service != nil {
		c.server.service.Connected(p)
	}
}

func (c *Connection) decode(msg *Message, v any) bool {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		c.sendError(msg, "invalid_message", "Failed to parse "+msg.Type.String()+" data")
		return false
	}
	return true
}

func (c *Connection) reply(req *Message, t MessageType, data any) {
	out, err := NewMessage(t, data)
	if err != nil {
		c.logger.Error("Failed to create message", "type", t, "error", err)
		return
	}
	out.RequestID = req.RequestID
	_ = c.SendMessage(out) // Ignore send errors
}

// sendError sends an error message to the client
func (c *Connection) sendError(req *Message, code, message string) {
	c.reply(req, MessageTypeError, ErrorData{Code: code, Message: message})
}

func (c *Connection) sendFailure(req *Message, err error) {
	code := errorCode(err)
	if code == "internal_error" {
		c.logger.Error("Request failed", "type", req.Type, "player", c.Participant().ID, "error", err)
	}
	c.sendError(req, code, err.Error())
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrAlreadyActive):
		return "already_active"
	case errors.Is(err, session.ErrParticipantBusy):
		return "participant_busy"
	case errors.Is(err, session.ErrSelfChallenge):
		return "self_challenge"
	case errors.Is(err, session.ErrInvalidBestOf):
		return "invalid_best_of"
	case errors.Is(err, session.ErrShuttingDown), errors.Is(err, matchmaking.ErrClosed):
		return "shutting_down"
	case errors.Is(err, matchmaking.ErrAlreadyQueued):
		return "already_queued"
	case errors.Is(err, matchmaking.ErrInvalidWait):
		return "invalid_wait"
	case errors.Is(err, ErrPlayerNotConnected):
		return "player_offline"
	case errors.Is(err, ErrNoPendingPrompt):
		return "no_pending_prompt"
	case errors.Is(err, ErrAlreadyAnswered):
		return "already_answered"
	case errors.Is(err, rps.ErrInvalidMove):
		return "invalid_move"
	case errors.Is(err, ErrUnknownTier):
		return "unknown_tier"
	default:
		return "internal_error"
	}
}
