// Package bot plays series against the server on behalf of a player, for
// practice and load testing.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lox/rpsbot/internal/client"
	"github.com/lox/rpsbot/internal/rps"
	"github.com/lox/rpsbot/internal/server"
	"github.com/lox/rpsbot/internal/session"
)

// ErrDisconnected is returned by Run when the connection drops.
var ErrDisconnected = errors.New("disconnected from server")

// Conn is the part of *client.Client a bot drives.
type Conn interface {
	On(t server.MessageType, h client.Handler)
	Auth(p server.AuthData) error
	Respond(sessionID string, accept bool) error
	Move(sessionID string, move rps.Move) error
	Queue(wait time.Duration) error
	Done() <-chan struct{}
}

// Options configures a bot.
type Options struct {
	Player   session.Participant
	Strategy Strategy
	// Queue keeps the bot in matchmaking between series.
	Queue bool
	Wait  time.Duration
	// Accept answers challenges from other players.
	Accept bool
	// Series stops the bot after this many finished series. Zero runs until
	// the context ends.
	Series int
}

// Stats counts finished series.
type Stats struct {
	Won       int
	Lost      int
	Forfeited int
	Abandoned int
}

// Total is the number of finished series.
func (s Stats) Total() int {
	return s.Won + s.Lost + s.Forfeited + s.Abandoned
}

// Bot answers prompts from the server using a Strategy.
type Bot struct {
	conn   Conn
	opts   Options
	logger *log.Logger

	mu      sync.Mutex
	history map[string][]Round
	stats   Stats

	authed   chan error
	finished chan struct{}
	once     sync.Once
}

// New creates a bot that plays over conn.
func New(conn Conn, opts Options, logger *log.Logger) *Bot {
	return &Bot{
		conn:     conn,
		opts:     opts,
		logger:   logger.WithPrefix("bot").With("player", opts.Player.ID),
		history:  make(map[string][]Round),
		authed:   make(chan error, 1),
		finished: make(chan struct{}),
	}
}

// Run authenticates and plays until ctx ends, the connection drops or the
// configured number of series has finished.
func (b *Bot) Run(ctx context.Context) (Stats, error) {
	b.conn.On(server.MessageTypeAuthResponse, b.handleAuth)
	b.conn.On(server.MessageTypeChallengePrompt, b.handleChallenge)
	b.conn.On(server.MessageTypeMovePrompt, b.handleMovePrompt)
	b.conn.On(server.MessageTypeNotice, b.handleNotice)
	b.conn.On(server.MessageTypeError, b.handleError)

	if err := b.conn.Auth(server.AuthData{PlayerID: b.opts.Player.ID, PlayerName: b.opts.Player.Name}); err != nil {
		return Stats{}, fmt.Errorf("auth: %w", err)
	}

	select {
	case err := <-b.authed:
		if err != nil {
			return Stats{}, err
		}
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-b.conn.Done():
		return Stats{}, ErrDisconnected
	}

	b.logger.Info("Authenticated", "queue", b.opts.Queue, "accept", b.opts.Accept)
	if b.opts.Queue {
		b.requeue()
	}

	select {
	case <-b.finished:
		return b.Stats(), nil
	case <-ctx.Done():
		return b.Stats(), ctx.Err()
	case <-b.conn.Done():
		return b.Stats(), ErrDisconnected
	}
}

// Stats returns the series finished so far.
func (b *Bot) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *Bot) handleAuth(msg *server.Message) {
	var data server.AuthResponseData
	err := json.Unmarshal(msg.Data, &data)
	switch {
	case err != nil:
		err = fmt.Errorf("decode auth response: %w", err)
	case !data.Success:
		err = fmt.Errorf("auth rejected: %s", data.Error)
	}

	select {
	case b.authed <- err:
	default:
	}
}

func (b *Bot) handleChallenge(msg *server.Message) {
	var data server.ChallengePromptData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		b.logger.Warn("Bad challenge prompt", "error", err)
		return
	}
	b.logger.Info("Challenged", "from", data.From.ID, "bestOf", data.BestOf, "accept", b.opts.Accept)
	if err := b.conn.Respond(data.SessionID, b.opts.Accept); err != nil {
		b.logger.Warn("Failed to respond to challenge", "session", data.SessionID, "error", err)
	}
}

func (b *Bot) handleMovePrompt(msg *server.Message) {
	var data server.MovePromptData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		b.logger.Warn("Bad move prompt", "error", err)
		return
	}

	b.mu.Lock()
	history := append([]Round(nil), b.history[data.SessionID]...)
	b.mu.Unlock()

	move := b.opts.Strategy.Next(history)
	b.logger.Debug("Moving", "session", data.SessionID, "round", data.Round, "move", move)
	if err := b.conn.Move(data.SessionID, move); err != nil {
		b.logger.Warn("Failed to send move", "session", data.SessionID, "error", err)
	}
}

func (b *Bot) handleNotice(msg *server.Message) {
	var n server.NoticeData
	if err := json.Unmarshal(msg.Data, &n); err != nil {
		b.logger.Warn("Bad notice", "error", err)
		return
	}

	switch n.Kind {
	case session.NoticeRoundResult:
		b.mu.Lock()
		b.history[n.SessionID] = append(b.history[n.SessionID], Round{Mine: n.Move, Theirs: n.OpponentMove})
		b.mu.Unlock()

	case session.NoticeSeriesWon, session.NoticeSeriesLost, session.NoticeSeriesForfeited, session.NoticeSeriesAbandoned:
		b.finish(n)

	case session.NoticePromoted, session.NoticeDemoted:
		b.logger.Info("Tier changed", "tier", n.Tier)

	case session.NoticeQueueExpired:
		if b.opts.Queue {
			b.requeue()
		}
	}
}

func (b *Bot) handleError(msg *server.Message) {
	var data server.ErrorData
	_ = json.Unmarshal(msg.Data, &data) // Best effort
	b.logger.Warn("Server error", "code", data.Code, "message", data.Message)
}

func (b *Bot) finish(n server.NoticeData) {
	b.mu.Lock()
	delete(b.history, n.SessionID)
	switch n.Kind {
	case session.NoticeSeriesWon:
		b.stats.Won++
	case session.NoticeSeriesLost:
		b.stats.Lost++
	case session.NoticeSeriesForfeited:
		b.stats.Forfeited++
	default:
		b.stats.Abandoned++
	}
	total := b.stats.Total()
	b.mu.Unlock()

	b.logger.Info("Series finished",
		"session", n.SessionID,
		"opponent", n.Opponent.ID,
		"result", n.Kind,
		"score", fmt.Sprintf("%d-%d", n.Score, n.OpponentScore),
		"tier", n.Tier)

	if b.opts.Series > 0 && total >= b.opts.Series {
		b.once.Do(func() { close(b.finished) })
		return
	}
	if b.opts.Queue {
		b.requeue()
	}
}

func (b *Bot) requeue() {
	if err := b.conn.Queue(b.opts.Wait); err != nil {
		b.logger.Warn("Failed to join queue", "error", err)
	}
}
