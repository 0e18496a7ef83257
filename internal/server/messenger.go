package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/lox/rpsbot/internal/rps"
	"github.com/lox/rpsbot/internal/session"
)

var (
	ErrPlayerNotConnected = errors.New("player not connected")
	ErrNoPendingPrompt    = errors.New("no pending prompt")
	ErrAlreadyAnswered    = errors.New("prompt already answered")
)

// Sender delivers messages to connected players.
type Sender interface {
	SendToPlayer(playerID string, msg *Message) error
}

type promptKind int

const (
	promptChallenge promptKind = iota
	promptMove
)

type promptKey struct {
	player  string
	session string
	kind    promptKind
}

// prompt is an outstanding question to one player. The reply channel holds
// a single answer; later answers are rejected, as is any answer after done
// closes.
type prompt struct {
	msg     *Message
	round   int
	replies chan any
	done    <-chan struct{}
}

// Messenger implements session.Messenger over websocket connections. Prompts
// are sent as messages tagged with a request id and answered by respond and
// move messages routed back through HandleResponse and HandleMove.
type Messenger struct {
	sender Sender
	clock  quartz.Clock
	logger *log.Logger

	mu      sync.Mutex
	pending map[promptKey]*prompt
}

var _ session.Messenger = (*Messenger)(nil)

// NewMessenger creates a messenger sending through sender.
func NewMessenger(sender Sender, clock quartz.Clock, logger *log.Logger) *Messenger {
	return &Messenger{
		sender:  sender,
		clock:   clock,
		logger:  logger.WithPrefix("messenger"),
		pending: make(map[promptKey]*prompt),
	}
}

// Notify sends a notice. It fails if the player is not connected.
func (m *Messenger) Notify(ctx context.Context, to session.Participant, n session.Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := NewMessage(MessageTypeNotice, NoticeData(n))
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	return m.sender.SendToPlayer(to.ID, msg)
}

// PromptChallenge asks the target to accept. An offline target fails
// immediately since nobody is there to answer.
func (m *Messenger) PromptChallenge(ctx context.Context, to session.Participant, p session.ChallengePrompt) (session.Response, error) {
	msg, err := NewMessage(MessageTypeChallengePrompt, ChallengePromptData{
		SessionID:      p.SessionID,
		From:           p.From,
		BestOf:         p.BestOf,
		Deadline:       p.Deadline,
		TimeoutSeconds: m.secondsUntil(p.Deadline),
	})
	if err != nil {
		return session.Decline, fmt.Errorf("encode challenge prompt: %w", err)
	}

	key := promptKey{player: to.ID, session: p.SessionID, kind: promptChallenge}
	pr := m.open(ctx, key, msg, 0)
	defer m.close(key, pr)

	if err := m.sender.SendToPlayer(to.ID, msg); err != nil {
		return session.Decline, err
	}

	select {
	case reply := <-pr.replies:
		return reply.(session.Response), nil
	case <-ctx.Done():
		return session.Decline, context.Cause(ctx)
	}
}

// PromptMove asks for a move. A player who is offline when asked still has
// until the deadline to reconnect and answer; the prompt is resent on
// reconnect.
func (m *Messenger) PromptMove(ctx context.Context, to session.Participant, p session.MovePrompt) (rps.Move, error) {
	msg, err := NewMessage(MessageTypeMovePrompt, MovePromptData{
		SessionID:      p.SessionID,
		Opponent:       p.Opponent,
		Round:          p.Round,
		BestOf:         p.BestOf,
		Score:          p.Score,
		OpponentScore:  p.OpponentScore,
		Deadline:       p.Deadline,
		TimeoutSeconds: m.secondsUntil(p.Deadline),
	})
	if err != nil {
		return 0, fmt.Errorf("encode move prompt: %w", err)
	}

	key := promptKey{player: to.ID, session: p.SessionID, kind: promptMove}
	pr := m.open(ctx, key, msg, p.Round)
	defer m.close(key, pr)

	if err := m.sender.SendToPlayer(to.ID, msg); err != nil {
		if !errors.Is(err, ErrPlayerNotConnected) {
			return 0, err
		}
		m.logger.Warn("Move requested from disconnected player", "player", to.ID, "session", p.SessionID, "round", p.Round)
	}

	select {
	case reply := <-pr.replies:
		return reply.(rps.Move), nil
	case <-ctx.Done():
		return 0, context.Cause(ctx)
	}
}

// HandleResponse routes a challenge answer from playerID.
func (m *Messenger) HandleResponse(playerID string, data RespondData) error {
	resp := session.Decline
	if data.Accept {
		resp = session.Accept
	}
	_, err := m.deliver(promptKey{player: playerID, session: data.SessionID, kind: promptChallenge}, resp)
	return err
}

// HandleMove routes a move from playerID and returns the round it counts for.
func (m *Messenger) HandleMove(playerID string, data MoveData) (int, error) {
	move, err := rps.ParseMove(data.Move)
	if err != nil {
		return 0, err
	}
	return m.deliver(promptKey{player: playerID, session: data.SessionID, kind: promptMove}, move)
}

// Resend repeats every prompt still waiting on playerID, used after a reconnect.
func (m *Messenger) Resend(playerID string) int {
	m.mu.Lock()
	var msgs []*Message
	for key, pr := range m.pending {
		if key.player == playerID {
			msgs = append(msgs, pr.msg)
		}
	}
	m.mu.Unlock()

	sent := 0
	for _, msg := range msgs {
		if err := m.sender.SendToPlayer(playerID, msg); err == nil {
			sent++
		}
	}
	return sent
}

// Pending reports whether playerID has an unanswered prompt.
func (m *Messenger) Pending(playerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.pending {
		if key.player == playerID {
			return true
		}
	}
	return false
}

func (m *Messenger) open(ctx context.Context, key promptKey, msg *Message, round int) *prompt {
	msg.RequestID = uuid.NewString()
	pr := &prompt{msg: msg, round: round, replies: make(chan any, 1), done: ctx.Done()}
	m.mu.Lock()
	m.pending[key] = pr
	m.mu.Unlock()
	return pr
}

func (m *Messenger) close(key promptKey, pr *prompt) {
	m.mu.Lock()
	if m.pending[key] == pr {
		delete(m.pending, key)
	}
	m.mu.Unlock()
}

func (m *Messenger) deliver(key promptKey, reply any) (int, error) {
	m.mu.Lock()
	pr, ok := m.pending[key]
	m.mu.Unlock()
	if !ok {
		return 0, ErrNoPendingPrompt
	}

	// The window may have closed before the asking goroutine removed the prompt.
	select {
	case <-pr.done:
		return 0, ErrNoPendingPrompt
	default:
	}

	// Try to send the reply without blocking
	select {
	case pr.replies <- reply:
		return pr.round, nil
	default:
		return 0, ErrAlreadyAnswered
	}
}

func (m *Messenger) secondsUntil(deadline time.Time) int {
	s := int(deadline.Sub(m.clock.Now()).Round(time.Second).Seconds())
	return max(s, 0)
}
