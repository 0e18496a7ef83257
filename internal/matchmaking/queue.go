// Package matchmaking pairs players who ask for a game without naming an
// opponent.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/rpsbot/internal/session"
)

var (
	ErrAlreadyQueued = errors.New("already in the queue")
	ErrInvalidWait   = errors.New("invalid queue wait")
	ErrClosed        = errors.New("queue closed")
)

// MinWait is the shortest queue timer a player may ask for.
const MinWait = time.Minute

// Matcher starts sessions between paired players.
type Matcher interface {
	StartMatch(a, b session.Participant, bestOf int) (*session.Session, error)
	Busy(playerID string) bool
}

// Notifier delivers queue notices.
type Notifier interface {
	Notify(ctx context.Context, to session.Participant, n session.Notice) error
}

// Config controls queue timers and the series length of matchmade games.
type Config struct {
	DefaultWait time.Duration
	MaxWait     time.Duration
	BestOf      int
}

// DefaultConfig waits ten minutes by default and at most an hour.
func DefaultConfig() Config {
	return Config{
		DefaultWait: 10 * time.Minute,
		MaxWait:     60 * time.Minute,
		BestOf:      0,
	}
}

// Ticket describes a queue join. Session is set when the player was paired
// straight away; otherwise the player waits until ExpiresAt.
type Ticket struct {
	Player    session.Participant `json:"player"`
	JoinedAt  time.Time           `json:"joinedAt"`
	ExpiresAt time.Time           `json:"expiresAt"`
	Session   *session.Session    `json:"-"`
}

type entry struct {
	ticket Ticket
	timer  *quartz.Timer
}

// Queue is a first-come first-served waiting list. The oldest waiting
// player is paired with the next one to join.
type Queue struct {
	cfg      Config
	matcher  Matcher
	notifier Notifier
	clock    quartz.Clock
	logger   *log.Logger

	mu      sync.Mutex
	waiting []*entry
	closed  bool
}

// NewQueue creates an empty queue.
func NewQueue(cfg Config, matcher Matcher, notifier Notifier, clock quartz.Clock, logger *log.Logger) *Queue {
	defaults := DefaultConfig()
	if cfg.DefaultWait <= 0 {
		cfg.DefaultWait = defaults.DefaultWait
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaults.MaxWait
	}
	return &Queue{
		cfg:      cfg,
		matcher:  matcher,
		notifier: notifier,
		clock:    clock,
		logger:   logger.WithPrefix("queue"),
	}
}

// Join queues p for up to wait, or pairs them with the longest-waiting
// player. A zero wait selects the configured default.
func (q *Queue) Join(ctx context.Context, p session.Participant, wait time.Duration) (Ticket, error) {
	if wait == 0 {
		wait = q.cfg.DefaultWait
	}
	if wait < MinWait || wait > q.cfg.MaxWait {
		return Ticket{}, fmt.Errorf("%w: %s not within %s..%s", ErrInvalidWait, wait, MinWait, q.cfg.MaxWait)
	}

	ticket, queued, err := q.join(p, wait)
	if err != nil {
		return Ticket{}, err
	}
	if queued {
		q.notify(ctx, p, session.Notice{
			Kind:   session.NoticeQueueJoined,
			Reason: fmt.Sprintf("waiting up to %s for an opponent", wait),
		})
	}
	return ticket, nil
}

func (q *Queue) join(p session.Participant, wait time.Duration) (Ticket, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return Ticket{}, false, ErrClosed
	}
	if q.index(p.ID) >= 0 {
		return Ticket{}, false, ErrAlreadyQueued
	}
	if q.matcher.Busy(p.ID) {
		return Ticket{}, false, session.ErrParticipantBusy
	}

	now := q.clock.Now()
	ticket := Ticket{Player: p, JoinedAt: now, ExpiresAt: now.Add(wait)}

	for len(q.waiting) > 0 {
		opponent := q.waiting[0]
		q.waiting = q.waiting[1:]
		opponent.timer.Stop()

		if q.matcher.Busy(opponent.ticket.Player.ID) {
			q.logger.Debug("Dropping busy player from queue", "player", opponent.ticket.Player.ID)
			continue
		}

		s, err := q.matcher.StartMatch(opponent.ticket.Player, p, q.cfg.BestOf)
		if err != nil {
			q.requeue(opponent)
			return Ticket{}, false, fmt.Errorf("start match: %w", err)
		}
		q.logger.Info("Players matched",
			"session", s.ID,
			"a", opponent.ticket.Player.ID,
			"b", p.ID,
			"waited", now.Sub(opponent.ticket.JoinedAt))
		ticket.Session = s
		return ticket, false, nil
	}

	e := &entry{ticket: ticket}
	e.timer = q.clock.AfterFunc(wait, func() { q.expire(e) }, "queue", "expire")
	q.waiting = append(q.waiting, e)
	q.logger.Info("Player queued", "player", p.ID, "wait", wait)
	return ticket, true, nil
}

// requeue puts a player whose match could not start back at the head of the
// queue with the time they had left. A fresh entry keeps a stale timer
// callback from removing it.
func (q *Queue) requeue(old *entry) {
	e := &entry{ticket: old.ticket}
	remaining := e.ticket.ExpiresAt.Sub(q.clock.Now())
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	e.timer = q.clock.AfterFunc(remaining, func() { q.expire(e) }, "queue", "expire")
	q.waiting = append([]*entry{e}, q.waiting...)
}

// Leave removes playerID from the queue. It reports whether they were queued.
func (q *Queue) Leave(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.index(playerID)
	if i < 0 {
		return false
	}
	q.waiting[i].timer.Stop()
	q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
	q.logger.Info("Player left queue", "player", playerID)
	return true
}

func (q *Queue) expire(e *entry) {
	q.mu.Lock()
	found := false
	for i, w := range q.waiting {
		if w == e {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			found = true
			break
		}
	}
	q.mu.Unlock()

	if !found {
		return
	}
	waited := e.ticket.ExpiresAt.Sub(e.ticket.JoinedAt)
	q.logger.Info("Queue timer expired", "player", e.ticket.Player.ID, "waited", waited)
	q.notify(context.Background(), e.ticket.Player, session.Notice{
		Kind:   session.NoticeQueueExpired,
		Reason: fmt.Sprintf("no opponent found within %s", waited),
	})
}

// Waiting snapshots the queue, oldest first.
func (q *Queue) Waiting() []Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Ticket, len(q.waiting))
	for i, e := range q.waiting {
		out[i] = e.ticket
	}
	return out
}

// Close stops every queue timer and rejects further joins.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.waiting {
		e.timer.Stop()
	}
	q.waiting = nil
	q.closed = true
}

func (q *Queue) index(playerID string) int {
	for i, e := range q.waiting {
		if e.ticket.Player.ID == playerID {
			return i
		}
	}
	return -1
}

func (q *Queue) notify(ctx context.Context, to session.Participant, n session.Notice) {
	if err := q.notifier.Notify(ctx, to, n); err != nil {
		q.logger.Warn("Failed to deliver queue notice", "player", to.ID, "notice", n.Kind, "error", err)
	}
}
