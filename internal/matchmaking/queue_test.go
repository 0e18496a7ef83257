package matchmaking

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/rpsbot/internal/session"
)

type fakeMatcher struct {
	mu      sync.Mutex
	busy    map[string]bool
	matches [][2]session.Participant
	err     error
}

func newFakeMatcher() *fakeMatcher {
	return &fakeMatcher{busy: make(map[string]bool)}
}

func (m *fakeMatcher) StartMatch(a, b session.Participant, bestOf int) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.matches = append(m.matches, [2]session.Participant{a, b})
	return &session.Session{ID: session.IDFor(session.KindQueue, a.ID), Initiator: a, Target: b, BestOf: bestOf}, nil
}

func (m *fakeMatcher) Busy(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy[id]
}

func (m *fakeMatcher) setBusy(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy[id] = true
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices map[string][]session.Notice
}

func (n *recordingNotifier) Notify(_ context.Context, to session.Participant, notice session.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.notices == nil {
		n.notices = make(map[string][]session.Notice)
	}
	n.notices[to.ID] = append(n.notices[to.ID], notice)
	return nil
}

func (n *recordingNotifier) kinds(id string) []session.NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []session.NoticeKind
	for _, notice := range n.notices[id] {
		out = append(out, notice.Kind)
	}
	return out
}

var (
	ann = session.Participant{ID: "ann", Name: "Ann"}
	ben = session.Participant{ID: "ben", Name: "Ben"}
	cat = session.Participant{ID: "cat", Name: "Cat"}
)

func newTestQueue(t *testing.T) (*Queue, *fakeMatcher, *recordingNotifier, *quartz.Mock) {
	t.Helper()
	matcher := newFakeMatcher()
	notifier := &recordingNotifier{}
	clock := quartz.NewMock(t)
	logger := log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
	q := NewQueue(Config{BestOf: 3}, matcher, notifier, clock, logger)
	t.Cleanup(q.Close)
	return q, matcher, notifier, clock
}

func TestQueueJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("second player is paired with the first", func(t *testing.T) {
		q, matcher, notifier, _ := newTestQueue(t)

		first, err := q.Join(ctx, ann, 5*time.Minute)
		require.NoError(t, err)
		assert.Nil(t, first.Session)
		assert.Equal(t, 5*time.Minute, first.ExpiresAt.Sub(first.JoinedAt))
		assert.Equal(t, []session.NoticeKind{session.NoticeQueueJoined}, notifier.kinds("ann"))

		second, err := q.Join(ctx, ben, 0)
		require.NoError(t, err)
		require.NotNil(t, second.Session)
		assert.Equal(t, "queue-ann", second.Session.ID)
		assert.Equal(t, 3, second.Session.BestOf)
		assert.Equal(t, [][2]session.Participant{{ann, ben}}, matcher.matches)
		assert.Empty(t, q.Waiting())
		assert.Empty(t, notifier.kinds("ben"))
	})

	t.Run("queued player cannot join twice", func(t *testing.T) {
		q, _, _, _ := newTestQueue(t)
		_, err := q.Join(ctx, ann, 0)
		require.NoError(t, err)

		_, err = q.Join(ctx, ann, 0)
		require.ErrorIs(t, err, ErrAlreadyQueued)
		assert.Len(t, q.Waiting(), 1)
	})

	t.Run("player in a session cannot join", func(t *testing.T) {
		q, matcher, _, _ := newTestQueue(t)
		matcher.setBusy("ann")

		_, err := q.Join(ctx, ann, 0)
		require.ErrorIs(t, err, session.ErrParticipantBusy)
		assert.Empty(t, q.Waiting())
	})

	t.Run("wait must be between one and sixty minutes", func(t *testing.T) {
		q, _, _, _ := newTestQueue(t)
		for _, wait := range []time.Duration{30 * time.Second, 61 * time.Minute, -time.Minute} {
			_, err := q.Join(ctx, ann, wait)
			require.ErrorIs(t, err, ErrInvalidWait, "wait %s", wait)
		}

		ticket, err := q.Join(ctx, ann, 0)
		require.NoError(t, err)
		assert.Equal(t, 10*time.Minute, ticket.ExpiresAt.Sub(ticket.JoinedAt))
	})

	t.Run("waiting player who became busy is skipped", func(t *testing.T) {
		q, matcher, _, _ := newTestQueue(t)
		_, err := q.Join(ctx, ann, 0)
		require.NoError(t, err)
		matcher.setBusy("ann")

		ticket, err := q.Join(ctx, ben, 0)
		require.NoError(t, err)
		assert.Nil(t, ticket.Session)
		waiting := q.Waiting()
		require.Len(t, waiting, 1)
		assert.Equal(t, ben, waiting[0].Player)
		assert.Empty(t, matcher.matches)
	})

	t.Run("failed match keeps the waiting player at the front", func(t *testing.T) {
		q, matcher, _, _ := newTestQueue(t)
		_, err := q.Join(ctx, ann, 0)
		require.NoError(t, err)
		_, err = q.Join(ctx, cat, 0)
		require.NoError(t, err)
		matcher.err = errors.New("shutting down")

		_, err = q.Join(ctx, ben, 0)
		require.Error(t, err)

		waiting := q.Waiting()
		require.Len(t, waiting, 2)
		assert.Equal(t, ann, waiting[0].Player)
		assert.Equal(t, cat, waiting[1].Player)
	})

	t.Run("closed queue rejects joins", func(t *testing.T) {
		q, _, _, _ := newTestQueue(t)
		q.Close()
		_, err := q.Join(ctx, ann, 0)
		require.ErrorIs(t, err, ErrClosed)
	})
}

func TestQueueTimer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("expiry removes and notifies the player", func(t *testing.T) {
		q, _, notifier, clock := newTestQueue(t)
		_, err := q.Join(ctx, ann, 5*time.Minute)
		require.NoError(t, err)

		clock.Advance(5 * time.Minute).MustWait(ctx)

		assert.Empty(t, q.Waiting())
		assert.Equal(t, []session.NoticeKind{
			session.NoticeQueueJoined,
			session.NoticeQueueExpired,
		}, notifier.kinds("ann"))
	})

	t.Run("leaving stops the timer", func(t *testing.T) {
		q, _, notifier, clock := newTestQueue(t)
		_, err := q.Join(ctx, ann, 5*time.Minute)
		require.NoError(t, err)

		assert.True(t, q.Leave("ann"))
		assert.False(t, q.Leave("ann"))

		clock.Advance(10 * time.Minute).MustWait(ctx)
		assert.NotContains(t, notifier.kinds("ann"), session.NoticeQueueExpired)
	})

	t.Run("paired player's timer never fires", func(t *testing.T) {
		q, _, notifier, clock := newTestQueue(t)
		_, err := q.Join(ctx, ann, 5*time.Minute)
		require.NoError(t, err)
		_, err = q.Join(ctx, ben, 0)
		require.NoError(t, err)

		clock.Advance(10 * time.Minute).MustWait(ctx)
		assert.NotContains(t, notifier.kinds("ann"), session.NoticeQueueExpired)
	})
}
