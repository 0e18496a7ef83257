package bot

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/rpsbot/internal/client"
	"github.com/lox/rpsbot/internal/randutil"
	"github.com/lox/rpsbot/internal/rps"
	"github.com/lox/rpsbot/internal/server"
	"github.com/lox/rpsbot/internal/session"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

type move struct {
	session string
	move    rps.Move
}

// fakeConn records what the bot sends and lets tests deliver messages.
type fakeConn struct {
	mu        sync.Mutex
	handlers  map[server.MessageType][]client.Handler
	auth      chan server.AuthData
	moves     []move
	responses map[string]bool
	queued    int
	done      chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		handlers:  make(map[server.MessageType][]client.Handler),
		auth:      make(chan server.AuthData, 1),
		responses: make(map[string]bool),
		done:      make(chan struct{}),
	}
}

func (f *fakeConn) On(t server.MessageType, h client.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[t] = append(f.handlers[t], h)
}

func (f *fakeConn) Auth(p server.AuthData) error {
	f.auth <- p
	return nil
}

func (f *fakeConn) Respond(sessionID string, accept bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[sessionID] = accept
	return nil
}

func (f *fakeConn) Move(sessionID string, m rps.Move) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, move{sessionID, m})
	return nil
}

func (f *fakeConn) Queue(time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued++
	return nil
}

func (f *fakeConn) Done() <-chan struct{} { return f.done }

func (f *fakeConn) deliver(t *testing.T, typ server.MessageType, data any) {
	t.Helper()
	msg, err := server.NewMessage(typ, data)
	require.NoError(t, err)

	f.mu.Lock()
	handlers := f.handlers[typ]
	f.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

func (f *fakeConn) queueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queued
}

func (f *fakeConn) lastMove() move {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.moves[len(f.moves)-1]
}

var me = session.Participant{ID: "bot-1", Name: "Botty"}

type runResult struct {
	stats Stats
	err   error
}

func start(t *testing.T, conn *fakeConn, opts Options) (*Bot, <-chan runResult) {
	t.Helper()
	b := New(conn, opts, testLogger())
	done := make(chan runResult, 1)
	go func() {
		stats, err := b.Run(context.Background())
		done <- runResult{stats, err}
	}()

	select {
	case auth := <-conn.auth:
		assert.Equal(t, me.ID, auth.PlayerID)
		assert.Equal(t, me.Name, auth.PlayerName)
	case <-time.After(time.Second):
		t.Fatal("bot did not authenticate")
	}
	return b, done
}

func TestBotPlaysQueuedSeries(t *testing.T) {
	conn := newFakeConn()
	_, done := start(t, conn, Options{Player: me, Strategy: Counter(Constant(rps.Rock)), Queue: true, Series: 2})

	conn.deliver(t, server.MessageTypeAuthResponse, server.AuthResponseData{Success: true, PlayerID: me.ID})
	require.Eventually(t, func() bool { return conn.queueCount() == 1 }, time.Second, time.Millisecond)

	conn.deliver(t, server.MessageTypeMovePrompt, server.MovePromptData{SessionID: "queue-x", Round: 1})
	assert.Equal(t, move{"queue-x", rps.Rock}, conn.lastMove())

	conn.deliver(t, server.MessageTypeNotice, session.Notice{
		Kind: session.NoticeRoundResult, SessionID: "queue-x", Round: 1,
		Move: rps.Rock, OpponentMove: rps.Scissors, Result: session.ResultWin,
	})
	conn.deliver(t, server.MessageTypeMovePrompt, server.MovePromptData{SessionID: "queue-x", Round: 2})
	assert.Equal(t, move{"queue-x", rps.Rock}, conn.lastMove(), "counters scissors")

	conn.deliver(t, server.MessageTypeNotice, session.Notice{Kind: session.NoticeSeriesWon, SessionID: "queue-x", Score: 2})
	assert.Equal(t, 2, conn.queueCount(), "requeues after a series")

	conn.deliver(t, server.MessageTypeMovePrompt, server.MovePromptData{SessionID: "queue-y", Round: 1})
	assert.Equal(t, move{"queue-y", rps.Rock}, conn.lastMove(), "history is per series")

	conn.deliver(t, server.MessageTypeNotice, session.Notice{Kind: session.NoticeSeriesForfeited, SessionID: "queue-y"})

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, Stats{Won: 1, Forfeited: 1}, res.stats)
	assert.Equal(t, 2, conn.queueCount(), "does not requeue once finished")
}

func TestBotAnswersChallenges(t *testing.T) {
	for _, accept := range []bool{true, false} {
		conn := newFakeConn()
		b, _ := start(t, conn, Options{Player: me, Strategy: Cycle(), Accept: accept})
		conn.deliver(t, server.MessageTypeAuthResponse, server.AuthResponseData{Success: true})

		conn.deliver(t, server.MessageTypeChallengePrompt, server.ChallengePromptData{SessionID: "challenge-z", BestOf: 3})
		conn.mu.Lock()
		got, ok := conn.responses["challenge-z"]
		conn.mu.Unlock()
		require.True(t, ok)
		assert.Equal(t, accept, got)
		assert.Zero(t, conn.queueCount())
		assert.Zero(t, b.Stats().Total())
	}
}

func TestBotRequeuesAfterExpiry(t *testing.T) {
	conn := newFakeConn()
	_, _ = start(t, conn, Options{Player: me, Strategy: Cycle(), Queue: true})
	conn.deliver(t, server.MessageTypeAuthResponse, server.AuthResponseData{Success: true})
	require.Eventually(t, func() bool { return conn.queueCount() == 1 }, time.Second, time.Millisecond)

	conn.deliver(t, server.MessageTypeNotice, session.Notice{Kind: session.NoticeQueueExpired})
	assert.Equal(t, 2, conn.queueCount())
}

func TestBotStops(t *testing.T) {
	t.Run("auth rejected", func(t *testing.T) {
		conn := newFakeConn()
		_, done := start(t, conn, Options{Player: me, Strategy: Cycle()})
		conn.deliver(t, server.MessageTypeAuthResponse, server.AuthResponseData{Error: "player already connected"})
		res := <-done
		require.ErrorContains(t, res.err, "already connected")
	})

	t.Run("disconnected", func(t *testing.T) {
		conn := newFakeConn()
		_, done := start(t, conn, Options{Player: me, Strategy: Cycle()})
		conn.deliver(t, server.MessageTypeAuthResponse, server.AuthResponseData{Success: true})
		close(conn.done)
		require.ErrorIs(t, (<-done).err, ErrDisconnected)
	})
}

func TestStrategies(t *testing.T) {
	rng := randutil.New(1)

	t.Run("cycle", func(t *testing.T) {
		s := Cycle()
		assert.Equal(t, rps.Rock, s.Next(nil))
		assert.Equal(t, rps.Paper, s.Next(make([]Round, 1)))
		assert.Equal(t, rps.Scissors, s.Next(make([]Round, 2)))
		assert.Equal(t, rps.Rock, s.Next(make([]Round, 3)))
	})

	t.Run("counter", func(t *testing.T) {
		s := Counter(Constant(rps.Scissors))
		assert.Equal(t, rps.Scissors, s.Next(nil))
		assert.Equal(t, rps.Paper, s.Next([]Round{{Mine: rps.Rock, Theirs: rps.Rock}}))
		assert.Equal(t, rps.Scissors, s.Next([]Round{{Mine: rps.Rock, Theirs: 0}}), "forfeited rounds fall back")
	})

	t.Run("random is always valid", func(t *testing.T) {
		s := Random(rng)
		for range 100 {
			assert.True(t, s.Next(nil).Valid())
		}
	})

	t.Run("lookup", func(t *testing.T) {
		assert.Equal(t, []string{"counter", "cycle", "random", "rock"}, Strategies())
		s, err := NewStrategy("rock", rng)
		require.NoError(t, err)
		assert.Equal(t, rps.Rock, s.Next(nil))

		_, err = NewStrategy("lizard", rng)
		require.ErrorContains(t, err, "unknown strategy")
	})
}
