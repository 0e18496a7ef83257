package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/rpsbot/internal/rps"
)

type runResult struct {
	outcome *Outcome
	err     error
}

func runAsync(ctx context.Context, e *SeriesEngine, bestOf int) <-chan runResult {
	out := make(chan runResult, 1)
	go func() {
		o, err := e.Run(ctx, "challenge-alice", alice, bob, bestOf)
		out <- runResult{o, err}
	}()
	return out
}

func awaitRun(t *testing.T, ch <-chan runResult) runResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("series did not finish")
		return runResult{}
	}
}

func TestSeriesRecord(t *testing.T) {
	s := NewSeries(alice, bob, 5)
	assert.Equal(t, 3, s.Threshold())

	s.Record(rps.Play(1, rps.Rock, rps.Scissors))
	s.Record(rps.Play(2, rps.Rock, rps.Rock))
	s.Record(rps.Play(3, rps.Rock, rps.Paper))
	s.Record(rps.Play(4, rps.Paper, rps.Rock))
	assert.False(t, s.Finished())
	assert.Equal(t, 1, s.Ties())

	s.Record(rps.Play(5, rps.Scissors, rps.Paper))
	require.True(t, s.Finished())

	o, ok := s.Outcome("x")
	require.True(t, ok)
	assert.Equal(t, alice, o.Winner)
	assert.Equal(t, 3, o.WinnerScore)
	assert.Equal(t, 1, o.LoserScore)
	assert.Len(t, o.Rounds, 5)

	s.Record(rps.Play(6, rps.Rock, rps.Paper))
	assert.Len(t, s.Rounds, 5, "finished series ignores further rounds")
}

func TestSeriesEngineRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("two straight wins end a best of three", func(t *testing.T) {
		f := newFakeMessenger()
		f.script("alice", rps.Rock, rps.Rock, rps.Rock)
		f.script("bob", rps.Scissors, rps.Scissors, rps.Paper)
		e := NewSeriesEngine(f, quartz.NewMock(t), 0, testLogger())

		o, err := e.Run(ctx, "challenge-alice", alice, bob, 3)
		require.NoError(t, err)
		assert.Equal(t, alice, o.Winner)
		assert.Equal(t, bob, o.Loser)
		assert.Equal(t, 2, o.WinnerScore)
		assert.Equal(t, 0, o.LoserScore)
		assert.Len(t, o.Rounds, 2)
		assert.Equal(t, 1, f.remaining("bob"), "no third round is requested")
		assert.Equal(t, 1, f.remaining("alice"))
	})

	t.Run("ties are replayed and never score", func(t *testing.T) {
		f := newFakeMessenger()
		f.script("alice", rps.Rock, rps.Paper, rps.Scissors, rps.Paper, rps.Scissors)
		f.script("bob", rps.Rock, rps.Paper, rps.Rock, rps.Rock, rps.Rock)
		e := NewSeriesEngine(f, quartz.NewMock(t), 0, testLogger())

		o, err := e.Run(ctx, "challenge-alice", alice, bob, 3)
		require.NoError(t, err)
		assert.Equal(t, bob, o.Winner)
		assert.Equal(t, 2, o.WinnerScore)
		assert.Equal(t, 1, o.LoserScore)
		assert.Len(t, o.Rounds, 5)
		assert.Equal(t, rps.Tie, o.Rounds[0].Outcome)
		assert.Equal(t, rps.Tie, o.Rounds[1].Outcome)
	})

	t.Run("round results are sent from each player's side", func(t *testing.T) {
		f := newFakeMessenger()
		f.script("alice", rps.Paper, rps.Paper)
		f.script("bob", rps.Rock, rps.Rock)
		e := NewSeriesEngine(f, quartz.NewMock(t), 0, testLogger())

		_, err := e.Run(ctx, "challenge-alice", alice, bob, 3)
		require.NoError(t, err)

		forAlice := f.noticesFor("alice")
		require.Len(t, forAlice, 2)
		assert.Equal(t, NoticeRoundResult, forAlice[0].Kind)
		assert.Equal(t, ResultWin, forAlice[0].Result)
		assert.Equal(t, rps.Paper, forAlice[0].Move)
		assert.Equal(t, rps.Rock, forAlice[0].OpponentMove)
		assert.Equal(t, 1, forAlice[0].Score)

		forBob := f.noticesFor("bob")
		require.Len(t, forBob, 2)
		assert.Equal(t, ResultLoss, forBob[1].Result)
		assert.Equal(t, rps.Rock, forBob[1].Move)
		assert.Equal(t, 0, forBob[1].Score)
		assert.Equal(t, 2, forBob[1].OpponentScore)
	})

	t.Run("missing move forfeits the series", func(t *testing.T) {
		mClock := quartz.NewMock(t)
		f := newFakeMessenger()
		f.script("alice", rps.Rock)
		e := NewSeriesEngine(f, mClock, 30*time.Second, testLogger())

		done := runAsync(ctx, e, 3)
		waitPrompted(t, f, 2)
		mClock.Advance(30 * time.Second).MustWait(ctx)

		res := awaitRun(t, done)
		var forfeit *ForfeitError
		require.ErrorAs(t, res.err, &forfeit)
		assert.Equal(t, []Participant{bob}, forfeit.Forfeiters)
		assert.Equal(t, 1, forfeit.Round)
		winner, ok := forfeit.Winner()
		require.True(t, ok)
		assert.Equal(t, alice, winner)
		assert.True(t, forfeit.Forfeited("bob"))
		assert.False(t, forfeit.Forfeited("alice"))
	})

	t.Run("both players missing has no winner", func(t *testing.T) {
		mClock := quartz.NewMock(t)
		f := newFakeMessenger()
		f.script("alice", rps.Rock)
		f.script("bob", rps.Scissors)
		e := NewSeriesEngine(f, mClock, 30*time.Second, testLogger())

		done := runAsync(ctx, e, 3)
		waitPrompted(t, f, 4)
		mClock.Advance(30 * time.Second).MustWait(ctx)

		res := awaitRun(t, done)
		var forfeit *ForfeitError
		require.ErrorAs(t, res.err, &forfeit)
		assert.Len(t, forfeit.Forfeiters, 2)
		assert.Equal(t, 2, forfeit.Round)
		assert.Equal(t, 1, forfeit.Series.ScoreA)
		_, ok := forfeit.Winner()
		assert.False(t, ok)
	})

	t.Run("a fast player does not extend the deadline", func(t *testing.T) {
		mClock := quartz.NewMock(t)
		f := newFakeMessenger()
		e := NewSeriesEngine(f, mClock, 30*time.Second, testLogger())

		done := runAsync(ctx, e, 1)
		waitPrompted(t, f, 2)
		mClock.Advance(10 * time.Second).MustWait(ctx)
		f.script("alice", rps.Paper)
		require.Eventually(t, func() bool { return f.remaining("alice") == 0 }, time.Second, time.Millisecond)
		mClock.Advance(20 * time.Second).MustWait(ctx)

		res := awaitRun(t, done)
		var forfeit *ForfeitError
		require.ErrorAs(t, res.err, &forfeit)
		assert.Equal(t, []Participant{bob}, forfeit.Forfeiters)
	})

	t.Run("messenger failure is a collaborator error", func(t *testing.T) {
		f := newFakeMessenger()
		f.fail("bob", errors.New("connection reset"))
		e := NewSeriesEngine(f, quartz.NewMock(t), 0, testLogger())

		_, err := e.Run(ctx, "challenge-alice", alice, bob, 3)
		require.ErrorIs(t, err, ErrCollaboratorUnavailable)
		var forfeit *ForfeitError
		assert.False(t, errors.As(err, &forfeit))
	})

	t.Run("a move that races the deadline is absent", func(t *testing.T) {
		mClock := quartz.NewMock(t)
		f := newFakeMessenger()
		f.script("alice", rps.Rock)
		f.answerLate("bob", rps.Paper)
		e := NewSeriesEngine(f, mClock, 30*time.Second, testLogger())

		done := runAsync(ctx, e, 1)
		waitPrompted(t, f, 2)
		require.Eventually(t, func() bool { return f.remaining("alice") == 0 }, time.Second, time.Millisecond)
		mClock.Advance(30 * time.Second).MustWait(ctx)

		res := awaitRun(t, done)
		var forfeit *ForfeitError
		require.ErrorAs(t, res.err, &forfeit)
		assert.Equal(t, []Participant{bob}, forfeit.Forfeiters)
		winner, ok := forfeit.Winner()
		require.True(t, ok)
		assert.Equal(t, alice, winner)
	})

	t.Run("a panicking messenger is a collaborator error", func(t *testing.T) {
		f := newFakeMessenger()
		f.explode("bob")
		e := NewSeriesEngine(f, quartz.NewMock(t), 0, testLogger())

		_, err := e.Run(ctx, "challenge-alice", alice, bob, 3)
		require.ErrorIs(t, err, ErrCollaboratorUnavailable)
		assert.Contains(t, err.Error(), "panicked")
	})

	t.Run("cancellation stops the series", func(t *testing.T) {
		f := newFakeMessenger()
		e := NewSeriesEngine(f, quartz.NewMock(t), 0, testLogger())
		runCtx, stop := context.WithCancel(ctx)

		done := runAsync(runCtx, e, 3)
		waitPrompted(t, f, 2)
		stop()

		res := awaitRun(t, done)
		require.ErrorIs(t, res.err, context.Canceled)
		assert.NotErrorIs(t, res.err, ErrCollaboratorUnavailable)
	})
}
