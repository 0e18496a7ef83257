package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/rpsbot/internal/rps"
)

// DefaultMoveTimeout is how long each participant has to submit a move.
const DefaultMoveTimeout = 30 * time.Second

// SeriesStatus is the state of a series.
type SeriesStatus int

const (
	SeriesRunning SeriesStatus = iota
	SeriesFinished
)

// Series tracks the score of a best-of-N sequence of rounds. Seat A is the
// session initiator.
type Series struct {
	A, B   Participant
	BestOf int
	ScoreA int
	ScoreB int
	Rounds []rps.RoundResult
	Status SeriesStatus
}

// NewSeries starts an empty series.
func NewSeries(a, b Participant, bestOf int) *Series {
	return &Series{A: a, B: b, BestOf: bestOf}
}

// Threshold is the number of round wins that takes the series.
func (s *Series) Threshold() int {
	return s.BestOf/2 + 1
}

// NextRound is the number of the round about to be played.
func (s *Series) NextRound() int {
	return len(s.Rounds) + 1
}

// Record adds a resolved round. Ties are kept in the history but score
// nothing. The series finishes the moment either score reaches the threshold.
func (s *Series) Record(r rps.RoundResult) {
	if s.Status == SeriesFinished {
		return
	}
	s.Rounds = append(s.Rounds, r)
	switch r.Outcome {
	case rps.AWins:
		s.ScoreA++
	case rps.BWins:
		s.ScoreB++
	}
	if s.ScoreA >= s.Threshold() || s.ScoreB >= s.Threshold() {
		s.Status = SeriesFinished
	}
}

// Finished reports whether a winner has been decided.
func (s *Series) Finished() bool {
	return s.Status == SeriesFinished
}

// Ties counts drawn rounds.
func (s *Series) Ties() int {
	return len(s.Rounds) - s.ScoreA - s.ScoreB
}

// Outcome is the result of a series that reached its threshold.
type Outcome struct {
	SessionID   string            `json:"sessionId"`
	Winner      Participant       `json:"winner"`
	Loser       Participant       `json:"loser"`
	BestOf      int               `json:"bestOf"`
	WinnerScore int               `json:"winnerScore"`
	LoserScore  int               `json:"loserScore"`
	Rounds      []rps.RoundResult `json:"rounds"`
}

// Outcome returns the final result of a finished series.
func (s *Series) Outcome(sessionID string) (*Outcome, bool) {
	if !s.Finished() {
		return nil, false
	}
	o := &Outcome{
		SessionID: sessionID,
		BestOf:    s.BestOf,
		Rounds:    append([]rps.RoundResult(nil), s.Rounds...),
	}
	if s.ScoreA > s.ScoreB {
		o.Winner, o.Loser = s.A, s.B
		o.WinnerScore, o.LoserScore = s.ScoreA, s.ScoreB
	} else {
		o.Winner, o.Loser = s.B, s.A
		o.WinnerScore, o.LoserScore = s.ScoreB, s.ScoreA
	}
	return o, true
}

// ForfeitError ends a series in which at least one participant failed to
// submit a move in time. With a single forfeiter the other side wins the
// series; with two there is no winner. Ratings are untouched either way.
type ForfeitError struct {
	Forfeiters []Participant
	Round      int
	Series     *Series
}

func (e *ForfeitError) Error() string {
	names := make([]string, len(e.Forfeiters))
	for i, p := range e.Forfeiters {
		names[i] = p.String()
	}
	return fmt.Sprintf("series abandoned in round %d: no move from %s", e.Round, strings.Join(names, ", "))
}

// Winner returns the participant who stayed when exactly one side forfeited.
func (e *ForfeitError) Winner() (Participant, bool) {
	if len(e.Forfeiters) != 1 {
		return Participant{}, false
	}
	if e.Forfeiters[0].ID == e.Series.A.ID {
		return e.Series.B, true
	}
	return e.Series.A, true
}

// Forfeited reports whether playerID failed to move.
func (e *ForfeitError) Forfeited(playerID string) bool {
	for _, p := range e.Forfeiters {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

// SeriesEngine plays best-of-N series over a Messenger.
type SeriesEngine struct {
	messenger   Messenger
	clock       quartz.Clock
	moveTimeout time.Duration
	logger      *log.Logger
}

// NewSeriesEngine creates an engine. A non-positive moveTimeout selects DefaultMoveTimeout.
func NewSeriesEngine(messenger Messenger, clock quartz.Clock, moveTimeout time.Duration, logger *log.Logger) *SeriesEngine {
	if moveTimeout <= 0 {
		moveTimeout = DefaultMoveTimeout
	}
	return &SeriesEngine{
		messenger:   messenger,
		clock:       clock,
		moveTimeout: moveTimeout,
		logger:      logger.WithPrefix("series"),
	}
}

// Run plays rounds between a and b until one of them reaches the majority of
// bestOf. Rounds are strictly sequential. It returns a *ForfeitError when a
// move is missing, and an error wrapping ErrCollaboratorUnavailable when the
// messenger fails.
func (e *SeriesEngine) Run(ctx context.Context, sessionID string, a, b Participant, bestOf int) (*Outcome, error) {
	series := NewSeries(a, b, bestOf)
	logger := e.logger.With("session", sessionID)
	logger.Info("Series started", "a", a.ID, "b", b.ID, "bestOf", bestOf)

	for !series.Finished() {
		if err := ctx.Err(); err != nil {
			return nil, context.Cause(ctx)
		}

		round := series.NextRound()
		moves, missing, err := e.collect(ctx, sessionID, series)
		if err != nil {
			return nil, err
		}
		if len(missing) > 0 {
			logger.Warn("Move timeout", "round", round, "forfeiters", len(missing))
			return nil, &ForfeitError{Forfeiters: missing, Round: round, Series: series}
		}

		result := rps.Play(round, moves[0], moves[1])
		series.Record(result)
		logger.Debug("Round resolved",
			"round", round,
			"moveA", result.MoveA,
			"moveB", result.MoveB,
			"outcome", result.Outcome,
			"score", fmt.Sprintf("%d-%d", series.ScoreA, series.ScoreB))

		e.notifyRound(ctx, sessionID, series, result)
	}

	outcome, _ := series.Outcome(sessionID)
	logger.Info("Series finished",
		"winner", outcome.Winner.ID,
		"score", fmt.Sprintf("%d-%d", outcome.WinnerScore, outcome.LoserScore),
		"rounds", len(outcome.Rounds))
	return outcome, nil
}

// collect requests both moves at once under a single round deadline. A
// participant who has not answered when the deadline fires is reported as
// missing; one slow participant never extends the other's window.
func (e *SeriesEngine) collect(ctx context.Context, sessionID string, series *Series) ([2]rps.Move, []Participant, error) {
	var moves [2]rps.Move

	roundCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	deadline := e.clock.Now().Add(e.moveTimeout)
	timer := e.clock.AfterFunc(e.moveTimeout, func() { cancel(ErrMoveTimeout) }, "series", "move")
	defer timer.Stop()

	seats := [2]Participant{series.A, series.B}
	scores := [2]int{series.ScoreA, series.ScoreB}

	g, gctx := errgroup.WithContext(roundCtx)
	for i := range seats {
		prompt := MovePrompt{
			SessionID:     sessionID,
			Opponent:      seats[1-i],
			Round:         series.NextRound(),
			BestOf:        series.BestOf,
			Score:         scores[i],
			OpponentScore: scores[1-i],
			Deadline:      deadline,
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: move prompt to %s panicked: %v", ErrCollaboratorUnavailable, seats[i].ID, r)
				}
			}()

			move, err := e.messenger.PromptMove(gctx, seats[i], prompt)
			if err == nil {
				// A reply that races the deadline is still late.
				if move.Valid() && !errors.Is(context.Cause(roundCtx), ErrMoveTimeout) {
					moves[i] = move
				}
				return nil
			}
			if errors.Is(context.Cause(roundCtx), ErrMoveTimeout) {
				return nil
			}
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			return fmt.Errorf("%w: move prompt to %s: %v", ErrCollaboratorUnavailable, seats[i].ID, err)
		})
	}

	if err := g.Wait(); err != nil {
		return moves, nil, err
	}

	var missing []Participant
	for i, m := range moves {
		if !m.Valid() {
			missing = append(missing, seats[i])
		}
	}
	return moves, missing, nil
}

func (e *SeriesEngine) notifyRound(ctx context.Context, sessionID string, series *Series, r rps.RoundResult) {
	seats := [2]Participant{series.A, series.B}
	moves := [2]rps.Move{r.MoveA, r.MoveB}
	scores := [2]int{series.ScoreA, series.ScoreB}

	for i, to := range seats {
		outcome := r.Outcome
		if i == 1 {
			outcome = outcome.Mirror()
		}
		n := Notice{
			Kind:          NoticeRoundResult,
			SessionID:     sessionID,
			Opponent:      seats[1-i],
			BestOf:        series.BestOf,
			Round:         r.Round,
			Move:          moves[i],
			OpponentMove:  moves[1-i],
			Result:        roundResult(outcome),
			Score:         scores[i],
			OpponentScore: scores[1-i],
		}
		if err := e.messenger.Notify(ctx, to, n); err != nil {
			e.logger.Warn("Failed to deliver round result", "session", sessionID, "player", to.ID, "error", err)
		}
	}
}

func roundResult(o rps.Outcome) Result {
	switch o {
	case rps.AWins:
		return ResultWin
	case rps.BWins:
		return ResultLoss
	default:
		return ResultTie
	}
}
