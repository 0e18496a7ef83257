package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/lox/rpsbot/internal/rating"
)

// Config holds the coordinator's timing and series settings.
type Config struct {
	AcceptTimeout time.Duration
	MoveTimeout   time.Duration
	DefaultBestOf int
	MaxBestOf     int
	CommitRetries int
}

const (
	noticeTimeout  = 5 * time.Second
	shutdownReason = "server shutting down"
)

// DefaultConfig gives a 30 second acceptance window, 30 seconds per move
// and best-of-three series.
func DefaultConfig() Config {
	return Config{
		AcceptTimeout: 30 * time.Second,
		MoveTimeout:   DefaultMoveTimeout,
		DefaultBestOf: 3,
		MaxBestOf:     9,
		CommitRetries: 2,
	}
}

// Coordinator owns the life of every session: it registers challenges, runs
// the acceptance window, plays the series and commits the rating update.
// Each session runs on its own goroutine; a failure in one never touches
// another session's timers or registry entry.
type Coordinator struct {
	cfg       Config
	registry  *Registry
	messenger Messenger
	store     rating.Store
	updater   *rating.Updater
	engine    *SeriesEngine
	clock     quartz.Clock
	logger    *log.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewCoordinator wires a coordinator. Zero config values fall back to DefaultConfig.
func NewCoordinator(cfg Config, registry *Registry, messenger Messenger, store rating.Store, updater *rating.Updater, clock quartz.Clock, logger *log.Logger) *Coordinator {
	defaults := DefaultConfig()
	if cfg.AcceptTimeout <= 0 {
		cfg.AcceptTimeout = defaults.AcceptTimeout
	}
	if cfg.MoveTimeout <= 0 {
		cfg.MoveTimeout = defaults.MoveTimeout
	}
	if cfg.DefaultBestOf <= 0 {
		cfg.DefaultBestOf = defaults.DefaultBestOf
	}
	if cfg.MaxBestOf <= 0 {
		cfg.MaxBestOf = defaults.MaxBestOf
	}
	if cfg.CommitRetries < 0 {
		cfg.CommitRetries = 0
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	logger = logger.WithPrefix("coordinator")

	return &Coordinator{
		cfg:       cfg,
		registry:  registry,
		messenger: messenger,
		store:     store,
		updater:   updater,
		engine:    NewSeriesEngine(messenger, clock, cfg.MoveTimeout, logger),
		clock:     clock,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Registry returns the live session table.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Challenge registers a Pending session from initiator to target and starts
// its acceptance window. A bestOf of zero selects the configured default.
func (c *Coordinator) Challenge(initiator, target Participant, bestOf int) (*Session, error) {
	if initiator.ID == target.ID {
		return nil, ErrSelfChallenge
	}
	bestOf, err := c.bestOf(bestOf)
	if err != nil {
		return nil, err
	}
	return c.open(KindChallenge, initiator, target, bestOf)
}

// StartMatch registers a session between two players who were paired by the
// queue. There is no acceptance step: the session is accepted on creation.
func (c *Coordinator) StartMatch(a, b Participant, bestOf int) (*Session, error) {
	if a.ID == b.ID {
		return nil, ErrSelfChallenge
	}
	bestOf, err := c.bestOf(bestOf)
	if err != nil {
		return nil, err
	}
	return c.open(KindQueue, a, b, bestOf)
}

// Busy reports whether playerID is seated in a live session.
func (c *Coordinator) Busy(playerID string) bool {
	_, ok := c.registry.Active(playerID)
	return ok
}

func (c *Coordinator) bestOf(n int) (int, error) {
	if n == 0 {
		n = c.cfg.DefaultBestOf
	}
	if n < 1 || n%2 == 0 || n > c.cfg.MaxBestOf {
		return 0, fmt.Errorf("%w: got %d, max %d", ErrInvalidBestOf, n, c.cfg.MaxBestOf)
	}
	return n, nil
}

func (c *Coordinator) open(kind Kind, initiator, target Participant, bestOf int) (*Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrShuttingDown
	}

	now := c.clock.Now()
	s, err := c.registry.Register(Request{
		Kind:           kind,
		Initiator:      initiator,
		Target:         target,
		BestOf:         bestOf,
		CreatedAt:      now,
		AcceptDeadline: now.Add(c.cfg.AcceptTimeout),
	})
	if err != nil {
		return nil, err
	}
	if kind == KindQueue {
		s.Accept()
	}

	c.logger.Info("Session opened",
		"session", s.ID,
		"initiator", initiator.ID,
		"target", target.ID,
		"bestOf", bestOf)

	c.wg.Add(1)
	go c.run(s)
	return s, nil
}

// Shutdown stops accepting sessions, cancels every live one and waits for
// their goroutines to exit or ctx to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel(ErrShuttingDown)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) run(s *Session) {
	logger := c.logger.With("session", s.ID)
	ctx, cancel := context.WithCancelCause(c.ctx)

	defer c.wg.Done()
	defer c.registry.release(s)
	defer cancel(nil)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Session panicked", "panic", r)
			c.abandon(s, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if s.Status() == StatusPending && !c.awaitAcceptance(ctx, cancel, s, logger) {
		return
	}
	if !s.Start() {
		return
	}

	for _, p := range []Participant{s.Initiator, s.Target} {
		c.notify(p, Notice{
			Kind:      NoticeSeriesStarted,
			SessionID: s.ID,
			Opponent:  s.Opponent(p.ID),
			BestOf:    s.BestOf,
		})
	}

	outcome, err := c.engine.Run(ctx, s.ID, s.Initiator, s.Target, s.BestOf)

	var forfeit *ForfeitError
	switch {
	case errors.As(err, &forfeit):
		c.notifyForfeit(s, forfeit)
		s.Complete()
	case errors.Is(err, ErrShuttingDown):
		logger.Info("Series interrupted by shutdown")
		c.abandon(s, shutdownReason)
	case err != nil:
		logger.Error("Series failed", "error", err)
		c.abandon(s, err.Error())
	default:
		if err := c.commit(ctx, s, outcome, logger); err != nil {
			logger.Error("Rating commit failed", "error", err)
			c.abandon(s, "rating update failed")
			return
		}
		s.Complete()
	}
	logger.Info("Session closed", "status", s.Status())
}

// awaitAcceptance runs the acceptance window. The deadline timer and the
// target's response race on the session status; whichever transition lands
// first wins and the other becomes a no-op. It reports whether the session
// was accepted.
func (c *Coordinator) awaitAcceptance(ctx context.Context, cancel context.CancelCauseFunc, s *Session, logger *log.Logger) bool {
	timer := c.clock.AfterFunc(c.cfg.AcceptTimeout, func() {
		if s.Expire() {
			cancel(ErrAcceptTimeout)
		}
	}, "session", "accept")

	resp, err := c.messenger.PromptChallenge(ctx, s.Target, ChallengePrompt{
		SessionID: s.ID,
		From:      s.Initiator,
		BestOf:    s.BestOf,
		Deadline:  s.AcceptDeadline,
	})
	timer.Stop()

	if err == nil {
		switch {
		case resp == Accept && s.Accept():
			logger.Info("Challenge accepted")
			c.notifyBoth(s, NoticeChallengeAccepted)
			return true
		case resp == Decline && s.Decline():
			logger.Info("Challenge declined")
			c.notifyBoth(s, NoticeChallengeDeclined)
			return false
		}
	}

	if s.Status() == StatusExpired {
		logger.Info("Challenge expired")
		c.notifyBoth(s, NoticeChallengeExpired)
		return false
	}

	if errors.Is(context.Cause(ctx), ErrShuttingDown) {
		logger.Info("Challenge interrupted by shutdown")
		c.abandon(s, shutdownReason)
		return false
	}

	if err != nil && s.Abandon() {
		logger.Error("Challenge could not be delivered", "error", fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err))
		c.notify(s.Initiator, Notice{
			Kind:      NoticeChallengeFailed,
			SessionID: s.ID,
			Opponent:  s.Target,
			Reason:    "unable to reach player",
		})
	}
	return false
}

// commit applies the rating update for both participants as one
// transaction, retrying a failed write before giving up.
func (c *Coordinator) commit(ctx context.Context, s *Session, o *Outcome, logger *log.Logger) error {
	var winner, loser rating.Change

	apply := func(w, l rating.Record) (rating.Record, rating.Record, error) {
		if o.Winner.Name != "" {
			w.Name = o.Winner.Name
		}
		if o.Loser.Name != "" {
			l.Name = o.Loser.Name
		}
		newW, newL := c.updater.Apply(w, l)
		winner = rating.Change{Before: w, After: newW}
		loser = rating.Change{Before: l, After: newL}
		return newW, newL, nil
	}

	var err error
	for attempt := 0; attempt <= c.cfg.CommitRetries; attempt++ {
		if err = c.store.UpdatePair(ctx, o.Winner.ID, o.Loser.ID, apply); err == nil {
			break
		}
		logger.Warn("Rating update failed", "attempt", attempt+1, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err)
	}

	logger.Info("Ratings updated",
		"winner", o.Winner.ID, "winnerElo", winner.After.Elo,
		"loser", o.Loser.ID, "loserElo", loser.After.Elo,
		"delta", winner.Delta())

	if recorder, ok := c.store.(rating.SeriesRecorder); ok {
		summary := rating.SeriesSummary{
			SeriesID:    uuid.NewString(),
			SessionID:   s.ID,
			WinnerID:    o.Winner.ID,
			LoserID:     o.Loser.ID,
			BestOf:      o.BestOf,
			WinnerScore: o.WinnerScore,
			LoserScore:  o.LoserScore,
			Rounds:      len(o.Rounds),
			EloDelta:    winner.Delta(),
			FinishedAt:  c.clock.Now(),
		}
		if err := recorder.RecordSeries(ctx, summary); err != nil {
			logger.Warn("Failed to record series history", "error", err)
		}
	}

	c.notifySeriesResult(s, o.Winner, o.Loser, NoticeSeriesWon, ResultWin, o.WinnerScore, o.LoserScore, winner)
	c.notifySeriesResult(s, o.Loser, o.Winner, NoticeSeriesLost, ResultLoss, o.LoserScore, o.WinnerScore, loser)
	return nil
}

func (c *Coordinator) notifySeriesResult(s *Session, to, opponent Participant, kind NoticeKind, result Result, score, opponentScore int, change rating.Change) {
	c.notify(to, Notice{
		Kind:          kind,
		SessionID:     s.ID,
		Opponent:      opponent,
		BestOf:        s.BestOf,
		Result:        result,
		Score:         score,
		OpponentScore: opponentScore,
		Rating:        &change,
		Tier:          change.After.Rank,
	})

	tiers := c.updater.Tiers()
	switch {
	case change.Promoted(tiers):
		c.notify(to, Notice{Kind: NoticePromoted, SessionID: s.ID, Tier: change.After.Rank, Rating: &change})
	case change.Demoted(tiers):
		c.notify(to, Notice{Kind: NoticeDemoted, SessionID: s.ID, Tier: change.After.Rank, Rating: &change})
	}
}

func (c *Coordinator) notifyForfeit(s *Session, f *ForfeitError) {
	winner, hasWinner := f.Winner()
	for _, p := range []Participant{s.Initiator, s.Target} {
		result := ResultNone
		if hasWinner {
			result = ResultLoss
			if p.ID == winner.ID {
				result = ResultWin
			}
		}
		score, opponentScore := f.Series.ScoreA, f.Series.ScoreB
		if p.ID == f.Series.B.ID {
			score, opponentScore = opponentScore, score
		}
		reason := "opponent did not move in time"
		if f.Forfeited(p.ID) {
			reason = "no move received in time"
		}
		c.notify(p, Notice{
			Kind:          NoticeSeriesForfeited,
			SessionID:     s.ID,
			Opponent:      s.Opponent(p.ID),
			BestOf:        s.BestOf,
			Round:         f.Round,
			Result:        result,
			Score:         score,
			OpponentScore: opponentScore,
			Reason:        reason,
		})
	}
}

func (c *Coordinator) abandon(s *Session, reason string) {
	if !s.Abandon() {
		return
	}
	for _, p := range []Participant{s.Initiator, s.Target} {
		c.notify(p, Notice{
			Kind:      NoticeSeriesAbandoned,
			SessionID: s.ID,
			Opponent:  s.Opponent(p.ID),
			Reason:    reason,
		})
	}
}

func (c *Coordinator) notifyBoth(s *Session, kind NoticeKind) {
	for _, p := range []Participant{s.Initiator, s.Target} {
		c.notify(p, Notice{
			Kind:      kind,
			SessionID: s.ID,
			Opponent:  s.Opponent(p.ID),
			BestOf:    s.BestOf,
		})
	}
}

// notify is best effort. Notices outlive the session and coordinator
// contexts so expiry and shutdown notices still go out.
func (c *Coordinator) notify(to Participant, n Notice) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), noticeTimeout)
	defer cancel()
	if err := c.messenger.Notify(ctx, to, n); err != nil {
		c.logger.Warn("Failed to deliver notice", "player", to.ID, "notice", n.Kind, "error", err)
	}
}
