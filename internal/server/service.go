package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lox/rpsbot/internal/leaderboard"
	"github.com/lox/rpsbot/internal/matchmaking"
	"github.com/lox/rpsbot/internal/rating"
	"github.com/lox/rpsbot/internal/session"
)

// ErrUnknownTier is returned for leaderboard requests naming no configured tier.
var ErrUnknownTier = errors.New("unknown tier")

// Service handles authenticated player requests on behalf of connections.
type Service struct {
	server      *Server
	coordinator *session.Coordinator
	queue       *matchmaking.Queue
	messenger   *Messenger
	store       rating.Store
	tiers       rating.TierTable
	board       *leaderboard.Refresher
	logger      *log.Logger
}

// ServiceOptions wires a Service.
type ServiceOptions struct {
	Coordinator *session.Coordinator
	Queue       *matchmaking.Queue
	Messenger   *Messenger
	Store       rating.Store
	Tiers       rating.TierTable
	Leaderboard *leaderboard.Refresher
}

// NewService creates a service and attaches it to server.
func NewService(server *Server, opts ServiceOptions, logger *log.Logger) *Service {
	svc := &Service{
		server:      server,
		coordinator: opts.Coordinator,
		queue:       opts.Queue,
		messenger:   opts.Messenger,
		store:       opts.Store,
		tiers:       opts.Tiers,
		board:       opts.Leaderboard,
		logger:      logger.WithPrefix("service"),
	}
	server.SetService(svc)
	return svc
}

// Challenge opens a challenge from p to the player named in data. The target
// must be connected to receive the prompt.
func (s *Service) Challenge(p session.Participant, data ChallengeData) (session.Info, error) {
	if data.TargetID == p.ID {
		return session.Info{}, session.ErrSelfChallenge
	}
	target, ok := s.server.Lookup(data.TargetID)
	if !ok {
		return session.Info{}, fmt.Errorf("%w: %s", ErrPlayerNotConnected, data.TargetID)
	}

	sess, err := s.coordinator.Challenge(p, target, data.BestOf)
	if err != nil {
		return session.Info{}, err
	}
	s.logger.Info("Challenge issued", "from", p.ID, "to", target.ID, "session", sess.ID)
	return sess.Info(), nil
}

// Respond answers a pending challenge prompt.
func (s *Service) Respond(p session.Participant, data RespondData) error {
	return s.messenger.HandleResponse(p.ID, data)
}

// Move submits a move for the current round.
func (s *Service) Move(p session.Participant, data MoveData) (int, error) {
	return s.messenger.HandleMove(p.ID, data)
}

// Queue enters matchmaking.
func (s *Service) Queue(ctx context.Context, p session.Participant, data QueueData) (matchmaking.Ticket, error) {
	return s.queue.Join(ctx, p, time.Duration(data.WaitMinutes)*time.Minute)
}

// Leave exits matchmaking.
func (s *Service) Leave(p session.Participant) bool {
	return s.queue.Leave(p.ID)
}

// Leaderboard returns the latest refreshed board, building one if none has
// been published yet. A non-empty tier narrows it to that tier.
func (s *Service) Leaderboard(ctx context.Context, tier string) (leaderboard.Board, error) {
	board, ok := s.board.Latest()
	if !ok {
		var err error
		if board, err = s.board.Build(ctx); err != nil {
			return leaderboard.Board{}, err
		}
	}
	if tier == "" {
		return board, nil
	}

	for _, st := range board.Standings {
		if strings.EqualFold(st.Tier.Name, tier) {
			return leaderboard.Board{GeneratedAt: board.GeneratedAt, Standings: []leaderboard.Standing{st}}, nil
		}
	}
	return leaderboard.Board{}, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
}

// Refresh rebuilds and republishes the leaderboard now rather than waiting
// for the schedule, then answers like Leaderboard.
func (s *Service) Refresh(ctx context.Context, tier string) (leaderboard.Board, error) {
	if err := s.board.Refresh(ctx); err != nil {
		return leaderboard.Board{}, err
	}
	s.logger.Info("Leaderboard refreshed on demand")
	return s.Leaderboard(ctx, tier)
}

// Profile returns a player's rating record.
func (s *Service) Profile(ctx context.Context, playerID string) (ProfileData, error) {
	rec, err := s.store.Get(ctx, playerID)
	if err != nil {
		return ProfileData{}, fmt.Errorf("load profile: %w", err)
	}
	return ProfileData{
		Record: rec,
		Tier:   s.tiers.Lookup(rec.Elo),
		Busy:   s.coordinator.Busy(playerID),
	}, nil
}

// Connected is called after a player authenticates.
func (s *Service) Connected(p session.Participant) {
	if n := s.messenger.Resend(p.ID); n > 0 {
		s.logger.Info("Resent pending prompts", "player", p.ID, "count", n)
	}
}

// Disconnected is called when a player's connection closes. They leave the
// queue; a running series carries on and times their moves out.
func (s *Service) Disconnected(p session.Participant) {
	if s.queue.Leave(p.ID) {
		s.logger.Info("Removed disconnected player from queue", "player", p.ID)
	}
}
