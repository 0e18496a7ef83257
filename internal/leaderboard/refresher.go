// Package leaderboard builds per-tier standings from the rating store and
// publishes them on a schedule.
package leaderboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/rpsbot/internal/rating"
)

// DefaultSize is the number of players listed per tier.
const DefaultSize = 10

// Standing is the top of one tier.
type Standing struct {
	Tier    rating.Tier     `json:"tier"`
	Records []rating.Record `json:"records"`
}

// Board is every tier's standing, highest tier first.
type Board struct {
	GeneratedAt time.Time  `json:"generatedAt"`
	Standings   []Standing `json:"standings"`
}

// Publisher receives freshly built boards.
type Publisher interface {
	Publish(ctx context.Context, board Board) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, board Board) error

func (f PublisherFunc) Publish(ctx context.Context, board Board) error {
	return f(ctx, board)
}

// Refresher reads the store and hands boards to a Publisher.
type Refresher struct {
	reader    rating.LeaderboardReader
	tiers     rating.TierTable
	size      int
	publisher Publisher
	clock     quartz.Clock
	logger    *log.Logger

	mu   sync.RWMutex
	last Board
}

// NewRefresher creates a refresher listing size players per tier. A nil
// publisher only caches the latest board.
func NewRefresher(reader rating.LeaderboardReader, tiers rating.TierTable, size int, publisher Publisher, clock quartz.Clock, logger *log.Logger) *Refresher {
	if size <= 0 {
		size = DefaultSize
	}
	return &Refresher{
		reader:    reader,
		tiers:     tiers,
		size:      size,
		publisher: publisher,
		clock:     clock,
		logger:    logger.WithPrefix("leaderboard"),
	}
}

// Build reads the top players of every tier, highest tier first. Players
// with no games this season are left out by the store.
func (r *Refresher) Build(ctx context.Context) (Board, error) {
	tiers := r.tiers.Tiers()
	board := Board{
		GeneratedAt: r.clock.Now(),
		Standings:   make([]Standing, 0, len(tiers)),
	}
	for i := len(tiers) - 1; i >= 0; i-- {
		records, err := r.reader.Leaderboard(ctx, tiers[i].Name, r.size)
		if err != nil {
			return Board{}, fmt.Errorf("read %s leaderboard: %w", tiers[i].Name, err)
		}
		board.Standings = append(board.Standings, Standing{Tier: tiers[i], Records: records})
	}
	return board, nil
}

// Refresh builds a board, caches it and publishes it.
func (r *Refresher) Refresh(ctx context.Context) error {
	board, err := r.Build(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.last = board
	r.mu.Unlock()

	players := 0
	for _, s := range board.Standings {
		players += len(s.Records)
	}
	r.logger.Debug("Leaderboard refreshed", "tiers", len(board.Standings), "players", players)

	if r.publisher == nil {
		return nil
	}
	if err := r.publisher.Publish(ctx, board); err != nil {
		return fmt.Errorf("publish leaderboard: %w", err)
	}
	return nil
}

// Latest returns the most recently refreshed board.
func (r *Refresher) Latest() (Board, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, !r.last.GeneratedAt.IsZero()
}
