package rating

import (
	"context"
	"time"
)

// Store persists rating records.
//
// Get never fails for unknown players; it returns the store's default record.
// UpdatePair is a read-modify-write transaction over two players: fn receives
// their current records and either both results are written or neither is.
type Store interface {
	Get(ctx context.Context, playerID string) (Record, error)
	Put(ctx context.Context, rec Record) error
	UpdatePair(ctx context.Context, a, b string, fn func(a, b Record) (Record, Record, error)) error
}

// LeaderboardReader serves the per-tier leaderboards. Only players with at
// least one season game are listed, highest elo first.
type LeaderboardReader interface {
	Leaderboard(ctx context.Context, tier string, limit int) ([]Record, error)
}

// SeasonResetter starts a new season by clearing every season game counter.
type SeasonResetter interface {
	ResetSeason(ctx context.Context) (int, error)
}

// SeriesSummary is the history entry written for every completed series.
type SeriesSummary struct {
	SeriesID    string    `json:"seriesId"`
	SessionID   string    `json:"sessionId"`
	WinnerID    string    `json:"winnerId"`
	LoserID     string    `json:"loserId"`
	BestOf      int       `json:"bestOf"`
	WinnerScore int       `json:"winnerScore"`
	LoserScore  int       `json:"loserScore"`
	Rounds      int       `json:"rounds"`
	EloDelta    int       `json:"eloDelta"`
	FinishedAt  time.Time `json:"finishedAt"`
}

// SeriesRecorder keeps a history of completed series.
type SeriesRecorder interface {
	RecordSeries(ctx context.Context, summary SeriesSummary) error
}
