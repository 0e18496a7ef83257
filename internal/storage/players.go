package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/lox/rpsbot/internal/rating"
)

const playerColumns = `player_id, name, elo, rank, season_games, wins, losses, updated_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store is a rating.Store backed by SQLite.
type Store struct {
	db       *sql.DB
	defaults rating.Defaults
	logger   *log.Logger
}

var (
	_ rating.Store             = (*Store)(nil)
	_ rating.LeaderboardReader = (*Store)(nil)
	_ rating.SeasonResetter    = (*Store)(nil)
	_ rating.SeriesRecorder    = (*Store)(nil)
)

// NewStore wraps an open database.
func NewStore(db *sql.DB, defaults rating.Defaults, logger *log.Logger) *Store {
	return &Store{
		db:       db,
		defaults: defaults,
		logger:   logger.WithPrefix("store"),
	}
}

func (s *Store) Get(ctx context.Context, playerID string) (rating.Record, error) {
	return s.get(ctx, s.db, playerID)
}

func (s *Store) get(ctx context.Context, q queryer, playerID string) (rating.Record, error) {
	row := q.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE player_id = ?`, playerID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s.defaults.Record(playerID), nil
	}
	if err != nil {
		return rating.Record{}, fmt.Errorf("failed to load player %s: %w", playerID, err)
	}
	return rec, nil
}

func (s *Store) Put(ctx context.Context, rec rating.Record) error {
	return s.put(ctx, s.db, rec)
}

func (s *Store) put(ctx context.Context, q queryer, rec rating.Record) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO players (`+playerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (player_id) DO UPDATE SET
			name = excluded.name,
			elo = excluded.elo,
			rank = excluded.rank,
			season_games = excluded.season_games,
			wins = excluded.wins,
			losses = excluded.losses,
			updated_at = excluded.updated_at`,
		rec.PlayerID, rec.Name, rec.Elo, rec.Rank, rec.SeasonGames, rec.Wins, rec.Losses, rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save player %s: %w", rec.PlayerID, err)
	}
	return nil
}

// UpdatePair runs the read-modify-write inside one transaction.
func (s *Store) UpdatePair(ctx context.Context, a, b string, fn func(a, b rating.Record) (rating.Record, rating.Record, error)) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Error("Rollback failed", "error", rbErr)
			}
		}
	}()

	recA, err := s.get(ctx, tx, a)
	if err != nil {
		return err
	}
	recB, err := s.get(ctx, tx, b)
	if err != nil {
		return err
	}

	newA, newB, err := fn(recA, recB)
	if err != nil {
		return err
	}

	if err = s.put(ctx, tx, newA); err != nil {
		return err
	}
	if err = s.put(ctx, tx, newB); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rating update: %w", err)
	}
	s.logger.Debug("Committed rating pair", "a", a, "b", b, "eloA", newA.Elo, "eloB", newB.Elo)
	return nil
}

func (s *Store) Leaderboard(ctx context.Context, tier string, limit int) ([]rating.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+playerColumns+`
		FROM players
		WHERE rank = ? AND season_games > 0
		ORDER BY elo DESC, player_id ASC
		LIMIT ?`, tier, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard for %s: %w", tier, err)
	}
	defer func() { _ = rows.Close() }()

	var out []rating.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read leaderboard row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) ResetSeason(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE players SET season_games = 0 WHERE season_games > 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset season: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.logger.Info("Season reset", "players", n)
	return int(n), nil
}

func (s *Store) RecordSeries(ctx context.Context, summary rating.SeriesSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO series (series_id, session_id, winner_id, loser_id, best_of,
			winner_score, loser_score, rounds, elo_delta, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.SeriesID, summary.SessionID, summary.WinnerID, summary.LoserID, summary.BestOf,
		summary.WinnerScore, summary.LoserScore, summary.Rounds, summary.EloDelta, summary.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record series %s: %w", summary.SeriesID, err)
	}
	return nil
}

// SeriesCount returns how many completed series involve playerID.
func (s *Store) SeriesCount(ctx context.Context, playerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM series WHERE winner_id = ? OR loser_id = ?`, playerID, playerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count series for %s: %w", playerID, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (rating.Record, error) {
	var rec rating.Record
	err := row.Scan(&rec.PlayerID, &rec.Name, &rec.Elo, &rec.Rank, &rec.SeasonGames, &rec.Wins, &rec.Losses, &rec.UpdatedAt)
	return rec, err
}
