package rating

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-process Store used by tests and by servers run
// without a database.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]Record
	series   []SeriesSummary
	defaults Defaults
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(defaults Defaults) *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]Record),
		defaults: defaults,
	}
}

func (s *MemoryStore) Get(ctx context.Context, playerID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(playerID), nil
}

func (s *MemoryStore) get(playerID string) Record {
	if rec, ok := s.records[playerID]; ok {
		return rec
	}
	return s.defaults.Record(playerID)
}

func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.PlayerID] = rec
	return nil
}

// UpdatePair holds the store lock across read, fn and write.
func (s *MemoryStore) UpdatePair(ctx context.Context, a, b string, fn func(a, b Record) (Record, Record, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	newA, newB, err := fn(s.get(a), s.get(b))
	if err != nil {
		return err
	}
	s.records[a] = newA
	s.records[b] = newB
	return nil
}

func (s *MemoryStore) Leaderboard(ctx context.Context, tier string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, rec := range s.records {
		if rec.Rank == tier && rec.SeasonGames > 0 {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(x, y Record) int {
		if c := cmp.Compare(y.Elo, x.Elo); c != 0 {
			return c
		}
		return cmp.Compare(x.PlayerID, y.PlayerID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ResetSeason(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, rec := range s.records {
		if rec.SeasonGames > 0 {
			rec.SeasonGames = 0
			s.records[id] = rec
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) RecordSeries(ctx context.Context, summary SeriesSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series = append(s.series, summary)
	return nil
}

// Series returns the recorded history, oldest first.
func (s *MemoryStore) Series() []SeriesSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.series)
}
