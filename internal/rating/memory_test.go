package rating

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore() *MemoryStore {
	return NewMemoryStore(Defaults{Elo: 1200, Tiers: MustTierTable(DefaultTiers)})
}

func TestMemoryStoreDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	got, err := testStore().Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, Record{PlayerID: "nobody", Elo: 1200, Rank: "Silver"}, got)
}

func TestMemoryStoreUpdatePairIsAllOrNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testStore()
	require.NoError(t, store.Put(ctx, Record{PlayerID: "a", Elo: 1500, Rank: "Platinum"}))

	boom := errors.New("boom")
	err := store.UpdatePair(ctx, "a", "b", func(a, b Record) (Record, Record, error) {
		a.Elo = 1
		return a, b, boom
	})
	require.ErrorIs(t, err, boom)

	a, _ := store.Get(ctx, "a")
	assert.Equal(t, 1500, a.Elo)
	_, known := store.records["b"]
	assert.False(t, known)

	u := NewUpdater(32, MustTierTable(DefaultTiers))
	require.NoError(t, store.UpdatePair(ctx, "a", "b", func(a, b Record) (Record, Record, error) {
		w, l := u.Apply(a, b)
		return w, l, nil
	}))
	a, _ = store.Get(ctx, "a")
	b, _ := store.Get(ctx, "b")
	assert.Greater(t, a.Elo, 1500)
	assert.Less(t, b.Elo, 1200)
}

func TestMemoryStoreConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			opponent := fmt.Sprintf("p%d", i)
			_ = store.UpdatePair(ctx, "hub", opponent, func(a, b Record) (Record, Record, error) {
				a.SeasonGames++
				b.SeasonGames++
				return a, b, nil
			})
		}(i)
	}
	wg.Wait()

	hub, err := store.Get(ctx, "hub")
	require.NoError(t, err)
	assert.Equal(t, 50, hub.SeasonGames)
}

func TestMemoryStoreLeaderboard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testStore()

	for _, r := range []Record{
		{PlayerID: "a", Elo: 1250, Rank: "Silver", SeasonGames: 3},
		{PlayerID: "b", Elo: 1290, Rank: "Silver", SeasonGames: 1},
		{PlayerID: "c", Elo: 1299, Rank: "Silver", SeasonGames: 0},
		{PlayerID: "d", Elo: 1350, Rank: "Gold", SeasonGames: 7},
		{PlayerID: "e", Elo: 1250, Rank: "Silver", SeasonGames: 2},
	} {
		require.NoError(t, store.Put(ctx, r))
	}

	board, err := store.Leaderboard(ctx, "Silver", 10)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, []string{"b", "a", "e"}, []string{board[0].PlayerID, board[1].PlayerID, board[2].PlayerID})

	board, err = store.Leaderboard(ctx, "Silver", 1)
	require.NoError(t, err)
	assert.Len(t, board, 1)

	n, err := store.ResetSeason(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	board, err = store.Leaderboard(ctx, "Gold", 10)
	require.NoError(t, err)
	assert.Empty(t, board)
}
