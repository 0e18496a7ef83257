package rating

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testUpdater() *Updater {
	return NewUpdater(32, MustTierTable(DefaultTiers))
}

func rec(id string, elo int) Record {
	return Record{PlayerID: id, Elo: elo, Rank: MustTierTable(DefaultTiers).Lookup(elo).Name}
}

func TestApplyEqualRatingsIsSymmetric(t *testing.T) {
	t.Parallel()
	u := testUpdater()

	winner, loser := u.Apply(rec("a", 1200), rec("b", 1200))

	assert.Equal(t, 1216, winner.Elo)
	assert.Equal(t, 1184, loser.Elo)
	assert.Equal(t, winner.Elo-1200, 1200-loser.Elo)
	assert.Equal(t, 1, winner.SeasonGames)
	assert.Equal(t, 1, loser.SeasonGames)
	assert.Equal(t, 1, winner.Wins)
	assert.Equal(t, 1, loser.Losses)
}

func TestApplyUpsetGainsMore(t *testing.T) {
	t.Parallel()
	u := testUpdater()

	favourite := u.Delta(1400, 1000)
	upset := u.Delta(1000, 1400)

	assert.Equal(t, 3, favourite)
	assert.Equal(t, 29, upset)
	assert.Less(t, favourite, upset)
}

func TestApplyIsDeterministicAndMonotonic(t *testing.T) {
	t.Parallel()
	u := testUpdater()

	for _, w := range []int{0, 600, 1200, 1800, 2600} {
		for _, l := range []int{0, 600, 1200, 1800, 2600} {
			w1, l1 := u.Apply(rec("w", w), rec("l", l))
			w2, l2 := u.Apply(rec("w", w), rec("l", l))

			assert.Equal(t, w1, w2)
			assert.Equal(t, l1, l2)
			assert.GreaterOrEqual(t, w1.Elo, w, "winner %d vs %d", w, l)
			assert.LessOrEqual(t, l1.Elo, l, "loser %d vs %d", w, l)
			assert.GreaterOrEqual(t, l1.Elo, 0)
		}
	}
}

func TestApplyRecomputesRank(t *testing.T) {
	t.Parallel()
	u := testUpdater()

	winner, loser := u.Apply(rec("a", 1295), rec("b", 1105))

	assert.Equal(t, "Gold", winner.Rank)
	assert.Equal(t, "Bronze", loser.Rank)

	change := Change{Before: rec("a", 1295), After: winner}
	assert.True(t, change.Promoted(u.Tiers()))
	assert.False(t, change.Demoted(u.Tiers()))
	assert.Positive(t, change.Delta())
}

func TestApplyStampsWithClock(t *testing.T) {
	t.Parallel()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	u := testUpdater().WithClock(func() time.Time { return ts })

	winner, loser := u.Apply(rec("a", 1200), rec("b", 1200))
	assert.Equal(t, ts, winner.UpdatedAt)
	assert.Equal(t, ts, loser.UpdatedAt)
}
