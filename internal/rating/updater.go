package rating

import (
	"math"
	"time"
)

// DefaultKFactor is the maximum elo a single series can move.
const DefaultKFactor = 32

// Updater computes post-series ratings. It holds only configuration, so
// Apply is a pure function of its inputs.
type Updater struct {
	kFactor float64
	tiers   TierTable
	now     func() time.Time
}

// NewUpdater creates an updater. A non-positive kFactor selects DefaultKFactor.
func NewUpdater(kFactor int, tiers TierTable) *Updater {
	if kFactor <= 0 {
		kFactor = DefaultKFactor
	}
	return &Updater{
		kFactor: float64(kFactor),
		tiers:   tiers,
	}
}

// WithClock sets the function used to stamp UpdatedAt. Without one the
// timestamp is left untouched, keeping Apply deterministic.
func (u *Updater) WithClock(now func() time.Time) *Updater {
	u.now = now
	return u
}

// Delta returns the elo the winner gains and the loser gives up. Beating a
// higher-rated opponent is worth more than beating a lower-rated one; the
// result is never negative.
func (u *Updater) Delta(winnerElo, loserElo int) int {
	expected := 1 / (1 + math.Pow(10, float64(loserElo-winnerElo)/400))
	delta := int(math.Round(u.kFactor * (1 - expected)))
	if delta < 0 {
		return 0
	}
	return delta
}

// Apply returns the winner's and loser's records after a completed series.
// Both players get a season game; the loser's elo never drops below zero.
func (u *Updater) Apply(winner, loser Record) (Record, Record) {
	delta := u.Delta(winner.Elo, loser.Elo)

	winner.Elo += delta
	winner.Wins++
	winner.SeasonGames++
	winner.Rank = u.tiers.Lookup(winner.Elo).Name

	loser.Elo = max(loser.Elo-delta, 0)
	loser.Losses++
	loser.SeasonGames++
	loser.Rank = u.tiers.Lookup(loser.Elo).Name

	if u.now != nil {
		ts := u.now()
		winner.UpdatedAt = ts
		loser.UpdatedAt = ts
	}

	return winner, loser
}

// Tiers returns the tier table used for rank lookups.
func (u *Updater) Tiers() TierTable {
	return u.tiers
}
