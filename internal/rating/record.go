package rating

import "time"

// Record is the persisted rating state of one player.
type Record struct {
	PlayerID    string    `json:"playerId"`
	Name        string    `json:"name"`
	Elo         int       `json:"elo"`
	Rank        string    `json:"rank"`
	SeasonGames int       `json:"seasonGames"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Defaults describes the record handed out for players with no history.
type Defaults struct {
	Elo   int
	Tiers TierTable
}

// Record returns a fresh record for playerID.
func (d Defaults) Record(playerID string) Record {
	return Record{
		PlayerID: playerID,
		Elo:      d.Elo,
		Rank:     d.Tiers.Lookup(d.Elo).Name,
	}
}

// Change describes a committed rating update for one player.
type Change struct {
	Before Record `json:"before"`
	After  Record `json:"after"`
}

// Delta is the elo movement of the change.
func (c Change) Delta() int {
	return c.After.Elo - c.Before.Elo
}

// Promoted reports whether the player moved into a higher tier.
func (c Change) Promoted(tiers TierTable) bool {
	return tiers.Compare(c.After.Rank, c.Before.Rank) > 0
}

// Demoted reports whether the player moved into a lower tier.
func (c Change) Demoted(tiers TierTable) bool {
	return tiers.Compare(c.After.Rank, c.Before.Rank) < 0
}
