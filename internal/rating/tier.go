package rating

import (
	"errors"
	"fmt"
	"sort"
)

// Tier is a named rank band. A player belongs to the tier with the highest
// floor that does not exceed their elo.
type Tier struct {
	Name  string
	Floor int
	Color string // hex colour used by the leaderboard output, may be empty
}

// TierTable is an ordered set of tiers, lowest floor first.
type TierTable struct {
	tiers []Tier
}

// DefaultTiers is used when the configuration does not declare any tiers.
var DefaultTiers = []Tier{
	{Name: "Bronze", Floor: 0, Color: "#cd7f32"},
	{Name: "Silver", Floor: 1100, Color: "#c0c0c0"},
	{Name: "Gold", Floor: 1300, Color: "#ffd700"},
	{Name: "Platinum", Floor: 1500, Color: "#4fc1b0"},
	{Name: "Diamond", Floor: 1700, Color: "#74b9ff"},
	{Name: "Master", Floor: 1900, Color: "#a29bfe"},
}

// NewTierTable sorts tiers by floor and rejects empty tables, blank names,
// and duplicate floors or names.
func NewTierTable(tiers []Tier) (TierTable, error) {
	if len(tiers) == 0 {
		return TierTable{}, errors.New("tier table must contain at least one tier")
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Floor < sorted[j].Floor })

	names := make(map[string]bool, len(sorted))
	for i, tier := range sorted {
		if tier.Name == "" {
			return TierTable{}, fmt.Errorf("tier with floor %d has no name", tier.Floor)
		}
		if names[tier.Name] {
			return TierTable{}, fmt.Errorf("duplicate tier name %q", tier.Name)
		}
		names[tier.Name] = true
		if i > 0 && sorted[i-1].Floor == tier.Floor {
			return TierTable{}, fmt.Errorf("tiers %q and %q share floor %d", sorted[i-1].Name, tier.Name, tier.Floor)
		}
	}

	return TierTable{tiers: sorted}, nil
}

// MustTierTable is NewTierTable for static tables; it panics on error.
func MustTierTable(tiers []Tier) TierTable {
	table, err := NewTierTable(tiers)
	if err != nil {
		panic(err)
	}
	return table
}

// Lookup returns the tier for elo. Ratings below every floor fall into the lowest tier.
func (t TierTable) Lookup(elo int) Tier {
	if len(t.tiers) == 0 {
		return Tier{}
	}
	idx := sort.Search(len(t.tiers), func(i int) bool { return t.tiers[i].Floor > elo })
	if idx == 0 {
		return t.tiers[0]
	}
	return t.tiers[idx-1]
}

// Lowest returns the entry tier.
func (t TierTable) Lowest() Tier {
	if len(t.tiers) == 0 {
		return Tier{}
	}
	return t.tiers[0]
}

// Tiers returns a copy of the table, lowest first.
func (t TierTable) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// Find returns the tier with the given name.
func (t TierTable) Find(name string) (Tier, bool) {
	for _, tier := range t.tiers {
		if tier.Name == name {
			return tier, true
		}
	}
	return Tier{}, false
}

// Compare orders two tier names by floor. Unknown names sort below known ones.
func (t TierTable) Compare(a, b string) int {
	return t.index(a) - t.index(b)
}

func (t TierTable) index(name string) int {
	for i, tier := range t.tiers {
		if tier.Name == name {
			return i
		}
	}
	return -1
}
