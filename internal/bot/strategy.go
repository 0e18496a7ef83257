package bot

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/lox/rpsbot/internal/rps"
)

// Round is one resolved round as the bot saw it.
type Round struct {
	Mine   rps.Move
	Theirs rps.Move
}

// Strategy picks the next move given the rounds played so far in the
// current series.
type Strategy interface {
	Next(history []Round) rps.Move
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(history []Round) rps.Move

func (f StrategyFunc) Next(history []Round) rps.Move { return f(history) }

// Random throws uniformly at random.
func Random(rng *rand.Rand) Strategy {
	return StrategyFunc(func([]Round) rps.Move {
		return rps.Moves[rng.IntN(len(rps.Moves))]
	})
}

// Constant always throws m.
func Constant(m rps.Move) Strategy {
	return StrategyFunc(func([]Round) rps.Move { return m })
}

// Cycle throws rock, paper, scissors in turn.
func Cycle() Strategy {
	return StrategyFunc(func(history []Round) rps.Move {
		return rps.Moves[len(history)%len(rps.Moves)]
	})
}

// Counter throws whatever beats the opponent's last move, falling back to
// fallback on the first round.
func Counter(fallback Strategy) Strategy {
	return StrategyFunc(func(history []Round) rps.Move {
		if len(history) == 0 || !history[len(history)-1].Theirs.Valid() {
			return fallback.Next(history)
		}
		return history[len(history)-1].Theirs.Counter()
	})
}

var strategies = map[string]func(rng *rand.Rand) Strategy{
	"random":  Random,
	"rock":    func(*rand.Rand) Strategy { return Constant(rps.Rock) },
	"cycle":   func(*rand.Rand) Strategy { return Cycle() },
	"counter": func(rng *rand.Rand) Strategy { return Counter(Random(rng)) },
}

// Strategies lists the names accepted by NewStrategy.
func Strategies() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStrategy builds a named strategy.
func NewStrategy(name string, rng *rand.Rand) (Strategy, error) {
	fn, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, Strategies())
	}
	return fn(rng), nil
}
