package rps

import "fmt"

// Outcome is the result of a single round from the point of view of seat A.
type Outcome int

const (
	Tie Outcome = iota
	AWins
	BWins
)

func (o Outcome) String() string {
	switch o {
	case Tie:
		return "tie"
	case AWins:
		return "a_wins"
	case BWins:
		return "b_wins"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Mirror returns the outcome seen from the other seat.
func (o Outcome) Mirror() Outcome {
	switch o {
	case AWins:
		return BWins
	case BWins:
		return AWins
	default:
		return Tie
	}
}

// RoundResult records one resolved round of a series.
type RoundResult struct {
	Round   int     `json:"round"`
	MoveA   Move    `json:"moveA"`
	MoveB   Move    `json:"moveB"`
	Outcome Outcome `json:"outcome"`
}

// Resolve decides a round: rock beats scissors, scissors beats paper, paper
// beats rock, and equal moves tie. Both moves must be valid.
func Resolve(a, b Move) Outcome {
	switch {
	case a == b:
		return Tie
	case a.beats(b):
		return AWins
	default:
		return BWins
	}
}

// Play resolves a round and wraps it with its number.
func Play(round int, a, b Move) RoundResult {
	return RoundResult{
		Round:   round,
		MoveA:   a,
		MoveB:   b,
		Outcome: Resolve(a, b),
	}
}
