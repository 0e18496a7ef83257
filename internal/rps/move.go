// Package rps holds the rock-paper-scissors rules: moves and single-round resolution.
package rps

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMove is returned when input names no move.
var ErrInvalidMove = errors.New("invalid move")

// Move is one participant's throw for a round.
type Move int

const (
	Rock Move = iota + 1
	Paper
	Scissors
)

// Moves lists every valid move in display order.
var Moves = []Move{Rock, Paper, Scissors}

func (m Move) String() string {
	switch m {
	case Rock:
		return "rock"
	case Paper:
		return "paper"
	case Scissors:
		return "scissors"
	default:
		return "unknown"
	}
}

// Valid reports whether m is one of Rock, Paper or Scissors. The zero Move is invalid.
func (m Move) Valid() bool {
	return m >= Rock && m <= Scissors
}

// beats reports whether m defeats other.
func (m Move) beats(other Move) bool {
	switch m {
	case Rock:
		return other == Scissors
	case Scissors:
		return other == Paper
	case Paper:
		return other == Rock
	}
	return false
}

// Counter returns the move that beats m.
func (m Move) Counter() Move {
	for _, c := range Moves {
		if c.beats(m) {
			return c
		}
	}
	return 0
}

// ParseMove converts client input into a Move. Matching is case-insensitive
// and accepts the single-letter shorthands r, p and s.
func ParseMove(s string) (Move, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rock", "r":
		return Rock, nil
	case "paper", "p":
		return Paper, nil
	case "scissors", "s":
		return Scissors, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMove, s)
}

// MarshalText implements encoding.TextMarshaler so moves travel as words on the wire.
func (m Move) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid move: %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Move) UnmarshalText(text []byte) error {
	parsed, err := ParseMove(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
