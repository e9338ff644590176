// Package board implements the 3x3 tic-tac-toe grid: move application and
// outcome evaluation. It is pure logic with no I/O; the game manager relies on
// its determinism to make termination decisions reproducible.
package board

import "errors"

// Mark is a cell value.
type Mark string

const (
	Empty Mark = ""
	X     Mark = "X"
	O     Mark = "O"
)

// Board holds the 9 cells in row-major order, indices 0..8.
type Board [9]Mark

// Outcome classifies a position.
type Outcome int

const (
	Ongoing Outcome = iota
	Win
	Draw
)

// ErrIllegalMove is returned for an out-of-range index or an occupied cell.
var ErrIllegalMove = errors.New("illegal move")

// lines are the 8 winning triples: 3 rows, 3 columns, 2 diagonals.
var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Apply places m at index on a copy of b and returns the new board.
// It never mutates its input.
func Apply(b Board, index int, m Mark) (Board, error) {
	if index < 0 || index > 8 {
		return b, ErrIllegalMove
	}
	if b[index] != Empty {
		return b, ErrIllegalMove
	}
	if m != X && m != O {
		return b, ErrIllegalMove
	}
	out := b
	out[index] = m
	return out, nil
}

// Evaluate returns the outcome of b and, for Win, the winning mark.
func Evaluate(b Board) (Outcome, Mark) {
	for _, ln := range lines {
		if b[ln[0]] != Empty && b[ln[0]] == b[ln[1]] && b[ln[0]] == b[ln[2]] {
			return Win, b[ln[0]]
		}
	}
	for _, c := range b {
		if c == Empty {
			return Ongoing, Empty
		}
	}
	return Draw, Empty
}

// WinningLine returns the indices of the completed triple, if any.
func WinningLine(b Board) ([3]int, bool) {
	for _, ln := range lines {
		if b[ln[0]] != Empty && b[ln[0]] == b[ln[1]] && b[ln[0]] == b[ln[2]] {
			return ln, true
		}
	}
	return [3]int{}, false
}

// FilledCells counts non-empty cells.
func FilledCells(b Board) int {
	n := 0
	for _, c := range b {
		if c != Empty {
			n++
		}
	}
	return n
}
