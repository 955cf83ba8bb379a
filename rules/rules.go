package rules

import (
	"github.com/brensch/connect4/game"
)

// Outcome classifies a position. It is always derived from the cells.
type Outcome int8

const (
	Ongoing Outcome = iota
	Draw
	ComputerWin
	HumanWin
)

func (o Outcome) String() string {
	switch o {
	case Draw:
		return "draw"
	case ComputerWin:
		return "computer_win"
	case HumanWin:
		return "human_win"
	}
	return "ongoing"
}

// Winner returns the winning side, ok is false for Ongoing and Draw.
func (o Outcome) Winner() (game.Side, bool) {
	switch o {
	case ComputerWin:
		return game.Computer, true
	case HumanWin:
		return game.Human, true
	}
	return game.Human, false
}

// WinFor is the outcome in which side has won.
func WinFor(side game.Side) Outcome {
	if side == game.Computer {
		return ComputerWin
	}
	return HumanWin
}

// directions scanned from each cell taken as the start of a run:
// right, down, down-right, down-left.
var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// LegalMoves returns one move per column that still has room, in ascending
// column order.
func LegalMoves(p *game.Position) []game.Move {
	moves := make([]game.Move, 0, game.MaxBranching)
	for c := 0; c < game.Cols; c++ {
		if !p.ColumnFull(c) {
			moves = append(moves, game.Move(c))
		}
	}
	return moves
}

// Evaluate reports a win if any run of WinRun identical marks exists, otherwise
// a draw once every cell is occupied. Wins are checked first so that a
// position filled by a winning move is never a draw.
func Evaluate(p *game.Position) Outcome {
	occupied := 0
	for r := 0; r < game.Rows; r++ {
		for c := 0; c < game.Cols; c++ {
			cell := p.Cells[r][c]
			if cell == game.Empty {
				continue
			}
			occupied++
			for _, d := range directions {
				if runFrom(p, r, c, d[0], d[1]) {
					side, _ := cell.Owner()
					return WinFor(side)
				}
			}
		}
	}
	if occupied == game.Rows*game.Cols {
		return Draw
	}
	return Ongoing
}

// IsTerminal returns true if the game is over.
func IsTerminal(p *game.Position) bool {
	return Evaluate(p) != Ongoing
}

func runFrom(p *game.Position, r, c, dr, dc int) bool {
	want := p.Cells[r][c]
	for k := 1; k < game.WinRun; k++ {
		r2, c2 := r+k*dr, c+k*dc
		if r2 < 0 || r2 >= game.Rows || c2 < 0 || c2 >= game.Cols || p.Cells[r2][c2] != want {
			return false
		}
	}
	return true
}
