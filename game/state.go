// Package game defines the Connect-4 position and the rules for mutating it.
//
// A Position is a plain value (a fixed-size array plus the side to move) so
// that copying it for tree exploration is a single assignment.
package game

import (
	"errors"
	"fmt"
)

const (
	Rows = 6
	Cols = 7

	// MaxBranching is the maximum number of legal moves in any position.
	MaxBranching = Cols

	// WinRun is the number of aligned marks needed to win.
	WinRun = 4
)

var (
	ErrInvalidMove = errors.New("invalid move")
	ErrBadBoard    = errors.New("bad board")
)

// Side identifies a player.
type Side int8

const (
	Human    Side = 0
	Computer Side = 1
)

func (s Side) Other() Side { return 1 - s }

// Mark returns the cell value a side leaves on the board.
func (s Side) Mark() Cell {
	if s == Computer {
		return ComputerMark
	}
	return HumanMark
}

func (s Side) String() string {
	if s == Computer {
		return "computer"
	}
	return "human"
}

type Cell int8

const (
	Empty        Cell = 0
	HumanMark    Cell = 1
	ComputerMark Cell = 2
)

// Owner returns the side that placed the mark. ok is false for Empty.
func (c Cell) Owner() (Side, bool) {
	switch c {
	case HumanMark:
		return Human, true
	case ComputerMark:
		return Computer, true
	}
	return Human, false
}

func (c Cell) Symbol() byte {
	switch c {
	case HumanMark:
		return 'X'
	case ComputerMark:
		return 'O'
	}
	return '.'
}

// Move is the column a disc is dropped into.
type Move int

// NoMove marks a node that was not reached by a move (the search root).
const NoMove Move = -1

// Position is a grid plus the side to move. Row 0 is the top row.
type Position struct {
	Cells [Rows][Cols]Cell
	Turn  Side
}

// Initial returns an empty board with start to move.
func Initial(start Side) *Position {
	return &Position{Turn: start}
}

// Clone performs a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

func (p *Position) Equal(o *Position) bool {
	return p.Cells == o.Cells && p.Turn == o.Turn
}

// ColumnFull reports whether col is out of range or has no empty cell.
func (p *Position) ColumnFull(col int) bool {
	if col < 0 || col >= Cols {
		return true
	}
	return p.Cells[0][col] != Empty
}

// Apply drops the side-to-move's disc into the column m. It returns false and
// leaves the position untouched when the column is out of range or full.
// On success the turn passes to the other side.
func (p *Position) Apply(m Move) bool {
	col := int(m)
	if p.ColumnFull(col) {
		return false
	}
	for r := Rows - 1; r >= 0; r-- {
		if p.Cells[r][col] == Empty {
			p.Cells[r][col] = p.Turn.Mark()
			p.Turn = p.Turn.Other()
			return true
		}
	}
	return false
}

// Occupied counts non-empty cells.
func (p *Position) Occupied() int {
	n := 0
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			if p.Cells[r][c] != Empty {
				n++
			}
		}
	}
	return n
}

// FromRows builds a position from a rows×cols grid of cell values
// (0 empty, 1 human, 2 computer). It rejects grids with floating discs or
// with mark counts that could not have been reached by alternating play.
func FromRows(rows [][]int, turn Side) (*Position, error) {
	if len(rows) != Rows {
		return nil, fmt.Errorf("%w: %d rows, want %d", ErrBadBoard, len(rows), Rows)
	}
	p := &Position{Turn: turn}
	var humans, computers int
	for r, row := range rows {
		if len(row) != Cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrBadBoard, r, len(row), Cols)
		}
		for c, v := range row {
			cell := Cell(v)
			switch cell {
			case Empty:
			case HumanMark:
				humans++
			case ComputerMark:
				computers++
			default:
				return nil, fmt.Errorf("%w: cell (%d,%d)=%d", ErrBadBoard, r, c, v)
			}
			p.Cells[r][c] = cell
		}
	}

	for c := 0; c < Cols; c++ {
		for r := 0; r < Rows-1; r++ {
			if p.Cells[r][c] != Empty && p.Cells[r+1][c] == Empty {
				return nil, fmt.Errorf("%w: floating disc in column %d", ErrBadBoard, c)
			}
		}
	}

	// The side to move has placed no more discs than its opponent, and at
	// most one fewer.
	mine, theirs := humans, computers
	if turn == Computer {
		mine, theirs = computers, humans
	}
	if d := theirs - mine; d < 0 || d > 1 {
		return nil, fmt.Errorf("%w: %d human and %d computer discs with %s to move", ErrBadBoard, humans, computers, turn)
	}
	return p, nil
}

// Grid returns the cells as plain ints, the inverse of FromRows.
func (p *Position) Grid() [][]int {
	out := make([][]int, Rows)
	for r := range out {
		out[r] = make([]int, Cols)
		for c := 0; c < Cols; c++ {
			out[r][c] = int(p.Cells[r][c])
		}
	}
	return out
}
