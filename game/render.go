package game

import (
	"fmt"
	"strconv"
	"strings"
)

// Render draws the board top row first, with 1-based column labels to match
// what a human types.
func Render(p *Position) string {
	var b strings.Builder
	b.WriteString(" ")
	for c := 0; c < Cols; c++ {
		fmt.Fprintf(&b, " %d", c+1)
	}
	b.WriteByte('\n')
	for r := 0; r < Rows; r++ {
		b.WriteString(" |")
		for c := 0; c < Cols; c++ {
			b.WriteByte(p.Cells[r][c].Symbol())
			b.WriteByte('|')
		}
		b.WriteByte('\n')
	}
	b.WriteString(" +")
	b.WriteString(strings.Repeat("-+", Cols))
	b.WriteByte('\n')
	return b.String()
}

// ParseMove reads a 1-based column label as typed by a player.
func ParseMove(s string) (Move, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return NoMove, fmt.Errorf("%w: %q is not a column", ErrInvalidMove, s)
	}
	if n < 1 || n > Cols {
		return NoMove, fmt.Errorf("%w: column %d out of range 1..%d", ErrInvalidMove, n, Cols)
	}
	return Move(n - 1), nil
}
