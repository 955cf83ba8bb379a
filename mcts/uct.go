package mcts

import (
	"math"

	"github.com/brensch/connect4/game"
)

// uctScore scores child c of parent p from the point of view of the side to
// move at p. Unvisited children score +Inf so they are selected outright.
//
//	B = u + C * sqrt(ln(Np) / N)
//
// where u is the computer win rate when the computer moves at p and the
// non-win rate when the human moves.
func uctScore(p, c *Node, exploration float64) float64 {
	n := float64(c.Simulations)
	if c.Simulations == 0 {
		return math.Inf(1)
	}
	wins := float64(c.Wins)
	u := wins / n
	if p.Position.Turn == game.Human {
		u = (n - wins) / n
	}
	np := float64(p.Simulations)
	if np < 1 {
		np = 1
	}
	return u + exploration*math.Sqrt(math.Log(np)/n)
}

// bestChild returns the child of id maximizing the UCT score.
func (e *Engine) bestChild(t *Tree, id NodeID) NodeID {
	parent := t.Node(id)
	best := NoNode
	bestScore := math.Inf(-1)
	for _, cid := range parent.Children() {
		score := uctScore(parent, t.Node(cid), e.Config.Exploration)
		switch {
		case best == NoNode || score > bestScore:
			best, bestScore = cid, score
		case score == bestScore && e.Config.TieBreak == TieBreakRandom:
			if e.Rand.IntN(2) == 1 {
				best = cid
			}
		}
	}
	return best
}
