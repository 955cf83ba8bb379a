package mcts

import (
	"context"
	"fmt"
	"time"

	"github.com/brensch/connect4/game"
	"github.com/brensch/connect4/rules"
)

// ChildStat summarizes one root child.
type ChildStat struct {
	Move game.Move `json:"move"`
	N    int       `json:"n"`
	Wins int       `json:"wins"`
	// Q is the win rate from the point of view of the side to move at the root.
	Q float64 `json:"q"`
}

// Result describes one decision.
type Result struct {
	Move         game.Move     `json:"move"`
	Side         game.Side     `json:"side"`
	Simulations  int           `json:"simulations"`
	RootWins     int           `json:"root_wins"`
	WinRate      float64       `json:"win_rate"` // computer wins through the root, in percent
	ShortCircuit bool          `json:"short_circuit"`
	Cycles       int           `json:"cycles"`
	Nodes        int           `json:"nodes"`
	Elapsed      time.Duration `json:"elapsed"`
	Children     []ChildStat   `json:"children"`
}

// ChooseMove runs MCTS-UCT from pos and returns the move to play. pos is not
// modified. The search runs whole cycles and checks Budget, MaxCycles,
// MaxNodes and ctx only between cycles.
func (e *Engine) ChooseMove(ctx context.Context, pos *game.Position) (game.Move, Result, error) {
	e.fillDefaults()
	start := time.Now()
	res := Result{Move: game.NoMove, Side: pos.Turn}

	legal := rules.LegalMoves(pos)
	if len(legal) == 0 {
		return game.NoMove, res, ErrNoLegalMoves
	}
	if out := rules.Evaluate(pos); out != rules.Ongoing {
		return game.NoMove, res, fmt.Errorf("%w: %s", ErrGameOver, out)
	}

	if e.tree == nil {
		e.tree = NewTree()
	}
	t := e.tree
	t.Reset()
	defer t.Reset()
	root := t.NewRoot(pos)

	// The root is always fully expanded before the first cycle.
	for _, m := range legal {
		if _, err := t.Expand(root, m); err != nil {
			return game.NoMove, res, err
		}
	}

	win := rules.WinFor(pos.Turn)
	for _, cid := range t.Node(root).Children() {
		if rules.Evaluate(&t.Node(cid).Position) == win {
			res.Move = t.Node(cid).Move
			res.ShortCircuit = true
			res.Nodes = t.Live()
			res.Elapsed = time.Since(start)
			res.Children = rootStats(t, root)
			e.Logger.Debug("mcts immediate win", "move", int(res.Move), "side", pos.Turn.String())
			return res.Move, res, nil
		}
	}

	lastSelected := NoNode
	for {
		leaf, picked := e.selectLeaf(t, root)
		if picked != NoNode {
			lastSelected = picked
		}

		from := leaf
		if !rules.IsTerminal(&t.Node(leaf).Position) {
			if moves := t.Unexpanded(leaf); len(moves) > 0 {
				child, err := t.Expand(leaf, moves[e.Rand.IntN(len(moves))])
				if err != nil {
					return game.NoMove, res, err
				}
				from = child
			}
		}

		won := e.simulate(t, from) == rules.ComputerWin
		backpropagate(t, from, won)
		res.Cycles++

		if e.Config.MaxCycles > 0 && res.Cycles >= e.Config.MaxCycles {
			break
		}
		if e.Config.MaxNodes > 0 && t.Live() >= e.Config.MaxNodes {
			break
		}
		if time.Since(start) >= e.Config.Budget || ctx.Err() != nil {
			break
		}
	}

	rn := t.Node(root)
	res.Simulations = rn.Simulations
	res.RootWins = rn.Wins
	if rn.Simulations > 0 {
		res.WinRate = 100 * float64(rn.Wins) / float64(rn.Simulations)
	}
	res.Children = rootStats(t, root)
	res.Move = e.finalMove(t, root, lastSelected)
	res.Nodes = t.Live()
	res.Elapsed = time.Since(start)

	e.Logger.Info("mcts decision",
		"move", int(res.Move),
		"side", pos.Turn.String(),
		"policy", e.Config.FinalMove.String(),
		"simulations", res.Simulations,
		"win_rate", res.WinRate,
		"nodes", res.Nodes,
		"elapsed", res.Elapsed,
	)
	return res.Move, res, nil
}

// selectLeaf descends from root through fully expanded nodes by UCT. It also
// returns the root child taken on the way down, or NoNode.
func (e *Engine) selectLeaf(t *Tree, root NodeID) (NodeID, NodeID) {
	cur := root
	picked := NoNode
	for {
		if rules.IsTerminal(&t.Node(cur).Position) || !t.FullyExpanded(cur) {
			return cur, picked
		}
		next := e.bestChild(t, cur)
		if cur == root {
			picked = next
		}
		cur = next
	}
}

// simulate plays out from id inside the tree: each step materializes one more
// child of the current node, then descends into a uniformly random child.
func (e *Engine) simulate(t *Tree, id NodeID) rules.Outcome {
	cur := id
	for {
		out := rules.Evaluate(&t.Node(cur).Position)
		if out != rules.Ongoing {
			return out
		}
		if moves := t.Unexpanded(cur); len(moves) > 0 {
			if _, err := t.Expand(cur, moves[e.Rand.IntN(len(moves))]); err != nil {
				return rules.Draw
			}
		}
		children := t.Node(cur).Children()
		if len(children) == 0 {
			// Ongoing with nothing to play: scored as a draw.
			return rules.Draw
		}
		cur = children[e.Rand.IntN(len(children))]
	}
}

func backpropagate(t *Tree, id NodeID, won bool) {
	for cur := id; cur != NoNode; {
		n := t.Node(cur)
		n.Simulations++
		if won {
			n.Wins++
		}
		cur = n.Parent
	}
}

func (e *Engine) finalMove(t *Tree, root, lastSelected NodeID) game.Move {
	rn := t.Node(root)
	kids := rn.Children()
	switch e.Config.FinalMove {
	case FinalMostVisited:
		best := kids[0]
		for _, cid := range kids[1:] {
			if t.Node(cid).Simulations > t.Node(best).Simulations {
				best = cid
			}
		}
		return t.Node(best).Move
	case FinalBestWinRate:
		best, bestQ := kids[0], -1.0
		for _, cid := range kids {
			c := t.Node(cid)
			if c.Simulations == 0 {
				continue
			}
			if q := sideWinRate(c, rn.Position.Turn); q > bestQ {
				best, bestQ = cid, q
			}
		}
		return t.Node(best).Move
	}
	if lastSelected == NoNode {
		return t.Node(kids[0]).Move
	}
	return t.Node(lastSelected).Move
}

func sideWinRate(n *Node, side game.Side) float64 {
	if n.Simulations == 0 {
		return 0
	}
	q := float64(n.Wins) / float64(n.Simulations)
	if side == game.Human {
		q = 1 - q
	}
	return q
}

func rootStats(t *Tree, root NodeID) []ChildStat {
	rn := t.Node(root)
	out := make([]ChildStat, 0, rn.numChildren)
	for _, cid := range rn.Children() {
		c := t.Node(cid)
		out = append(out, ChildStat{
			Move: c.Move,
			N:    c.Simulations,
			Wins: c.Wins,
			Q:    sideWinRate(c, rn.Position.Turn),
		})
	}
	return out
}
