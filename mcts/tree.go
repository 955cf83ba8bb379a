package mcts

import (
	"fmt"

	"github.com/brensch/connect4/game"
	"github.com/brensch/connect4/rules"
)

// Tree is an arena of nodes. Parent and child links are indices, so tearing
// a subtree down only returns slots to the free list.
type Tree struct {
	nodes []Node
	free  []NodeID
	live  int
}

func NewTree() *Tree {
	return &Tree{nodes: make([]Node, 0, 1024)}
}

// Reset discards every node but keeps the arena's capacity.
func (t *Tree) Reset() {
	t.nodes = t.nodes[:0]
	t.free = t.free[:0]
	t.live = 0
}

// Node returns the node stored at id. The pointer is invalidated by the next
// allocation in the tree.
func (t *Tree) Node(id NodeID) *Node {
	return &t.nodes[id]
}

// Live is the number of materialized nodes.
func (t *Tree) Live() int { return t.live }

func (t *Tree) alloc(n Node) NodeID {
	n.live = true
	t.live++
	if k := len(t.free); k > 0 {
		id := t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[id] = n
		return id
	}
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

// NewRoot creates a parentless node holding a copy of p. The root's mover is
// the side that moved last, so its children are played by p.Turn.
func (t *Tree) NewRoot(p *game.Position) NodeID {
	return t.alloc(Node{
		Mover:    p.Turn.Other(),
		Move:     game.NoMove,
		Position: *p,
		Parent:   NoNode,
	})
}

// Expand materializes the child reached by playing m from parent. The tree is
// left unchanged on error.
func (t *Tree) Expand(parent NodeID, m game.Move) (NodeID, error) {
	pn := &t.nodes[parent]
	k := int(pn.numChildren)
	if k >= len(rules.LegalMoves(&pn.Position)) || k >= game.MaxBranching {
		return NoNode, fmt.Errorf("%w: node %d has %d children", ErrChildSlotsFull, parent, k)
	}
	for _, c := range pn.Children() {
		if t.nodes[c].Move == m {
			return NoNode, fmt.Errorf("%w: column %d", ErrDuplicateMove, m)
		}
	}

	pos := pn.Position
	if !pos.Apply(m) {
		return NoNode, fmt.Errorf("%w: column %d", ErrIllegalMove, m)
	}

	id := t.alloc(Node{
		Mover:    pn.Mover.Other(),
		Move:     m,
		Position: pos,
		Parent:   parent,
	})
	// alloc may have grown the arena.
	pn = &t.nodes[parent]
	pn.children[pn.numChildren] = id
	pn.numChildren++
	return id, nil
}

// Unexpanded returns the legal moves of id that have no child yet, in column
// order.
func (t *Tree) Unexpanded(id NodeID) []game.Move {
	n := &t.nodes[id]
	legal := rules.LegalMoves(&n.Position)
	if n.numChildren == 0 {
		return legal
	}
	out := legal[:0]
	for _, m := range legal {
		taken := false
		for _, c := range n.Children() {
			if t.nodes[c].Move == m {
				taken = true
				break
			}
		}
		if !taken {
			out = append(out, m)
		}
	}
	return out
}

// FullyExpanded reports whether every legal move of a non-terminal node has a
// child. Nodes without legal moves are never fully expanded.
func (t *Tree) FullyExpanded(id NodeID) bool {
	n := &t.nodes[id]
	k := len(rules.LegalMoves(&n.Position))
	return k > 0 && int(n.numChildren) == k
}

// Release tears down the subtree rooted at id in post-order. Detaching id from
// its parent is the caller's job; the search only releases whole trees.
func (t *Tree) Release(id NodeID) {
	stack := []NodeID{id}
	var order []NodeID
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, cur)
		stack = append(stack, t.nodes[cur].Children()...)
	}
	// Reverse pre-order visits children before their parents.
	for i := len(order) - 1; i >= 0; i-- {
		n := &t.nodes[order[i]]
		if !n.live {
			continue
		}
		n.live = false
		n.numChildren = 0
		n.Parent = NoNode
		n.Simulations, n.Wins = 0, 0
		t.live--
		t.free = append(t.free, order[i])
	}
}
