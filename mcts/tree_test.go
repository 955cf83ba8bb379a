package mcts

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/brensch/connect4/game"
	"github.com/brensch/connect4/rules"
)

func TestNewRoot(t *testing.T) {
	tr := NewTree()
	pos := game.Initial(game.Computer)
	root := tr.NewRoot(pos)

	n := tr.Node(root)
	if n.Parent != NoNode || n.Move != game.NoMove {
		t.Fatalf("root parent=%d move=%d", n.Parent, n.Move)
	}
	if n.Mover != game.Human {
		t.Fatalf("root mover=%s want human (computer to move)", n.Mover)
	}
	if n.Simulations != 0 || n.Wins != 0 || len(n.Children()) != 0 {
		t.Fatalf("root not zeroed: %+v", n)
	}

	pos.Apply(0)
	if tr.Node(root).Position.Occupied() != 0 {
		t.Fatalf("root aliases the caller's position")
	}
}

func TestExpand(t *testing.T) {
	tr := NewTree()
	root := tr.NewRoot(game.Initial(game.Human))

	child, err := tr.Expand(root, 3)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	c := tr.Node(child)
	if c.Parent != root || c.Move != 3 {
		t.Fatalf("child parent=%d move=%d", c.Parent, c.Move)
	}
	if c.Mover != game.Human {
		t.Fatalf("child mover=%s want human", c.Mover)
	}
	if c.Position.Cells[game.Rows-1][3] != game.HumanMark || c.Position.Turn != game.Computer {
		t.Fatalf("child position not advanced:\n%s", game.Render(&c.Position))
	}
	if tr.Node(root).Position.Occupied() != 0 {
		t.Fatalf("expand mutated the parent position")
	}
	if got := len(tr.Node(root).Children()); got != 1 {
		t.Fatalf("children=%d want 1", got)
	}

	grand, err := tr.Expand(child, 3)
	if err != nil {
		t.Fatalf("expand grandchild: %v", err)
	}
	if tr.Node(grand).Mover != game.Computer {
		t.Fatalf("grandchild mover=%s want computer", tr.Node(grand).Mover)
	}
}

func TestExpand_Errors(t *testing.T) {
	tr := NewTree()
	root := tr.NewRoot(game.Initial(game.Human))
	if _, err := tr.Expand(root, 2); err != nil {
		t.Fatalf("expand: %v", err)
	}

	live := tr.Live()
	if _, err := tr.Expand(root, 2); !errors.Is(err, ErrDuplicateMove) {
		t.Fatalf("duplicate err=%v", err)
	}
	if _, err := tr.Expand(root, game.Cols); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("out-of-range err=%v", err)
	}
	if tr.Live() != live || len(tr.Node(root).Children()) != 1 {
		t.Fatalf("failed expansions changed the tree")
	}

	for c := 0; c < game.Cols; c++ {
		if c == 2 {
			continue
		}
		if _, err := tr.Expand(root, game.Move(c)); err != nil {
			t.Fatalf("expand %d: %v", c, err)
		}
	}
	if _, err := tr.Expand(root, 0); !errors.Is(err, ErrChildSlotsFull) {
		t.Fatalf("full err=%v", err)
	}
}

func TestExpand_ChildCountBoundedByLegalMoves(t *testing.T) {
	pos := game.Initial(game.Human)
	for i := 0; i < game.Rows; i++ {
		pos.Apply(0)
		pos.Apply(6)
	}
	// Columns 0 and 6 are full.
	tr := NewTree()
	root := tr.NewRoot(pos)
	for _, m := range tr.Unexpanded(root) {
		if _, err := tr.Expand(root, m); err != nil {
			t.Fatalf("expand %d: %v", m, err)
		}
	}
	n := tr.Node(root)
	if len(n.Children()) != len(rules.LegalMoves(&n.Position)) {
		t.Fatalf("children=%d legal=%d", len(n.Children()), len(rules.LegalMoves(&n.Position)))
	}
	if !tr.FullyExpanded(root) {
		t.Fatalf("root should be fully expanded")
	}
	if len(tr.Unexpanded(root)) != 0 {
		t.Fatalf("unexpanded moves left: %v", tr.Unexpanded(root))
	}
	if _, err := tr.Expand(root, 0); err == nil {
		t.Fatalf("expanded a full column")
	}

	seen := map[game.Move]bool{}
	for _, cid := range n.Children() {
		m := tr.Node(cid).Move
		if seen[m] {
			t.Fatalf("duplicate sibling move %d", m)
		}
		seen[m] = true
	}
}

func TestUnexpanded_SkipsMaterialized(t *testing.T) {
	tr := NewTree()
	root := tr.NewRoot(game.Initial(game.Human))
	tr.Expand(root, 1)
	tr.Expand(root, 4)
	got := tr.Unexpanded(root)
	want := []game.Move{0, 2, 3, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("Unexpanded=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Unexpanded=%v want %v", got, want)
		}
	}
}

func TestRelease_FreesWholeTree(t *testing.T) {
	tr := NewTree()
	root := tr.NewRoot(game.Initial(game.Human))
	frontier := []NodeID{root}
	for depth := 0; depth < 3; depth++ {
		var next []NodeID
		for _, id := range frontier {
			for _, m := range tr.Unexpanded(id) {
				c, err := tr.Expand(id, m)
				if err != nil {
					t.Fatalf("expand: %v", err)
				}
				next = append(next, c)
			}
		}
		frontier = next
	}
	want := 1 + 7 + 49 + 343
	if tr.Live() != want {
		t.Fatalf("live=%d want %d", tr.Live(), want)
	}

	tr.Release(root)
	if tr.Live() != 0 {
		t.Fatalf("live=%d after release", tr.Live())
	}

	// Released slots are reused rather than growing the arena.
	size := len(tr.nodes)
	r2 := tr.NewRoot(game.Initial(game.Computer))
	if _, err := tr.Expand(r2, 0); err != nil {
		t.Fatalf("expand after release: %v", err)
	}
	if len(tr.nodes) != size {
		t.Fatalf("arena grew from %d to %d", size, len(tr.nodes))
	}
	if got := len(tr.Node(r2).Children()); got != 1 {
		t.Fatalf("reused root has %d children", got)
	}
}

func TestTree_Reset(t *testing.T) {
	tr := NewTree()
	root := tr.NewRoot(game.Initial(game.Computer))
	for _, m := range rules.LegalMoves(game.Initial(game.Computer)) {
		if _, err := tr.Expand(root, m); err != nil {
			t.Fatalf("expand: %v", err)
		}
	}
	capacity := cap(tr.nodes)

	tr.Reset()
	if tr.Live() != 0 || len(tr.nodes) != 0 || cap(tr.nodes) != capacity {
		t.Fatalf("live=%d len=%d cap=%d", tr.Live(), len(tr.nodes), cap(tr.nodes))
	}
	r2 := tr.NewRoot(game.Initial(game.Human))
	if n := tr.Node(r2); len(n.Children()) != 0 || n.Simulations != 0 {
		t.Fatalf("stale node after reset: %+v", n)
	}
}

// Children live inline in the node, so a node's footprint is fixed.
func TestNodeSize(t *testing.T) {
	if size := unsafe.Sizeof(Node{}); size > 128 {
		t.Fatalf("Node is %d bytes", size)
	}
}
