package mcts

import (
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/brensch/connect4/game"
)

var (
	ErrChildSlotsFull = errors.New("mcts: node has no unmaterialized legal move")
	ErrDuplicateMove  = errors.New("mcts: move already materialized as a child")
	ErrIllegalMove    = errors.New("mcts: move cannot be applied")
	ErrNoLegalMoves   = errors.New("mcts: position has no legal moves")
	ErrGameOver       = errors.New("mcts: game is already decided")
)

// NodeID addresses a node inside its Tree's arena.
type NodeID int32

// NoNode is the parent of the root.
const NoNode NodeID = -1

// Node represents a position in the search tree.
type Node struct {
	// Mover is the side that played Move to reach this node.
	Mover    game.Side
	Move     game.Move
	Position game.Position

	Parent NodeID
	// children holds the first numChildren materialized children.
	children    [game.MaxBranching]NodeID
	numChildren int8

	Simulations int
	// Wins counts simulations through this node that ended in a computer win.
	Wins int

	live bool
}

// Children returns the materialized children in creation order. The slice
// aliases the arena and is invalidated by the next allocation in the tree.
func (n *Node) Children() []NodeID {
	return n.children[:n.numChildren]
}

// FinalMovePolicy decides which root child is played once the budget runs out.
type FinalMovePolicy int

const (
	// FinalLastSelected plays the root child chosen by the last selection.
	FinalLastSelected FinalMovePolicy = iota
	// FinalMostVisited plays the root child with the most simulations.
	FinalMostVisited
	// FinalBestWinRate plays the root child with the best win rate for the
	// side to move.
	FinalBestWinRate
)

func (p FinalMovePolicy) String() string {
	switch p {
	case FinalMostVisited:
		return "most_visited"
	case FinalBestWinRate:
		return "best_win_rate"
	}
	return "last_selected"
}

// TieBreakPolicy decides between two children with equal UCT scores.
type TieBreakPolicy int

const (
	// TieBreakRandom flips a coin between the current best and the challenger.
	TieBreakRandom TieBreakPolicy = iota
	// TieBreakFirst keeps the earlier child.
	TieBreakFirst
)

// Config holds MCTS configuration
type Config struct {
	Exploration float64
	Budget      time.Duration
	// MaxCycles stops the search after this many cycles when > 0.
	MaxCycles int
	// MaxNodes stops the search once the tree holds this many nodes when > 0.
	// The last cycle may overshoot by one playout.
	MaxNodes  int
	FinalMove FinalMovePolicy
	TieBreak  TieBreakPolicy
}

// DefaultMaxNodes bounds one decision's tree to roughly 64MB of nodes.
const DefaultMaxNodes = 1 << 19

func DefaultConfig() Config {
	return Config{
		Exploration: math.Sqrt2,
		Budget:      5 * time.Second,
		MaxNodes:    DefaultMaxNodes,
		FinalMove:   FinalLastSelected,
		TieBreak:    TieBreakRandom,
	}
}

// Source is the only randomness the engine consumes. *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

func NewSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Engine chooses moves for one game. It is not safe for concurrent use.
type Engine struct {
	Config Config
	Rand   Source
	Logger *slog.Logger

	// tree is reset, not reallocated, between decisions.
	tree *Tree
}

func NewEngine(cfg Config, rng Source, logger *slog.Logger) *Engine {
	e := &Engine{Config: cfg, Rand: rng, Logger: logger}
	e.fillDefaults()
	return e
}

func (e *Engine) fillDefaults() {
	if e.Rand == nil {
		e.Rand = NewSource(uint64(time.Now().UnixNano()))
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
}
