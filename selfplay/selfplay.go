// Package selfplay plays engine games unattended and archives every ply.
package selfplay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/connect4/analytics"
	"github.com/brensch/connect4/game"
	"github.com/brensch/connect4/mcts"
	"github.com/brensch/connect4/rules"
	"github.com/brensch/connect4/store"
)

// Opponent decides who plays the human seat.
type Opponent int

const (
	// OpponentEngine plays the human seat with a second engine.
	OpponentEngine Opponent = iota
	// OpponentRandom plays a uniformly random legal move.
	OpponentRandom
)

func (o Opponent) String() string {
	if o == OpponentRandom {
		return "random"
	}
	return "engine"
}

func ParseOpponent(s string) (Opponent, error) {
	switch s {
	case "", "engine":
		return OpponentEngine, nil
	case "random":
		return OpponentRandom, nil
	}
	return OpponentEngine, fmt.Errorf("unknown opponent %q", s)
}

type Config struct {
	Engine   mcts.Config
	Opponent Opponent
	// Games is the number of games to play; 0 plays until ctx is done.
	Games   int
	Workers int
	// Seed makes runs reproducible when non-zero.
	Seed uint64
	// Source tags archived rows.
	Source string
}

// Sink receives the rows of each finished game. *store.BatchWriter
// satisfies it.
type Sink interface {
	WriteGame(rows []store.PlyRow) error
}

type GameSummary struct {
	ID       string
	Starter  game.Side
	Outcome  rules.Outcome
	Plies    int
	Duration time.Duration
}

type player interface {
	move(ctx context.Context, pos *game.Position) (game.Move, *mcts.Result, error)
}

type enginePlayer struct{ e *mcts.Engine }

func (p enginePlayer) move(ctx context.Context, pos *game.Position) (game.Move, *mcts.Result, error) {
	m, res, err := p.e.ChooseMove(ctx, pos)
	if err != nil {
		return game.NoMove, nil, err
	}
	return m, &res, nil
}

type randomPlayer struct{ rng mcts.Source }

func (p randomPlayer) move(_ context.Context, pos *game.Position) (game.Move, *mcts.Result, error) {
	legal := rules.LegalMoves(pos)
	if len(legal) == 0 {
		return game.NoMove, nil, mcts.ErrNoLegalMoves
	}
	return legal[p.rng.IntN(len(legal))], nil, nil
}

// PlayGame plays one game from an empty board. seed drives every random
// choice in the game.
func PlayGame(ctx context.Context, cfg Config, id string, starter game.Side, seed uint64, emit analytics.Emitter, logger *slog.Logger) ([]store.PlyRow, GameSummary, error) {
	if emit == nil {
		emit = analytics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("game_id", id)
	start := time.Now()

	var seats [2]player
	seats[game.Computer] = enginePlayer{mcts.NewEngine(cfg.Engine, mcts.NewSource(seed), logger)}
	if cfg.Opponent == OpponentRandom {
		seats[game.Human] = randomPlayer{mcts.NewSource(seed ^ 0xdeadbeef)}
	} else {
		seats[game.Human] = enginePlayer{mcts.NewEngine(cfg.Engine, mcts.NewSource(seed^0xdeadbeef), logger)}
	}

	emit.Emit(ctx, analytics.Event{Event: analytics.MatchStart, GameID: id, Start: starter.String()})

	pos := game.Initial(starter)
	rows := make([]store.PlyRow, 0, game.Rows*game.Cols)
	for ply := 0; !rules.IsTerminal(pos); ply++ {
		if err := ctx.Err(); err != nil {
			return nil, GameSummary{}, err
		}
		mover := pos.Turn
		m, res, err := seats[mover].move(ctx, pos)
		if err != nil {
			return nil, GameSummary{}, fmt.Errorf("ply %d: %w", ply, err)
		}
		rows = append(rows, store.NewPlyRow(id, ply, pos, m, res))
		if !pos.Apply(m) {
			return nil, GameSummary{}, fmt.Errorf("ply %d: %w: column %d", ply, game.ErrInvalidMove, m)
		}

		ev := analytics.Event{Event: analytics.Move, GameID: id, Side: mover.String(), Column: new(int)}
		*ev.Column = int(m)
		if res != nil {
			ev.Simulations = res.Simulations
			ev.WinRate = res.WinRate
		}
		emit.Emit(ctx, ev)
	}

	sum := GameSummary{
		ID:       id,
		Starter:  starter,
		Outcome:  rules.Evaluate(pos),
		Plies:    len(rows),
		Duration: time.Since(start),
	}
	store.SetOutcome(rows, sum.Outcome, cfg.Source)
	emit.Emit(ctx, analytics.Event{
		Event:      analytics.GameEnd,
		GameID:     id,
		Outcome:    sum.Outcome.String(),
		Plies:      sum.Plies,
		DurationMS: sum.Duration.Milliseconds(),
	})
	logger.Info("game finished", "outcome", sum.Outcome.String(), "plies", sum.Plies, "duration", sum.Duration)
	return rows, sum, nil
}

// Totals counts finished games by outcome.
type Totals struct {
	Games    int
	Plies    int
	Outcomes map[rules.Outcome]int
}

// Run plays cfg.Games games on cfg.Workers goroutines, each game with its own
// engines. Starting sides alternate by game index. Games cut short by ctx are
// dropped; Run then returns the totals so far and a nil error. onGame is
// called from the worker goroutines.
func Run(ctx context.Context, cfg Config, sink Sink, emit analytics.Emitter, logger *slog.Logger, onGame func(GameSummary)) (Totals, error) {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	var (
		mu     sync.Mutex
		totals = Totals{Outcomes: map[rules.Outcome]int{}}
		next   atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				i := next.Add(1) - 1
				if cfg.Games > 0 && i >= int64(cfg.Games) {
					return nil
				}
				if gctx.Err() != nil {
					return nil
				}
				starter := game.Side(i % 2)
				rows, sum, err := PlayGame(gctx, cfg, store.NewGameID(), starter, seed+uint64(i)*1000003, emit, logger)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return nil
					}
					return err
				}
				if sink != nil {
					if err := sink.WriteGame(rows); err != nil {
						return fmt.Errorf("archive game %s: %w", sum.ID, err)
					}
				}

				mu.Lock()
				totals.Games++
				totals.Plies += sum.Plies
				totals.Outcomes[sum.Outcome]++
				mu.Unlock()
				if onGame != nil {
					onGame(sum)
				}
			}
		})
	}
	err := g.Wait()

	mu.Lock()
	defer mu.Unlock()
	return totals, err
}
