package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/brensch/connect4/analytics"
	"github.com/brensch/connect4/config"
	"github.com/brensch/connect4/game"
	"github.com/brensch/connect4/logging"
	"github.com/brensch/connect4/mcts"
	"github.com/brensch/connect4/selfplay"
	"github.com/brensch/connect4/store"
)

func main() {
	outDir := flag.String("out-dir", "debug_games", "Output directory for debug games")
	replay := flag.String("replay", "", "Print an archived parquet game instead of playing one")
	budget := flag.Duration("budget", time.Second, "Search budget per move")
	cycles := flag.Int("max-cycles", 0, "Stop each search after this many cycles (0 disables)")
	start := flag.String("start", "computer", "Who moves first: human or computer")
	opponent := flag.String("opponent", "engine", "Human side player: engine or random")
	seed := flag.Uint64("seed", 1, "Random seed")
	final := flag.String("final", "last_selected", "Final move policy")
	flag.Parse()

	if *replay != "" {
		rows, err := store.ReadArchive(*replay)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", *replay, err)
		}
		if err := printGame(os.Stdout, rows); err != nil {
			log.Fatal(err)
		}
		return
	}

	side, err := config.ParseSide(*start)
	if err != nil {
		log.Fatalf("Invalid -start: %v", err)
	}
	opp, err := selfplay.ParseOpponent(*opponent)
	if err != nil {
		log.Fatalf("Invalid -opponent: %v", err)
	}
	policy, err := config.ParseFinalMove(*final)
	if err != nil {
		log.Fatalf("Invalid -final: %v", err)
	}

	engineCfg := mcts.DefaultConfig()
	engineCfg.Budget = *budget
	engineCfg.MaxCycles = *cycles
	engineCfg.FinalMove = policy

	logger, err := logging.New(os.Stderr, logging.FormatPretty, "debug")
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Printf("Generating debug game with budget %s, %s opponent, seed %d", *budget, opp, *seed)
	cfg := selfplay.Config{Engine: engineCfg, Opponent: opp, Source: "debug"}
	id := store.NewGameID()
	rows, sum, err := selfplay.PlayGame(ctx, cfg, id, side, *seed, analytics.Nop{}, logger)
	if err != nil {
		log.Fatalf("Failed to generate debug game: %v", err)
	}
	log.Printf("Game complete: %d plies, outcome: %s", sum.Plies, sum.Outcome)

	path, err := store.WriteArchiveAtomic(*outDir, id, rows)
	if err != nil {
		log.Fatalf("Failed to write debug game: %v", err)
	}

	if err := printGame(os.Stdout, rows); err != nil {
		log.Fatal(err)
	}
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("  Debug game written to: %s\n", path)
	fmt.Printf("  Replay with: debuggame -replay %s\n", path)
	fmt.Println("═══════════════════════════════════════════════════════════════")
}

// printGame writes every ply's board followed by the root statistics of the
// search that chose it.
func printGame(w io.Writer, rows []store.PlyRow) error {
	if len(rows) == 0 {
		return fmt.Errorf("no plies")
	}
	fmt.Fprintf(w, "Game %s (%s)\n", rows[0].GameID, rows[0].Source)
	for _, r := range rows {
		pos, err := r.Position()
		if err != nil {
			return fmt.Errorf("ply %d: %w", r.Ply, err)
		}
		fmt.Fprintf(w, "\nPly %d: %s plays column %d\n", r.Ply, r.Side, r.Column+1)
		fmt.Fprint(w, game.Render(pos))
		if !r.Engine {
			continue
		}
		if r.ShortCircuit {
			fmt.Fprintln(w, "  immediate win")
			continue
		}
		fmt.Fprintf(w, "  %d simulations, %.1f%% computer wins\n", r.Simulations, r.WinRate)
		var children []mcts.ChildStat
		if len(r.RootJSON) > 0 {
			if err := json.Unmarshal(r.RootJSON, &children); err != nil {
				return fmt.Errorf("ply %d root stats: %w", r.Ply, err)
			}
		}
		for _, c := range children {
			fmt.Fprintf(w, "  col %d  n=%-6d wins=%-6d q=%.3f\n", int(c.Move)+1, c.N, c.Wins, c.Q)
		}
	}
	fmt.Fprintf(w, "\nOutcome: %s\n", rows[len(rows)-1].Outcome)
	return nil
}
