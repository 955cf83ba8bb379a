package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/connect4/config"
	"github.com/brensch/connect4/logging"
	"github.com/brensch/connect4/mcts"
)

func main() {
	start := flag.String("start", config.EnvOr("START", "human"), "Who moves first: human or computer")
	budget := flag.Duration("budget", config.EnvDuration("MCTS_BUDGET", 5*time.Second), "Thinking time per computer move")
	final := flag.String("final", config.EnvOr("MCTS_FINAL_MOVE", "last_selected"), "Final move policy: last_selected, most_visited or best_win_rate")
	seed := flag.Uint64("seed", 0, "Random seed (0 uses the clock)")
	logFile := flag.String("log-file", config.EnvOr("LOG_FILE", ""), "Write engine logs here (the board owns the terminal)")
	logLevel := flag.String("log-level", config.EnvOr("LOG_LEVEL", "info"), "Log level")
	flag.Parse()

	side, err := config.ParseSide(*start)
	if err != nil {
		log.Fatalf("Invalid -start: %v", err)
	}
	policy, err := config.ParseFinalMove(*final)
	if err != nil {
		log.Fatalf("Invalid -final: %v", err)
	}

	var logOut io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	logger, err := logging.New(logOut, logging.FormatText, *logLevel)
	if err != nil {
		log.Fatalf("Invalid logging flags: %v", err)
	}

	cfg := mcts.DefaultConfig()
	cfg.Budget = *budget
	cfg.FinalMove = policy
	s := *seed
	if s == 0 {
		s = uint64(time.Now().UnixNano())
	}
	engine := mcts.NewEngine(cfg, mcts.NewSource(s), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := tea.NewProgram(newModel(ctx, engine, side))
	if _, err := p.Run(); err != nil {
		log.Fatal(err)
	}
}
