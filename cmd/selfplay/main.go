// Command selfplay plays the engine against itself (or a random opponent)
// and archives every ply to Parquet batches.
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

	"github.com/brensch/connect4/analytics"
	"github.com/brensch/connect4/config"
	"github.com/brensch/connect4/logging"
	"github.com/brensch/connect4/selfplay"
)

func main() {
	outDir := flag.String("out-dir", config.EnvOr("OUT_DIR", "data/selfplay"), "Output directory for parquet batches")
	workers := flag.Int("workers", config.EnvInt("WORKERS", 4), "Number of self-play workers")
	games := flag.Int("games", config.EnvInt("GAMES", 0), "Stop after this many games (0 runs until interrupted)")
	gamesPerFlush := flag.Int("games-per-flush", config.EnvInt("GAMES_PER_FLUSH", 50), "Games per parquet batch file")
	opponent := flag.String("opponent", config.EnvOr("OPPONENT", "engine"), "Human side player: engine or random")
	seed := flag.Uint64("seed", 0, "Base random seed (0 uses the clock)")
	budget := flag.Duration("budget", config.EnvDuration("MCTS_BUDGET", 200*time.Millisecond), "Search budget per move")
	cycles := flag.Int("max-cycles", config.EnvInt("MCTS_MAX_CYCLES", 0), "Stop each search after this many cycles (0 disables)")
	brokers := flag.String("kafka-brokers", config.EnvOr("KAFKA_BROKERS", ""), "Comma separated Kafka brokers for game events (optional)")
	topic := flag.String("kafka-topic", config.EnvOr("KAFKA_TOPIC", "connect4.events"), "Kafka topic for game events")
	tui := flag.Bool("tui", false, "Show a live progress view instead of log lines")
	logFormat := flag.String("log-format", config.EnvOr("LOG_FORMAT", logging.FormatText), "Log format: text, json or pretty")
	logLevel := flag.String("log-level", config.EnvOr("LOG_LEVEL", "warn"), "Log level")
	flag.Parse()

	engineCfg, err := config.Engine()
	if err != nil {
		log.Fatalf("Invalid engine config: %v", err)
	}
	engineCfg.Budget = *budget
	engineCfg.MaxCycles = *cycles

	opp, err := selfplay.ParseOpponent(*opponent)
	if err != nil {
		log.Fatalf("Invalid -opponent: %v", err)
	}

	var logOut io.Writer = os.Stderr
	if *tui {
		logOut = io.Discard
		log.SetOutput(io.Discard)
	}
	logger, err := logging.New(logOut, *logFormat, *logLevel)
	if err != nil {
		log.Fatalf("Invalid logging flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink, err := newRotatingSink(*outDir, *gamesPerFlush)
	if err != nil {
		log.Fatalf("Failed to open batch writer: %v", err)
	}

	var emit analytics.Emitter = analytics.Nop{}
	if *brokers != "" {
		em := analytics.NewKafkaEmitter(*brokers, *topic, logger)
		defer em.Close()
		emit = em
	}

	cfg := selfplay.Config{
		Engine:   engineCfg,
		Opponent: opp,
		Games:    *games,
		Workers:  *workers,
		Seed:     *seed,
		Source:   "selfplay",
	}
	log.Printf("Starting self-play with %d workers against %s opponent, budget %s", *workers, opp, engineCfg.Budget)

	updates := make(chan selfplay.GameSummary, *workers)
	done := make(chan error, 1)
	var totals selfplay.Totals
	go func() {
		var err error
		totals, err = selfplay.Run(ctx, cfg, sink, emit, logger, func(sum selfplay.GameSummary) {
			// Avoid blocking workers if nobody is consuming.
			select {
			case updates <- sum:
			default:
			}
		})
		done <- err
	}()

	var runErr error
	if *tui {
		p := tea.NewProgram(newProgressModel(updates, done))
		final, err := p.Run()
		if err != nil {
			log.Fatal(err)
		}
		if pm := final.(progressModel); pm.finished {
			runErr = pm.err
		} else {
			// Quit from the keyboard; let workers drop their current games.
			cancel()
			runErr = <-done
		}
	} else {
		runErr = logProgress(updates, done)
	}

	log.SetOutput(os.Stderr)
	if err := sink.Close(); err != nil {
		log.Printf("Final parquet flush failed: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Self-play failed: %v", runErr)
	}
	log.Printf("Shutdown complete: games=%d plies=%d files=%d", totals.Games, totals.Plies, len(sink.Files()))
	for outcome, n := range totals.Outcomes {
		log.Printf("  %s: %d", outcome, n)
	}
}

func logProgress(updates <-chan selfplay.GameSummary, done <-chan error) error {
	start := time.Now()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	played := 0
	for {
		select {
		case err := <-done:
			return err
		case sum := <-updates:
			played++
			log.Printf("Game %s: %s started, %s after %d plies", sum.ID, sum.Starter, sum.Outcome, sum.Plies)
		case <-ticker.C:
			log.Printf("Stats: games=%d games/s=%.2f", played, float64(played)/time.Since(start).Seconds())
		}
	}
}
