// Command stats summarizes archived games. By default it queries Parquet
// archives with DuckDB; -kafka tallies live game events instead and -postgres
// lists the most recent server games.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/brensch/connect4/analytics"
	"github.com/brensch/connect4/config"
	"github.com/brensch/connect4/logging"
	"github.com/brensch/connect4/persist"
	"github.com/brensch/connect4/store"
)

type archiveReport struct {
	Summary  store.Summary        `json:"summary"`
	Outcomes []store.OutcomeCount `json:"outcomes"`
	Openings []store.OpeningStat  `json:"openings"`
}

func main() {
	roots := flag.String("roots", config.EnvOr("ARCHIVE_ROOTS", "data/selfplay,data/server"), "Comma separated directories of parquet archives")
	asJSON := flag.Bool("json", false, "Print JSON instead of tables")
	kafkaMode := flag.Bool("kafka", false, "Tally live game events from Kafka instead of reading archives")
	brokers := flag.String("kafka-brokers", config.EnvOr("KAFKA_BROKERS", "localhost:9092"), "Comma separated Kafka brokers")
	topic := flag.String("kafka-topic", config.EnvOr("KAFKA_TOPIC", "connect4.events"), "Kafka topic for game events")
	group := flag.String("kafka-group", config.EnvOr("KAFKA_GROUP", "connect4-stats"), "Kafka consumer group")
	window := flag.Duration("window", 30*time.Second, "How long to consume events in -kafka mode")
	dsn := flag.String("postgres", config.EnvOr("POSTGRES_DSN", ""), "List recent server games from this Postgres DSN")
	limit := flag.Int("limit", 20, "Number of recent games with -postgres")
	flag.Parse()

	logger, err := logging.New(os.Stderr, logging.FormatText, config.EnvOr("LOG_LEVEL", "warn"))
	if err != nil {
		log.Fatalf("Invalid logging config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *kafkaMode:
		r := analytics.NewReader(*brokers, *topic, *group)
		defer r.Close()
		tally := analytics.NewTally()
		cctx, cancel := context.WithTimeout(ctx, *window)
		defer cancel()
		log.Printf("Consuming %s for %s", *topic, *window)
		if err := analytics.Consume(cctx, r, tally, logger); err != nil {
			log.Fatalf("Consume: %v", err)
		}
		if err := printTally(os.Stdout, tally.Totals(), *asJSON); err != nil {
			log.Fatal(err)
		}

	case *dsn != "":
		db, err := persist.Open(ctx, *dsn)
		if err != nil {
			log.Fatalf("Failed to connect to postgres: %v", err)
		}
		defer db.Close()
		games, err := db.RecentGames(ctx, *limit)
		if err != nil {
			log.Fatalf("Recent games: %v", err)
		}
		if err := printRecent(os.Stdout, games, *asJSON); err != nil {
			log.Fatal(err)
		}

	default:
		st, err := store.OpenStats(strings.Split(*roots, ","), logger)
		if err != nil {
			log.Fatalf("Failed to open archives: %v", err)
		}
		defer st.Close()

		var rep archiveReport
		if rep.Summary, err = st.Summary(ctx); err != nil {
			log.Fatal(err)
		}
		if rep.Outcomes, err = st.Outcomes(ctx); err != nil {
			log.Fatal(err)
		}
		if rep.Openings, err = st.Openings(ctx); err != nil {
			log.Fatal(err)
		}
		if err := printArchive(os.Stdout, rep, *asJSON); err != nil {
			log.Fatal(err)
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printArchive(w io.Writer, rep archiveReport, asJSON bool) error {
	if asJSON {
		return writeJSON(w, rep)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "games\t%d\n", rep.Summary.Games)
	fmt.Fprintf(tw, "plies\t%d\n", rep.Summary.Plies)
	fmt.Fprintf(tw, "avg game length\t%.1f\n", rep.Summary.AvgGameLength)
	fmt.Fprintf(tw, "avg simulations\t%.0f\n", rep.Summary.AvgSimulations)

	fmt.Fprintf(tw, "\nSOURCE\tOUTCOME\tGAMES\n")
	for _, o := range rep.Outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", o.Source, o.Outcome, o.Games)
	}

	fmt.Fprintf(tw, "\nOPENING\tGAMES\tCOMPUTER WINS\tPCT\n")
	for _, o := range rep.Openings {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%.1f%%\n", o.Column, o.Games, o.ComputerWins, o.ComputerPct)
	}
	return tw.Flush()
}

func printTally(w io.Writer, t analytics.Totals, asJSON bool) error {
	if asJSON {
		return writeJSON(w, t)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "games started\t%d\n", t.Games)
	fmt.Fprintf(tw, "games finished\t%d\n", t.Finished)
	fmt.Fprintf(tw, "moves\t%d\n", t.Moves)
	fmt.Fprintf(tw, "avg simulations\t%.0f\n", t.AvgSimulations)
	fmt.Fprintf(tw, "avg duration\t%s\n", t.AvgDuration.Round(time.Millisecond))

	outcomes := make([]string, 0, len(t.Outcomes))
	for k := range t.Outcomes {
		outcomes = append(outcomes, k)
	}
	sort.Strings(outcomes)
	for _, k := range outcomes {
		fmt.Fprintf(tw, "%s\t%d\n", k, t.Outcomes[k])
	}
	return tw.Flush()
}

func printRecent(w io.Writer, games []persist.GameRecord, asJSON bool) error {
	if asJSON {
		return writeJSON(w, games)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tSTARTER\tOUTCOME\tPLIES\tENDED\n")
	for _, g := range games {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", g.ID, g.Starter, g.Outcome, len(g.Moves), g.Ended.Format(time.RFC3339))
	}
	return tw.Flush()
}
