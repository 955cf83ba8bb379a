// Command server exposes the Connect 4 engine over HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brensch/connect4/analytics"
	"github.com/brensch/connect4/config"
	"github.com/brensch/connect4/logging"
	"github.com/brensch/connect4/persist"
	"github.com/brensch/connect4/server"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	listen := fs.String("listen", ":"+config.EnvOr("PORT", "8080"), "Address to listen on")
	dsn := fs.String("postgres", config.EnvOr("POSTGRES_DSN", ""), "Postgres DSN for finished games (optional)")
	brokers := fs.String("kafka-brokers", config.EnvOr("KAFKA_BROKERS", ""), "Comma separated Kafka brokers for game events (optional)")
	topic := fs.String("kafka-topic", config.EnvOr("KAFKA_TOPIC", "connect4.events"), "Kafka topic for game events")
	archiveDir := fs.String("archive-dir", config.EnvOr("ARCHIVE_DIR", ""), "Directory for per-game Parquet archives (optional)")
	maxBudget := fs.Duration("max-budget", config.EnvDuration("MAX_BUDGET", 30*time.Second), "Upper bound for budget_ms on /move")
	logFormat := fs.String("log-format", config.EnvOr("LOG_FORMAT", logging.FormatJSON), "Log format: text, json or pretty")
	logLevel := fs.String("log-level", config.EnvOr("LOG_LEVEL", "info"), "Log level")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("flag parse: %v", err)
	}

	logger, err := logging.New(os.Stderr, *logFormat, *logLevel)
	if err != nil {
		log.Fatalf("Invalid logging flags: %v", err)
	}
	gin.SetMode(config.EnvOr(gin.EnvGinMode, gin.ReleaseMode))
	engineCfg, err := config.Engine()
	if err != nil {
		log.Fatalf("Invalid engine config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := server.Options{
		Engine:     engineCfg,
		MaxBudget:  *maxBudget,
		Logger:     logger,
		ArchiveDir: *archiveDir,
	}

	if *dsn != "" {
		db, err := persist.Open(ctx, *dsn)
		if err != nil {
			log.Fatalf("Failed to connect to postgres: %v", err)
		}
		defer db.Close()
		if err := db.AutoMigrate(ctx); err != nil {
			log.Fatalf("Failed to migrate: %v", err)
		}
		opts.Store = db
		log.Printf("Recording finished games in postgres")
	}

	if *brokers != "" {
		em := analytics.NewKafkaEmitter(*brokers, *topic, logger)
		defer em.Close()
		opts.Emitter = em
		log.Printf("Publishing game events to %s on %s", *topic, *brokers)
	}

	log.Printf("Engine budget %s, exploration %.3f, final move %s", engineCfg.Budget, engineCfg.Exploration, engineCfg.FinalMove)

	srv := &http.Server{
		Addr:              *listen,
		Handler:           server.New(opts).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Connect 4 server listening on http://%s", *listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	case <-ctx.Done():
		log.Printf("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}
}
