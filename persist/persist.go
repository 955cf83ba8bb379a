// Package persist stores finished games in Postgres.
package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func Open(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

func (db *DB) AutoMigrate(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS games (
			id          UUID PRIMARY KEY,
			starter     TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			moves       SMALLINT[] NOT NULL,
			budget_ms   INTEGER NOT NULL DEFAULT 0,
			started_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ended_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_games_ended_at ON games(ended_at);
	`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// GameRecord is one finished game. Moves are the played columns in order.
type GameRecord struct {
	ID       uuid.UUID `json:"id"`
	Starter  string    `json:"starter"`
	Outcome  string    `json:"outcome"`
	Moves    []int16   `json:"moves"`
	BudgetMS int32     `json:"budget_ms"`
	Started  time.Time `json:"started"`
	Ended    time.Time `json:"ended"`
}

// SaveGame inserts g, replacing any earlier record with the same ID.
func (db *DB) SaveGame(ctx context.Context, g GameRecord) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO games (id, starter, outcome, moves, budget_ms, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			outcome    = EXCLUDED.outcome,
			moves      = EXCLUDED.moves,
			budget_ms  = EXCLUDED.budget_ms,
			started_at = EXCLUDED.started_at,
			ended_at   = EXCLUDED.ended_at
	`, g.ID, g.Starter, g.Outcome, g.Moves, g.BudgetMS, g.Started, g.Ended)
	if err != nil {
		return fmt.Errorf("save game %s: %w", g.ID, err)
	}
	return nil
}

// RecentGames returns up to limit games, newest first.
func (db *DB) RecentGames(ctx context.Context, limit int) ([]GameRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, starter, outcome, moves, budget_ms, started_at, ended_at
		FROM games
		ORDER BY ended_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent games: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (GameRecord, error) {
		var g GameRecord
		err := row.Scan(&g.ID, &g.Starter, &g.Outcome, &g.Moves, &g.BudgetMS, &g.Started, &g.Ended)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("recent games: %w", err)
	}
	return out, nil
}
