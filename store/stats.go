package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Stats runs aggregate queries over archived Parquet files with DuckDB. The
// files are exposed as the view plies.
type Stats struct {
	db *sql.DB
}

// statsPragmas tune DuckDB for the archive queries. They are best effort.
var statsPragmas = []string{"PRAGMA threads=4"}

// execer is the part of *sql.DB that applyPragmas uses.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func applyPragmas(db execer, logger *slog.Logger, pragmas []string) {
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			logger.Warn("duckdb pragma failed", "pragma", p, "error", err)
		}
	}
}

// OpenStats globs every *.parquet below each root. Temporary files end in
// .tmp and never match. A nil logger uses slog.Default.
func OpenStats(roots []string, logger *slog.Logger) (*Stats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	globs := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		glob := filepath.Join(root, "**", "*.parquet")
		globs = append(globs, "'"+escapeSQLString(glob)+"'")
	}
	if len(globs) == 0 {
		return nil, fmt.Errorf("no archive roots given")
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	applyPragmas(db, logger, statsPragmas)

	q := `CREATE OR REPLACE VIEW plies AS
		SELECT * FROM read_parquet([` + strings.Join(globs, ",") + `], filename=true, union_by_name=true)`
	if _, err := db.Exec(q); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create view: %w", err)
	}
	return &Stats{db: db}, nil
}

func (s *Stats) Close() error {
	return s.db.Close()
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

type Summary struct {
	Games          int64   `json:"games"`
	Plies          int64   `json:"plies"`
	AvgGameLength  float64 `json:"avg_game_length"`
	AvgSimulations float64 `json:"avg_simulations"`
}

func (s *Stats) Summary(ctx context.Context) (Summary, error) {
	var out Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(DISTINCT game_id),
			COUNT(*),
			COALESCE(COUNT(*)::DOUBLE / NULLIF(COUNT(DISTINCT game_id), 0), 0),
			COALESCE(AVG(simulations) FILTER (WHERE engine AND NOT short_circuit), 0)
		FROM plies`).Scan(&out.Games, &out.Plies, &out.AvgGameLength, &out.AvgSimulations)
	if err != nil {
		return out, fmt.Errorf("summary: %w", err)
	}
	return out, nil
}

type OutcomeCount struct {
	Source  string `json:"source"`
	Outcome string `json:"outcome"`
	Games   int64  `json:"games"`
}

// Outcomes counts finished games per source and result.
func (s *Stats) Outcomes(ctx context.Context) ([]OutcomeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, outcome, COUNT(DISTINCT game_id) AS games
		FROM plies
		GROUP BY source, outcome
		ORDER BY source, games DESC, outcome`)
	if err != nil {
		return nil, fmt.Errorf("outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeCount
	for rows.Next() {
		var oc OutcomeCount
		if err := rows.Scan(&oc.Source, &oc.Outcome, &oc.Games); err != nil {
			return nil, err
		}
		out = append(out, oc)
	}
	return out, rows.Err()
}

type OpeningStat struct {
	Column       int     `json:"column"`
	Games        int64   `json:"games"`
	ComputerWins int64   `json:"computer_wins"`
	ComputerPct  float64 `json:"computer_pct"`
}

// Openings groups games by the column of their first move.
func (s *Stats) Openings(ctx context.Context) ([]OpeningStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			"column",
			COUNT(*) AS games,
			COUNT(*) FILTER (WHERE outcome = 'computer_win') AS wins
		FROM plies
		WHERE ply = 0
		GROUP BY "column"
		ORDER BY "column"`)
	if err != nil {
		return nil, fmt.Errorf("openings: %w", err)
	}
	defer rows.Close()

	var out []OpeningStat
	for rows.Next() {
		var o OpeningStat
		if err := rows.Scan(&o.Column, &o.Games, &o.ComputerWins); err != nil {
			return nil, err
		}
		if o.Games > 0 {
			o.ComputerPct = 100 * float64(o.ComputerWins) / float64(o.Games)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
