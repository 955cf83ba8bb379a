// Package config holds the environment helpers shared by the binaries. Flags
// take their defaults from the environment so containers can be configured
// without a command line.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brensch/connect4/game"
	"github.com/brensch/connect4/mcts"
)

func EnvOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func EnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func EnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func EnvBool(key string, def bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return def
}

// ParseSide accepts "human"/"h"/"x" and "computer"/"c"/"o".
func ParseSide(s string) (game.Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "human", "h", "x":
		return game.Human, nil
	case "computer", "c", "o":
		return game.Computer, nil
	}
	return game.Human, fmt.Errorf("unknown side %q", s)
}

func ParseFinalMove(s string) (mcts.FinalMovePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last", "last_selected":
		return mcts.FinalLastSelected, nil
	case "visits", "most_visited":
		return mcts.FinalMostVisited, nil
	case "winrate", "best_win_rate":
		return mcts.FinalBestWinRate, nil
	}
	return mcts.FinalLastSelected, fmt.Errorf("unknown final move policy %q", s)
}

func ParseTieBreak(s string) (mcts.TieBreakPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "random":
		return mcts.TieBreakRandom, nil
	case "first":
		return mcts.TieBreakFirst, nil
	}
	return mcts.TieBreakRandom, fmt.Errorf("unknown tie break %q", s)
}

// Engine is the engine configuration read from MCTS_* variables on top of
// mcts.DefaultConfig.
func Engine() (mcts.Config, error) {
	cfg := mcts.DefaultConfig()
	cfg.Budget = EnvDuration("MCTS_BUDGET", cfg.Budget)
	cfg.Exploration = EnvFloat("MCTS_EXPLORATION", cfg.Exploration)
	cfg.MaxCycles = EnvInt("MCTS_MAX_CYCLES", cfg.MaxCycles)
	cfg.MaxNodes = EnvInt("MCTS_MAX_NODES", cfg.MaxNodes)

	var err error
	if cfg.FinalMove, err = ParseFinalMove(os.Getenv("MCTS_FINAL_MOVE")); err != nil {
		return cfg, err
	}
	if cfg.TieBreak, err = ParseTieBreak(os.Getenv("MCTS_TIE_BREAK")); err != nil {
		return cfg, err
	}
	if cfg.Budget <= 0 {
		return cfg, fmt.Errorf("MCTS_BUDGET must be positive, got %s", cfg.Budget)
	}
	return cfg, nil
}
