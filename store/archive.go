// Package store archives played games as Parquet, one row per ply.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/brensch/connect4/game"
	"github.com/brensch/connect4/mcts"
	"github.com/brensch/connect4/rules"
)

const schemaName = "connect4_ply_v1"

// PlyRow is one move of one game.
//
// Board is the position before the move, Rows*Cols cells with row 0 (the top)
// first: 0 empty, 1 human, 2 computer. Outcome is the final result of the game
// and is the same on every row of a game.
type PlyRow struct {
	GameID string  `parquet:"game_id,dict"`
	Ply    int32   `parquet:"ply"`
	Side   string  `parquet:"side,dict"`
	Board  []int32 `parquet:"board"`
	Column int32   `parquet:"column"`

	// Search statistics; zero for moves not chosen by the engine.
	Engine       bool    `parquet:"engine"`
	Simulations  int32   `parquet:"simulations"`
	WinRate      float32 `parquet:"win_rate"`
	ShortCircuit bool    `parquet:"short_circuit"`

	Outcome string `parquet:"outcome,dict"`
	Source  string `parquet:"source,dict"`

	// RootJSON holds the root children statistics of the search as JSON.
	RootJSON []byte `parquet:"root_json,optional,zstd"`
}

func NewGameID() string {
	return uuid.NewString()
}

// NewPlyRow records pos and the move played from it. res may be nil when the
// move did not come from the engine.
func NewPlyRow(gameID string, ply int, pos *game.Position, m game.Move, res *mcts.Result) PlyRow {
	row := PlyRow{
		GameID: gameID,
		Ply:    int32(ply),
		Side:   pos.Turn.String(),
		Board:  make([]int32, 0, game.Rows*game.Cols),
		Column: int32(m),
	}
	for r := 0; r < game.Rows; r++ {
		for c := 0; c < game.Cols; c++ {
			row.Board = append(row.Board, int32(pos.Cells[r][c]))
		}
	}
	if res != nil {
		row.Engine = true
		row.Simulations = int32(res.Simulations)
		row.WinRate = float32(res.WinRate)
		row.ShortCircuit = res.ShortCircuit
		if b, err := json.Marshal(res.Children); err == nil {
			row.RootJSON = b
		}
	}
	return row
}

// SetOutcome stamps the final result and source on every row.
func SetOutcome(rows []PlyRow, out rules.Outcome, source string) {
	for i := range rows {
		rows[i].Outcome = out.String()
		rows[i].Source = source
	}
}

// Position rebuilds the position the row's move was played from.
func (r PlyRow) Position() (*game.Position, error) {
	if len(r.Board) != game.Rows*game.Cols {
		return nil, fmt.Errorf("%w: %d cells", game.ErrBadBoard, len(r.Board))
	}
	side := game.Human
	if r.Side == game.Computer.String() {
		side = game.Computer
	}
	grid := make([][]int, game.Rows)
	for i := range grid {
		grid[i] = make([]int, game.Cols)
		for c := range grid[i] {
			grid[i][c] = int(r.Board[i*game.Cols+c])
		}
	}
	return game.FromRows(grid, side)
}

func writerOptions() []parquet.WriterOption {
	return []parquet.WriterOption{
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("root_json"),
		parquet.KeyValueMetadata("schema", schemaName),
	}
}

// WriteArchiveAtomic writes rows to outDir/<name>.parquet through a temporary
// file so readers never observe a partial file.
func WriteArchiveAtomic(outDir, name string, rows []PlyRow) (string, error) {
	if err := os.MkdirAll(filepath.Join(outDir, "tmp"), 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	finalPath := filepath.Join(outDir, name+".parquet")
	tmpPath := filepath.Join(outDir, "tmp", name+".parquet.tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows, writerOptions()...); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return finalPath, nil
}

func ReadArchive(path string) ([]PlyRow, error) {
	rows, err := parquet.ReadFile[PlyRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
