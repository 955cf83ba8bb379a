package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
)

var ErrWriterClosed = errors.New("store: batch writer is closed")

// BatchWriter streams whole games into one Parquet file under outDir/tmp and
// moves it into outDir on Finalize. It is safe for concurrent use so several
// self-play workers can share one batch.
type BatchWriter struct {
	mu sync.Mutex

	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[PlyRow]

	games int
	rows  int
}

func NewBatchWriter(outDir string) (*BatchWriter, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	tmpDir := filepath.Join(absOut, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("batch_%d_%s.parquet", time.Now().UnixNano(), NewGameID()[:8])
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}

	return &BatchWriter{
		tmpPath: tmpPath,
		outPath: filepath.Join(absOut, name),
		file:    f,
		writer:  parquet.NewGenericWriter[PlyRow](f, writerOptions()...),
	}, nil
}

func (b *BatchWriter) OutPath() string { return b.outPath }

func (b *BatchWriter) Games() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.games
}

func (b *BatchWriter) Rows() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rows
}

// WriteGame appends all plies of one finished game.
func (b *BatchWriter) WriteGame(rows []PlyRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writer == nil {
		return ErrWriterClosed
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := b.writer.Write(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	b.rows += len(rows)
	b.games++
	return nil
}

// Finalize closes the file and moves it into place. A batch without rows is
// removed and reported with an empty path.
func (b *BatchWriter) Finalize() (outPath string, rows, games int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writer == nil {
		return "", 0, 0, nil
	}

	closeErr := b.writer.Close()
	b.writer = nil
	_ = b.file.Sync()
	fileErr := b.file.Close()
	b.file = nil

	if closeErr != nil {
		return "", 0, 0, fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return "", 0, 0, fmt.Errorf("close parquet file: %w", fileErr)
	}
	if b.rows == 0 {
		_ = os.Remove(b.tmpPath)
		return "", 0, 0, nil
	}
	if err := os.Rename(b.tmpPath, b.outPath); err != nil {
		return "", 0, 0, fmt.Errorf("rename parquet: %w", err)
	}
	return b.outPath, b.rows, b.games, nil
}
