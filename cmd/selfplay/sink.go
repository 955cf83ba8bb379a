package main

import (
	"log"
	"sync"

	"github.com/brensch/connect4/store"
)

// rotatingSink writes games into a BatchWriter and starts a new batch file
// every perFlush games.
type rotatingSink struct {
	mu       sync.Mutex
	outDir   string
	perFlush int
	cur      *store.BatchWriter
	files    []string
}

func newRotatingSink(outDir string, perFlush int) (*rotatingSink, error) {
	if perFlush <= 0 {
		perFlush = 50
	}
	bw, err := store.NewBatchWriter(outDir)
	if err != nil {
		return nil, err
	}
	return &rotatingSink{outDir: outDir, perFlush: perFlush, cur: bw}, nil
}

func (s *rotatingSink) WriteGame(rows []store.PlyRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cur.WriteGame(rows); err != nil {
		return err
	}
	if s.cur.Games() < s.perFlush {
		return nil
	}
	if err := s.flushLocked(); err != nil {
		return err
	}
	bw, err := store.NewBatchWriter(s.outDir)
	if err != nil {
		return err
	}
	s.cur = bw
	return nil
}

func (s *rotatingSink) flushLocked() error {
	path, rows, games, err := s.cur.Finalize()
	if err != nil {
		log.Printf("Parquet flush failed (games=%d rows=%d): %v", s.cur.Games(), s.cur.Rows(), err)
		return err
	}
	if path != "" {
		log.Printf("Parquet flush ok: %s (games=%d rows=%d)", path, games, rows)
		s.files = append(s.files, path)
	}
	return nil
}

// Close finalizes the open batch. Further writes fail with
// store.ErrWriterClosed.
func (s *rotatingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *rotatingSink) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}
