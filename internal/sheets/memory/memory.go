package memory

import (
	"context"
	"fmt"
	"sync"

	"arcreceipts/internal/core"
	"arcreceipts/internal/sheets"
)

var _ sheets.Ledger = (*Store)(nil)

// Store keeps ledger rows in process.
type Store struct {
	mu       sync.Mutex
	explorer core.Explorer
	ids      []uint64
	rows     [][]any
}

func New(explorer core.Explorer) *Store {
	return &Store{explorer: explorer}
}

// Append stores the receipt row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, r core.Receipt) (string, error) {
	if r.ID == 0 {
		return "", fmt.Errorf("receipt without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, r.ID)
	s.rows = append(s.rows, sheets.Row(r, s.explorer))
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// ListIDs returns appended ids in append order.
func (s *Store) ListIDs(_ context.Context) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.ids...), nil
}

// Rows returns a copy of the stored rows.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	for i, row := range s.rows {
		out[i] = append([]any(nil), row...)
	}
	return out
}
