package store

import (
	"context"
	"sync"

	"github.com/flarepoly/game-engine/internal/model"
)

// MemoryStore implements Store in process memory. Used for testing and
// development; nothing survives a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	state       *model.GameState
	settlements []model.SettlementRecord
	txs         map[string]bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{txs: make(map[string]bool)}
}

func (s *MemoryStore) Commit(_ context.Context, st *model.GameState, recs []model.SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		if s.txs[r.TxHash] || seen[r.TxHash] {
			return ErrDuplicateTx
		}
		seen[r.TxHash] = true
	}

	// Keep a private copy so callers cannot mutate what was saved.
	s.state = st.Clone()
	for _, r := range recs {
		s.settlements = append(s.settlements, r)
		s.txs[r.TxHash] = true
	}
	return nil
}

func (s *MemoryStore) LoadState(_ context.Context) (*model.GameState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, ErrNotFound
	}
	return s.state.Clone(), nil
}

func (s *MemoryStore) TxUsed(_ context.Context, txHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.txs[txHash], nil
}

func (s *MemoryStore) ListSettlements(_ context.Context, gameID string) ([]model.SettlementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.SettlementRecord, 0, len(s.settlements))
	for _, r := range s.settlements {
		if gameID == "" || r.GameID == gameID {
			out = append(out, r)
		}
	}
	return out, nil
}
