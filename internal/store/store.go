// Package store persists committed game state and the settlement audit
// ledger. Implementations: in-memory (testing), PostgreSQL, embedded
// LevelDB, and a Redis read-through cache over any of them.
package store

import (
	"context"
	"errors"

	"github.com/flarepoly/game-engine/internal/model"
)

var (
	// ErrNotFound is returned by LoadState when nothing has been saved yet.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateTx is returned by Commit when a record's tx hash already
	// backs a settlement, in this game or any earlier one.
	ErrDuplicateTx = errors.New("store: transaction hash already recorded")
)

// Store is the persistence interface. The engine calls Commit once per
// committed action; a failed commit halts the engine.
type Store interface {
	// Commit replaces the current state with st and appends recs to the
	// settlement ledger as one atomic write. On error nothing is applied.
	Commit(ctx context.Context, st *model.GameState, recs []model.SettlementRecord) error

	// LoadState returns the most recently committed state.
	LoadState(ctx context.Context) (*model.GameState, error)

	// TxUsed reports whether txHash backs any recorded settlement. Hashes
	// are compared as given; callers normalize them first.
	TxUsed(ctx context.Context, txHash string) (bool, error)

	// ListSettlements returns the records for gameID in settlement order.
	// An empty gameID returns every record, grouped by game.
	ListSettlements(ctx context.Context, gameID string) ([]model.SettlementRecord, error)
}
