package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/flarepoly/game-engine/internal/model"
)

var stateKey = []byte("state:current")

// Every commit is fsynced; a commit that is acknowledged must survive a crash.
var leveldbSync = opt.WriteOptions{Sync: true}

const (
	settlementPrefix = "settlement:"
	txPrefix         = "tx:"
)

// LevelStore implements Store on an embedded LevelDB database, for
// single-node deployments without PostgreSQL. Each settlement also writes a
// tx:<hash> index key so reuse is found without a scan.
type LevelStore struct {
	db *leveldb.DB
	mu sync.Mutex // makes the duplicate check and the batch write one step
}

// OpenLevelStore opens (or creates) a LevelDB database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &LevelStore{db: db}, nil
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}

func (s *LevelStore) Commit(_ context.Context, st *model.GameState, recs []model.SettlementRecord) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := new(leveldb.Batch)
	b.Put(stateKey, data)
	seen := make(map[string]bool, len(recs))
	for i := range recs {
		r := &recs[i]
		used, err := s.db.Has(txKey(r.TxHash), nil)
		if err != nil {
			return err
		}
		if used || seen[r.TxHash] {
			return ErrDuplicateTx
		}
		seen[r.TxHash] = true

		rd, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode settlement: %w", err)
		}
		b.Put(settlementKey(r), rd)
		b.Put(txKey(r.TxHash), []byte(r.ID))
	}
	return s.db.Write(b, &leveldbSync)
}

func (s *LevelStore) LoadState(_ context.Context) (*model.GameState, error) {
	data, err := s.db.Get(stateKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var st model.GameState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &st, nil
}

func (s *LevelStore) TxUsed(_ context.Context, txHash string) (bool, error) {
	return s.db.Has(txKey(txHash), nil)
}

func (s *LevelStore) ListSettlements(_ context.Context, gameID string) ([]model.SettlementRecord, error) {
	prefix := settlementPrefix
	if gameID != "" {
		prefix += gameID + ":"
	}
	it := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()

	out := []model.SettlementRecord{}
	for it.Next() {
		var r model.SettlementRecord
		if err := json.Unmarshal(it.Value(), &r); err != nil {
			return nil, fmt.Errorf("decode settlement %q: %w", it.Key(), err)
		}
		out = append(out, r)
	}
	return out, it.Error()
}

// settlementKey orders records by game, then settlement time.
func settlementKey(r *model.SettlementRecord) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", settlementPrefix, r.GameID, r.SettledAt.UnixNano(), r.ID))
}

func txKey(hash string) []byte { return []byte(txPrefix + hash) }
