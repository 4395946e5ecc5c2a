package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flarepoly/game-engine/internal/model"
)

// cacheClient is the subset of *redis.Client the cache uses.
type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedStore wraps a primary Store with a Redis read-through cache. Writes
// go to the primary first; reads check Redis and fall back to the primary.
// Cache errors never fail a call.
type CachedStore struct {
	primary Store
	rdb     cacheClient
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb cacheClient, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through ---

func (s *CachedStore) Commit(ctx context.Context, st *model.GameState, recs []model.SettlementRecord) error {
	if err := s.primary.Commit(ctx, st, recs); err != nil {
		return err
	}
	data, err := json.Marshal(st)
	if err != nil || s.rdb.Set(ctx, cachedStateKey, data, s.ttl).Err() != nil {
		// Never leave an older state readable.
		s.rdb.Del(ctx, cachedStateKey)
	}
	if len(recs) > 0 {
		keys := []string{settlementsKey("")}
		for _, r := range recs {
			keys = append(keys, settlementsKey(r.GameID))
		}
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

// TxUsed always asks the primary; the answer guards payment.
func (s *CachedStore) TxUsed(ctx context.Context, txHash string) (bool, error) {
	return s.primary.TxUsed(ctx, txHash)
}

// --- Read-through ---

func (s *CachedStore) LoadState(ctx context.Context) (*model.GameState, error) {
	data, err := s.rdb.Get(ctx, cachedStateKey).Bytes()
	if err == nil {
		var st model.GameState
		if json.Unmarshal(data, &st) == nil {
			return &st, nil
		}
	}

	st, err := s.primary.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(st); err == nil {
		s.rdb.Set(ctx, cachedStateKey, data, s.ttl)
	}
	return st, nil
}

func (s *CachedStore) ListSettlements(ctx context.Context, gameID string) ([]model.SettlementRecord, error) {
	key := settlementsKey(gameID)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var recs []model.SettlementRecord
		if json.Unmarshal(data, &recs) == nil {
			return recs, nil
		}
	}

	recs, err := s.primary.ListSettlements(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(recs); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return recs, nil
}

const cachedStateKey = "game:state"

func settlementsKey(gameID string) string { return fmt.Sprintf("settlements:%s", gameID) }
