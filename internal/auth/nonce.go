package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// NonceStore tracks the last consumed nonce per (scope, player). Consume
// must be atomic: of two concurrent calls with the same nonce, exactly one
// succeeds.
type NonceStore interface {
	Last(ctx context.Context, scope string, player int) (uint64, error)
	Consume(ctx context.Context, scope string, player int, nonce uint64) error
}

// MemoryNonceStore keeps counters in process memory.
type MemoryNonceStore struct {
	mu   sync.Mutex
	last map[string]uint64
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{last: make(map[string]uint64)}
}

func (s *MemoryNonceStore) Last(_ context.Context, scope string, player int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[nonceKey(scope, player)], nil
}

func (s *MemoryNonceStore) Consume(_ context.Context, scope string, player int, nonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := nonceKey(scope, player)
	cur := s.last[key]
	if nonce <= cur {
		return ErrNonceReplayed
	}
	if nonce != cur+1 {
		return ErrStaleChallenge
	}
	s.last[key] = nonce
	return nil
}

// consumeScript advances the counter only if ARGV[1] is exactly last+1.
// Returns 1 on success, -1 for a replay, -2 for an out-of-sequence nonce.
// Counters never expire: a lost counter would make consumed nonces valid
// again.
var consumeScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local n = tonumber(ARGV[1])
if n <= cur then return -1 end
if n ~= cur + 1 then return -2 end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// redisClient is the subset of *redis.Client the nonce store needs.
type redisClient interface {
	redis.Scripter
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisNonceStore shares nonce counters across engine instances.
type RedisNonceStore struct {
	rdb redisClient
}

// NewRedisNonceStore creates a Redis-backed store.
func NewRedisNonceStore(rdb redisClient) *RedisNonceStore {
	return &RedisNonceStore{rdb: rdb}
}

func (s *RedisNonceStore) Last(ctx context.Context, scope string, player int) (uint64, error) {
	n, err := s.rdb.Get(ctx, redisNonceKey(scope, player)).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (s *RedisNonceStore) Consume(ctx context.Context, scope string, player int, nonce uint64) error {
	res, err := consumeScript.Run(ctx, s.rdb, []string{redisNonceKey(scope, player)}, nonce).Int()
	if err != nil {
		return fmt.Errorf("consume nonce: %w", err)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return ErrNonceReplayed
	default:
		return ErrStaleChallenge
	}
}

func nonceKey(scope string, player int) string      { return fmt.Sprintf("%s:%d", scope, player) }
func redisNonceKey(scope string, player int) string { return fmt.Sprintf("nonce:%s:%d", scope, player) }
