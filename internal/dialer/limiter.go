package dialer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sachida369/AICaller/pkg/utils"
)

// Limiter hands out per-campaign concurrency slots. A slot is taken in the tick that
// dispatches a call and returned when that call's pipeline exits.
type Limiter interface {
	Acquire(ctx context.Context, campaignID string, limit int) (bool, error)
	Release(ctx context.Context, campaignID string) error
}

// LocalLimiter keeps slot counts in process memory.
type LocalLimiter struct {
	mu    sync.Mutex
	inUse map[string]int
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{inUse: map[string]int{}}
}

func (l *LocalLimiter) Acquire(ctx context.Context, campaignID string, limit int) (bool, error) {
	if limit <= 0 {
		return false, fmt.Errorf("dialer: limit must be > 0")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inUse[campaignID] >= limit {
		return false, nil
	}
	l.inUse[campaignID]++
	return true, nil
}

func (l *LocalLimiter) Release(ctx context.Context, campaignID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := l.inUse[campaignID]; n <= 1 {
		delete(l.inUse, campaignID)
	} else {
		l.inUse[campaignID] = n - 1
	}
	return nil
}

func (l *LocalLimiter) InUse(campaignID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inUse[campaignID]
}

const DefaultRedisKeyPrefix = "aicaller:dialer:inflight:"

// RedisLimiter shares slots across processes through the atomic Lua counter in
// pkg/utils. The TTL bounds how long slots leaked by a crashed process survive.
type RedisLimiter struct {
	rdb    utils.RedisScripter
	prefix string
	ttl    time.Duration
}

func NewRedisLimiter(rdb utils.RedisScripter, prefix string, ttl time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (l *RedisLimiter) key(campaignID string) string { return l.prefix + campaignID }

func (l *RedisLimiter) Acquire(ctx context.Context, campaignID string, limit int) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, l.key(campaignID), limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context, campaignID string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, l.key(campaignID))
}

func (l *RedisLimiter) InUse(ctx context.Context, campaignID string) (int, error) {
	return utils.ConcurrencyCapInUse(ctx, l.rdb, l.key(campaignID))
}
