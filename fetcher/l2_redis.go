// L2 cache: a shared Redis instance, so fetch results are warm across
// multiple aggregator instances even when an individual instance's L1 is
// cold. Grounded on the teacher's RemoteCache interface
// (cache-manager/service.go), implemented here against
// github.com/redis/go-redis/v9 instead of left unimplemented.
package fetcher

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RemoteCache abstracts the L2 distributed cache.
type RemoteCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisCache implements RemoteCache on top of a go-redis client. A circuit
// breaker guards it so a degraded Redis instance fails fast instead of
// stalling every fetch behind a network timeout; callers fall back to L1
// (spec §7: "L1 remains authoritative for the request").
type RedisCache struct {
	client  *redis.Client
	breaker *CircuitBreaker
	opTimeout time.Duration
}

// NewRedisCache wraps an existing go-redis client. opTimeout bounds each
// individual Get/Set/Delete call (spec §2: "cache L2 op 2s").
func NewRedisCache(client *redis.Client, opTimeout time.Duration) *RedisCache {
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	return &RedisCache{
		client:    client,
		breaker:   NewCircuitBreaker(5, 60*time.Second),
		opTimeout: opTimeout,
	}
}

func (r *RedisCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

// Get retrieves a value, returning (nil, false, nil) on a clean miss.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !r.breaker.Allow(time.Now()) {
		return nil, false, errCircuitOpen
	}
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()

	val, err := r.client.Get(cctx, key).Bytes()
	if err == redis.Nil {
		r.breaker.RecordSuccess()
		return nil, false, nil
	}
	if err != nil {
		r.breaker.RecordFailure(time.Now())
		return nil, false, err
	}
	r.breaker.RecordSuccess()
	return val, true, nil
}

// Set stores value under key with the given TTL.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !r.breaker.Allow(time.Now()) {
		return errCircuitOpen
	}
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.Set(cctx, key, value, ttl).Err(); err != nil {
		r.breaker.RecordFailure(time.Now())
		return err
	}
	r.breaker.RecordSuccess()
	return nil
}

// Delete removes key.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if !r.breaker.Allow(time.Now()) {
		return errCircuitOpen
	}
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.Del(cctx, key).Err(); err != nil {
		r.breaker.RecordFailure(time.Now())
		return err
	}
	r.breaker.RecordSuccess()
	return nil
}
