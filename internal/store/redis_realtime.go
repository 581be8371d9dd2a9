package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"quantdb/internal/model"
)

// RedisRealtimeRepo is an optional L2 cache in front of a Postgres-backed
// RealtimeRepo: reads check Redis first and fall through to Postgres on
// miss or Redis error; writes update both. Redis failures never fail the
// call, only the Postgres result does — the same "log but fall through"
// discipline as the teacher's RedisStockCache
// (internal/service/stock_cache.go), generalized from *StockData to
// *model.RealtimeSnapshot.
type RedisRealtimeRepo struct {
	client *redis.Client
	next   RealtimeRepo
	ttl    time.Duration
}

// NewRedisRealtimeRepo wraps next with a Redis L2 cache. ttl should track
// the facade's market-hours-open TTL, since a stale L2 entry can only ever
// make a cache hit look fresher than it is; the facade's own TTL check
// against CapturedAt is the correctness boundary, this cache is purely a
// latency optimization.
func NewRedisRealtimeRepo(client *redis.Client, next RealtimeRepo, ttl time.Duration) *RedisRealtimeRepo {
	return &RedisRealtimeRepo{client: client, next: next, ttl: ttl}
}

func realtimeCacheKey(symbol string) string {
	return fmt.Sprintf("quantdb:realtime:%s", symbol)
}

func (r *RedisRealtimeRepo) Get(ctx context.Context, symbol string) (*model.RealtimeSnapshot, bool, error) {
	val, err := r.client.Get(ctx, realtimeCacheKey(symbol)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[RealtimeCache] redis error getting %s: %v", symbol, err)
		}
		return r.next.Get(ctx, symbol)
	}

	var snap model.RealtimeSnapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		log.Printf("[RealtimeCache] error unmarshaling snapshot for %s: %v", symbol, err)
		return r.next.Get(ctx, symbol)
	}
	return &snap, true, nil
}

func (r *RedisRealtimeRepo) GetBatch(ctx context.Context, symbols []string) (map[string]model.RealtimeSnapshot, error) {
	return r.next.GetBatch(ctx, symbols)
}

func (r *RedisRealtimeRepo) Upsert(ctx context.Context, snap *model.RealtimeSnapshot) error {
	if err := r.next.Upsert(ctx, snap); err != nil {
		return err
	}

	jsonData, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[RealtimeCache] error marshaling snapshot for %s: %v", snap.Symbol, err)
		return nil
	}
	if err := r.client.Set(ctx, realtimeCacheKey(snap.Symbol), jsonData, r.ttl).Err(); err != nil {
		log.Printf("[RealtimeCache] error setting cache for %s: %v", snap.Symbol, err)
	}
	return nil
}

var _ RealtimeRepo = (*RedisRealtimeRepo)(nil)
