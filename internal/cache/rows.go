package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"roadrisk/internal/types"
)

// RowStore caches fully-built feature rows keyed by sample id, so a
// previously scored point can be re-explained without recomputing its
// enrichment. Lookups that miss return ok=false, never an error the caller
// must branch on: a miss and a broken backend look the same to the pipeline.
type RowStore interface {
	Get(ctx context.Context, id string) (types.FeatureRow, bool)
	Set(ctx context.Context, id string, row types.FeatureRow)
}

// MemoryRowStore is the default in-process row store, a bounded FIFO.
type MemoryRowStore struct {
	store *FIFO[types.FeatureRow]
}

// NewMemoryRowStore creates an in-memory row store bounded at max entries.
func NewMemoryRowStore(max int) *MemoryRowStore {
	return &MemoryRowStore{store: NewFIFO[types.FeatureRow](max)}
}

// Get returns the cached row for id, if present.
func (m *MemoryRowStore) Get(_ context.Context, id string) (types.FeatureRow, bool) {
	return m.store.Get(id)
}

// Set stores a row under id.
func (m *MemoryRowStore) Set(_ context.Context, id string, row types.FeatureRow) {
	m.store.Set(id, row)
}

// rowTTL bounds how long a Redis-cached row survives. Unlike the in-memory
// stores, Redis entries get a TTL so abandoned ids do not accumulate across
// deployments.
const rowTTL = 24 * time.Hour

// RedisRowStore backs the scored-row cache with Redis, so explain-by-id
// works across process restarts and multiple API instances. All failures
// degrade to a cache miss.
type RedisRowStore struct {
	client *redis.Client
}

// NewRedisRowStore creates a Redis-backed row store.
func NewRedisRowStore(client *redis.Client) *RedisRowStore {
	return &RedisRowStore{client: client}
}

func rowKey(id string) string {
	return fmt.Sprintf("roadrisk:row:%s", id)
}

// Get returns the cached row for id, if present and decodable.
func (r *RedisRowStore) Get(ctx context.Context, id string) (types.FeatureRow, bool) {
	data, err := r.client.Get(ctx, rowKey(id)).Result()
	if err != nil {
		return types.FeatureRow{}, false
	}
	var row types.FeatureRow
	if err := json.Unmarshal([]byte(data), &row); err != nil {
		return types.FeatureRow{}, false
	}
	return row, true
}

// Set stores a row under id with the store TTL. Errors are dropped: losing
// a cache write never fails a scoring request.
func (r *RedisRowStore) Set(ctx context.Context, id string, row types.FeatureRow) {
	data, err := json.Marshal(row)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, rowKey(id), data, rowTTL).Err()
}
