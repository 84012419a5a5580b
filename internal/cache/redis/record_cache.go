package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
)

const recordKeyPrefix = "cnr:record:"

// DefaultTTL is used when no TTL is configured.
const DefaultTTL = 6 * time.Hour

type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RecordCache stores record JSON under a CNR+cutoff key with a TTL.
type RecordCache struct {
	client kv
	ttl    time.Duration
}

// NewRecordCache builds a cache over any go-redis client.
func NewRecordCache(client kv, ttl time.Duration) *RecordCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RecordCache{client: client, ttl: ttl}
}

// Get returns the cached record for key, if any.
func (c *RecordCache) Get(ctx context.Context, key string) (cnr.CaseRecord, bool, error) {
	raw, err := c.client.Get(ctx, recordKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return cnr.CaseRecord{}, false, nil
	}
	if err != nil {
		return cnr.CaseRecord{}, false, fmt.Errorf("redis get: %w", err)
	}
	var rec cnr.CaseRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return cnr.CaseRecord{}, false, fmt.Errorf("decode cached record: %w", err)
	}
	return rec, true, nil
}

// Put stores rec under key.
func (c *RecordCache) Put(ctx context.Context, key string, rec cnr.CaseRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := c.client.Set(ctx, recordKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
