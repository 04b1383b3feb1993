package gaps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantrail/price-sync/internal/models"
)

const cacheKeyPrefix = "gap_status:"

// Cache keeps the latest gap report per symbol in Redis. Entries are
// snapshots with a CalculatedAt timestamp, never authoritative;
// staleness is the reader's problem.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache creates a gap report cache with the given entry TTL
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Put stores the report keyed by its symbol
func (c *Cache) Put(ctx context.Context, report *models.GapReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal gap report: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKeyPrefix+report.Symbol, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache gap report for %s: %w", report.Symbol, err)
	}
	return nil
}

// Get returns the cached report for a symbol, or nil when absent
func (c *Cache) Get(ctx context.Context, symbol string) (*models.GapReport, error) {
	data, err := c.rdb.Get(ctx, cacheKeyPrefix+symbol).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached gap report for %s: %w", symbol, err)
	}

	var report models.GapReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached gap report for %s: %w", symbol, err)
	}
	return &report, nil
}
