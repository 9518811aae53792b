package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eventorizon/backend/internal/models"
)

const catalogKey = "events:catalog"

// Cache keeps the public event catalog in Redis for a short TTL.
// Seat counts change on every registration, so writers call Invalidate.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache creates a catalog cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached catalog. ok is false on a miss or any Redis error.
func (c *Cache) Get(ctx context.Context) ([]models.Event, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, catalogKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("catalog cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var list []models.Event
	if err := json.Unmarshal(raw, &list); err != nil {
		c.logger.Warn("catalog cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return list, true
}

// Set stores the catalog.
func (c *Cache) Set(ctx context.Context, list []models.Event) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, catalogKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("catalog cache write failed", zap.Error(err))
	}
}

// Invalidate drops the cached catalog.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, catalogKey).Err()
}
