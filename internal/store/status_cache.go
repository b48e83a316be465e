package store

import (
	"context"
	"encoding/json"
	"time"

	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

const statusKeyPrefix = "admissions:status:"

// StatusCache is a write-through Redis cache of status views. Failures are
// logged and reported as misses; the record store stays authoritative.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewStatusCache(client *redis.Client, ttl time.Duration, log logger.Logger) *StatusCache {
	return &StatusCache{client: client, ttl: ttl, logger: logger.Component(log, "status-cache")}
}

func statusKey(applicationID string) string {
	return statusKeyPrefix + applicationID
}

func (c *StatusCache) Get(ctx context.Context, applicationID string) (*models.StatusView, bool) {
	data, err := c.client.Get(ctx, statusKey(applicationID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("status cache read failed", map[string]interface{}{"applicationId": applicationID, "error": err})
		}
		return nil, false
	}
	var view models.StatusView
	if err := json.Unmarshal(data, &view); err != nil {
		c.logger.Warn("status cache entry corrupt", map[string]interface{}{"applicationId": applicationID, "error": err})
		return nil, false
	}
	return &view, true
}

func (c *StatusCache) Set(ctx context.Context, view *models.StatusView) {
	data, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, statusKey(view.ApplicationID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("status cache write failed", map[string]interface{}{"applicationId": view.ApplicationID, "error": err})
	}
}

func (c *StatusCache) Invalidate(ctx context.Context, applicationID string) {
	if err := c.client.Del(ctx, statusKey(applicationID)).Err(); err != nil {
		c.logger.Warn("status cache delete failed", map[string]interface{}{"applicationId": applicationID, "error": err})
	}
}
