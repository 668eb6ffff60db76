package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adr-pipeline/internal/config"
	"github.com/adr-pipeline/internal/models"
	"github.com/redis/go-redis/v9"
)

// RunStatusCache caches run-status snapshots in Redis so the polling API does
// not hit Postgres for every status request.
type RunStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunStatusCache creates a new Redis cache connection
func NewRunStatusCache(cfg *config.RedisConfig) (*RunStatusCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RunStatusCache{client: client, ttl: cfg.RunStatusTTL}, nil
}

// NewRunStatusCacheWithClient wraps an existing client. Used by tests.
func NewRunStatusCacheWithClient(client *redis.Client, ttl time.Duration) *RunStatusCache {
	return &RunStatusCache{client: client, ttl: ttl}
}

// Close closes the Redis connection
func (c *RunStatusCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Ping checks if Redis is reachable
func (c *RunStatusCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// runKey builds the cache key for a run
func runKey(runID string) string {
	return "run:" + runID
}

// SetRun caches a run view snapshot
func (c *RunStatusCache) SetRun(ctx context.Context, view *models.RunView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal run view: %w", err)
	}

	if err := c.client.Set(ctx, runKey(view.Run.RunID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache run view: %w", err)
	}

	return nil
}

// GetRun retrieves a cached run view. Returns (nil, nil) on a cache miss.
func (c *RunStatusCache) GetRun(ctx context.Context, runID string) (*models.RunView, error) {
	data, err := c.client.Get(ctx, runKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached run view: %w", err)
	}

	var view models.RunView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached run view: %w", err)
	}

	return &view, nil
}

// InvalidateRun drops the cached snapshot of a run. The coordinator calls
// this after every run mutation so the API never serves a stale terminal
// status during a run.
func (c *RunStatusCache) InvalidateRun(ctx context.Context, runID string) error {
	if err := c.client.Del(ctx, runKey(runID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached run view: %w", err)
	}
	return nil
}
