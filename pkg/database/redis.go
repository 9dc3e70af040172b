package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/inkwell-ai/inkwell-engine/pkg/config"
)

// NewRedisClient creates the Redis client backing the entity registry.
// Returns nil when Redis is not configured; the registry then degrades to
// store-only lookups.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if !cfg.IsConfigured() {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
