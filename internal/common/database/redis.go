package database

import (
	"context"
	"fmt"
	"time"

	"course-notify/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// clientName shows up in CLIENT LIST next to the run lock key.
const clientName = "notify-engine"

type RedisClient struct {
	Client *redis.Client
}

// NewRedis builds a client sized for lock traffic: a handful of SETNX and
// compare-and-delete calls per milestone run.
func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	return &RedisClient{Client: redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   clientName,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     4,
		MaxRetries:   2,
	})}, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", c.Client.Options().Addr, err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
