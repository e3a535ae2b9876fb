// Package redis consumes classified-content events from the Redis ingest
// list that the classifier layer pushes to.
package redis

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Config configures the ingest consumer.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
}

// Consumer pops classified-content payloads off the ingest list.
type Consumer struct {
	client       *redis.Client
	key          string
	blockTimeout time.Duration
}

// NewConsumer creates and pings an ingest consumer.
func NewConsumer(cfg Config) (*Consumer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("ingest list key is required")
	}
	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis ingest: %w", err)
	}

	return &Consumer{
		client:       client,
		key:          cfg.Key,
		blockTimeout: cfg.BlockTimeout,
	}, nil
}

// Pop blocks up to the configured timeout for one payload. A nil payload with
// nil error means the timeout elapsed with nothing queued.
func (c *Consumer) Pop(ctx context.Context) ([]byte, error) {
	res, err := c.client.BLPop(ctx, c.blockTimeout, c.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.client.Close()
}
