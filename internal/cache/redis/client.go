// Package redis caches concept-lookup answers so repeated definition
// questions skip the completion provider.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quality-agent/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized",
		zap.String("addr", fmt.Sprintf("%s:%d", host, port)),
		zap.Duration("concept_ttl", ttl),
	)

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// GetConcept returns the cached answer for an utterance hash, reporting a
// miss on redis.Nil.
func (c *Client) GetConcept(ctx context.Context, key string) (string, bool, error) {
	answer, err := c.client.Get(ctx, conceptKey(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get concept cache: %w", err)
	}

	logger.Debug("Concept cache hit", zap.String("key", key))
	return answer, true, nil
}

func (c *Client) SetConcept(ctx context.Context, key, answer string) error {
	err := c.client.Set(ctx, conceptKey(key), answer, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set concept cache: %w", err)
	}

	logger.Debug("Concept cached", zap.String("key", key), zap.Duration("ttl", c.ttl))
	return nil
}

func conceptKey(key string) string {
	return "concept:" + key
}
