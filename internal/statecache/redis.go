package statecache

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/observatory-sec/observatory/internal/models"
)

// RedisCache stores gate state in redis, shared across instances.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache connects to redis and verifies the connection.
func NewRedisCache(addr string, password string, db int) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Connected to Redis: %s", addr)

	return &RedisCache{rdb: rdb}, nil
}

func gateKey(productID string) string {
	return fmt.Sprintf("securitygate:%s", productID)
}

func (c *RedisCache) GetGateStatus(ctx context.Context, productID string) (models.GateStatus, bool, error) {
	value, err := c.rdb.Get(ctx, gateKey(productID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get gate status: %w", err)
	}
	return models.GateStatus(value), true, nil
}

func (c *RedisCache) SetGateStatus(ctx context.Context, productID string, status models.GateStatus) error {
	if err := c.rdb.Set(ctx, gateKey(productID), string(status), 0).Err(); err != nil {
		return fmt.Errorf("failed to store gate status: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
