package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"momentumAPI/utils"
)

func NewRedisClient(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("redis_connection_failed", zap.Error(err), zap.String("addr", addr))
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("redis_connected", zap.String("addr", addr))
	return client, nil
}

// ScoreCache keeps computed identity snapshots per user and day.
// A nil *ScoreCache is valid and caches nothing.
type ScoreCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewScoreCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ScoreCache {
	if client == nil {
		return nil
	}
	return &ScoreCache{client: client, ttl: ttl, logger: logger}
}

func scoreKey(userID uuid.UUID, day civil.Date) string {
	return fmt.Sprintf("identity_scores:%s:%s", userID, day)
}

// Get decodes the cached value into dest. It reports false on a miss.
func (c *ScoreCache) Get(ctx context.Context, userID uuid.UUID, day civil.Date, dest any) (bool, error) {
	if c == nil {
		return false, nil
	}

	val, err := c.client.Get(ctx, scoreKey(userID, day)).Bytes()
	if errors.Is(err, redis.Nil) {
		utils.ScoreCache.WithLabelValues("miss").Inc()
		return false, nil
	}
	if err != nil {
		utils.ScoreCache.WithLabelValues("error").Inc()
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		utils.ScoreCache.WithLabelValues("error").Inc()
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}
	utils.ScoreCache.WithLabelValues("hit").Inc()
	return true, nil
}

func (c *ScoreCache) Set(ctx context.Context, userID uuid.UUID, day civil.Date, value any) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	return c.client.Set(ctx, scoreKey(userID, day), data, c.ttl).Err()
}

// Invalidate drops every cached day for the user. Called after any write that produces votes.
func (c *ScoreCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if c == nil {
		return
	}

	pattern := fmt.Sprintf("identity_scores:%s:*", userID)
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.logger.Warn("score_cache_invalidate_failed", zap.String("user_id", userID.String()), zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.logger.Warn("score_cache_invalidate_failed", zap.String("user_id", userID.String()), zap.Error(err))
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
