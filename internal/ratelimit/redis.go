package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisLimiter implements the sliding window on a shared Redis instance so
// that all service replicas draw from one external API budget. Every backend
// failure fails open: correctness of rate limiting is best effort, and a
// broken counter must never deadlock a job.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
	logger *zap.Logger
}

// NewRedis constructs a Redis-backed limiter.
func NewRedis(client *redis.Client, cfg Config, logger *zap.Logger) *RedisLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{
		client: client,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Allow records the call in a per-key sorted set scored by timestamp and
// checks the count inside the window.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r.client == nil {
		return true, nil
	}
	now := time.Now()
	cutoff := now.Add(-r.cfg.Window)
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", cutoff.UnixNano()))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("rate limit backend unavailable, failing open", zap.Error(err))
		return true, fmt.Errorf("rate limit check: %w", err)
	}

	if countCmd.Val() >= int64(r.cfg.Limit) {
		return false, nil
	}

	pipe = r.client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, redisKey, r.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("rate limit record failed, failing open", zap.Error(err))
		return true, fmt.Errorf("rate limit record: %w", err)
	}
	return true, nil
}
