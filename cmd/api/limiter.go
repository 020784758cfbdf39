package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/wiki-gate/internal/config"
	"github.com/yourusername/wiki-gate/internal/ratelimit"
)

const redisPingTimeout = 5 * time.Second

// setupLimiter はログイン試行の制限を作成します。
// LOGIN_MAX_ATTEMPTS が 0 の場合は nil（制限なし）、REDIS_URL があれば Redis、なければメモリに保存します。
func setupLimiter(cfg *config.Config, logger *zap.Logger) (ratelimit.Limiter, error) {
	policy := ratelimit.Policy{
		MaxAttempts: cfg.LoginMaxAttempts,
		Window:      cfg.LoginWindow,
		Lock:        cfg.LoginLock,
	}
	if !policy.Enabled() {
		return nil, nil
	}

	if cfg.RedisURL == "" {
		logger.Info("login limiter uses process memory", zap.Int("max_attempts", policy.MaxAttempts))
		return ratelimit.NewMemory(policy), nil
	}

	store, err := ratelimit.NewRedisFromURL(cfg.RedisURL, policy)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("redis is not reachable: %w", err)
	}
	logger.Info("login limiter uses redis", zap.Int("max_attempts", policy.MaxAttempts))
	return store, nil
}
