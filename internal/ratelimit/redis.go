package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	attemptsKeyPrefix = "login:attempts:"
	lockKeyPrefix     = "login:lock:"
)

// Redis は Redis に失敗回数を保持する Limiter です。
// 失敗回数とロックはそれぞれ TTL 付きのキーで、期限が来れば Redis が消去します。
type Redis struct {
	rdb    *redis.Client
	policy Policy
}

// NewRedis は Redis を作成します。
func NewRedis(rdb *redis.Client, policy Policy) *Redis {
	return &Redis{
		rdb:    rdb,
		policy: policy,
	}
}

// NewRedisFromURL は redis:// 形式の URL から接続を作成します。
func NewRedisFromURL(rawURL string, policy Policy) (*Redis, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opt), policy), nil
}

// Ping は接続を確認します。
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close は接続を閉じます。
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) Locked(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.rdb.PTTL(ctx, lockKey(key)).Result()
	if err != nil {
		return 0, err
	}
	// キーがない場合は負数が返る
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *Redis) RecordFailure(ctx context.Context, key string) (int, error) {
	attempts := attemptsKey(key)

	tx := r.rdb.TxPipeline()
	incr := tx.Incr(ctx, attempts)
	tx.ExpireNX(ctx, attempts, r.policy.Window)
	if _, err := tx.Exec(ctx); err != nil {
		return 0, err
	}

	count := int(incr.Val())
	if count < r.policy.MaxAttempts {
		return r.policy.MaxAttempts - count, nil
	}

	tx = r.rdb.TxPipeline()
	tx.Set(ctx, lockKey(key), count, r.policy.Lock)
	tx.Del(ctx, attempts)
	if _, err := tx.Exec(ctx); err != nil {
		return 0, err
	}
	return 0, nil
}

func (r *Redis) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, attemptsKey(key), lockKey(key)).Err()
}

func attemptsKey(key string) string {
	return attemptsKeyPrefix + key
}

func lockKey(key string) string {
	return lockKeyPrefix + key
}

var _ Limiter = (*Redis)(nil)
