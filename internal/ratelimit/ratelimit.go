// Package ratelimit はログイン失敗回数の記録とロックを提供します。
//
// 失敗回数は Window の間だけ数え、MaxAttempts に達したキーは Lock の間ロックします。
package ratelimit

import (
	"context"
	"time"
)

// Policy はロックの条件です。
type Policy struct {
	MaxAttempts int
	Window      time.Duration
	Lock        time.Duration
}

// Enabled は制限が有効かを返します。MaxAttempts が 0 以下なら無効です。
func (p Policy) Enabled() bool {
	return p.MaxAttempts > 0
}

// Limiter はキー（クライアント IP）ごとの失敗回数を管理します。
type Limiter interface {
	// Locked はロック中なら残り時間を返します。ロックされていなければ 0 です。
	Locked(ctx context.Context, key string) (time.Duration, error)
	// RecordFailure は失敗を記録し、ロックまでの残り回数を返します。
	RecordFailure(ctx context.Context, key string) (int, error)
	// Reset は失敗回数とロックを消去します。
	Reset(ctx context.Context, key string) error
}
