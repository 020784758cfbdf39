// Package auth は認証 API のハンドラーとルート保護のミドルウェアを提供します。
package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/yourusername/wiki-gate/internal/cookie"
	"github.com/yourusername/wiki-gate/internal/identity"
	"github.com/yourusername/wiki-gate/internal/locale"
	"github.com/yourusername/wiki-gate/internal/logging"
	"github.com/yourusername/wiki-gate/internal/ratelimit"
	"github.com/yourusername/wiki-gate/internal/session"
)

// ContextUserKey は、ハンドラー間で認証済みユーザーを共有するためのキーです。
const ContextUserKey = "auth.user"

// Manager は認証処理に必要な依存関係をまとめた構造体です。
// 起動時に一度だけ作成し、全リクエストで共有します。
type Manager struct {
	gateway  identity.Gateway
	verifier *session.Verifier
	jar      *cookie.Jar
	limiter  ratelimit.Limiter
	logger   *zap.Logger
}

// Option は Manager の設定です。
type Option func(*Manager)

// WithLimiter はログイン試行の制限を有効にします。nil の場合は制限しません。
func WithLimiter(l ratelimit.Limiter) Option {
	return func(m *Manager) {
		m.limiter = l
	}
}

// NewManager は認証マネージャーを作成します。
func NewManager(gateway identity.Gateway, verifier *session.Verifier, jar *cookie.Jar, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		gateway:  gateway,
		verifier: verifier,
		jar:      jar,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Verify はリクエストの Cookie でセッションを判定します。
// リフレッシュで新しいトークンが発行された場合はレスポンスに Cookie を設定します。
func (m *Manager) Verify(c *gin.Context) session.Result {
	cookies := cookie.FromRequest(c.Request)
	res := m.verifier.VerifyWithLogger(providerContext(c), cookies, m.log(c))
	if res.Authorized && res.Refreshed != nil {
		m.jar.SetTokens(c.Writer, res.Refreshed.AccessToken, res.Refreshed.RefreshToken)
	}
	return res
}

// CurrentUser はミドルウェアが保存したユーザーを返します。
func CurrentUser(c *gin.Context) *identity.User {
	if v, ok := c.Get(ContextUserKey); ok {
		if user, ok := v.(*identity.User); ok {
			return user
		}
	}
	return nil
}

func (m *Manager) log(c *gin.Context) *zap.Logger {
	return logging.FromContext(c, m.logger)
}

// providerContext はプロバイダー呼び出し用のコンテキストです。
// クライアントが切断しても、開始したプロバイダー呼び出しは最後まで実行します。
func providerContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func languageOf(c *gin.Context) language.Tag {
	return locale.Negotiate(c.GetHeader("Accept-Language"))
}

func (m *Manager) checkLock(c *gin.Context, key string) time.Duration {
	if m.limiter == nil {
		return 0
	}
	wait, err := m.limiter.Locked(c.Request.Context(), key)
	if err != nil {
		m.log(c).Warn("login limiter unavailable", zap.Error(err))
		return 0
	}
	return wait
}

func (m *Manager) recordFailure(c *gin.Context, key string) {
	if m.limiter == nil {
		return
	}
	remaining, err := m.limiter.RecordFailure(c.Request.Context(), key)
	if err != nil {
		m.log(c).Warn("failed to record login failure", zap.Error(err))
		return
	}
	if remaining == 0 {
		m.log(c).Warn("login locked", zap.String("client_ip", key))
	}
}

func (m *Manager) resetAttempts(c *gin.Context, key string) {
	if m.limiter == nil {
		return
	}
	if err := m.limiter.Reset(c.Request.Context(), key); err != nil {
		m.log(c).Warn("failed to reset login attempts", zap.Error(err))
	}
}

// retryAfterSeconds は Retry-After ヘッダーの値です。端数は切り上げます。
func retryAfterSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	return strconv.FormatInt(secs, 10)
}
