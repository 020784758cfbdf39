// Package session は Cookie から認証状態を判定します。
//
// 判定は Strategy の順序付きリストで行い、最初に成功したものを採用します。
// 各 Strategy の失敗はログに残すだけで、次の Strategy へ進みます。
package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/yourusername/wiki-gate/internal/cookie"
	"github.com/yourusername/wiki-gate/internal/identity"
	"github.com/yourusername/wiki-gate/internal/metrics"
)

// Strategy 名です。メトリクスのラベルとログにも使います。
const (
	StrategyAccessToken   = "access_token"
	StrategyRefreshToken  = "refresh_token"
	StrategyLegacySession = "legacy_session"
)

// Result は判定結果です。
type Result struct {
	Authorized bool
	User       *identity.User
	// Refreshed はリフレッシュで新しいセッションが発行された場合に設定されます。
	// 呼び出し側はこのトークンを Cookie に保存する必要があります。
	Refreshed  *identity.Session
	// Strategy は成功した Strategy の名前です。
	Strategy   string
}

// Strategy は 1 種類の資格情報を検証する手順です。
type Strategy struct {
	Name   string
	// Cookie はこの Strategy が読む Cookie 名です。値が空なら Strategy は適用されません。
	Cookie string
	Check  func(ctx context.Context, gw identity.Gateway, token string) (Result, error)
}

// DefaultStrategies はアクセストークン、リフレッシュトークン、旧形式セッションの順で検証します。
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: StrategyAccessToken, Cookie: cookie.AccessToken, Check: checkUser},
		{Name: StrategyRefreshToken, Cookie: cookie.RefreshToken, Check: checkRefresh},
		{Name: StrategyLegacySession, Cookie: cookie.LegacySession, Check: checkUser},
	}
}

func checkUser(ctx context.Context, gw identity.Gateway, token string) (Result, error) {
	user, err := gw.GetUser(ctx, token)
	if err != nil {
		return Result{}, err
	}
	return Result{User: user}, nil
}

func checkRefresh(ctx context.Context, gw identity.Gateway, token string) (Result, error) {
	sess, err := gw.RefreshSession(ctx, token)
	if err != nil {
		return Result{}, err
	}
	return Result{User: sess.User, Refreshed: sess}, nil
}

// Verifier は Strategy を順に試します。
type Verifier struct {
	gateway    identity.Gateway
	strategies []Strategy
	logger     *zap.Logger
	recorder   metrics.Recorder
}

// Option は Verifier の設定です。
type Option func(*Verifier)

// WithStrategies は既定の Strategy を置き換えます。
func WithStrategies(strategies ...Strategy) Option {
	return func(v *Verifier) {
		v.strategies = strategies
	}
}

// WithRecorder はメトリクスの記録先を設定します。
func WithRecorder(r metrics.Recorder) Option {
	return func(v *Verifier) {
		if r != nil {
			v.recorder = r
		}
	}
}

// NewVerifier は Verifier を作成します。
func NewVerifier(gw identity.Gateway, logger *zap.Logger, opts ...Option) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Verifier{
		gateway:    gw,
		strategies: DefaultStrategies(),
		logger:     logger,
		recorder:   metrics.Noop{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify は cookies から認証状態を判定します。エラーは返しません。
func (v *Verifier) Verify(ctx context.Context, cookies map[string]string) Result {
	return v.VerifyWithLogger(ctx, cookies, v.logger)
}

// VerifyWithLogger はリクエスト単位のロガーで Verify を行います。
func (v *Verifier) VerifyWithLogger(ctx context.Context, cookies map[string]string, logger *zap.Logger) Result {
	for _, s := range v.strategies {
		token := cookies[s.Cookie]
		if token == "" {
			continue
		}

		res, err := s.Check(ctx, v.gateway, token)
		if err != nil {
			logger.Warn("session strategy failed",
				zap.String("strategy", s.Name),
				zap.Error(err),
			)
			v.recorder.RecordVerification(s.Name, false)
			continue
		}

		v.recorder.RecordVerification(s.Name, true)
		res.Authorized = true
		res.Strategy = s.Name
		return res
	}
	return Result{}
}
