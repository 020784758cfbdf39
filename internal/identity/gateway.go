// Package identity は外部認証プロバイダーへの呼び出しを共通のインターフェースで包みます。
//
// パスワードのハッシュ化やトークンの発行・検証はすべてプロバイダー側で行われ、
// このパッケージはリクエストを中継するだけです。
package identity

import (
	"context"
	"time"
)

// User はプロバイダーが返すユーザー情報です。ローカルでは保存も変更もしません。
type User struct {
	ID                 string         `json:"id"`
	Aud                string         `json:"aud,omitempty"`
	Role               string         `json:"role,omitempty"`
	Email              string         `json:"email"`
	EmailConfirmedAt   *time.Time     `json:"email_confirmed_at,omitempty"`
	ConfirmationSentAt *time.Time     `json:"confirmation_sent_at,omitempty"`
	LastSignInAt       *time.Time     `json:"last_sign_in_at,omitempty"`
	AppMetadata        map[string]any `json:"app_metadata,omitempty"`
	UserMetadata       map[string]any `json:"user_metadata,omitempty"`
	CreatedAt          *time.Time     `json:"created_at,omitempty"`
	UpdatedAt          *time.Time     `json:"updated_at,omitempty"`
}

// Session はプロバイダーが発行したトークンの組です。
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// SignUpResult は登録結果です。メール確認が必要な場合 Session は nil です。
type SignUpResult struct {
	User    *User
	Session *Session
}

// Gateway は認証プロバイダーへの操作です。
// 失敗時は *ProviderError（プロバイダーが拒否）か *TransportError（通信失敗）を返します。
type Gateway interface {
	// SignUp は確認待ちのアカウントを作成します。セッションは確立しません。
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error)
	// SignInWithPassword はパスワードでログインしセッションを返します。
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// GetUser はアクセストークンに対応するユーザーを返します。
	GetUser(ctx context.Context, token string) (*User, error)
	// RefreshSession はリフレッシュトークンを新しいセッションと交換します。
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
	// SignOut はプロバイダー側のセッションを無効化します。
	SignOut(ctx context.Context, token string) error
	// CheckEmailExists はメールアドレスが登録済みかを推定します。
	CheckEmailExists(ctx context.Context, email string) (bool, error)
}

// EmailExistsFromOTP はユーザー作成を無効にしたパスワードレスログインの結果から
// メールアドレスの登録有無を推定します。
//
// プロバイダーには存在確認の API がないため、この方法は間接的であり、
// プロバイダーのエラーメッセージが変われば壊れます。また確認と登録の間に原子性はなく、
// 同じ未登録アドレスへの同時確認はどちらも「未登録」を受け取り得ます。
// エラーなし → 登録済み、ユーザー未検出系のエラー → 未登録、それ以外 → エラーを返します。
func EmailExistsFromOTP(otpErr error) (bool, error) {
	if otpErr == nil {
		return true, nil
	}
	switch Classify(otpErr) {
	case KindUserNotFound, KindInvalidCredentials:
		return false, nil
	default:
		return false, otpErr
	}
}
