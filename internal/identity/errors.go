package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMissingToken はトークンが空の場合に返されます（プロバイダーは呼び出しません）。
var ErrMissingToken = errors.New("identity: token is empty")

// ProviderError はプロバイダーが拒否したリクエストを表します。
// Message はプロバイダーのメッセージをそのまま保持します。
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error (status %d, %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error (status %d): %s", e.Status, e.Message)
}

// IsClientError はプロバイダーがリクエスト内容を理由に拒否したかを返します。
func (e *ProviderError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// TransportError はプロバイダーに到達できなかった、または応答を読めなかったことを表します。
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("identity %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Kind はプロバイダーエラーの分類です。
type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindEmailNotConfirmed  Kind = "email_not_confirmed"
	KindAlreadyRegistered  Kind = "already_registered"
	KindWeakPassword       Kind = "weak_password"
	KindUserNotFound       Kind = "user_not_found"
	KindRateLimited        Kind = "rate_limited"
)

// codeKinds はプロバイダーの error_code と分類の対応です。
var codeKinds = map[string]Kind{
	"invalid_credentials":        KindInvalidCredentials,
	"email_not_confirmed":        KindEmailNotConfirmed,
	"user_already_exists":        KindAlreadyRegistered,
	"email_exists":               KindAlreadyRegistered,
	"weak_password":              KindWeakPassword,
	"user_not_found":             KindUserNotFound,
	"otp_disabled":               KindUserNotFound,
	"over_request_rate_limit":    KindRateLimited,
	"over_email_send_rate_limit": KindRateLimited,
}

// messageKinds はエラーコードがない場合に使うメッセージ部分一致の規則です。上から順に評価します。
var messageKinds = []struct {
	substr string
	kind   Kind
}{
	{"email not confirmed", KindEmailNotConfirmed},
	{"invalid login credentials", KindInvalidCredentials},
	{"already registered", KindAlreadyRegistered},
	{"email not found", KindUserNotFound},
	{"user not found", KindUserNotFound},
	{"signups not allowed for otp", KindUserNotFound},
	{"rate limit", KindRateLimited},
	{"password", KindWeakPassword},
}

// Classify はプロバイダーのエラーを分類します。
//
// 構造化された error_code を優先し、なければメッセージの部分一致で判定します。
// メッセージ文言はプロバイダー側の都合で変わり得るため、判定はこの関数だけに閉じ込めています。
func Classify(err error) Kind {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return KindUnknown
	}
	if kind, ok := codeKinds[pe.Code]; ok {
		return kind
	}
	msg := strings.ToLower(pe.Message)
	for _, rule := range messageKinds {
		if strings.Contains(msg, rule.substr) {
			return rule.kind
		}
	}
	if pe.Status == http.StatusTooManyRequests {
		return KindRateLimited
	}
	return KindUnknown
}
