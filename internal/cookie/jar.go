package cookie

import (
	"net/http"
	"time"
)

// Jar はレスポンスに認証 Cookie を書き込みます。
// Set-Cookie はレスポンスごとに追記され、既存の Set-Cookie を上書きしません。
type Jar struct {
	// Secure は本番環境で true にします。
	Secure bool
}

// NewJar は Jar を作成します。
func NewJar(secure bool) *Jar {
	return &Jar{Secure: secure}
}

// Set は既定の属性（HttpOnly, SameSite=Strict, Path=/）で Cookie を追加します。
func (j *Jar) Set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	opts := j.defaults()
	opts.MaxAge = int(maxAge.Seconds())
	w.Header().Add("Set-Cookie", Serialize(name, value, opts))
}

// Clear は Cookie を即時失効させます。
func (j *Jar) Clear(w http.ResponseWriter, name string) {
	opts := j.defaults()
	opts.MaxAge = -1
	w.Header().Add("Set-Cookie", Serialize(name, "", opts))
}

// SetTokens はアクセストークンとリフレッシュトークンの Cookie を設定します。
func (j *Jar) SetTokens(w http.ResponseWriter, accessToken, refreshToken string) {
	j.Set(w, AccessToken, accessToken, AccessTokenMaxAge)
	j.Set(w, RefreshToken, refreshToken, RefreshTokenMaxAge)
}

// SetLegacySession は旧形式のセッション Cookie を設定します。
func (j *Jar) SetLegacySession(w http.ResponseWriter, token string) {
	j.Set(w, LegacySession, token, LegacySessionMaxAge)
}

// ClearAuth は認証に関わる 3 つの Cookie をすべて削除します。
func (j *Jar) ClearAuth(w http.ResponseWriter) {
	j.Clear(w, AccessToken)
	j.Clear(w, RefreshToken)
	j.Clear(w, LegacySession)
}

func (j *Jar) defaults() Options {
	return Options{
		HTTPOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	}
}

// HasAuth は認証に関わる Cookie が 1 つでも存在するかを返します。
func HasAuth(cookies map[string]string) bool {
	return cookies[AccessToken] != "" || cookies[RefreshToken] != "" || cookies[LegacySession] != ""
}
