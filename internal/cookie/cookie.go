// Package cookie は Cookie ヘッダーの解析・生成と、認証用 Cookie の発行・削除を提供します。
package cookie

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// 認証に使う Cookie 名です。
const (
	AccessToken   = "access_token"
	RefreshToken  = "refresh_token"
	// LegacySession は旧形式の単一トークン Cookie です。
	LegacySession = "sb_session"
)

// 認証 Cookie の有効期間です。
const (
	AccessTokenMaxAge   = 7 * 24 * time.Hour
	RefreshTokenMaxAge  = 30 * 24 * time.Hour
	LegacySessionMaxAge = 7 * 24 * time.Hour
)

// Options は Set-Cookie の属性です。
//
// MaxAge は net/http と同じ扱いです: 0 なら属性なし、負数なら "Max-Age=0"（即時削除）。
type Options struct {
	MaxAge   int
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
	Path     string
}

// Parse は Cookie ヘッダー文字列を名前→値のマップに変換します。
// 形式が壊れている部分は読み飛ばし、エラーにはしません。同名の Cookie は最初の値を採用します。
func Parse(header string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		name := strings.TrimSpace(part[:eq])
		if name == "" {
			continue
		}
		if _, exists := out[name]; exists {
			continue
		}
		value := strings.TrimSpace(part[eq+1:])
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		out[name] = decode(value)
	}
	return out
}

// FromRequest はリクエストの Cookie ヘッダーを解析します。
func FromRequest(r *http.Request) map[string]string {
	if r == nil {
		return map[string]string{}
	}
	return Parse(strings.Join(r.Header.Values("Cookie"), "; "))
}

// Serialize は Set-Cookie ヘッダーの値を生成します。値はパーセントエンコードされます。
func Serialize(name, value string, opts Options) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(url.PathEscape(value))

	if opts.MaxAge > 0 {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(opts.MaxAge))
	} else if opts.MaxAge < 0 {
		b.WriteString("; Max-Age=0")
	}
	if opts.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(opts.Path)
	}
	if opts.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	if opts.Secure {
		b.WriteString("; Secure")
	}
	switch opts.SameSite {
	case http.SameSiteStrictMode:
		b.WriteString("; SameSite=Strict")
	case http.SameSiteLaxMode:
		b.WriteString("; SameSite=Lax")
	case http.SameSiteNoneMode:
		b.WriteString("; SameSite=None")
	}
	return b.String()
}

func decode(value string) string {
	if !strings.Contains(value, "%") {
		return value
	}
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return value
	}
	return decoded
}
