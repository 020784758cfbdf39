package cookie

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   map[string]string
	}{
		{name: "empty", header: "", want: map[string]string{}},
		{name: "single", header: "a=1", want: map[string]string{"a": "1"}},
		{name: "spaces", header: " a = 1 ;b=2 ", want: map[string]string{"a": "1", "b": "2"}},
		{name: "quoted", header: `a="hello"`, want: map[string]string{"a": "hello"}},
		{name: "encoded", header: "a=x%20y%3Bz", want: map[string]string{"a": "x y;z"}},
		{name: "bad escape kept", header: "a=100%", want: map[string]string{"a": "100%"}},
		{name: "first wins", header: "a=1; a=2", want: map[string]string{"a": "1"}},
		{name: "pair without equals skipped", header: "garbage; a=1", want: map[string]string{"a": "1"}},
		{name: "empty name skipped", header: "=x; b=2", want: map[string]string{"b": "2"}},
		{name: "malformed", header: ";;;", want: map[string]string{}},
		{name: "value with equals", header: "jwt=a.b=c", want: map[string]string{"jwt": "a.b=c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.header))
		})
	}
}

func TestSerialize(t *testing.T) {
	got := Serialize("access_token", "tok en", Options{
		MaxAge:   3600,
		HTTPOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
	assert.Equal(t, "access_token=tok%20en; Max-Age=3600; Path=/; HttpOnly; Secure; SameSite=Strict", got)

	assert.Equal(t, "a=; Max-Age=0", Serialize("a", "", Options{MaxAge: -1}))
	assert.Equal(t, "a=b; SameSite=Lax", Serialize("a", "b", Options{SameSite: http.SameSiteLaxMode}))
}

func TestRoundTrip(t *testing.T) {
	set := map[string]string{
		AccessToken:   "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.sig",
		RefreshToken:  "r3fr3sh",
		LegacySession: "semi;colon, comma \"quote\" é",
	}

	parts := make([]string, 0, len(set))
	for name, value := range set {
		header := Serialize(name, value, Options{MaxAge: 60, HTTPOnly: true, Path: "/"})
		// Set-Cookie の name=value 部分だけを Cookie ヘッダーとして送り返す
		parts = append(parts, strings.SplitN(header, ";", 2)[0])
	}

	assert.Equal(t, set, Parse(strings.Join(parts, "; ")))
}

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Add("Cookie", "a=1")
	req.Header.Add("Cookie", "b=2")
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, FromRequest(req))
	assert.Empty(t, FromRequest(nil))
}

func TestJarSetTokensAppends(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Add("Set-Cookie", "other=1")

	jar := NewJar(false)
	jar.SetTokens(rec, "acc", "ref")

	values := rec.Header().Values("Set-Cookie")
	require.Len(t, values, 3)
	assert.Equal(t, "other=1", values[0])
	assert.Equal(t, "access_token=acc; Max-Age=604800; Path=/; HttpOnly; SameSite=Strict", values[1])
	assert.Equal(t, "refresh_token=ref; Max-Age=2592000; Path=/; HttpOnly; SameSite=Strict", values[2])
}

func TestJarSecureFlag(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJar(true).SetLegacySession(rec, "tok")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, LegacySession, cookies[0].Name)
	assert.True(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, int(LegacySessionMaxAge/time.Second), cookies[0].MaxAge)
}

func TestJarClearAuth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJar(false).ClearAuth(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 3)
	names := []string{}
	for _, c := range cookies {
		names = append(names, c.Name)
		assert.Empty(t, c.Value)
		assert.Equal(t, -1, c.MaxAge)
	}
	assert.ElementsMatch(t, []string{AccessToken, RefreshToken, LegacySession}, names)
}

func TestHasAuth(t *testing.T) {
	assert.False(t, HasAuth(map[string]string{"other": "x"}))
	assert.True(t, HasAuth(map[string]string{RefreshToken: "x"}))
}
