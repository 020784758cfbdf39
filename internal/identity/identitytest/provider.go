// Package identitytest はテスト用の認証プロバイダー（GoTrue 互換の最小実装）を提供します。
package identitytest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// APIKey はテストプロバイダーが受け付ける API キーです。
const APIKey = "test-anon-key"

type user struct {
	ID          string
	Email       string
	Password    string
	Confirmed   bool
	Metadata    map[string]any
	CreatedAt   time.Time
	ConfirmedAt time.Time
}

type claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
}

// Failure は指定パスに強制的に返すエラー応答です。
type Failure struct {
	Status int
	Body   string
}

// Provider は httptest.Server 上で動くテスト用プロバイダーです。
type Provider struct {
	t      testing.TB
	server *httptest.Server
	secret []byte

	// AccessTTL はアクセストークンの有効期間です。
	AccessTTL time.Duration

	mu        sync.Mutex
	users     map[string]*user // email -> user
	refreshes map[string]string
	revoked   map[string]bool // session_id
	sessions  map[string]string
	failures  map[string]Failure
	calls     map[string]int
	otpSent   []string
}

// New はテストプロバイダーを起動します。テスト終了時に自動で停止します。
func New(t testing.TB) *Provider {
	t.Helper()

	p := &Provider{
		t:         t,
		secret:    randomBytes(32),
		AccessTTL: time.Hour,
		users:     make(map[string]*user),
		refreshes: make(map[string]string),
		revoked:   make(map[string]bool),
		sessions:  make(map[string]string),
		failures:  make(map[string]Failure),
		calls:     make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/signup", p.handleSignUp)
	mux.HandleFunc("POST /auth/v1/token", p.handleToken)
	mux.HandleFunc("GET /auth/v1/user", p.handleUser)
	mux.HandleFunc("POST /auth/v1/logout", p.handleLogout)
	mux.HandleFunc("POST /auth/v1/otp", p.handleOTP)

	p.server = httptest.NewServer(p.wrap(mux))
	t.Cleanup(p.server.Close)
	return p
}

// URL はプロバイダーのベース URL です。
func (p *Provider) URL() string {
	return p.server.URL
}

// AddUser はユーザーを登録し ID を返します。
func (p *Provider) AddUser(email, password string, confirmed bool) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addUserLocked(email, password, confirmed, nil).ID
}

// IssueSession は登録済みユーザーのセッションを発行します。
func (p *Provider) IssueSession(email string) (accessToken, refreshToken string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[email]
	if !ok {
		p.t.Fatalf("identitytest: unknown user %q", email)
	}
	sess := p.newSessionLocked(u)
	return sess["access_token"].(string), sess["refresh_token"].(string)
}

// ExpiredAccessToken は署名は正しいが期限切れのアクセストークンを返します。
func (p *Provider) ExpiredAccessToken(email string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[email]
	if !ok {
		p.t.Fatalf("identitytest: unknown user %q", email)
	}
	return p.signLocked(u, newID(), time.Now().Add(-time.Minute))
}

// Fail は以降 path（例: "/auth/v1/otp"）への呼び出しに固定のエラーを返させます。
func (p *Provider) Fail(path string, status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[path] = Failure{Status: status, Body: body}
}

// Calls は path（クエリを除く）への呼び出し回数を返します。
// トークンエンドポイントは "/auth/v1/token?grant_type=..." の形で数えます。
func (p *Provider) Calls(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[key]
}

// OTPSent は OTP メールが送られたアドレスの一覧です。
func (p *Provider) OTPSent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.otpSent...)
}

// Exists はユーザーが登録済みかを返します。
func (p *Provider) Exists(email string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.users[email]
	return ok
}

func (p *Provider) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if gt := r.URL.Query().Get("grant_type"); gt != "" {
			key += "?grant_type=" + gt
		}

		p.mu.Lock()
		p.calls[key]++
		failure, failing := p.failures[r.URL.Path]
		p.mu.Unlock()

		if r.Header.Get("apikey") != APIKey {
			writeError(w, http.StatusUnauthorized, "no_api_key", "Invalid API key")
			return
		}
		if failing {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(failure.Status)
			_, _ = w.Write([]byte(failure.Body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Provider) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string         `json:"email"`
		Password string         `json:"password"`
		Data     map[string]any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Anonymous sign-ins are disabled")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.users[req.Email]; exists {
		writeError(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}
	u := p.addUserLocked(req.Email, req.Password, false, req.Data)
	writeJSON(w, http.StatusOK, userJSON(u))
}

func (p *Provider) handleToken(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("grant_type") {
	case "password":
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		u, ok := p.users[req.Email]
		if !ok || u.Password != req.Password {
			writeError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
			return
		}
		if !u.Confirmed {
			writeError(w, http.StatusBadRequest, "email_not_confirmed", "Email not confirmed")
			return
		}
		writeJSON(w, http.StatusOK, p.newSessionLocked(u))
	case "refresh_token":
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		email, ok := p.refreshes[req.RefreshToken]
		if !ok {
			writeError(w, http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
			return
		}
		delete(p.refreshes, req.RefreshToken)
		writeJSON(w, http.StatusOK, p.newSessionLocked(p.users[email]))
	default:
		writeError(w, http.StatusBadRequest, "validation_failed", "unsupported_grant_type")
	}
}

func (p *Provider) handleUser(w http.ResponseWriter, r *http.Request) {
	c, err := p.parseBearer(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "bad_jwt", "invalid JWT: unable to parse or verify signature, "+err.Error())
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.revoked[c.SessionID] {
		writeError(w, http.StatusForbidden, "session_not_found", "Session from session_id claim in JWT does not exist")
		return
	}
	u, ok := p.users[c.Email]
	if !ok {
		writeError(w, http.StatusForbidden, "user_not_found", "User from sub claim in JWT does not exist")
		return
	}
	writeJSON(w, http.StatusOK, userJSON(u))
}

func (p *Provider) handleLogout(w http.ResponseWriter, r *http.Request) {
	c, err := p.parseBearer(r)
	if err != nil {
		writeError(w, http.StatusForbidden, "bad_jwt", "invalid JWT: unable to parse or verify signature, "+err.Error())
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked[c.SessionID] = true
	for token, sid := range p.sessions {
		if sid == c.SessionID {
			delete(p.refreshes, token)
			delete(p.sessions, token)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Provider) handleOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		CreateUser bool   `json:"create_user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.users[req.Email]; !ok {
		if !req.CreateUser {
			writeError(w, http.StatusUnprocessableEntity, "otp_disabled", "Signups not allowed for otp")
			return
		}
		p.addUserLocked(req.Email, "", false, nil)
	}
	p.otpSent = append(p.otpSent, req.Email)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (p *Provider) parseBearer(r *http.Request) (*claims, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return nil, errors.New("missing bearer token")
	}
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *Provider) addUserLocked(email, password string, confirmed bool, metadata map[string]any) *user {
	now := time.Now().UTC()
	u := &user{
		ID:        newID(),
		Email:     email,
		Password:  password,
		Confirmed: confirmed,
		Metadata:  metadata,
		CreatedAt: now,
	}
	if confirmed {
		u.ConfirmedAt = now
	}
	p.users[email] = u
	return u
}

func (p *Provider) newSessionLocked(u *user) map[string]any {
	sessionID := newID()
	expiresAt := time.Now().Add(p.AccessTTL)
	refresh := newID()
	p.refreshes[refresh] = u.Email
	p.sessions[refresh] = sessionID
	return map[string]any{
		"access_token":  p.signLocked(u, sessionID, expiresAt),
		"token_type":    "bearer",
		"expires_in":    int64(p.AccessTTL.Seconds()),
		"expires_at":    expiresAt.Unix(),
		"refresh_token": refresh,
		"user":          userJSON(u),
	}
}

func (p *Provider) signLocked(u *user, sessionID string, expiresAt time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:     u.Email,
		SessionID: sessionID,
	})
	signed, err := token.SignedString(p.secret)
	if err != nil {
		p.t.Fatalf("identitytest: sign token: %v", err)
	}
	return signed
}

func userJSON(u *user) map[string]any {
	out := map[string]any{
		"id":            u.ID,
		"aud":           "authenticated",
		"role":          "authenticated",
		"email":         u.Email,
		"created_at":    u.CreatedAt.Format(time.RFC3339Nano),
		"user_metadata": u.Metadata,
		"app_metadata":  map[string]any{"provider": "email"},
	}
	if u.Confirmed {
		out["email_confirmed_at"] = u.ConfirmedAt.Format(time.RFC3339Nano)
	} else {
		out["confirmation_sent_at"] = u.CreatedAt.Format(time.RFC3339Nano)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"code":       status,
		"error_code": code,
		"msg":        msg,
	})
}

func newID() string {
	return hex.EncodeToString(randomBytes(16))
}

func randomBytes(n int) []byte {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("identitytest: random: %v", err))
	}
	return buf
}
