package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yourusername/wiki-gate/internal/metrics"
)

const (
	authPath = "/auth/v1"

	// maxResponseBytes はプロバイダー応答の読み取り上限です。
	maxResponseBytes = 1 << 20
)

// Client は Supabase Auth (GoTrue) の REST API を呼び出す Gateway 実装です。
// プロセス起動時に一度だけ作成し、全リクエストで共有します。作成後は変更しません。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	recorder   metrics.Recorder

	refreshes singleflight.Group
}

// Option は Client の設定です。
type Option func(*Client)

// WithHTTPClient は使用する HTTP クライアントを差し替えます。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout はプロバイダー呼び出しのタイムアウトを設定します。0 の場合は無制限です。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithRecorder はメトリクスの記録先を設定します。
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// NewClient は Client を作成します。baseURL はプロジェクトの URL（例: https://xxx.supabase.co）です。
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
		recorder:   metrics.Noop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type passwordCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type otpRequest struct {
	Email      string `json:"email"`
	CreateUser bool   `json:"create_user"`
}

// errorResponse は GoTrue のエラー応答です。バージョンによって形が異なります。
type errorResponse struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// SignUp は POST /auth/v1/signup を呼び出します。
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error) {
	var raw json.RawMessage
	err := c.do(ctx, "sign_up", http.MethodPost, "/signup", nil, "", signUpRequest{
		Email:    email,
		Password: password,
		Data:     metadata,
	}, &raw)
	if err != nil {
		return nil, err
	}

	// 自動確認が有効な場合はセッション、そうでなければユーザーがそのまま返る
	var session Session
	if err := json.Unmarshal(raw, &session); err == nil && session.AccessToken != "" {
		return &SignUpResult{User: session.User, Session: &session}, nil
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, &TransportError{Op: "sign_up", Err: fmt.Errorf("decode response: %w", err)}
	}
	return &SignUpResult{User: &user}, nil
}

// SignInWithPassword は POST /auth/v1/token?grant_type=password を呼び出します。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	query := url.Values{"grant_type": {"password"}}
	if err := c.do(ctx, "sign_in", http.MethodPost, "/token", query, "", passwordCredentials{
		Email:    email,
		Password: password,
	}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetUser は GET /auth/v1/user を呼び出します。
func (c *Client) GetUser(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	var user User
	if err := c.do(ctx, "get_user", http.MethodGet, "/user", nil, token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RefreshSession は POST /auth/v1/token?grant_type=refresh_token を呼び出します。
//
// リフレッシュトークンは使い捨てなので、同じトークンでの同時呼び出しは 1 回のリクエストにまとめます。
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrMissingToken
	}
	v, err, _ := c.refreshes.Do(refreshToken, func() (any, error) {
		var session Session
		query := url.Values{"grant_type": {"refresh_token"}}
		if err := c.do(ctx, "refresh_session", http.MethodPost, "/token", query, "", refreshRequest{
			RefreshToken: refreshToken,
		}, &session); err != nil {
			return nil, err
		}
		return &session, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// SignOut は POST /auth/v1/logout を呼び出します。
func (c *Client) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return ErrMissingToken
	}
	query := url.Values{"scope": {"global"}}
	return c.do(ctx, "sign_out", http.MethodPost, "/logout", query, token, nil, nil)
}

// CheckEmailExists はユーザー作成を無効にした OTP 送信で登録有無を推定します。
// 登録済みの場合は実際にログイン用メールが送られる点に注意してください。詳細は EmailExistsFromOTP を参照。
func (c *Client) CheckEmailExists(ctx context.Context, email string) (bool, error) {
	err := c.do(ctx, "check_email", http.MethodPost, "/otp", nil, "", otpRequest{
		Email:      email,
		CreateUser: false,
	}, nil)
	return EmailExistsFromOTP(err)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, bearer string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		c.recorder.RecordProviderCall(op, outcomeOf(err), time.Since(start))
	}()

	endpoint := c.baseURL + authPath + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseProviderError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func parseProviderError(status int, data []byte) *ProviderError {
	pe := &ProviderError{Status: status}

	var body errorResponse
	if err := json.Unmarshal(data, &body); err != nil {
		pe.Message = strings.TrimSpace(string(data))
		if pe.Message == "" {
			pe.Message = http.StatusText(status)
		}
		return pe
	}

	pe.Code = body.ErrorCode
	for _, candidate := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
		if candidate != "" {
			pe.Message = candidate
			break
		}
	}
	// OAuth 形式（error + error_description）では error がコードになる
	if pe.Code == "" && body.ErrorDescription != "" {
		pe.Code = body.Error
	}
	// 古い GoTrue は code に文字列のエラーコードを入れる
	if pe.Code == "" && len(body.Code) > 0 {
		var code string
		if json.Unmarshal(body.Code, &code) == nil {
			pe.Code = code
		}
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(status)
	}
	return pe
}

func outcomeOf(err error) string {
	switch err.(type) {
	case nil:
		return metrics.OutcomeOK
	case *ProviderError:
		return metrics.OutcomeProviderError
	default:
		return metrics.OutcomeTransportError
	}
}

var _ Gateway = (*Client)(nil)
