package identity_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/wiki-gate/internal/identity"
	"github.com/yourusername/wiki-gate/internal/identity/identitytest"
	"github.com/yourusername/wiki-gate/internal/metrics"
)

func newClient(t *testing.T) (*identity.Client, *identitytest.Provider) {
	t.Helper()
	provider := identitytest.New(t)
	return identity.NewClient(provider.URL()+"/", identitytest.APIKey), provider
}

func TestSignUpCreatesPendingAccount(t *testing.T) {
	client, provider := newClient(t)

	result, err := client.SignUp(context.Background(), "new@example.com", "longpassword", map[string]any{"username": "neo"})
	require.NoError(t, err)
	require.NotNil(t, result.User)
	assert.Nil(t, result.Session)
	assert.Equal(t, "new@example.com", result.User.Email)
	assert.Nil(t, result.User.EmailConfirmedAt)
	assert.Equal(t, "neo", result.User.UserMetadata["username"])
	assert.True(t, provider.Exists("new@example.com"))
}

func TestSignUpErrors(t *testing.T) {
	client, provider := newClient(t)
	provider.AddUser("taken@example.com", "longpassword", true)

	_, err := client.SignUp(context.Background(), "taken@example.com", "longpassword", nil)
	assert.Equal(t, identity.KindAlreadyRegistered, identity.Classify(err))

	_, err = client.SignUp(context.Background(), "a@b.com", "short", nil)
	var pe *identity.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnprocessableEntity, pe.Status)
	assert.Equal(t, "Password should be at least 6 characters.", pe.Message)
	assert.Equal(t, identity.KindWeakPassword, identity.Classify(err))
}

func TestSignInWithPassword(t *testing.T) {
	client, provider := newClient(t)
	provider.AddUser("user@example.com", "correct-horse", true)
	provider.AddUser("pending@example.com", "correct-horse", false)

	session, err := client.SignInWithPassword(context.Background(), "user@example.com", "correct-horse")
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Greater(t, session.ExpiresAt, time.Now().Unix())
	require.NotNil(t, session.User)
	assert.Equal(t, "user@example.com", session.User.Email)

	_, err = client.SignInWithPassword(context.Background(), "user@example.com", "wrong")
	assert.Equal(t, identity.KindInvalidCredentials, identity.Classify(err))

	_, err = client.SignInWithPassword(context.Background(), "pending@example.com", "correct-horse")
	assert.Equal(t, identity.KindEmailNotConfirmed, identity.Classify(err))
}

func TestGetUser(t *testing.T) {
	client, provider := newClient(t)
	id := provider.AddUser("user@example.com", "correct-horse", true)
	access, _ := provider.IssueSession("user@example.com")

	user, err := client.GetUser(context.Background(), access)
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)

	_, err = client.GetUser(context.Background(), provider.ExpiredAccessToken("user@example.com"))
	var pe *identity.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusForbidden, pe.Status)
	assert.Equal(t, "bad_jwt", pe.Code)

	_, err = client.GetUser(context.Background(), "")
	assert.ErrorIs(t, err, identity.ErrMissingToken)
	assert.Equal(t, 2, provider.Calls("/auth/v1/user"))
}

func TestRefreshSessionRotates(t *testing.T) {
	client, provider := newClient(t)
	provider.AddUser("user@example.com", "correct-horse", true)
	_, refresh := provider.IssueSession("user@example.com")

	session, err := client.RefreshSession(context.Background(), refresh)
	require.NoError(t, err)
	assert.NotEqual(t, refresh, session.RefreshToken)

	// 使用済みのリフレッシュトークンは再利用できない
	_, err = client.RefreshSession(context.Background(), refresh)
	var pe *identity.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "refresh_token_not_found", pe.Code)
}

func TestSignOutRevokesSession(t *testing.T) {
	client, provider := newClient(t)
	provider.AddUser("user@example.com", "correct-horse", true)
	access, refresh := provider.IssueSession("user@example.com")

	require.NoError(t, client.SignOut(context.Background(), access))

	_, err := client.GetUser(context.Background(), access)
	assert.Error(t, err)
	_, err = client.RefreshSession(context.Background(), refresh)
	assert.Error(t, err)

	assert.ErrorIs(t, client.SignOut(context.Background(), ""), identity.ErrMissingToken)
}

func TestCheckEmailExists(t *testing.T) {
	client, provider := newClient(t)
	provider.AddUser("taken@example.com", "correct-horse", true)

	exists, err := client.CheckEmailExists(context.Background(), "taken@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, []string{"taken@example.com"}, provider.OTPSent())

	exists, err = client.CheckEmailExists(context.Background(), "free@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, provider.Exists("free@example.com"), "check must not create users")

	provider.Fail("/auth/v1/otp", http.StatusTooManyRequests, `{"code":429,"error_code":"over_email_send_rate_limit","msg":"email rate limit exceeded"}`)
	_, err = client.CheckEmailExists(context.Background(), "taken@example.com")
	assert.Equal(t, identity.KindRateLimited, identity.Classify(err))
}

func TestProviderErrorShapes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{"gotrue v2", 400, `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`, "invalid_credentials", "Invalid login credentials"},
		{"oauth style", 400, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`, "invalid_grant", "Invalid login credentials"},
		{"message field", 422, `{"message":"Signups not allowed for otp"}`, "", "Signups not allowed for otp"},
		{"string code", 422, `{"code":"weak_password","message":"Password too short"}`, "weak_password", "Password too short"},
		{"plain text", 502, `Bad Gateway from upstream`, "", "Bad Gateway from upstream"},
		{"empty", 503, ``, "", "Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := identity.NewClient(srv.URL, "key").SignInWithPassword(context.Background(), "a@b.com", "x")
			var pe *identity.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.Status)
			assert.Equal(t, tt.wantCode, pe.Code)
			assert.Equal(t, tt.wantMsg, pe.Message)
		})
	}
}

func TestRequestHeaders(t *testing.T) {
	var got http.Header
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotPath = r.URL.RequestURI()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, identity.NewClient(srv.URL, "anon").SignOut(context.Background(), "user-token"))
	assert.Equal(t, "anon", got.Get("apikey"))
	assert.Equal(t, "Bearer user-token", got.Get("Authorization"))
	assert.Equal(t, "/auth/v1/logout?scope=global", gotPath)
}

func TestTransportErrorAndMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	reg := prometheus.NewRegistry()
	client := identity.NewClient(url, "key", identity.WithRecorder(metrics.NewPrometheus(reg)))

	_, err := client.GetUser(context.Background(), "token")
	var te *identity.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "get_user", te.Op)

	count, err := testutil.GatherAndCount(reg, "wiki_gate_provider_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMalformedSuccessBodyIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	_, err := identity.NewClient(srv.URL, "key").GetUser(context.Background(), "token")
	var te *identity.TransportError
	assert.ErrorAs(t, err, &te)
}
