package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/yourusername/wiki-gate/internal/cookie"
	"github.com/yourusername/wiki-gate/internal/identity"
	"github.com/yourusername/wiki-gate/internal/locale"
	"github.com/yourusername/wiki-gate/internal/request"
)

const (
	actionRegister = "register"
	actionLogin    = "login"

	registrationMessage = "Registration successful. Please check your email to confirm your account."
)

type authRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Action   string `json:"action"`
	Username string `json:"username"`
}

type checkEmailRequest struct {
	Email string `json:"email"`
}

// Auth は POST /api/user/auth のハンドラーです。action により登録かログインを行います。
func (m *Manager) Auth(c *gin.Context) {
	var req authRequest
	if err := request.Decode(c.Request, &req, m.log(c)); err != nil {
		m.serverError(c, "auth request failed", err)
		return
	}

	if req.Action != actionRegister && req.Action != actionLogin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	if req.Action == actionRegister {
		m.register(c, req)
		return
	}
	m.login(c, req)
}

func (m *Manager) register(c *gin.Context, req authRequest) {
	var metadata map[string]any
	if req.Username != "" {
		metadata = map[string]any{"username": req.Username}
	}

	result, err := m.gateway.SignUp(providerContext(c), req.Email, req.Password, metadata)
	if err != nil {
		m.providerError(c, "sign up failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":    result.User,
		"message": registrationMessage,
	})
}

func (m *Manager) login(c *gin.Context, req authRequest) {
	ip := c.ClientIP()
	if wait := m.checkLock(c, ip); wait > 0 {
		c.Header("Retry-After", retryAfterSeconds(wait))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":   "Too many login attempts",
			"message": locale.Message(languageOf(c), identity.KindRateLimited, ""),
		})
		return
	}

	sess, err := m.gateway.SignInWithPassword(providerContext(c), req.Email, req.Password)
	if err != nil {
		if identity.Classify(err) == identity.KindInvalidCredentials {
			m.recordFailure(c, ip)
		}
		m.providerError(c, "sign in failed", err)
		return
	}
	m.resetAttempts(c, ip)

	m.jar.SetTokens(c.Writer, sess.AccessToken, sess.RefreshToken)
	m.jar.SetLegacySession(c.Writer, sess.AccessToken)

	c.JSON(http.StatusOK, gin.H{
		"user": sess.User,
		"session": gin.H{
			"expires_at": sess.ExpiresAt,
		},
	})
}

// CheckEmail は POST /api/user/check-email のハンドラーです。
func (m *Manager) CheckEmail(c *gin.Context) {
	var req checkEmailRequest
	if err := request.Decode(c.Request, &req, m.log(c)); err != nil {
		m.serverError(c, "check email request failed", err)
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
		return
	}

	exists, err := m.gateway.CheckEmailExists(providerContext(c), email)
	if err != nil {
		m.log(c).Error("error checking email", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error checking email"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

// CheckAuth は GET /api/user/check-auth のハンドラーです。
func (m *Manager) CheckAuth(c *gin.Context) {
	res := m.Verify(c)
	if res.Authorized {
		c.JSON(http.StatusOK, gin.H{
			"authenticated": true,
			"user":          res.User,
		})
		return
	}

	if cookie.HasAuth(cookie.FromRequest(c.Request)) {
		m.jar.ClearAuth(c.Writer)
	}
	c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false})
}

// Logout は POST /api/user/logout のハンドラーです。
// プロバイダー側の無効化に失敗しても Cookie は必ず削除します。
func (m *Manager) Logout(c *gin.Context) {
	if token := cookie.FromRequest(c.Request)[cookie.AccessToken]; token != "" {
		if err := m.gateway.SignOut(providerContext(c), token); err != nil {
			m.log(c).Warn("provider sign out failed", zap.Error(err))
		}
	}

	m.jar.ClearAuth(c.Writer)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// providerError はプロバイダーのエラーをレスポンスに変換します。
// プロバイダーがリクエスト内容を拒否した場合は 400 とローカライズ済みメッセージを返します。
func (m *Manager) providerError(c *gin.Context, msg string, err error) {
	var pe *identity.ProviderError
	if !errors.As(err, &pe) || !pe.IsClientError() {
		m.serverError(c, msg, err)
		return
	}

	kind := identity.Classify(err)
	m.log(c).Info(msg, zap.String("kind", string(kind)), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   pe.Message,
		"message": locale.Message(languageOf(c), kind, pe.Message),
	})
}

func (m *Manager) serverError(c *gin.Context, msg string, err error) {
	m.log(c).Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
}
