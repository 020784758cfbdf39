package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireSession はセッションを検証するミドルウェアを返します。
// 認証されていない場合は redirectTo へ 302 でリダイレクトします。
func (m *Manager) RequireSession(redirectTo string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := m.Verify(c)
		if !res.Authorized {
			c.Redirect(http.StatusFound, redirectTo)
			c.Abort()
			return
		}
		c.Set(ContextUserKey, res.User)
		c.Next()
	}
}

// RedirectAuthenticated は認証済みなら redirectTo へ 302 でリダイレクトし、
// そうでなければ後続のハンドラーへ進むミドルウェアを返します。
func (m *Manager) RedirectAuthenticated(redirectTo string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if res := m.Verify(c); res.Authorized {
			c.Redirect(http.StatusFound, redirectTo)
			c.Abort()
			return
		}
		c.Next()
	}
}
