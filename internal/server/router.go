// Package server は HTTP ルーティングを組み立てます。
package server

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yourusername/wiki-gate/internal/auth"
	"github.com/yourusername/wiki-gate/internal/logging"
	"github.com/yourusername/wiki-gate/internal/storage"
)

const (
	apiPrefix = "/api"

	// entryPath は未認証時のリダイレクト先です。
	entryPath = "/"
	entryPage = "/auth.html"
)

// Deps はルーターが使う依存関係です。
type Deps struct {
	Auth   *auth.Manager
	Files  *storage.Local
	Logger *zap.Logger

	// ProtectedRoutes はログイン必須のパスです。完全一致か "route/" で始まるパスが対象です。
	// 先頭のルートがログイン後の遷移先になります。
	ProtectedRoutes []string

	// CORSAllowedOrigins が空の場合 CORS ミドルウェアは使いません。
	CORSAllowedOrigins []string

	// Metrics が nil でなければ /metrics を公開します。
	Metrics prometheus.Gatherer
}

// NewRouter は Gin ルーターを作成します。
func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	// 末尾スラッシュの補正はせず、そのままディスパッチする
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	router.Use(logging.Middleware(logger), gin.Recovery())

	if len(d.CORSAllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = d.CORSAllowedOrigins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{
			"Origin",
			"Content-Type",
			"Accept",
			logging.RequestIDHeader,
		}
		corsConfig.ExposeHeaders = []string{logging.RequestIDHeader}
		router.Use(cors.New(corsConfig))
	}

	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{})))
	}

	r := &routes{
		auth:      d.Auth,
		files:     d.Files,
		protected: d.ProtectedRoutes,
	}
	r.register(router)
	return router
}

type routes struct {
	auth      *auth.Manager
	files     *storage.Local
	protected []string
}

func (r *routes) register(router *gin.Engine) {
	api := router.Group(apiPrefix)
	{
		api.GET("/serveForm/login", r.serveFile("/forms/login.html"))
		api.GET("/serveForm/register", r.serveFile("/forms/register.html"))

		user := api.Group("/user")
		{
			user.POST("/auth", r.auth.Auth)
			user.POST("/check-email", r.auth.CheckEmail)
			user.GET("/check-auth", r.auth.CheckAuth)
			user.POST("/logout", r.auth.Logout)
		}
	}

	entry := []gin.HandlerFunc{r.auth.RedirectAuthenticated(r.home()), r.serveFile(entryPage)}
	router.Any(entryPath, entry...)
	router.Any(entryPage, entry...)

	// 上記以外はすべてここに来る。保護ルートはパスの前方一致で判定するため Gin のルートには登録しない。
	router.NoRoute(apiNotFound, r.protect(), r.serveStatic)
}

// home はログイン済みユーザーの遷移先です。
func (r *routes) home() string {
	if len(r.protected) == 0 {
		return entryPath
	}
	return r.protected[0]
}

func (r *routes) serveFile(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		r.files.Serve(c, name)
	}
}

// matchProtected は p が保護ルートに該当すればそのルートを返します。
func (r *routes) matchProtected(p string) (string, bool) {
	for _, route := range r.protected {
		if p == route || strings.HasPrefix(p, route+"/") {
			return route, true
		}
	}
	return "", false
}

// protect は保護ルートへのリクエストだけセッションを検証します。
func (r *routes) protect() gin.HandlerFunc {
	requireSession := r.auth.RequireSession(entryPath)
	return func(c *gin.Context) {
		if _, ok := r.matchProtected(c.Request.URL.Path); ok {
			requireSession(c)
			return
		}
		c.Next()
	}
}

// serveStatic は公開ディレクトリのファイルを返します。該当がなければ入口へリダイレクトします。
func (r *routes) serveStatic(c *gin.Context) {
	p := c.Request.URL.Path
	if route, ok := r.matchProtected(p); ok && p == route {
		r.files.Serve(c, route+".html")
		return
	}
	if r.files.Exists(p) {
		r.files.Serve(c, p)
		return
	}
	c.Redirect(http.StatusFound, entryPath)
}

func apiNotFound(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, apiPrefix) {
		c.String(http.StatusNotFound, "API Endpoint Not Found")
		c.Abort()
		return
	}
	c.Next()
}
