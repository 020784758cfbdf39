// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// EnvProduction は NODE_ENV の本番値です。
const EnvProduction = "production"

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Hostname string // 待ち受けホスト
	Port     string // 待ち受けポート
	Env      string // 実行環境 (development, production)

	// 認証プロバイダー設定
	SupabaseURL     string        // プロバイダーのベースURL
	SupabaseKey     string        // プロバイダーのAPIキー
	ProviderTimeout time.Duration // プロバイダー呼び出しのタイムアウト（0 は無制限）

	// 配信設定
	PublicDir       string   // 静的ファイルのルート
	ProtectedRoutes []string // ログイン必須のパス

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り、空なら無効）

	// ログ設定
	LogLevel  string
	LogFormat string

	// メトリクス
	MetricsEnabled bool

	// ログイン試行制限
	RedisURL         string        // 試行回数の保存先（空ならメモリ）
	LoginMaxAttempts int           // 0 なら制限しない
	LoginWindow      time.Duration // 試行回数を数える期間
	LoginLock        time.Duration // ロック期間
}

// Load は環境変数から設定を読み込みます。
// .env と .env.local が存在する場合はそこから読み込みます（既存の環境変数が優先）。
func Load() (*Config, error) {
	loadEnvFiles()

	env := getEnv("NODE_ENV", "development")
	logFormat := getEnv("LOG_FORMAT", "")
	if logFormat == "" && env == EnvProduction {
		logFormat = "json"
	}

	config := &Config{
		Hostname: getEnv("HOSTNAME", "127.0.0.1"),
		Port:     getEnv("PORT", "3000"),
		Env:      env,

		SupabaseURL:     strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseKey:     getEnv("SUPABASE_KEY", ""),
		ProviderTimeout: time.Duration(getEnvAsInt("PROVIDER_TIMEOUT_SECONDS", 0)) * time.Second,

		PublicDir:       getEnv("PUBLIC_DIR", "public"),
		ProtectedRoutes: splitList(getEnv("PROTECTED_ROUTES", "/wiki")),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: logFormat,

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", false),

		RedisURL:         getEnv("REDIS_URL", ""),
		LoginMaxAttempts: getEnvAsInt("LOGIN_MAX_ATTEMPTS", 0),
		LoginWindow:      time.Duration(getEnvAsInt("LOGIN_WINDOW_MINUTES", 15)) * time.Minute,
		LoginLock:        time.Duration(getEnvAsInt("LOGIN_LOCK_MINUTES", 10)) * time.Minute,
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if err := godotenv.Load(name); err == nil {
			continue
		}

		cwd, err := os.Getwd()
		if err != nil {
			continue
		}
		parent := filepath.Dir(cwd)
		if parent == "" || parent == cwd {
			continue
		}
		_ = godotenv.Load(filepath.Join(parent, name))
	}
}

// Validate は設定の妥当性を検証します。
// プロバイダーの認証情報がない場合は起動できません。
func (c *Config) Validate() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseKey == "" {
		return fmt.Errorf("SUPABASE_KEY is required")
	}
	u, err := url.Parse(c.SupabaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("SUPABASE_URL must be an absolute http(s) URL: %q", c.SupabaseURL)
	}
	if c.LoginMaxAttempts < 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must not be negative")
	}
	if len(c.ProtectedRoutes) == 0 {
		return fmt.Errorf("PROTECTED_ROUTES must contain at least one path")
	}
	for _, route := range c.ProtectedRoutes {
		if !strings.HasPrefix(route, "/") {
			return fmt.Errorf("protected route %q must start with /", route)
		}
	}
	return nil
}

// IsProduction は本番環境かどうかを返します。Cookie の Secure 属性に使います。
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// GinMode は実行環境に対応する Gin のモードを返します。
func (c *Config) GinMode() string {
	if c.IsProduction() {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}

// Addr は待ち受けアドレスを返します。
func (c *Config) Addr() string {
	return c.Hostname + ":" + c.Port
}

// CORSOrigins は CORS を許可するオリジンの一覧です。空の場合 CORS は無効です。
func (c *Config) CORSOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, strings.TrimRight(part, "/"))
	}
	return out
}
