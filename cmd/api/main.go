// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/yourusername/wiki-gate/internal/auth"
	"github.com/yourusername/wiki-gate/internal/config"
	"github.com/yourusername/wiki-gate/internal/cookie"
	"github.com/yourusername/wiki-gate/internal/identity"
	"github.com/yourusername/wiki-gate/internal/logging"
	"github.com/yourusername/wiki-gate/internal/metrics"
	"github.com/yourusername/wiki-gate/internal/server"
	"github.com/yourusername/wiki-gate/internal/session"
	"github.com/yourusername/wiki-gate/internal/storage"
)

func main() {
	// 設定の読み込み（プロバイダーの認証情報がなければ終了）
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode())

	recorder, gatherer := setupMetrics(cfg)

	// プロバイダーのクライアントは起動時に一度だけ作成して共有する
	client := identity.NewClient(cfg.SupabaseURL, cfg.SupabaseKey,
		identity.WithTimeout(cfg.ProviderTimeout),
		identity.WithRecorder(recorder),
	)
	verifier := session.NewVerifier(client, logger, session.WithRecorder(recorder))

	limiter, err := setupLimiter(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to set up login limiter", zap.Error(err))
	}

	authManager := auth.NewManager(client, verifier, cookie.NewJar(cfg.IsProduction()), logger,
		auth.WithLimiter(limiter),
	)

	router := server.NewRouter(server.Deps{
		Auth:               authManager,
		Files:              storage.NewLocal(cfg.PublicDir),
		Logger:             logger,
		ProtectedRoutes:    cfg.ProtectedRoutes,
		CORSAllowedOrigins: cfg.CORSOrigins(),
		Metrics:            gatherer,
	})

	// サーバーの起動
	logger.Info("Starting server",
		zap.String("addr", "http://"+cfg.Addr()+"/"),
		zap.String("env", cfg.Env),
		zap.String("provider", cfg.SupabaseURL),
	)
	if err := router.Run(cfg.Addr()); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

// setupMetrics はメトリクスが有効ならレジストリを作成します。無効なら何も記録しません。
func setupMetrics(cfg *config.Config) (metrics.Recorder, prometheus.Gatherer) {
	if !cfg.MetricsEnabled {
		return metrics.Noop{}, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewPrometheus(reg), reg
}
