// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cosounds/presenced/internal/auth"
	"github.com/cosounds/presenced/internal/config"
	"github.com/cosounds/presenced/internal/database"
	"github.com/cosounds/presenced/internal/handler"
	"github.com/cosounds/presenced/internal/ingest"
	"github.com/cosounds/presenced/internal/logger"
	"github.com/cosounds/presenced/internal/metrics"
	"github.com/cosounds/presenced/internal/middleware"
	"github.com/cosounds/presenced/internal/presence"
	"github.com/cosounds/presenced/internal/registry"
	"github.com/cosounds/presenced/internal/repository"
	"github.com/cosounds/presenced/internal/session"
	"github.com/cosounds/presenced/internal/stats"
	"github.com/cosounds/presenced/internal/worker/cleanup"
	"github.com/cosounds/presenced/internal/worker/sweep"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// services はserveモードのドメインサービス一式。
type services struct {
	registry *registry.Service
	sessions *session.Service
	ingest   *ingest.Service
	stats    *stats.Service
}

// buildServices は在席ドメインのサービス層をワイヤリングする。
// 検出キャッシュ・リポジトリ・メトリクスを共有し、ステートマシンを中心に
// 登録・セッション・検出パイプラインを構成する。
func buildServices(
	deviceRepo repository.DeviceRepository,
	presenceRepo repository.PresenceRepository,
	sessionRepo repository.SessionRepository,
	cache repository.DetectionCache,
	collector metrics.MetricsCollector,
	cfg *config.Config,
) *services {
	machine := presence.NewMachine(presenceRepo, collector, cfg.DetectionTimeout, cfg.GracePeriod)
	sessionSvc := session.NewService(sessionRepo, deviceRepo, machine, collector, cfg.SessionTTL)
	registrySvc := registry.NewService(deviceRepo, presenceRepo, machine, sessionSvc, cfg.GracePeriod)
	ingestSvc := ingest.NewService(cache, registrySvc, machine, sessionSvc, collector)
	statsSvc := stats.NewService(deviceRepo, presenceRepo, sessionRepo, cache)

	return &services{
		registry: registrySvc,
		sessions: sessionSvc,
		ingest:   ingestSvc,
		stats:    statsSvc,
	}
}

// runServe はAPIサーバーモードで起動する。
// DBとRedisへの接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. Redis接続（検出キャッシュ）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := database.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	slog.Info("redis connection established")

	// 3. リポジトリとメトリクスの初期化
	deviceRepo := repository.NewPostgresDeviceRepo(db)
	presenceRepo := repository.NewPostgresPresenceRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	cache := repository.NewRedisDetectionCache(redisClient, cfg.DetectionCacheTTL)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 4. ドメインサービスのワイヤリング
	svcs := buildServices(deviceRepo, presenceRepo, sessionRepo, cache, collector, cfg)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitRegistration),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		TokenVerifier:     auth.NewJWTVerifier(cfg.AuthJWTSecret),
		ScannerAPIKey:     cfg.ScannerAPIKey,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		HealthChecker:     db,
		Gatherer:          reg,
		DeviceService:     svcs.registry,
		SessionService:    svcs.sessions,
		DetectionService:  svcs.ingest,
		SightedLister:     svcs.stats,
		StatsService:      svcs.stats,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、在席スイープとセッション保持期間ジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリとメトリクスの初期化
	deviceRepo := repository.NewPostgresDeviceRepo(db)
	presenceRepo := repository.NewPostgresPresenceRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 3. ステートマシンとセッションサービスのワイヤリング
	machine := presence.NewMachine(presenceRepo, collector, cfg.DetectionTimeout, cfg.GracePeriod)
	sessionSvc := session.NewService(sessionRepo, deviceRepo, machine, collector, cfg.SessionTTL)

	// 4. スイープと保持期間ジョブの初期化
	sweeper := sweep.NewSweeper(
		presenceRepo, machine, sessionSvc, collector,
		slog.Default(), cfg.DetectionTimeout, cfg.GracePeriod,
	)
	retentionJob := cleanup.NewRetentionJob(sessionRepo, slog.Default(), cfg.SessionRetentionDays)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.SweepInterval),
		slog.Duration("detection_timeout", cfg.DetectionTimeout),
		slog.Duration("grace_period", cfg.GracePeriod),
	)

	// セッション保持期間ジョブを日次でバックグラウンド実行
	go retentionJob.Start(ctx)

	// 在席スイープをメインgoroutineで実行（ブロッキング）
	sweeper.Start(ctx, cfg.SweepInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
