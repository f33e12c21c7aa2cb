package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cosounds/presenced/internal/auth"
	"github.com/cosounds/presenced/internal/metrics"
	"github.com/cosounds/presenced/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenVerifier     auth.TokenVerifier
	ScannerAPIKey     string
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 監視
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer

	// デバイス・セッション
	DeviceService  DeviceServiceInterface
	SessionService SessionServiceInterface

	// スキャナー
	DetectionService DetectionServiceInterface
	SightedLister    SightedListerInterface

	// 統計
	StatsService StatsServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → (Auth → RateLimit | ScannerKey)
//
// ヘルスチェック・メトリクス・統計は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	deviceHandler := NewDeviceHandler(deps.DeviceService)
	sessionHandler := NewSessionHandler(deps.SessionService)
	scannerHandler := NewScannerHandler(deps.DetectionService, deps.SightedLister)
	statsHandler := NewStatsHandler(deps.StatsService)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	r.Get("/metrics", metrics.Handler(deps.Gatherer).ServeHTTP)
	r.Get("/api/stats", statsHandler.GetStats)

	// --- ユーザー認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// デバイス管理
		r.Route("/api/devices", func(r chi.Router) {
			// POST /api/devices - デバイス登録（登録専用レート制限を追加）
			r.With(deps.RateLimiter.DeviceRegistrationMiddleware()).Post("/", deviceHandler.RegisterDevice)
			r.Delete("/", deviceHandler.UnregisterDevice)
		})

		// 在席状態照会
		r.Get("/api/my-status", deviceHandler.MyStatus)

		// セッション操作
		r.Post("/api/check-in", sessionHandler.CheckIn)
		r.Post("/api/check-out", sessionHandler.CheckOut)
		r.Route("/api/session", func(r chi.Router) {
			r.Get("/", sessionHandler.GetSession)
			r.Post("/extend", sessionHandler.Extend)
		})
	})

	// --- スキャナー認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewScannerKeyMiddleware(deps.ScannerAPIKey))

		r.Post("/api/scanner/device-detected", scannerHandler.DeviceDetected)
		r.Get("/api/scanner/devices", scannerHandler.ListDevices)
	})

	return r
}
