package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cosounds/presenced/internal/auth"
	"github.com/cosounds/presenced/internal/middleware"
	"github.com/cosounds/presenced/internal/model"
	"github.com/cosounds/presenced/internal/registry"
	"github.com/cosounds/presenced/internal/stats"
)

// mockTokenVerifier はauth.TokenVerifierのモック実装。
type mockTokenVerifier struct {
	verifyFn func(tokenString string) (string, error)
}

func (m *mockTokenVerifier) Verify(tokenString string) (string, error) {
	if m.verifyFn != nil {
		return m.verifyFn(tokenString)
	}
	return "", auth.ErrInvalidToken
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	pingFn func(ctx context.Context) error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

// newTestRouter は全依存をモックで差し替えたルーターを構築する。
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	verifier := &mockTokenVerifier{
		verifyFn: func(tokenString string) (string, error) {
			if tokenString == "valid-token" {
				return "user-123", nil
			}
			return "", auth.ErrInvalidToken
		},
	}

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	now := time.Now()
	deviceSvc := &mockDeviceService{
		getStatusFn: func(ctx context.Context, userID string) (*registry.Status, error) {
			return &registry.Status{}, nil
		},
	}
	sessionSvc := &mockSessionService{
		getFn: func(ctx context.Context, userID string) (*model.Session, error) {
			return activeSession(userID, now), nil
		},
	}
	detectionSvc := &mockDetectionService{
		reportFn: func(ctx context.Context, report *model.DetectionReport) (*model.DetectionResult, error) {
			return &model.DetectionResult{Action: model.DetectionActionUpdated}, nil
		},
	}
	statsSvc := &mockStatsService{
		summarizeFn: func(ctx context.Context) (*stats.Summary, error) {
			return &stats.Summary{}, nil
		},
	}

	return NewRouter(&RouterDeps{
		TokenVerifier:     verifier,
		ScannerAPIKey:     "test-scanner-key",
		CORSAllowedOrigin: "http://localhost:5173",
		RateLimiter:       rl,
		HealthChecker:     &mockHealthChecker{},
		Gatherer:          prometheus.NewRegistry(),
		DeviceService:     deviceSvc,
		SessionService:    sessionSvc,
		DetectionService:  detectionSvc,
		SightedLister:     &mockSightedLister{},
		StatsService:      statsSvc,
	})
}

// TestRouter_PublicRoutes はヘルスチェックとメトリクスが認証なしで通ることを検証する。
func TestRouter_PublicRoutes(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"stats", http.MethodGet, "/api/stats", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
		})
	}
}

// TestRouter_UserRoutes_RequireAuth はユーザー向けルートがBearerトークンを要求することを検証する。
func TestRouter_UserRoutes_RequireAuth(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/devices"},
		{http.MethodDelete, "/api/devices"},
		{http.MethodGet, "/api/my-status"},
		{http.MethodPost, "/api/check-in"},
		{http.MethodPost, "/api/check-out"},
		{http.MethodGet, "/api/session"},
		{http.MethodPost, "/api/session/extend"},
	}

	for _, tt := range tests {
		t.Run(tt.method+"_"+tt.path, func(t *testing.T) {
			// トークンなしは401
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Result().StatusCode != http.StatusUnauthorized {
				t.Errorf("without token: status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
			}

			// 不正なトークンも401
			req = httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Authorization", "Bearer wrong-token")
			w = httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Result().StatusCode != http.StatusUnauthorized {
				t.Errorf("with bad token: status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
			}
		})
	}
}

// TestRouter_UserRoute_WithToken は有効なトークンでユーザー向けルートが通ることを検証する。
func TestRouter_UserRoute_WithToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["id"] != "session-1" {
		t.Errorf("id = %v, want %q", result["id"], "session-1")
	}
}

// TestRouter_ScannerRoutes_RequireAPIKey はスキャナールートがAPIキーを要求することを検証する。
func TestRouter_ScannerRoutes_RequireAPIKey(t *testing.T) {
	router := newTestRouter(t)

	body := `{"device_mac": "AA:BB:CC:DD:EE:FF", "rssi": -60}`

	// キーなしは401
	req := httptest.NewRequest(http.MethodPost, "/api/scanner/device-detected", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("without key: status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}

	// 正しいキーで200
	req = httptest.NewRequest(http.MethodPost, "/api/scanner/device-detected", bytes.NewBufferString(body))
	req.Header.Set("X-Scanner-API-Key", "test-scanner-key")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("with key: status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	// ユーザートークンではスキャナールートは通らない
	req = httptest.NewRequest(http.MethodGet, "/api/scanner/devices", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("scanner route with user token: status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// TestRouter_HealthCheck_DBDown はDB疎通失敗時にヘルスチェックが503を返すことを検証する。
func TestRouter_HealthCheck_DBDown(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	router := NewRouter(&RouterDeps{
		TokenVerifier:     &mockTokenVerifier{},
		ScannerAPIKey:     "test-scanner-key",
		CORSAllowedOrigin: "http://localhost:5173",
		RateLimiter:       rl,
		HealthChecker: &mockHealthChecker{
			pingFn: func(ctx context.Context) error {
				return context.DeadlineExceeded
			},
		},
		Gatherer:         prometheus.NewRegistry(),
		DeviceService:    &mockDeviceService{},
		SessionService:   &mockSessionService{},
		DetectionService: &mockDetectionService{},
		SightedLister:    &mockSightedLister{},
		StatsService:     &mockStatsService{},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusServiceUnavailable)
	}
}
