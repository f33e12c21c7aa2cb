package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/cosounds/presenced/internal/model"
)

// scannerKeyHeader はスキャナー認証用のAPIキーヘッダー名。
const scannerKeyHeader = "X-Scanner-API-Key"

// NewScannerKeyMiddleware は会場スキャナーからのリクエストを認証するミドルウェアを返す。
// X-Scanner-API-Keyヘッダーの値を共有キーと定数時間比較で照合する。
// キー不一致・ヘッダー欠落には統一エラーフォーマットで401 Unauthorizedを返す。
func NewScannerKeyMiddleware(apiKey string) func(next http.Handler) http.Handler {
	key := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(scannerKeyHeader))
			if len(got) == 0 || subtle.ConstantTimeCompare(got, key) != 1 {
				slog.Warn("scanner authentication failed",
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
