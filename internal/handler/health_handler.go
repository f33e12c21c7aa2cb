package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// serviceName と serviceVersion はヘルスチェックレスポンスの識別情報。
const (
	serviceName    = "presenced"
	serviceVersion = "1.0.0"
)

// HealthChecker は依存ストアの疎通確認を提供する。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// healthResponse はヘルスチェックのAPIレスポンス。
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// NewHealthHandler はヘルスチェックのHTTPハンドラーを返す。
// DBへの疎通確認に失敗した場合は503を返す。
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := checker.PingContext(r.Context()); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSONResponse(w, http.StatusServiceUnavailable, healthResponse{
				Status:  "unavailable",
				Service: serviceName,
				Version: serviceVersion,
			})
			return
		}

		writeJSONResponse(w, http.StatusOK, healthResponse{
			Status:  "ok",
			Service: serviceName,
			Version: serviceVersion,
		})
	}
}
