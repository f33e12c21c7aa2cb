package handler

import (
	"context"
	"net/http"

	"github.com/cosounds/presenced/internal/stats"
)

// StatsServiceInterface は統計ハンドラーが必要とするサービスインターフェース。
type StatsServiceInterface interface {
	// Summarize は会場全体の統計スナップショットを返す。
	Summarize(ctx context.Context) (*stats.Summary, error)
}

// StatsHandler は会場統計のHTTPハンドラー。
type StatsHandler struct {
	service StatsServiceInterface
}

// NewStatsHandler はStatsHandlerを生成する。
func NewStatsHandler(service StatsServiceInterface) *StatsHandler {
	return &StatsHandler{
		service: service,
	}
}

// rssiStatsResponse はRSSI集計値のAPIレスポンス。
type rssiStatsResponse struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
}

// statsResponse は会場統計のAPIレスポンス。
// RSSIはRSSI付きの検出が1件も無い場合null。
type statsResponse struct {
	DevicesByStatus map[string]int     `json:"devices_by_status"`
	ActiveSessions  int                `json:"active_sessions"`
	SightedCount    int                `json:"sighted_count"`
	RSSI            *rssiStatsResponse `json:"rssi"`
}

// GetStats は会場全体の統計スナップショットを返す。
// GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summarize(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	byStatus := make(map[string]int, len(summary.DevicesByStatus))
	for status, count := range summary.DevicesByStatus {
		byStatus[string(status)] = count
	}

	resp := statsResponse{
		DevicesByStatus: byStatus,
		ActiveSessions:  summary.ActiveSessions,
		SightedCount:    summary.SightedCount,
	}
	if summary.RSSI != nil {
		resp.RSSI = &rssiStatsResponse{
			Min:  summary.RSSI.Min,
			Max:  summary.RSSI.Max,
			Mean: summary.RSSI.Mean,
		}
	}

	writeJSONResponse(w, http.StatusOK, resp)
}
