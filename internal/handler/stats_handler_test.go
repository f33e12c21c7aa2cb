package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cosounds/presenced/internal/model"
	"github.com/cosounds/presenced/internal/stats"
)

// mockStatsService はStatsServiceInterfaceのモック実装。
type mockStatsService struct {
	summarizeFn func(ctx context.Context) (*stats.Summary, error)
}

func (m *mockStatsService) Summarize(ctx context.Context) (*stats.Summary, error) {
	if m.summarizeFn != nil {
		return m.summarizeFn(ctx)
	}
	return nil, nil
}

func TestStatsHandler_GetStats_Success(t *testing.T) {
	svc := &mockStatsService{
		summarizeFn: func(ctx context.Context) (*stats.Summary, error) {
			return &stats.Summary{
				DevicesByStatus: map[model.PresenceStatus]int{
					model.PresenceConnected:    3,
					model.PresenceGracePeriod:  1,
					model.PresenceDisconnected: 2,
				},
				ActiveSessions: 4,
				SightedCount:   7,
				RSSI:           &stats.RSSIStats{Min: -82, Max: -48, Mean: -63.5},
			}, nil
		},
	}
	h := NewStatsHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()

	h.GetStats(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var result struct {
		DevicesByStatus map[string]int `json:"devices_by_status"`
		ActiveSessions  int            `json:"active_sessions"`
		SightedCount    int            `json:"sighted_count"`
		RSSI            *struct {
			Min  int     `json:"min"`
			Max  int     `json:"max"`
			Mean float64 `json:"mean"`
		} `json:"rssi"`
	}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.DevicesByStatus["connected"] != 3 {
		t.Errorf("connected = %d, want 3", result.DevicesByStatus["connected"])
	}
	if result.ActiveSessions != 4 {
		t.Errorf("active_sessions = %d, want 4", result.ActiveSessions)
	}
	if result.RSSI == nil || result.RSSI.Mean != -63.5 {
		t.Errorf("rssi = %+v, want mean -63.5", result.RSSI)
	}
}

// RSSI付きの検出が無い場合はrssiがnullになる
func TestStatsHandler_GetStats_NoRSSI(t *testing.T) {
	svc := &mockStatsService{
		summarizeFn: func(ctx context.Context) (*stats.Summary, error) {
			return &stats.Summary{
				DevicesByStatus: map[model.PresenceStatus]int{
					model.PresenceConnected:    0,
					model.PresenceGracePeriod:  0,
					model.PresenceDisconnected: 0,
				},
			}, nil
		},
	}
	h := NewStatsHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()

	h.GetStats(w, req)

	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["rssi"] != nil {
		t.Errorf("rssi = %v, want null", result["rssi"])
	}
}

func TestStatsHandler_GetStats_ServiceError(t *testing.T) {
	svc := &mockStatsService{
		summarizeFn: func(ctx context.Context) (*stats.Summary, error) {
			return nil, errors.New("redis unavailable")
		},
	}
	h := NewStatsHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()

	h.GetStats(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
}
