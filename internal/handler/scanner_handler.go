package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cosounds/presenced/internal/middleware"
	"github.com/cosounds/presenced/internal/model"
	"github.com/cosounds/presenced/internal/stats"
)

// DetectionServiceInterface は検出報告ハンドラーが必要とするサービスインターフェース。
type DetectionServiceInterface interface {
	// Report は検出報告1件を処理し、取られたアクションを返す。
	Report(ctx context.Context, report *model.DetectionReport) (*model.DetectionResult, error)
}

// SightedListerInterface は直近に目撃されたデバイスの一覧を提供する。
type SightedListerInterface interface {
	// ListSighted は検出キャッシュ中のデバイスを登録・在席状態と結合して返す。
	ListSighted(ctx context.Context) ([]*stats.SightedDevice, error)
}

// ScannerHandler は会場スキャナー向けのHTTPハンドラー。
// 全ルートはスキャナーAPIキーのミドルウェアで保護される。
type ScannerHandler struct {
	detections DetectionServiceInterface
	sighted    SightedListerInterface
}

// NewScannerHandler はScannerHandlerを生成する。
func NewScannerHandler(detections DetectionServiceInterface, sighted SightedListerInterface) *ScannerHandler {
	return &ScannerHandler{
		detections: detections,
		sighted:    sighted,
	}
}

// deviceDetectedRequest はスキャナーからの検出報告リクエストのボディ。
// スキャナーのワイヤーフォーマットに観測時刻は含まれず、受信時刻を採用する。
type deviceDetectedRequest struct {
	DeviceMAC  string `json:"device_mac"`
	DeviceName string `json:"device_name"`
	RSSI       *int   `json:"rssi"`
}

// deviceDetectedResponse は検出報告のAPIレスポンス。
type deviceDetectedResponse struct {
	Action         string `json:"action"`
	PreviousStatus string `json:"previous_status,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// sightedDeviceResponse は直近に目撃されたデバイスのAPIレスポンス。
type sightedDeviceResponse struct {
	DeviceMAC  string    `json:"device_mac"`
	DeviceName string    `json:"device_name"`
	RSSI       *int      `json:"rssi"`
	SeenAt     time.Time `json:"seen_at"`
	Registered bool      `json:"registered"`
	Status     string    `json:"status,omitempty"`
}

// DeviceDetected はスキャナーからの検出報告を処理する。
// 未登録デバイスの報告もエラーにはせず、action=ignoredで成功を返す。
// POST /api/scanner/device-detected
func (h *ScannerHandler) DeviceDetected(w http.ResponseWriter, r *http.Request) {
	var req deviceDetectedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}
	if req.DeviceMAC == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("device_macは必須です"))
		return
	}

	result, err := h.detections.Report(r.Context(), &model.DetectionReport{
		MAC:    req.DeviceMAC,
		Name:   req.DeviceName,
		RSSI:   req.RSSI,
		SeenAt: time.Now(),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, deviceDetectedResponse{
		Action:         result.Action,
		PreviousStatus: string(result.PreviousStatus),
		Reason:         result.Reason,
	})
}

// ListDevices は直近に目撃されたデバイスの診断一覧を返す。
// GET /api/scanner/devices
func (h *ScannerHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	sighted, err := h.sighted.ListSighted(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	devices := make([]sightedDeviceResponse, len(sighted))
	for i, entry := range sighted {
		devices[i] = sightedDeviceResponse{
			DeviceMAC:  entry.Detection.MAC,
			DeviceName: entry.Detection.Name,
			RSSI:       entry.Detection.RSSI,
			SeenAt:     entry.Detection.SeenAt,
			Registered: entry.Registered,
			Status:     string(entry.Status),
		}
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"count":   len(devices),
		"devices": devices,
	})
}
