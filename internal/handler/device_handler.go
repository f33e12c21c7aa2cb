package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cosounds/presenced/internal/middleware"
	"github.com/cosounds/presenced/internal/model"
	"github.com/cosounds/presenced/internal/registry"
)

// defaultDeviceName は表示名が省略された場合のデバイス名。
const defaultDeviceName = "Unknown Device"

// DeviceServiceInterface はデバイスハンドラーが必要とするサービスインターフェース。
type DeviceServiceInterface interface {
	// Register はユーザーのデバイスを登録し、セッションを開始する。
	Register(ctx context.Context, userID, mac, name string) (*registry.RegistrationResult, error)
	// Unregister はユーザーのデバイス登録を解除する。
	Unregister(ctx context.Context, userID, mac string) error
	// GetStatus はユーザーのデバイス・在席・セッションのスナップショットを返す。
	GetStatus(ctx context.Context, userID string) (*registry.Status, error)
}

// DeviceHandler はデバイス登録・状態照会のHTTPハンドラー。
type DeviceHandler struct {
	service DeviceServiceInterface
}

// NewDeviceHandler はDeviceHandlerを生成する。
func NewDeviceHandler(service DeviceServiceInterface) *DeviceHandler {
	return &DeviceHandler{
		service: service,
	}
}

// registerDeviceRequest はデバイス登録リクエストのボディ。
type registerDeviceRequest struct {
	DeviceMAC  string `json:"device_mac"`
	DeviceName string `json:"device_name"`
}

// registerDeviceResponse はデバイス登録のAPIレスポンス。
type registerDeviceResponse struct {
	DeviceID  string `json:"device_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// unregisterDeviceRequest はデバイス登録解除リクエストのボディ。
type unregisterDeviceRequest struct {
	DeviceMAC string `json:"device_mac"`
}

// myStatusResponse は在席状態照会のAPIレスポンス。
// デバイス未登録の場合はHasDeviceがfalseで他のフィールドは省略される。
type myStatusResponse struct {
	HasDevice         bool             `json:"has_device"`
	DeviceMAC         string           `json:"device_mac,omitempty"`
	DeviceName        string           `json:"device_name,omitempty"`
	Status            string           `json:"status,omitempty"`
	LastSeen          *time.Time       `json:"last_seen,omitempty"`
	GracePeriodEndsAt *time.Time       `json:"grace_period_ends_at,omitempty"`
	RSSI              *int             `json:"rssi,omitempty"`
	Session           *sessionResponse `json:"session"`
}

// RegisterDevice はユーザーのデバイスを登録しセッションを開始する。
// POST /api/devices
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req registerDeviceRequest
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
	if req.DeviceName == "" {
		req.DeviceName = defaultDeviceName
	}

	result, err := h.service.Register(r.Context(), userID, req.DeviceMAC, req.DeviceName)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	statusCode := http.StatusOK
	message := "Device already registered, session resumed"
	if result.Created {
		statusCode = http.StatusCreated
		message = "Device registered and session started"
	}
	writeJSONResponse(w, statusCode, registerDeviceResponse{
		DeviceID:  result.Device.ID,
		SessionID: result.Session.ID,
		Message:   message,
	})
}

// UnregisterDevice はユーザーのデバイス登録を解除する。
// DELETE /api/devices
func (h *DeviceHandler) UnregisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req unregisterDeviceRequest
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

	if err := h.service.Unregister(r.Context(), userID, req.DeviceMAC); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MyStatus はユーザーのデバイス・在席・セッションの状態を返す。
// GET /api/my-status
func (h *DeviceHandler) MyStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	status, err := h.service.GetStatus(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toMyStatusResponse(status))
}

// toMyStatusResponse はregistry.StatusをAPIレスポンスに変換する。
// 在席レコードがまだ無い登録済みデバイスはdisconnected扱いで返す。
func toMyStatusResponse(status *registry.Status) myStatusResponse {
	if status.Device == nil {
		return myStatusResponse{HasDevice: false}
	}

	resp := myStatusResponse{
		HasDevice:         true,
		DeviceMAC:         status.Device.MAC,
		DeviceName:        status.Device.Name,
		Status:            string(model.PresenceDisconnected),
		GracePeriodEndsAt: status.GracePeriodEndsAt,
	}
	if status.Presence != nil {
		resp.Status = string(status.Presence.Status)
		lastSeen := status.Presence.LastSeen
		resp.LastSeen = &lastSeen
		resp.RSSI = status.Presence.LastRSSI
	}
	if status.Session != nil {
		session := toSessionResponse(status.Session)
		resp.Session = &session
	}
	return resp
}
