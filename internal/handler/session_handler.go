package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cosounds/presenced/internal/middleware"
	"github.com/cosounds/presenced/internal/model"
)

// SessionServiceInterface はセッションハンドラーが必要とするサービスインターフェース。
type SessionServiceInterface interface {
	// CheckIn はユーザーを明示的にチェックインさせる。
	CheckIn(ctx context.Context, userID string) (*model.Session, error)
	// CheckOut はユーザーを明示的にチェックアウトさせる（冪等）。
	CheckOut(ctx context.Context, userID string) error
	// Extend は有効なセッションの期限を延長する。
	Extend(ctx context.Context, userID string) (*model.Session, error)
	// Get はユーザーの有効なセッションを返す。無ければnilを返す。
	Get(ctx context.Context, userID string) (*model.Session, error)
}

// SessionHandler はセッション操作のHTTPハンドラー。
type SessionHandler struct {
	service SessionServiceInterface
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionServiceInterface) *SessionHandler {
	return &SessionHandler{
		service: service,
	}
}

// sessionResponse はセッション情報のAPIレスポンス。
type sessionResponse struct {
	ID        string    `json:"id"`
	DeviceMAC string    `json:"device_mac"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// checkInResponse はチェックインのAPIレスポンス。
type checkInResponse struct {
	SessionID string    `json:"session_id"`
	DeviceMAC string    `json:"device_mac"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message"`
}

// CheckIn はユーザーをチェックインさせセッションを開始・延長する。
// POST /api/check-in
func (h *SessionHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	session, err := h.service.CheckIn(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, checkInResponse{
		SessionID: session.ID,
		DeviceMAC: session.DeviceMAC,
		ExpiresAt: session.ExpiresAt,
		Message:   "Checked in, session started",
	})
}

// CheckOut はユーザーをチェックアウトさせる。
// 有効なセッションが無い場合も成功を返す（冪等）。
// POST /api/check-out
func (h *SessionHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.CheckOut(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Extend は有効なセッションの期限を延長する。
// 延長は既存セッションの存在が前提のため、有効なセッションが無い場合は
// 404ではなく409 Conflictを返す（取得時の404とは区別する）。
// POST /api/session/extend
func (h *SessionHandler) Extend(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	session, err := h.service.Extend(r.Context(), userID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeNoActiveSession {
			middleware.WriteErrorResponse(w, http.StatusConflict, apiErr)
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toSessionResponse(session))
}

// GetSession はユーザーの有効なセッションを返す。
// 投票などの在席を前提とする操作のゲートとして使用され、
// 有効なセッションが無い場合はNO_ACTIVE_SESSIONエラーを返す。
// GET /api/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	session, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if session == nil {
		handleServiceError(w, model.NewNoActiveSessionError())
		return
	}

	writeJSONResponse(w, http.StatusOK, toSessionResponse(session))
}

// toSessionResponse はmodel.SessionをAPIレスポンスに変換する。
func toSessionResponse(session *model.Session) sessionResponse {
	return sessionResponse{
		ID:        session.ID,
		DeviceMAC: session.DeviceMAC,
		Status:    string(session.Status),
		StartedAt: session.StartedAt,
		ExpiresAt: session.ExpiresAt,
	}
}
