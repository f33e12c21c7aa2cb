// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, device, session, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeInvalidMAC          = "INVALID_MAC"
	ErrCodeDeviceNotRegistered = "DEVICE_NOT_REGISTERED"
	ErrCodeDeviceConflict      = "DEVICE_CONFLICT"
	ErrCodeDeviceLimit         = "DEVICE_LIMIT"
	ErrCodeNoActiveSession     = "NO_ACTIVE_SESSION"
)

// NewUnauthorizedError は認証失敗エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidRequestError はリクエスト形式が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewInvalidMACError はMACアドレス形式が不正な場合のエラーを生成する。
func NewInvalidMACError(mac string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMAC,
		Message:  fmt.Sprintf("無効なMACアドレス形式です: %s", mac),
		Category: "validation",
		Action:   "AA:BB:CC:DD:EE:FF または AA-BB-CC-DD-EE-FF 形式で指定してください。",
	}
}

// NewDeviceNotRegisteredError はデバイス未登録エラーを生成する。
func NewDeviceNotRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeDeviceNotRegistered,
		Message:  "登録済みのデバイスが見つかりません。",
		Category: "device",
		Action:   "先にデバイスを登録してください。",
	}
}

// NewDeviceConflictError は他ユーザーが登録済みのMACアドレスを
// 登録しようとした場合のエラーを生成する。先着優先で、
// 再登録には元の所有者による登録解除が必要。
func NewDeviceConflictError(mac string) *APIError {
	return &APIError{
		Code:     ErrCodeDeviceConflict,
		Message:  fmt.Sprintf("このデバイスは他のユーザーに登録されています: %s", mac),
		Category: "device",
		Action:   "別のデバイスを使用するか、元の所有者に登録解除を依頼してください。",
	}
}

// NewDeviceLimitError は既に別のデバイスを登録済みのユーザーが
// 新たなデバイスを登録しようとした場合のエラーを生成する。
func NewDeviceLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeDeviceLimit,
		Message:  "既に別のデバイスが登録されています。登録できるデバイスは1台までです。",
		Category: "device",
		Action:   "現在のデバイスを登録解除してから、新しいデバイスを登録してください。",
	}
}

// NewNoActiveSessionError は有効なセッションが存在しない場合のエラーを生成する。
// 投票などの在席を前提とする操作はこのエラーを「不在」として扱う。
func NewNoActiveSessionError() *APIError {
	return &APIError{
		Code:     ErrCodeNoActiveSession,
		Message:  "有効なセッションがありません。",
		Category: "session",
		Action:   "会場でデバイスが検出されているか確認し、チェックインし直してください。",
	}
}
