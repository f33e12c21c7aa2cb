// Package model はドメインモデルを定義する。
package model

import "time"

// SessionStatus は在席セッションの状態を表す。
type SessionStatus string

const (
	// SessionActive は有効なセッション状態。投票はこの状態でのみ許可される。
	SessionActive SessionStatus = "active"
	// SessionEnded は終了したセッション状態。終了は不可逆で、再開はされない。
	SessionEnded SessionStatus = "ended"
)

// セッション終了理由。ログとメトリクスのラベルに使用する。
const (
	// SessionEndCheckout は明示的なチェックアウトによる終了。
	SessionEndCheckout = "checkout"
	// SessionEndExpired は有効期限切れによる終了。
	SessionEndExpired = "expired"
	// SessionEndPresenceLost は猶予期間超過（離席）による終了。
	SessionEndPresenceLost = "presence_lost"
	// SessionEndUnregistered はデバイス登録解除に伴う終了。
	SessionEndUnregistered = "unregistered"
)

// Session はユーザーの在席セッションを表す。
// 1ユーザーにつき有効なセッションは最大1件。
// ExpiresAt はチェックインまたは延長のたびに更新される。
type Session struct {
	ID        string
	UserID    string
	DeviceMAC string
	Status    SessionStatus
	StartedAt time.Time
	ExpiresAt time.Time
	EndedAt   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExpired はセッションの有効期限が経過しているかを返す。
// 期限切れの永続化は遅延評価で行われるため、activeな行でも期限切れがありうる。
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
