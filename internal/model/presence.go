// Package model はドメインモデルを定義する。
package model

import "time"

// PresenceStatus はデバイスの在席状態を表す。
type PresenceStatus string

const (
	// PresenceConnected は検出が継続している在席状態。
	PresenceConnected PresenceStatus = "connected"
	// PresenceGracePeriod は検出が途切れた後の猶予状態。
	// 猶予中はセッションを維持する。
	PresenceGracePeriod PresenceStatus = "grace_period"
	// PresenceDisconnected は猶予期間を超えて検出されなかった離席状態。
	PresenceDisconnected PresenceStatus = "disconnected"
)

// PresenceRecord は登録済みデバイスごとの在席追跡レコードを表す。
// MACアドレスをキーとし、所有者のデバイスにつき1件存在する。
//
// 不変条件:
//   - LastSeen は単調非減少（古いタイムスタンプの検出は破棄される）
//   - GraceStartedAt は Status が grace_period のときに限り非nil
type PresenceRecord struct {
	MAC            string
	UserID         string
	Status         PresenceStatus
	LastSeen       time.Time
	GraceStartedAt *time.Time
	LastRSSI       *int
	UpdatedAt      time.Time
}
