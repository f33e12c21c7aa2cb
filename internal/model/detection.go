// Package model はドメインモデルを定義する。
package model

import "time"

// DetectionReport はスキャナーエージェントから報告された1件の検出を表す。
// SeenAt は受信時にサーバー側で付与される観測時刻。
type DetectionReport struct {
	MAC    string
	Name   string
	RSSI   *int
	SeenAt time.Time
}

// 検出報告の処理結果アクション。
const (
	// DetectionActionConnected は disconnected からの接続（セッション開始を伴う）。
	DetectionActionConnected = "connected"
	// DetectionActionRestored は猶予期間からの復帰（セッション継続）。
	DetectionActionRestored = "restored"
	// DetectionActionUpdated は connected 維持のままの last_seen 更新。
	DetectionActionUpdated = "updated"
	// DetectionActionIgnored は未登録デバイスのため無視（エラーにはしない）。
	DetectionActionIgnored = "ignored"
	// DetectionActionDiscarded は保持中のlast_seenより古い検出のため破棄。
	DetectionActionDiscarded = "discarded"
)

// DetectionResult は検出報告1件の処理結果を表す。
type DetectionResult struct {
	Action         string
	PreviousStatus PresenceStatus
	Reason         string
}

// CachedDetection はRedisの検出キャッシュに保持する直近の目撃情報を表す。
// 登録の有無に関わらず全ての検出をTTL付きで記録し、診断用に参照される。
type CachedDetection struct {
	MAC    string    `json:"mac"`
	Name   string    `json:"name"`
	RSSI   *int      `json:"rssi"`
	SeenAt time.Time `json:"seen_at"`
}
