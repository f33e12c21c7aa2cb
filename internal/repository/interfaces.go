// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/cosounds/presenced/internal/model"
)

// DeviceRepository はデバイス登録データの永続化インターフェース。
type DeviceRepository interface {
	// FindByMAC は指定MACアドレスのデバイスを取得する。見つからない場合はnilを返す。
	FindByMAC(ctx context.Context, mac string) (*model.Device, error)

	// FindByUserID は指定ユーザーの登録デバイスを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Device, error)

	// Create はデバイスを作成する。
	Create(ctx context.Context, device *model.Device) error

	// UpdateName はデバイスの表示名を更新する。
	// 同一ユーザー・同一MACの再登録（冪等）で使用する。
	UpdateName(ctx context.Context, id, name string) error

	// Delete は指定IDのデバイスを削除する。
	// 関連するpresence_recordsはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// PresenceRepository は在席追跡レコードの永続化インターフェース。
// 書き込みの直列化は呼び出し側（在席ステートマシン）がデバイス単位のロックで行う。
type PresenceRepository interface {
	// FindByMAC は指定MACの在席レコードを取得する。見つからない場合はnilを返す。
	FindByMAC(ctx context.Context, mac string) (*model.PresenceRecord, error)

	// Create は在席レコードを作成する。
	Create(ctx context.Context, record *model.PresenceRecord) error

	// Update は在席レコードを上書き更新する。
	Update(ctx context.Context, record *model.PresenceRecord) error

	// ListConnectedStale はlast_seenがcutoffより古いconnectedレコードを返す。
	// スイープの第1パス（猶予期間入り候補の検索）で使用する。
	ListConnectedStale(ctx context.Context, cutoff time.Time) ([]*model.PresenceRecord, error)

	// ListGraceExpired はgrace_started_atがcutoffより古いgrace_periodレコードを返す。
	// スイープの第2パス（切断確定候補の検索）で使用する。
	ListGraceExpired(ctx context.Context, cutoff time.Time) ([]*model.PresenceRecord, error)

	// CountByStatus はステータスごとのレコード数を返す。
	CountByStatus(ctx context.Context) (map[model.PresenceStatus]int, error)

	// DeleteByMAC は指定MACの在席レコードを削除する。
	DeleteByMAC(ctx context.Context, mac string) error
}

// SessionRepository は在席セッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindActiveByUserID はユーザーの有効なセッションを取得する。見つからない場合はnilを返す。
	// 有効期限の判定は行わない。期限切れの扱いは呼び出し側の責務。
	FindActiveByUserID(ctx context.Context, userID string) (*model.Session, error)

	// UpdateExpiry はセッションの有効期限を延長する。
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error

	// End はセッションを終了状態にする。
	// すでに終了済みの場合は何もしない（冪等）。
	End(ctx context.Context, id string, endedAt time.Time) error

	// CountActive は有効なセッション数を返す。
	CountActive(ctx context.Context) (int, error)

	// DeleteEndedBefore はended_atがcutoffより古い終了済みセッションを削除し、削除件数を返す。
	DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DetectionCache は直近の検出情報のキャッシュインターフェース。
// 登録の有無に関わらず全検出をTTL付きで保持し、診断と統計に使用する。
type DetectionCache interface {
	// Store は検出情報をTTL付きで保存する。既存エントリは上書きされる。
	Store(ctx context.Context, detection *model.CachedDetection) error

	// List は保持中の全検出情報を返す。TTL切れのエントリは含まれない。
	List(ctx context.Context) ([]*model.CachedDetection, error)
}
