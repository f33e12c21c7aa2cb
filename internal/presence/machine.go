// Package presence は在席状態のステートマシンを提供する。
//
// 在席レコードは connected / grace_period / disconnected の3状態を持ち、
// 検出報告・チェックイン・スイープの3系統から遷移が起こる。全ての遷移は
// MACアドレス単位のロックで直列化され、ロック取得後にレコードを読み直して
// 条件を再検証するため、スイープと検出報告が競合しても後勝ちにならない。
//
// このパッケージはセッションへの副作用を持たない。セッションの開始・終了は
// 遷移結果（DetectionResultのActionやDisconnectの戻り値）を見た呼び出し側の責務。
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/cosounds/presenced/internal/metrics"
	"github.com/cosounds/presenced/internal/model"
	"github.com/cosounds/presenced/internal/repository"
)

// Machine は在席レコードの状態遷移を管理する。
type Machine struct {
	presenceRepo     repository.PresenceRepository
	collector        metrics.MetricsCollector
	detectionTimeout time.Duration
	gracePeriod      time.Duration
	locks            macLockTable
}

// NewMachine はMachineを生成する。
func NewMachine(
	presenceRepo repository.PresenceRepository,
	collector metrics.MetricsCollector,
	detectionTimeout time.Duration,
	gracePeriod time.Duration,
) *Machine {
	return &Machine{
		presenceRepo:     presenceRepo,
		collector:        collector,
		detectionTimeout: detectionTimeout,
		gracePeriod:      gracePeriod,
	}
}

// ApplyDetection は登録済みデバイスの検出報告を在席レコードに反映する。
// レコードが無ければ connected で新規作成する。保持中のlast_seenより
// 新しくないタイムスタンプの報告は破棄する（last_seenは単調非減少）。
// 返り値のActionが connected / restored / updated の場合、呼び出し側は
// 所有者のセッションを開始・延長する。
func (m *Machine) ApplyDetection(ctx context.Context, userID string, report *model.DetectionReport) (*model.DetectionResult, error) {
	mu := m.locks.mutexFor(report.MAC)
	mu.Lock()
	defer mu.Unlock()

	record, err := m.presenceRepo.FindByMAC(ctx, report.MAC)
	if err != nil {
		return nil, fmt.Errorf("在席レコードの取得に失敗しました: %w", err)
	}

	now := time.Now()

	// 1. 初回検出はconnectedで新規作成
	if record == nil {
		record = &model.PresenceRecord{
			MAC:       report.MAC,
			UserID:    userID,
			Status:    model.PresenceConnected,
			LastSeen:  report.SeenAt,
			LastRSSI:  report.RSSI,
			UpdatedAt: now,
		}
		if err := m.presenceRepo.Create(ctx, record); err != nil {
			return nil, fmt.Errorf("在席レコードの作成に失敗しました: %w", err)
		}
		return &model.DetectionResult{Action: model.DetectionActionConnected}, nil
	}

	// 2. 古いタイムスタンプの報告は破棄
	if !report.SeenAt.After(record.LastSeen) {
		return &model.DetectionResult{
			Action:         model.DetectionActionDiscarded,
			PreviousStatus: record.Status,
			Reason:         "stale_timestamp",
		}, nil
	}

	// 3. 現在の状態からconnectedへ遷移（connected維持は更新のみ）
	previous := record.Status
	record.Status = model.PresenceConnected
	record.LastSeen = report.SeenAt
	record.GraceStartedAt = nil
	if report.RSSI != nil {
		record.LastRSSI = report.RSSI
	}
	record.UpdatedAt = now

	if err := m.presenceRepo.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("在席レコードの更新に失敗しました: %w", err)
	}

	result := &model.DetectionResult{PreviousStatus: previous}
	switch previous {
	case model.PresenceConnected:
		result.Action = model.DetectionActionUpdated
	case model.PresenceGracePeriod:
		result.Action = model.DetectionActionRestored
		m.collector.RecordTransition(string(model.PresenceGracePeriod), string(model.PresenceConnected))
	case model.PresenceDisconnected:
		result.Action = model.DetectionActionConnected
		m.collector.RecordTransition(string(model.PresenceDisconnected), string(model.PresenceConnected))
	}
	return result, nil
}

// MarkConnected はチェックインやデバイス登録を在席状態に反映する。
// レコードが無ければ connected で新規作成し、あればステータスに関わらず
// connected へ遷移させる。last_seenは過去方向には更新しない。
func (m *Machine) MarkConnected(ctx context.Context, mac, userID string, now time.Time) error {
	mu := m.locks.mutexFor(mac)
	mu.Lock()
	defer mu.Unlock()

	record, err := m.presenceRepo.FindByMAC(ctx, mac)
	if err != nil {
		return fmt.Errorf("在席レコードの取得に失敗しました: %w", err)
	}

	if record == nil {
		record = &model.PresenceRecord{
			MAC:       mac,
			UserID:    userID,
			Status:    model.PresenceConnected,
			LastSeen:  now,
			UpdatedAt: now,
		}
		if err := m.presenceRepo.Create(ctx, record); err != nil {
			return fmt.Errorf("在席レコードの作成に失敗しました: %w", err)
		}
		return nil
	}

	previous := record.Status
	record.Status = model.PresenceConnected
	record.GraceStartedAt = nil
	if now.After(record.LastSeen) {
		record.LastSeen = now
	}
	record.UpdatedAt = now

	if err := m.presenceRepo.Update(ctx, record); err != nil {
		return fmt.Errorf("在席レコードの更新に失敗しました: %w", err)
	}

	if previous != model.PresenceConnected {
		m.collector.RecordTransition(string(previous), string(model.PresenceConnected))
	}
	return nil
}

// BeginGrace は検出が途切れたconnectedレコードをgrace_periodへ遷移させる。
// ロック取得後に再検証し、リストアップ後に新しい検出が反映されていた場合は
// 何もせず false を返す。遷移した場合は true を返す。
func (m *Machine) BeginGrace(ctx context.Context, mac string, now time.Time) (bool, error) {
	mu := m.locks.mutexFor(mac)
	mu.Lock()
	defer mu.Unlock()

	record, err := m.presenceRepo.FindByMAC(ctx, mac)
	if err != nil {
		return false, fmt.Errorf("在席レコードの取得に失敗しました: %w", err)
	}
	if record == nil || record.Status != model.PresenceConnected {
		return false, nil
	}
	if now.Sub(record.LastSeen) <= m.detectionTimeout {
		return false, nil
	}

	record.Status = model.PresenceGracePeriod
	record.GraceStartedAt = &now
	record.UpdatedAt = now
	if err := m.presenceRepo.Update(ctx, record); err != nil {
		return false, fmt.Errorf("在席レコードの更新に失敗しました: %w", err)
	}
	m.collector.RecordTransition(string(model.PresenceConnected), string(model.PresenceGracePeriod))
	return true, nil
}

// Disconnect は猶予期間が満了したレコードをdisconnectedへ遷移させる。
// ロック取得後に再検証し、復帰検出が先行していた場合は何もしない。
// 遷移した場合は更新後のレコードと true を返し、呼び出し側が
// 所有者のセッションをpresence_lostとして終了する。
func (m *Machine) Disconnect(ctx context.Context, mac string, now time.Time) (*model.PresenceRecord, bool, error) {
	mu := m.locks.mutexFor(mac)
	mu.Lock()
	defer mu.Unlock()

	record, err := m.presenceRepo.FindByMAC(ctx, mac)
	if err != nil {
		return nil, false, fmt.Errorf("在席レコードの取得に失敗しました: %w", err)
	}
	if record == nil || record.Status != model.PresenceGracePeriod || record.GraceStartedAt == nil {
		return nil, false, nil
	}
	if now.Sub(*record.GraceStartedAt) <= m.gracePeriod {
		return nil, false, nil
	}

	record.Status = model.PresenceDisconnected
	record.GraceStartedAt = nil
	record.UpdatedAt = now
	if err := m.presenceRepo.Update(ctx, record); err != nil {
		return nil, false, fmt.Errorf("在席レコードの更新に失敗しました: %w", err)
	}
	m.collector.RecordTransition(string(model.PresenceGracePeriod), string(model.PresenceDisconnected))
	return record, true, nil
}

// Forget はデバイス登録解除に伴い在席レコードを削除する。
// レコードが存在しない場合も成功として扱う。
func (m *Machine) Forget(ctx context.Context, mac string) error {
	mu := m.locks.mutexFor(mac)
	mu.Lock()
	defer mu.Unlock()

	if err := m.presenceRepo.DeleteByMAC(ctx, mac); err != nil {
		return fmt.Errorf("在席レコードの削除に失敗しました: %w", err)
	}
	return nil
}
