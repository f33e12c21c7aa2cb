// Package ingest はスキャナーからの検出報告を処理するパイプラインを提供する。
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cosounds/presenced/internal/metrics"
	"github.com/cosounds/presenced/internal/model"
	"github.com/cosounds/presenced/internal/repository"
)

// DeviceLookup は検出されたMACアドレスの所有者を特定する。
type DeviceLookup interface {
	LookupOwner(ctx context.Context, mac string) (*model.Device, error)
}

// DetectionApplier は登録済みデバイスの検出報告を在席状態に反映する。
type DetectionApplier interface {
	ApplyDetection(ctx context.Context, userID string, report *model.DetectionReport) (*model.DetectionResult, error)
}

// SessionResumer は受理された検出でセッションを開始・延長する。
type SessionResumer interface {
	StartOrResume(ctx context.Context, userID, mac string) (*model.Session, error)
}

// Service は検出報告1件を処理する。
// 登録の有無に関わらず検出キャッシュを更新し、登録済みデバイスのみ
// 在席状態とセッションに反映する。未登録デバイスはエラーにせず無視する。
type Service struct {
	cache     repository.DetectionCache
	devices   DeviceLookup
	machine   DetectionApplier
	sessions  SessionResumer
	collector metrics.MetricsCollector
}

// NewService は検出パイプラインServiceを生成する。
func NewService(
	cache repository.DetectionCache,
	devices DeviceLookup,
	machine DetectionApplier,
	sessions SessionResumer,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		cache:     cache,
		devices:   devices,
		machine:   machine,
		sessions:  sessions,
		collector: collector,
	}
}

// Report は検出報告1件を処理し、取られたアクションを返す。
// MACアドレスが不正な場合はInvalidMACエラーを返す。
// キャッシュ書き込みの失敗は検出処理を妨げない（診断用のため）。
func (s *Service) Report(ctx context.Context, report *model.DetectionReport) (*model.DetectionResult, error) {
	// 1. MACアドレスの正規化
	mac, err := model.NormalizeMAC(report.MAC)
	if err != nil {
		return nil, err
	}
	normalized := *report
	normalized.MAC = mac

	// 2. 登録の有無に関わらず検出キャッシュを更新
	cached := &model.CachedDetection{
		MAC:    mac,
		Name:   normalized.Name,
		RSSI:   normalized.RSSI,
		SeenAt: normalized.SeenAt,
	}
	if err := s.cache.Store(ctx, cached); err != nil {
		slog.Warn("検出キャッシュの更新に失敗", "mac", mac, "error", err)
	}

	// 3. 所有者の特定（未登録は無視して成功を返す）
	device, err := s.devices.LookupOwner(ctx, mac)
	if err != nil {
		return nil, fmt.Errorf("所有者の特定に失敗しました: %w", err)
	}
	if device == nil {
		s.collector.RecordDetection(model.DetectionActionIgnored)
		return &model.DetectionResult{
			Action: model.DetectionActionIgnored,
			Reason: "not_registered",
		}, nil
	}

	// 4. 在席状態への反映
	result, err := s.machine.ApplyDetection(ctx, device.UserID, &normalized)
	if err != nil {
		return nil, err
	}
	s.collector.RecordDetection(result.Action)

	// 5. 受理された検出はセッションを開始・延長する。
	// 継続在席（updated）でも延長し、在席し続けるユーザーのセッションが
	// TTLで途切れないようにする。discarded / ignored はセッションに触れない。
	switch result.Action {
	case model.DetectionActionConnected, model.DetectionActionRestored:
		if _, err := s.sessions.StartOrResume(ctx, device.UserID, mac); err != nil {
			return nil, err
		}
		slog.Info("デバイス検出による接続", "mac", mac, "userID", device.UserID, "action", result.Action)
	case model.DetectionActionUpdated:
		if _, err := s.sessions.StartOrResume(ctx, device.UserID, mac); err != nil {
			return nil, err
		}
	}

	return result, nil
}
