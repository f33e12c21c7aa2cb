// Package stats は会場全体の統計情報を集計する。
package stats

import (
	"context"
	"fmt"
	"sort"

	"github.com/cosounds/presenced/internal/model"
	"github.com/cosounds/presenced/internal/repository"
)

// RSSIStats はキャッシュ中の検出に含まれるRSSIの集計値。
type RSSIStats struct {
	Min  int
	Max  int
	Mean float64
}

// Summary は会場全体の統計スナップショット。
// RSSIはRSSI付きの検出が1件も無い場合nil。
type Summary struct {
	DevicesByStatus map[model.PresenceStatus]int
	ActiveSessions  int
	SightedCount    int
	RSSI            *RSSIStats
}

// SightedDevice は直近に目撃されたデバイスの診断情報。
// 未登録デバイスはRegisteredがfalseでStatusが空になる。
type SightedDevice struct {
	Detection  *model.CachedDetection
	Registered bool
	Status     model.PresenceStatus
}

// Service は統計情報の集計を提供する。
type Service struct {
	deviceRepo   repository.DeviceRepository
	presenceRepo repository.PresenceRepository
	sessionRepo  repository.SessionRepository
	cache        repository.DetectionCache
}

// NewService は統計Serviceを生成する。
func NewService(
	deviceRepo repository.DeviceRepository,
	presenceRepo repository.PresenceRepository,
	sessionRepo repository.SessionRepository,
	cache repository.DetectionCache,
) *Service {
	return &Service{
		deviceRepo:   deviceRepo,
		presenceRepo: presenceRepo,
		sessionRepo:  sessionRepo,
		cache:        cache,
	}
}

// Summarize は会場全体の統計スナップショットを返す。
// ステータス別件数は3状態すべてのキーを常に含む。
func (s *Service) Summarize(ctx context.Context) (*Summary, error) {
	counts, err := s.presenceRepo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("ステータス別件数の取得に失敗しました: %w", err)
	}
	byStatus := map[model.PresenceStatus]int{
		model.PresenceConnected:    0,
		model.PresenceGracePeriod:  0,
		model.PresenceDisconnected: 0,
	}
	for status, count := range counts {
		byStatus[status] = count
	}

	active, err := s.sessionRepo.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("有効セッション数の取得に失敗しました: %w", err)
	}

	detections, err := s.cache.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("検出キャッシュの取得に失敗しました: %w", err)
	}

	return &Summary{
		DevicesByStatus: byStatus,
		ActiveSessions:  active,
		SightedCount:    len(detections),
		RSSI:            aggregateRSSI(detections),
	}, nil
}

// ListSighted は直近に目撃されたデバイスを登録・在席状態と結合して返す。
// 結果は観測時刻の新しい順に並ぶ。
func (s *Service) ListSighted(ctx context.Context) ([]*SightedDevice, error) {
	detections, err := s.cache.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("検出キャッシュの取得に失敗しました: %w", err)
	}

	sighted := make([]*SightedDevice, 0, len(detections))
	for _, detection := range detections {
		entry := &SightedDevice{Detection: detection}

		device, err := s.deviceRepo.FindByMAC(ctx, detection.MAC)
		if err != nil {
			return nil, fmt.Errorf("デバイスの取得に失敗しました: %w", err)
		}
		if device != nil {
			entry.Registered = true
			record, err := s.presenceRepo.FindByMAC(ctx, detection.MAC)
			if err != nil {
				return nil, fmt.Errorf("在席レコードの取得に失敗しました: %w", err)
			}
			if record != nil {
				entry.Status = record.Status
			}
		}
		sighted = append(sighted, entry)
	}

	sort.Slice(sighted, func(i, j int) bool {
		return sighted[i].Detection.SeenAt.After(sighted[j].Detection.SeenAt)
	})
	return sighted, nil
}

// aggregateRSSI はRSSI付きの検出から最小・最大・平均を計算する。
func aggregateRSSI(detections []*model.CachedDetection) *RSSIStats {
	var stats *RSSIStats
	sum := 0
	count := 0
	for _, detection := range detections {
		if detection.RSSI == nil {
			continue
		}
		v := *detection.RSSI
		if stats == nil {
			stats = &RSSIStats{Min: v, Max: v}
		} else {
			if v < stats.Min {
				stats.Min = v
			}
			if v > stats.Max {
				stats.Max = v
			}
		}
		sum += v
		count++
	}
	if stats == nil {
		return nil
	}
	stats.Mean = float64(sum) / float64(count)
	return stats
}
