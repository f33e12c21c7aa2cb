// Package sweep は在席状態の定期スイープ処理を提供する。
// 検出が途切れたデバイスを猶予期間へ、猶予期間が満了したデバイスを
// 切断へ遷移させ、離席したユーザーのセッションを終了する。
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cosounds/presenced/internal/metrics"
	"github.com/cosounds/presenced/internal/model"
	"github.com/cosounds/presenced/internal/repository"
)

// TransitionMachine は在席ステートマシンのスイープ系遷移を提供する。
// 各遷移はロック取得後に条件を再検証するため、リストアップ後に
// 検出が届いたデバイスでは遷移せずfalseが返る。
type TransitionMachine interface {
	BeginGrace(ctx context.Context, mac string, now time.Time) (bool, error)
	Disconnect(ctx context.Context, mac string, now time.Time) (*model.PresenceRecord, bool, error)
}

// SessionEnder は離席したユーザーのセッションを終了する。
type SessionEnder interface {
	EndForPresenceLoss(ctx context.Context, userID string) error
}

// Sweeper は在席レコードの定期スイープを実行する。
// スイープ同士は重ならない。前回のスイープが実行中のティックはスキップされる。
type Sweeper struct {
	presenceRepo     repository.PresenceRepository
	machine          TransitionMachine
	sessions         SessionEnder
	collector        metrics.MetricsCollector
	logger           *slog.Logger
	detectionTimeout time.Duration
	gracePeriod      time.Duration
	running          atomic.Bool
}

// NewSweeper はSweeperを生成する。
func NewSweeper(
	presenceRepo repository.PresenceRepository,
	machine TransitionMachine,
	sessions SessionEnder,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	detectionTimeout time.Duration,
	gracePeriod time.Duration,
) *Sweeper {
	return &Sweeper{
		presenceRepo:     presenceRepo,
		machine:          machine,
		sessions:         sessions,
		collector:        collector,
		logger:           logger,
		detectionTimeout: detectionTimeout,
		gracePeriod:      gracePeriod,
	}
}

// Start は指定間隔のティッカーでスイープを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("在席スイープを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("detection_timeout", s.detectionTimeout),
		slog.Duration("grace_period", s.gracePeriod),
	)

	// 起動直後に1回実行
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("在席スイープを停止しました")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep は多重実行を防ぎながらRunOnceを実行する。
// 前回のスイープが実行中の場合はこのティックをスキップする。
func (s *Sweeper) sweep(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("前回のスイープが実行中のためスキップします")
		return
	}
	defer s.running.Store(false)

	if err := s.RunOnce(ctx, time.Now()); err != nil {
		s.logger.Error("スイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce はスイープを1回実行する。
// 第1パスで検出が途切れたconnectedレコードを猶予期間へ、
// 第2パスで猶予期間が満了したレコードを切断へ遷移させる。
// 1デバイスの失敗は記録した上で残りの処理を継続する。
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) error {
	start := time.Now()
	graceCount := 0
	disconnectCount := 0
	failureCount := 0

	// 第1パス: 検出が途切れたデバイスを猶予期間へ
	stale, err := s.presenceRepo.ListConnectedStale(ctx, now.Add(-s.detectionTimeout))
	if err != nil {
		s.collector.RecordSweepFailure()
		return fmt.Errorf("猶予期間候補の取得に失敗しました: %w", err)
	}
	for _, record := range stale {
		transitioned, err := s.machine.BeginGrace(ctx, record.MAC, now)
		if err != nil {
			failureCount++
			s.collector.RecordSweepFailure()
			s.logger.Error("猶予期間への遷移に失敗しました",
				slog.String("mac", record.MAC),
				slog.String("error", err.Error()),
			)
			continue
		}
		if transitioned {
			graceCount++
		}
	}

	// 第2パス: 猶予期間が満了したデバイスを切断し、セッションを終了
	expired, err := s.presenceRepo.ListGraceExpired(ctx, now.Add(-s.gracePeriod))
	if err != nil {
		s.collector.RecordSweepFailure()
		return fmt.Errorf("切断候補の取得に失敗しました: %w", err)
	}
	for _, record := range expired {
		disconnected, ok, err := s.machine.Disconnect(ctx, record.MAC, now)
		if err != nil {
			failureCount++
			s.collector.RecordSweepFailure()
			s.logger.Error("切断への遷移に失敗しました",
				slog.String("mac", record.MAC),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}
		disconnectCount++

		if err := s.sessions.EndForPresenceLoss(ctx, disconnected.UserID); err != nil {
			failureCount++
			s.collector.RecordSweepFailure()
			s.logger.Error("離席セッションの終了に失敗しました",
				slog.String("mac", record.MAC),
				slog.String("user_id", disconnected.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	duration := time.Since(start)
	s.collector.RecordSweepDuration(duration)
	s.logger.Info("スイープが完了しました",
		slog.Int("checked_count", len(stale)+len(expired)),
		slog.Int("grace_count", graceCount),
		slog.Int("disconnect_count", disconnectCount),
		slog.Int("failure_count", failureCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}
