// Package cleanup は終了済みセッションの自動削除ジョブを提供する。
// 保持期間を超過した終了済みセッションを日次バッチで削除し、
// sessionsテーブルの肥大化を防ぐ。保持期間内の終了済みセッションは
// 統計用に参照可能なまま残る。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPurger は終了済みセッションの削除を提供する。
type SessionPurger interface {
	// DeleteEndedBefore はended_atがcutoffより古い終了済みセッションを削除し、削除件数を返す。
	DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob は保持期間を超過した終了済みセッションの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type RetentionJob struct {
	purger        SessionPurger
	logger        *slog.Logger
	RetentionDays int // セッションの保持日数（デフォルト: 30）
}

// NewRetentionJob は新しいRetentionJobを生成する。
// retentionDaysが0以下の場合はデフォルト値30を使用する。
func NewRetentionJob(purger SessionPurger, logger *slog.Logger, retentionDays int) *RetentionJob {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &RetentionJob{
		purger:        purger,
		logger:        logger,
		RetentionDays: retentionDays,
	}
}

// Start は24時間間隔のティッカーでジョブを起動する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (j *RetentionJob) Start(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	j.logger.Info("セッション保持ジョブを開始しました",
		slog.Int("retention_days", j.RetentionDays),
	)

	if err := j.Run(ctx); err != nil {
		j.logger.Error("セッション保持ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッション保持ジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("セッション保持ジョブの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Run は保持期間を超過した終了済みセッションを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *RetentionJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deletedCount, err := j.purger.DeleteEndedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("終了済みセッションの削除に失敗しました: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("セッション保持ジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}
