// Package session は在席セッションのライフサイクルを管理する。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cosounds/presenced/internal/metrics"
	"github.com/cosounds/presenced/internal/model"
	"github.com/cosounds/presenced/internal/repository"
	"github.com/google/uuid"
)

// PresenceMarker はチェックインを在席状態に反映する。
type PresenceMarker interface {
	MarkConnected(ctx context.Context, mac, userID string, now time.Time) error
}

// Service はセッションの開始・延長・終了を提供する。
// 有効なセッションは1ユーザーにつき最大1件で、期限切れの永続化は
// 参照時の遅延評価で行う。
type Service struct {
	sessionRepo repository.SessionRepository
	deviceRepo  repository.DeviceRepository
	presence    PresenceMarker
	collector   metrics.MetricsCollector
	sessionTTL  time.Duration
}

// NewService はセッションServiceを生成する。
func NewService(
	sessionRepo repository.SessionRepository,
	deviceRepo repository.DeviceRepository,
	presence PresenceMarker,
	collector metrics.MetricsCollector,
	sessionTTL time.Duration,
) *Service {
	return &Service{
		sessionRepo: sessionRepo,
		deviceRepo:  deviceRepo,
		presence:    presence,
		collector:   collector,
		sessionTTL:  sessionTTL,
	}
}

// CheckIn はユーザーを明示的にチェックインさせる。
// デバイス未登録の場合はDeviceNotRegisteredエラーを返す。
// 有効なセッションがあれば期限を延長し、なければ新規に開始する。
// チェックインは在席シグナルとして扱い、在席状態もconnectedへ更新する。
func (s *Service) CheckIn(ctx context.Context, userID string) (*model.Session, error) {
	// 1. 登録デバイスの確認
	device, err := s.deviceRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("デバイスの取得に失敗しました: %w", err)
	}
	if device == nil {
		return nil, model.NewDeviceNotRegisteredError()
	}

	// 2. セッションの開始または延長
	now := time.Now()
	session, err := s.startOrExtend(ctx, userID, device.MAC, now)
	if err != nil {
		return nil, err
	}

	// 3. チェックインを在席状態に反映
	if err := s.presence.MarkConnected(ctx, device.MAC, userID, now); err != nil {
		return nil, err
	}

	return session, nil
}

// StartOrResume は検出によるセッションの開始または延長を行う。
// 有効なセッションがあれば期限を延長し、なければ新規に開始する。
// 在席状態は呼び出し側（検出パイプライン）が更新済みであることを前提とする。
func (s *Service) StartOrResume(ctx context.Context, userID, mac string) (*model.Session, error) {
	return s.startOrExtend(ctx, userID, mac, time.Now())
}

// Extend は有効なセッションの期限を延長する。
// 有効なセッションが無い場合（期限切れを含む）はNoActiveSessionエラーを返す。
func (s *Service) Extend(ctx context.Context, userID string) (*model.Session, error) {
	session, err := s.sessionRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if session == nil {
		return nil, model.NewNoActiveSessionError()
	}

	now := time.Now()
	if session.IsExpired(now) {
		if err := s.expire(ctx, session); err != nil {
			return nil, err
		}
		return nil, model.NewNoActiveSessionError()
	}

	expiresAt := now.Add(s.sessionTTL)
	if err := s.sessionRepo.UpdateExpiry(ctx, session.ID, expiresAt); err != nil {
		return nil, fmt.Errorf("セッションの延長に失敗しました: %w", err)
	}
	session.ExpiresAt = expiresAt
	return session, nil
}

// CheckOut はユーザーを明示的にチェックアウトさせる。
// 有効なセッションが無い場合は何もせず成功を返す（冪等）。
func (s *Service) CheckOut(ctx context.Context, userID string) error {
	session, err := s.sessionRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if session == nil {
		return nil
	}

	now := time.Now()
	if session.IsExpired(now) {
		return s.expire(ctx, session)
	}

	if err := s.sessionRepo.End(ctx, session.ID, now); err != nil {
		return fmt.Errorf("セッションの終了に失敗しました: %w", err)
	}
	s.collector.RecordSessionEnded(model.SessionEndCheckout)
	slog.Info("セッション終了", "reason", model.SessionEndCheckout, "userID", userID, "sessionID", session.ID)
	return nil
}

// Get はユーザーの有効なセッションを返す。無ければnilを返す。
// 期限切れのセッションを見つけた場合はこの時点で終了を永続化する。
func (s *Service) Get(ctx context.Context, userID string) (*model.Session, error) {
	session, err := s.sessionRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	if session.IsExpired(time.Now()) {
		if err := s.expire(ctx, session); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return session, nil
}

// EndForPresenceLoss は猶予期間超過による離席でセッションを終了する。
// 有効なセッションが無い場合は何もしない。
func (s *Service) EndForPresenceLoss(ctx context.Context, userID string) error {
	return s.endActive(ctx, userID, model.SessionEndPresenceLost)
}

// EndForUnregistration はデバイス登録解除に伴いセッションを終了する。
// 有効なセッションが無い場合は何もしない。
func (s *Service) EndForUnregistration(ctx context.Context, userID string) error {
	return s.endActive(ctx, userID, model.SessionEndUnregistered)
}

// startOrExtend は有効なセッションの延長、または新規セッションの開始を行う。
// 期限切れのセッションを見つけた場合は終了を永続化してから新規に開始する。
func (s *Service) startOrExtend(ctx context.Context, userID, mac string, now time.Time) (*model.Session, error) {
	session, err := s.sessionRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}

	if session != nil && session.IsExpired(now) {
		if err := s.expire(ctx, session); err != nil {
			return nil, err
		}
		session = nil
	}

	expiresAt := now.Add(s.sessionTTL)

	if session != nil {
		if err := s.sessionRepo.UpdateExpiry(ctx, session.ID, expiresAt); err != nil {
			return nil, fmt.Errorf("セッションの延長に失敗しました: %w", err)
		}
		session.ExpiresAt = expiresAt
		return session, nil
	}

	session = &model.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		DeviceMAC: mac,
		Status:    model.SessionActive,
		StartedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}
	s.collector.RecordSessionStarted()
	slog.Info("セッション開始", "userID", userID, "sessionID", session.ID, "mac", mac)
	return session, nil
}

// endActive はユーザーの有効なセッションを指定理由で終了する。
func (s *Service) endActive(ctx context.Context, userID, reason string) error {
	session, err := s.sessionRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if session == nil {
		return nil
	}

	now := time.Now()
	if err := s.sessionRepo.End(ctx, session.ID, now); err != nil {
		return fmt.Errorf("セッションの終了に失敗しました: %w", err)
	}
	s.collector.RecordSessionEnded(reason)
	slog.Info("セッション終了",
		"reason", reason,
		"userID", userID,
		"sessionID", session.ID,
		"durationMinutes", int(now.Sub(session.StartedAt).Minutes()))
	return nil
}

// expire は期限切れセッションの終了を永続化する。
// 終了時刻には実際に期限が切れた時刻（expires_at）を記録する。
func (s *Service) expire(ctx context.Context, session *model.Session) error {
	if err := s.sessionRepo.End(ctx, session.ID, session.ExpiresAt); err != nil {
		return fmt.Errorf("期限切れセッションの終了に失敗しました: %w", err)
	}
	s.collector.RecordSessionEnded(model.SessionEndExpired)
	slog.Info("セッション終了", "reason", model.SessionEndExpired, "userID", session.UserID, "sessionID", session.ID)
	return nil
}
