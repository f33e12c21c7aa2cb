// Package registry はユーザーのBluetoothデバイス登録を管理する。
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cosounds/presenced/internal/model"
	"github.com/cosounds/presenced/internal/repository"
	"github.com/google/uuid"
)

// PresenceController は登録・解除を在席状態に反映する。
type PresenceController interface {
	MarkConnected(ctx context.Context, mac, userID string, now time.Time) error
	Forget(ctx context.Context, mac string) error
}

// SessionManager は登録・解除・状態照会に伴うセッション操作を提供する。
type SessionManager interface {
	StartOrResume(ctx context.Context, userID, mac string) (*model.Session, error)
	EndForUnregistration(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (*model.Session, error)
}

// RegistrationResult はデバイス登録の結果を表す。
// Created は新規登録（再登録による更新ではない）を示す。
type RegistrationResult struct {
	Device  *model.Device
	Session *model.Session
	Created bool
}

// Status はユーザーのデバイス・在席・セッションのスナップショット。
// GracePeriodEndsAt は猶予期間中のみ設定される導出値。
type Status struct {
	Device            *model.Device
	Presence          *model.PresenceRecord
	GracePeriodEndsAt *time.Time
	Session           *model.Session
}

// Service はデバイス登録・解除と状態照会を提供する。
type Service struct {
	deviceRepo   repository.DeviceRepository
	presenceRepo repository.PresenceRepository
	presence     PresenceController
	sessions     SessionManager
	gracePeriod  time.Duration
}

// NewService は登録Serviceを生成する。
func NewService(
	deviceRepo repository.DeviceRepository,
	presenceRepo repository.PresenceRepository,
	presence PresenceController,
	sessions SessionManager,
	gracePeriod time.Duration,
) *Service {
	return &Service{
		deviceRepo:   deviceRepo,
		presenceRepo: presenceRepo,
		presence:     presence,
		sessions:     sessions,
		gracePeriod:  gracePeriod,
	}
}

// Register はユーザーのデバイスを登録する。
// MACアドレスは正規化してから保存する。他ユーザーが登録済みのMACは
// DeviceConflict（先着優先）、別MACの2台目はDeviceLimitを返す。
// 同一ユーザー・同一MACの再登録は表示名の更新として冪等に成功する。
// 登録は会場での操作のため在席シグナルとして扱い、在席状態を
// connectedにしてセッションを開始する。
func (s *Service) Register(ctx context.Context, userID, rawMAC, name string) (*RegistrationResult, error) {
	// 1. MACアドレスの正規化
	mac, err := model.NormalizeMAC(rawMAC)
	if err != nil {
		return nil, err
	}

	// 2. MAC所有者の確認（先着優先）
	existing, err := s.deviceRepo.FindByMAC(ctx, mac)
	if err != nil {
		return nil, fmt.Errorf("デバイスの取得に失敗しました: %w", err)
	}
	if existing != nil && existing.UserID != userID {
		return nil, model.NewDeviceConflictError(mac)
	}

	now := time.Now()
	var device *model.Device
	created := false

	switch {
	case existing != nil:
		// 3. 同一ユーザー・同一MACの再登録は表示名の更新
		if existing.Name != name {
			if err := s.deviceRepo.UpdateName(ctx, existing.ID, name); err != nil {
				return nil, fmt.Errorf("デバイス名の更新に失敗しました: %w", err)
			}
			existing.Name = name
		}
		device = existing

	default:
		// 4. 1ユーザー1台の上限確認
		current, err := s.deviceRepo.FindByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("デバイスの取得に失敗しました: %w", err)
		}
		if current != nil {
			return nil, model.NewDeviceLimitError()
		}

		// 5. デバイスの新規作成
		device = &model.Device{
			ID:     uuid.New().String(),
			UserID: userID,
			MAC:    mac,
			Name:   name,
		}
		if err := s.deviceRepo.Create(ctx, device); err != nil {
			return nil, fmt.Errorf("デバイスの作成に失敗しました: %w", err)
		}
		created = true
	}

	// 6. 在席状態をconnectedにしてセッションを開始
	if err := s.presence.MarkConnected(ctx, mac, userID, now); err != nil {
		return nil, err
	}
	session, err := s.sessions.StartOrResume(ctx, userID, mac)
	if err != nil {
		return nil, err
	}

	if created {
		slog.Info("デバイス登録", "userID", userID, "mac", mac, "deviceID", device.ID)
	}
	return &RegistrationResult{Device: device, Session: session, Created: created}, nil
}

// Unregister はユーザーのデバイス登録を解除する。
// 指定MACのデバイスが存在しない、または他ユーザーの所有の場合は
// DeviceNotRegisteredを返す。有効なセッションを終了し、
// 在席レコードとデバイスを削除する。
func (s *Service) Unregister(ctx context.Context, userID, rawMAC string) error {
	mac, err := model.NormalizeMAC(rawMAC)
	if err != nil {
		return err
	}

	device, err := s.deviceRepo.FindByMAC(ctx, mac)
	if err != nil {
		return fmt.Errorf("デバイスの取得に失敗しました: %w", err)
	}
	if device == nil || device.UserID != userID {
		return model.NewDeviceNotRegisteredError()
	}

	// セッション終了 → 在席レコード削除 → デバイス削除の順に片付ける
	if err := s.sessions.EndForUnregistration(ctx, userID); err != nil {
		return err
	}
	if err := s.presence.Forget(ctx, mac); err != nil {
		return err
	}
	if err := s.deviceRepo.Delete(ctx, device.ID); err != nil {
		return fmt.Errorf("デバイスの削除に失敗しました: %w", err)
	}

	slog.Info("デバイス登録解除", "userID", userID, "mac", mac, "deviceID", device.ID)
	return nil
}

// LookupOwner は指定MACの登録デバイスを返す。未登録の場合はnilを返す。
// 検出パイプラインが所有者の特定に使用する。
func (s *Service) LookupOwner(ctx context.Context, rawMAC string) (*model.Device, error) {
	mac, err := model.NormalizeMAC(rawMAC)
	if err != nil {
		return nil, err
	}
	device, err := s.deviceRepo.FindByMAC(ctx, mac)
	if err != nil {
		return nil, fmt.Errorf("デバイスの取得に失敗しました: %w", err)
	}
	return device, nil
}

// FindByUser はユーザーの登録デバイスを返す。未登録の場合はnilを返す。
func (s *Service) FindByUser(ctx context.Context, userID string) (*model.Device, error) {
	device, err := s.deviceRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("デバイスの取得に失敗しました: %w", err)
	}
	return device, nil
}

// GetStatus はユーザーのデバイス・在席・セッションのスナップショットを返す。
// デバイス未登録の場合もエラーにせず、Deviceがnilの結果を返す。
// セッションの期限切れはこの照会の時点で遅延評価される。
func (s *Service) GetStatus(ctx context.Context, userID string) (*Status, error) {
	device, err := s.deviceRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("デバイスの取得に失敗しました: %w", err)
	}
	if device == nil {
		return &Status{}, nil
	}

	record, err := s.presenceRepo.FindByMAC(ctx, device.MAC)
	if err != nil {
		return nil, fmt.Errorf("在席レコードの取得に失敗しました: %w", err)
	}

	session, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &Status{
		Device:   device,
		Presence: record,
		Session:  session,
	}
	if record != nil && record.Status == model.PresenceGracePeriod && record.GraceStartedAt != nil {
		endsAt := record.GraceStartedAt.Add(s.gracePeriod)
		status.GracePeriodEndsAt = &endsAt
	}
	return status, nil
}
