package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cosounds/presenced/internal/model"
)

// PostgresDeviceRepo はPostgreSQLを使用したデバイスリポジトリ。
type PostgresDeviceRepo struct {
	db *sql.DB
}

// NewPostgresDeviceRepo はPostgresDeviceRepoを生成する。
func NewPostgresDeviceRepo(db *sql.DB) *PostgresDeviceRepo {
	return &PostgresDeviceRepo{db: db}
}

// FindByMAC は指定MACアドレスのデバイスを取得する。見つからない場合はnilを返す。
func (r *PostgresDeviceRepo) FindByMAC(ctx context.Context, mac string) (*model.Device, error) {
	device := &model.Device{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, mac, name, created_at, updated_at
		 FROM devices
		 WHERE mac = $1`,
		mac,
	).Scan(&device.ID, &device.UserID, &device.MAC, &device.Name, &device.CreatedAt, &device.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find device by MAC: %w", err)
	}

	return device, nil
}

// FindByUserID は指定ユーザーの登録デバイスを取得する。見つからない場合はnilを返す。
func (r *PostgresDeviceRepo) FindByUserID(ctx context.Context, userID string) (*model.Device, error) {
	device := &model.Device{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, mac, name, created_at, updated_at
		 FROM devices
		 WHERE user_id = $1`,
		userID,
	).Scan(&device.ID, &device.UserID, &device.MAC, &device.Name, &device.CreatedAt, &device.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find device by user ID: %w", err)
	}

	return device, nil
}

// Create はデバイスを作成する。
func (r *PostgresDeviceRepo) Create(ctx context.Context, device *model.Device) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (id, user_id, mac, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		device.ID, device.UserID, device.MAC, device.Name, device.CreatedAt, device.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

// UpdateName はデバイスの表示名を更新する。
func (r *PostgresDeviceRepo) UpdateName(ctx context.Context, id, name string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE devices SET name = $2, updated_at = now() WHERE id = $1`,
		id, name,
	)
	if err != nil {
		return fmt.Errorf("failed to update device name: %w", err)
	}
	return nil
}

// Delete は指定IDのデバイスを削除する。
// 関連するpresence_recordsはCASCADE削除される。
func (r *PostgresDeviceRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM devices WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("device not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ DeviceRepository = (*PostgresDeviceRepo)(nil)
