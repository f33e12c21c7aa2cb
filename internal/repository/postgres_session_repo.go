package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cosounds/presenced/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用した在席セッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, device_mac, status, started_at, expires_at, ended_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		session.ID, session.UserID, session.DeviceMAC, session.Status, session.StartedAt, session.ExpiresAt, session.EndedAt, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindActiveByUserID はユーザーの有効なセッションを取得する。見つからない場合はnilを返す。
// 部分ユニークインデックスにより該当行は最大1件。
func (r *PostgresSessionRepo) FindActiveByUserID(ctx context.Context, userID string) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, device_mac, status, started_at, expires_at, ended_at, created_at, updated_at
		 FROM sessions
		 WHERE user_id = $1 AND status = $2`,
		userID, model.SessionActive,
	).Scan(&session.ID, &session.UserID, &session.DeviceMAC, &session.Status, &session.StartedAt, &session.ExpiresAt, &session.EndedAt, &session.CreatedAt, &session.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}

	return session, nil
}

// UpdateExpiry はセッションの有効期限を延長する。
func (r *PostgresSessionRepo) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET expires_at = $2, updated_at = now() WHERE id = $1`,
		id, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session expiry: %w", err)
	}
	return nil
}

// End はセッションを終了状態にする。
// WHERE句でactiveに限定しているため、終了済みセッションへの再実行は何もしない。
func (r *PostgresSessionRepo) End(ctx context.Context, id string, endedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET status = $2, ended_at = $3, updated_at = now()
		 WHERE id = $1 AND status = $4`,
		id, model.SessionEnded, endedAt, model.SessionActive,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// CountActive は有効なセッション数を返す。
func (r *PostgresSessionRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sessions WHERE status = $1`,
		model.SessionActive,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return count, nil
}

// DeleteEndedBefore はended_atがcutoffより古い終了済みセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE status = $1 AND ended_at < $2`,
		model.SessionEnded, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete ended sessions: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
