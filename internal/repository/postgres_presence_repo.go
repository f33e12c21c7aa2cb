package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cosounds/presenced/internal/model"
)

// PostgresPresenceRepo はPostgreSQLを使用した在席レコードリポジトリ。
type PostgresPresenceRepo struct {
	db *sql.DB
}

// NewPostgresPresenceRepo はPostgresPresenceRepoを生成する。
func NewPostgresPresenceRepo(db *sql.DB) *PostgresPresenceRepo {
	return &PostgresPresenceRepo{db: db}
}

// FindByMAC は指定MACの在席レコードを取得する。見つからない場合はnilを返す。
func (r *PostgresPresenceRepo) FindByMAC(ctx context.Context, mac string) (*model.PresenceRecord, error) {
	record := &model.PresenceRecord{}
	err := r.db.QueryRowContext(ctx,
		`SELECT mac, user_id, status, last_seen, grace_started_at, last_rssi, updated_at
		 FROM presence_records
		 WHERE mac = $1`,
		mac,
	).Scan(&record.MAC, &record.UserID, &record.Status, &record.LastSeen, &record.GraceStartedAt, &record.LastRSSI, &record.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find presence record: %w", err)
	}

	return record, nil
}

// Create は在席レコードを作成する。
func (r *PostgresPresenceRepo) Create(ctx context.Context, record *model.PresenceRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO presence_records (mac, user_id, status, last_seen, grace_started_at, last_rssi, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.MAC, record.UserID, record.Status, record.LastSeen, record.GraceStartedAt, record.LastRSSI, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create presence record: %w", err)
	}
	return nil
}

// Update は在席レコードを上書き更新する。
func (r *PostgresPresenceRepo) Update(ctx context.Context, record *model.PresenceRecord) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE presence_records
		 SET user_id = $2, status = $3, last_seen = $4, grace_started_at = $5, last_rssi = $6, updated_at = now()
		 WHERE mac = $1`,
		record.MAC, record.UserID, record.Status, record.LastSeen, record.GraceStartedAt, record.LastRSSI,
	)
	if err != nil {
		return fmt.Errorf("failed to update presence record: %w", err)
	}
	return nil
}

// ListConnectedStale はlast_seenがcutoffより古いconnectedレコードを返す。
func (r *PostgresPresenceRepo) ListConnectedStale(ctx context.Context, cutoff time.Time) ([]*model.PresenceRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT mac, user_id, status, last_seen, grace_started_at, last_rssi, updated_at
		 FROM presence_records
		 WHERE status = $1 AND last_seen < $2
		 ORDER BY last_seen`,
		model.PresenceConnected, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale connected records: %w", err)
	}
	defer rows.Close()

	return scanPresenceRecords(rows)
}

// ListGraceExpired はgrace_started_atがcutoffより古いgrace_periodレコードを返す。
func (r *PostgresPresenceRepo) ListGraceExpired(ctx context.Context, cutoff time.Time) ([]*model.PresenceRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT mac, user_id, status, last_seen, grace_started_at, last_rssi, updated_at
		 FROM presence_records
		 WHERE status = $1 AND grace_started_at < $2
		 ORDER BY grace_started_at`,
		model.PresenceGracePeriod, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired grace records: %w", err)
	}
	defer rows.Close()

	return scanPresenceRecords(rows)
}

// CountByStatus はステータスごとのレコード数を返す。
func (r *PostgresPresenceRepo) CountByStatus(ctx context.Context) (map[model.PresenceStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, count(*) FROM presence_records GROUP BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count presence records: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.PresenceStatus]int)
	for rows.Next() {
		var status model.PresenceStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}

	return counts, nil
}

// DeleteByMAC は指定MACの在席レコードを削除する。
func (r *PostgresPresenceRepo) DeleteByMAC(ctx context.Context, mac string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM presence_records WHERE mac = $1`,
		mac,
	)
	if err != nil {
		return fmt.Errorf("failed to delete presence record: %w", err)
	}
	return nil
}

// scanPresenceRecords はクエリ結果を在席レコードのスライスに変換する。
func scanPresenceRecords(rows *sql.Rows) ([]*model.PresenceRecord, error) {
	var records []*model.PresenceRecord
	for rows.Next() {
		record := &model.PresenceRecord{}
		if err := rows.Scan(&record.MAC, &record.UserID, &record.Status, &record.LastSeen, &record.GraceStartedAt, &record.LastRSSI, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan presence record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate presence records: %w", err)
	}
	return records, nil
}

// compile-time interface check
var _ PresenceRepository = (*PostgresPresenceRepo)(nil)
