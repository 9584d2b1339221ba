package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/jikanwari/internal/model"
)

// PostgresEventExtraRepo はPostgreSQLを使用したEventExtraリポジトリ。
type PostgresEventExtraRepo struct {
	db *sql.DB
}

// NewPostgresEventExtraRepo はPostgresEventExtraRepoを生成する。
func NewPostgresEventExtraRepo(db *sql.DB) *PostgresEventExtraRepo {
	return &PostgresEventExtraRepo{db: db}
}

// FindByEventID は指定イベントのEventExtraを取得する。見つからない場合はnilを返す。
func (r *PostgresEventExtraRepo) FindByEventID(ctx context.Context, eventID int64) (*model.EventExtra, error) {
	extra := &model.EventExtra{}
	var startsAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT event_id, comment, tag, event_name, event_starts_at
		 FROM event_extras WHERE event_id = $1`,
		eventID,
	).Scan(&extra.EventID, &extra.Comment, &extra.Tag, &extra.EventName, &startsAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メモ・タグの取得に失敗しました: %w", err)
	}
	if startsAt.Valid {
		extra.EventStartsAt = startsAt.Time
	}
	return extra, nil
}

// Upsert はEventExtraを冪等にUPSERTする。
func (r *PostgresEventExtraRepo) Upsert(ctx context.Context, extra *model.EventExtra) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_extras (event_id, comment, tag, event_name, event_starts_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (event_id) DO UPDATE SET
		    comment = EXCLUDED.comment,
		    tag = EXCLUDED.tag,
		    event_name = EXCLUDED.event_name,
		    event_starts_at = EXCLUDED.event_starts_at,
		    updated_at = now()`,
		extra.EventID, extra.Comment, extra.Tag, extra.EventName, extra.EventStartsAt,
	)
	if err != nil {
		return fmt.Errorf("メモ・タグの保存に失敗しました: %w", err)
	}
	return nil
}

// DeleteByEventID は指定イベントのEventExtraを削除する。
func (r *PostgresEventExtraRepo) DeleteByEventID(ctx context.Context, eventID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM event_extras WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("メモ・タグの削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteOrphaned は対応するイベントが存在しなくなったEventExtraを削除する。
// event_extrasはマージの全削除・再挿入をまたいで生き残らせるために
// 外部キーを持たないので、ここで定期的に回収する。
func (r *PostgresEventExtraRepo) DeleteOrphaned(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM event_extras
		 WHERE NOT EXISTS (SELECT 1 FROM events WHERE events.id = event_extras.event_id)`)
	if err != nil {
		return 0, fmt.Errorf("孤児メモ・タグの削除に失敗しました: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ EventExtraRepository = (*PostgresEventExtraRepo)(nil)
