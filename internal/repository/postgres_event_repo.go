package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/jikanwari/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
// 個別イベントの取得・カスタムイベントの作成・非表示フラグの更新を担う。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindByID(ctx context.Context, id int64) (*model.Event, error) {
	ev, err := scanEvent(r.db.QueryRowContext(ctx,
		`SELECT id, schedule_id, name, type_name, starts_at, ends_at,
		        hidden, is_custom, recurrence_interval, period_number,
		        time_slot_label, lecturers, rooms, groups
		 FROM events WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	return ev, nil
}

// Create はカスタムイベントを作成し、採番されたIDをevent.IDに書き戻す。
func (r *PostgresEventRepo) Create(ctx context.Context, event *model.Event) error {
	lecturers, err := marshalParticipants(event.Lecturers)
	if err != nil {
		return err
	}
	rooms, err := marshalParticipants(event.Rooms)
	if err != nil {
		return err
	}
	groups, err := marshalParticipants(event.Groups)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO events (schedule_id, name, type_name, starts_at, ends_at,
		                     hidden, is_custom, recurrence_interval, period_number,
		                     time_slot_label, lecturers, rooms, groups)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		event.ScheduleID, event.Name, event.TypeName, event.StartsAt, event.EndsAt,
		event.Hidden, event.IsCustom, event.RecurrenceInterval, event.PeriodNumber,
		event.TimeSlotLabel, lecturers, rooms, groups,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateHidden はイベントの表示・非表示フラグを更新する。
func (r *PostgresEventRepo) UpdateHidden(ctx context.Context, id int64, hidden bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE events SET hidden = $2, updated_at = now() WHERE id = $1`,
		id, hidden,
	)
	if err != nil {
		return fmt.Errorf("非表示フラグの更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
