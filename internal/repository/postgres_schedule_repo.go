package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/jikanwari/internal/model"
)

// PostgresScheduleRepo はPostgreSQLを使用したScheduleリポジトリ。
// Scheduleは所属イベントと常に一体で読み書きする。
type PostgresScheduleRepo struct {
	db *sql.DB
}

// NewPostgresScheduleRepo はPostgresScheduleRepoを生成する。
func NewPostgresScheduleRepo(db *sql.DB) *PostgresScheduleRepo {
	return &PostgresScheduleRepo{db: db}
}

// ListBySubjectID はSubjectの全Scheduleをイベント付きで返す。
func (r *PostgresScheduleRepo) ListBySubjectID(ctx context.Context, subjectID int64) ([]*model.Schedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, subject_id, timetable_id, name, type, download_url,
		        start_date, end_date,
		        recurrence_interval, recurrence_current_number, recurrence_first_week_number,
		        is_default
		 FROM schedules WHERE subject_id = $1
		 ORDER BY is_default DESC, start_date ASC, id ASC`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("時間割一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var schedules []*model.Schedule
	for rows.Next() {
		sched := &model.Schedule{}
		var schedType string
		var interval, currentNumber, firstWeekNumber sql.NullInt64

		if err := rows.Scan(
			&sched.ID, &sched.SubjectID, &sched.TimetableID, &sched.Name, &schedType,
			&sched.DownloadURL, &sched.StartDate, &sched.EndDate,
			&interval, &currentNumber, &firstWeekNumber,
			&sched.IsDefault,
		); err != nil {
			return nil, fmt.Errorf("時間割行の読み取りに失敗しました: %w", err)
		}

		sched.Type = model.TimetableType(schedType)
		if interval.Valid {
			sched.Recurrence = &model.Recurrence{
				Interval:        int(interval.Int64),
				CurrentNumber:   int(currentNumber.Int64),
				FirstWeekNumber: int(firstWeekNumber.Int64),
			}
		}
		schedules = append(schedules, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("時間割一覧の走査に失敗しました: %w", err)
	}

	for _, sched := range schedules {
		events, err := r.listEvents(ctx, sched.ID)
		if err != nil {
			return nil, err
		}
		sched.Events = events
	}
	return schedules, nil
}

// ReplaceAll はSubjectの全Scheduleを削除してから引数の内容を挿入する。
// マージエンジンがIDを引き継いだイベントはそのIDのまま挿入される。
func (r *PostgresScheduleRepo) ReplaceAll(ctx context.Context, subjectID int64, schedules []*model.Schedule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	// eventsはON DELETE CASCADEで一緒に消える
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schedules WHERE subject_id = $1`, subjectID); err != nil {
		return fmt.Errorf("既存時間割の削除に失敗しました: %w", err)
	}

	for _, sched := range schedules {
		if err := insertSchedule(ctx, tx, subjectID, sched); err != nil {
			return err
		}
	}

	// 明示IDで挿入した分だけシーケンスが遅れるため追従させる
	if _, err := tx.ExecContext(ctx,
		`SELECT setval(pg_get_serial_sequence('events', 'id'),
		        GREATEST((SELECT COALESCE(MAX(id), 1) FROM events), 1))`); err != nil {
		return fmt.Errorf("イベントIDシーケンスの更新に失敗しました: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`SELECT setval(pg_get_serial_sequence('schedules', 'id'),
		        GREATEST((SELECT COALESCE(MAX(id), 1) FROM schedules), 1))`); err != nil {
		return fmt.Errorf("時間割IDシーケンスの更新に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// SetDefault は指定Scheduleをデフォルトにし、同一Subjectの他のScheduleの
// デフォルトを解除する。
func (r *PostgresScheduleRepo) SetDefault(ctx context.Context, subjectID, scheduleID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE schedules SET is_default = FALSE, updated_at = now() WHERE subject_id = $1`,
		subjectID); err != nil {
		return fmt.Errorf("デフォルト時間割の解除に失敗しました: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE schedules SET is_default = TRUE, updated_at = now()
		 WHERE id = $1 AND subject_id = $2`,
		scheduleID, subjectID); err != nil {
		return fmt.Errorf("デフォルト時間割の設定に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// insertSchedule は1つのScheduleとその全イベントを挿入する。
func insertSchedule(ctx context.Context, tx *sql.Tx, subjectID int64, sched *model.Schedule) error {
	var interval, currentNumber, firstWeekNumber sql.NullInt64
	if sched.Recurrence != nil {
		interval = sql.NullInt64{Int64: int64(sched.Recurrence.Interval), Valid: true}
		currentNumber = sql.NullInt64{Int64: int64(sched.Recurrence.CurrentNumber), Valid: true}
		firstWeekNumber = sql.NullInt64{Int64: int64(sched.Recurrence.FirstWeekNumber), Valid: true}
	}

	if sched.ID > 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schedules (id, subject_id, timetable_id, name, type, download_url,
			                        start_date, end_date,
			                        recurrence_interval, recurrence_current_number, recurrence_first_week_number,
			                        is_default)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			sched.ID, subjectID, sched.TimetableID, sched.Name, string(sched.Type),
			sched.DownloadURL, sched.StartDate, sched.EndDate,
			interval, currentNumber, firstWeekNumber, sched.IsDefault,
		); err != nil {
			return fmt.Errorf("時間割の挿入に失敗しました: %w", err)
		}
	} else {
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO schedules (subject_id, timetable_id, name, type, download_url,
			                        start_date, end_date,
			                        recurrence_interval, recurrence_current_number, recurrence_first_week_number,
			                        is_default)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING id`,
			subjectID, sched.TimetableID, sched.Name, string(sched.Type),
			sched.DownloadURL, sched.StartDate, sched.EndDate,
			interval, currentNumber, firstWeekNumber, sched.IsDefault,
		).Scan(&sched.ID); err != nil {
			return fmt.Errorf("時間割の挿入に失敗しました: %w", err)
		}
	}
	sched.SubjectID = subjectID

	for _, ev := range sched.Events {
		if err := insertEvent(ctx, tx, sched.ID, ev); err != nil {
			return err
		}
	}
	return nil
}

// insertEvent は1つのイベントを挿入する。
// ev.IDが正の場合はそのIDのまま挿入し、0の場合は新規採番する。
func insertEvent(ctx context.Context, tx *sql.Tx, scheduleID int64, ev *model.Event) error {
	lecturers, err := marshalParticipants(ev.Lecturers)
	if err != nil {
		return err
	}
	rooms, err := marshalParticipants(ev.Rooms)
	if err != nil {
		return err
	}
	groups, err := marshalParticipants(ev.Groups)
	if err != nil {
		return err
	}

	if ev.ID > 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, schedule_id, name, type_name, starts_at, ends_at,
			                     hidden, is_custom, recurrence_interval, period_number,
			                     time_slot_label, lecturers, rooms, groups)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			ev.ID, scheduleID, ev.Name, ev.TypeName, ev.StartsAt, ev.EndsAt,
			ev.Hidden, ev.IsCustom, ev.RecurrenceInterval, ev.PeriodNumber,
			ev.TimeSlotLabel, lecturers, rooms, groups,
		); err != nil {
			return fmt.Errorf("イベントの挿入に失敗しました: %w", err)
		}
	} else {
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO events (schedule_id, name, type_name, starts_at, ends_at,
			                     hidden, is_custom, recurrence_interval, period_number,
			                     time_slot_label, lecturers, rooms, groups)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 RETURNING id`,
			scheduleID, ev.Name, ev.TypeName, ev.StartsAt, ev.EndsAt,
			ev.Hidden, ev.IsCustom, ev.RecurrenceInterval, ev.PeriodNumber,
			ev.TimeSlotLabel, lecturers, rooms, groups,
		).Scan(&ev.ID); err != nil {
			return fmt.Errorf("イベントの挿入に失敗しました: %w", err)
		}
	}
	ev.ScheduleID = scheduleID
	return nil
}

// listEvents は1つのScheduleの全イベントを開始日時順で返す。
func (r *PostgresScheduleRepo) listEvents(ctx context.Context, scheduleID int64) ([]*model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, schedule_id, name, type_name, starts_at, ends_at,
		        hidden, is_custom, recurrence_interval, period_number,
		        time_slot_label, lecturers, rooms, groups
		 FROM events WHERE schedule_id = $1
		 ORDER BY starts_at ASC, id ASC`,
		scheduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("イベント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("イベント一覧の走査に失敗しました: %w", err)
	}
	return events, nil
}

// scanEvent はイベント行を読み取る。列順はlistEvents/FindByIDと揃える。
func scanEvent(row interface{ Scan(...any) error }) (*model.Event, error) {
	ev := &model.Event{}
	var endsAt sql.NullTime
	var lecturers, rooms, groups []byte

	if err := row.Scan(
		&ev.ID, &ev.ScheduleID, &ev.Name, &ev.TypeName, &ev.StartsAt, &endsAt,
		&ev.Hidden, &ev.IsCustom, &ev.RecurrenceInterval, &ev.PeriodNumber,
		&ev.TimeSlotLabel, &lecturers, &rooms, &groups,
	); err != nil {
		return nil, fmt.Errorf("イベント行の読み取りに失敗しました: %w", err)
	}

	if endsAt.Valid {
		ev.EndsAt = endsAt.Time
	}

	var err error
	if ev.Lecturers, err = unmarshalParticipants(lecturers); err != nil {
		return nil, err
	}
	if ev.Rooms, err = unmarshalParticipants(rooms); err != nil {
		return nil, err
	}
	if ev.Groups, err = unmarshalParticipants(groups); err != nil {
		return nil, err
	}
	return ev, nil
}

func marshalParticipants(participants []model.Participant) ([]byte, error) {
	if participants == nil {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(participants)
	if err != nil {
		return nil, fmt.Errorf("参加者のシリアライズに失敗しました: %w", err)
	}
	return data, nil
}

func unmarshalParticipants(data []byte) ([]model.Participant, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var participants []model.Participant
	if err := json.Unmarshal(data, &participants); err != nil {
		return nil, fmt.Errorf("参加者のデシリアライズに失敗しました: %w", err)
	}
	if len(participants) == 0 {
		return nil, nil
	}
	return participants, nil
}

// compile-time interface check
var _ ScheduleRepository = (*PostgresScheduleRepo)(nil)
