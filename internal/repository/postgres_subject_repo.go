package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/jikanwari/internal/model"
)

// PostgresSubjectRepo はPostgreSQLを使用したSubjectリポジトリ。
type PostgresSubjectRepo struct {
	db *sql.DB
}

// NewPostgresSubjectRepo はPostgresSubjectRepoを生成する。
func NewPostgresSubjectRepo(db *sql.DB) *PostgresSubjectRepo {
	return &PostgresSubjectRepo{db: db}
}

const subjectColumns = `id, name, short_name, api_id, type, is_default, last_time_update`

func scanSubject(row interface{ Scan(...any) error }) (*model.Subject, error) {
	subject := &model.Subject{}
	var subjectType string
	err := row.Scan(
		&subject.ID, &subject.Name, &subject.ShortName, &subject.APIID,
		&subjectType, &subject.IsDefault, &subject.LastTimeUpdate,
	)
	if err != nil {
		return nil, err
	}
	subject.Type = model.SubjectType(subjectType)
	return subject, nil
}

// FindByID は指定IDのSubjectを取得する。見つからない場合はnilを返す。
func (r *PostgresSubjectRepo) FindByID(ctx context.Context, id int64) (*model.Subject, error) {
	subject, err := scanSubject(r.db.QueryRowContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("対象の取得に失敗しました: %w", err)
	}
	return subject, nil
}

// FindByAPIID は大学API側の識別子でSubjectを検索する。見つからない場合はnilを返す。
func (r *PostgresSubjectRepo) FindByAPIID(ctx context.Context, apiID string) (*model.Subject, error) {
	subject, err := scanSubject(r.db.QueryRowContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE api_id = $1 AND api_id <> ''`, apiID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("api_id による対象の検索に失敗しました: %w", err)
	}
	return subject, nil
}

// FindByName は表示名でSubjectを検索する。見つからない場合はnilを返す。
func (r *PostgresSubjectRepo) FindByName(ctx context.Context, name string) (*model.Subject, error) {
	subject, err := scanSubject(r.db.QueryRowContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE name = $1`, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("名前による対象の検索に失敗しました: %w", err)
	}
	return subject, nil
}

// List は全Subjectをデフォルト優先・名前昇順で返す。
func (r *PostgresSubjectRepo) List(ctx context.Context) ([]*model.Subject, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects ORDER BY is_default DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("対象一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subjects []*model.Subject
	for rows.Next() {
		subject, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("対象行の読み取りに失敗しました: %w", err)
		}
		subjects = append(subjects, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("対象一覧の走査に失敗しました: %w", err)
	}
	return subjects, nil
}

// Create はSubjectを作成し、採番されたIDをsubject.IDに書き戻す。
func (r *PostgresSubjectRepo) Create(ctx context.Context, subject *model.Subject) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO subjects (name, short_name, api_id, type, is_default, last_time_update)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		subject.Name, subject.ShortName, subject.APIID, string(subject.Type),
		subject.IsDefault, subject.LastTimeUpdate,
	).Scan(&subject.ID)
	if err != nil {
		return fmt.Errorf("対象の作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateName はSubjectの表示名と短縮名を更新する。
func (r *PostgresSubjectRepo) UpdateName(ctx context.Context, id int64, name, shortName string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subjects SET name = $2, short_name = $3, updated_at = now() WHERE id = $1`,
		id, name, shortName,
	)
	if err != nil {
		return fmt.Errorf("対象名の更新に失敗しました: %w", err)
	}
	return nil
}

// SetDefault は指定Subjectをデフォルトにし、他のSubjectのデフォルトを解除する。
func (r *PostgresSubjectRepo) SetDefault(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE subjects SET is_default = FALSE, updated_at = now() WHERE is_default`); err != nil {
		return fmt.Errorf("デフォルト対象の解除に失敗しました: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE subjects SET is_default = TRUE, updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("デフォルト対象の設定に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// UpdateLastTimeUpdate は最終更新日時を更新する。
func (r *PostgresSubjectRepo) UpdateLastTimeUpdate(ctx context.Context, id int64, t time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subjects SET last_time_update = $2, updated_at = now() WHERE id = $1`,
		id, t,
	)
	if err != nil {
		return fmt.Errorf("最終更新日時の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのSubjectを削除する。
func (r *PostgresSubjectRepo) DeleteByID(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("対象の削除に失敗しました: %w", err)
	}
	return nil
}

// ListRefreshable はバックグラウンド更新の対象となるSubjectを返す。
// カスタム対象を除外し、最終更新が古い順に返す。
func (r *PostgresSubjectRepo) ListRefreshable(ctx context.Context, olderThan time.Time) ([]*model.Subject, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects
		 WHERE type <> 'custom' AND last_time_update < $1
		 ORDER BY last_time_update ASC`,
		olderThan,
	)
	if err != nil {
		return nil, fmt.Errorf("更新対象一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subjects []*model.Subject
	for rows.Next() {
		subject, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("更新対象行の読み取りに失敗しました: %w", err)
		}
		subjects = append(subjects, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("更新対象一覧の走査に失敗しました: %w", err)
	}
	return subjects, nil
}

// compile-time interface check
var _ SubjectRepository = (*PostgresSubjectRepo)(nil)
