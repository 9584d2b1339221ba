// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/jikanwari/internal/model"
)

// SubjectRepository はSubjectデータの永続化インターフェース。
type SubjectRepository interface {
	// FindByID は指定IDのSubjectを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Subject, error)

	// FindByAPIID は大学API側の識別子でSubjectを検索する。見つからない場合はnilを返す。
	FindByAPIID(ctx context.Context, apiID string) (*model.Subject, error)

	// FindByName は表示名でSubjectを検索する。重複チェックに使う。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Subject, error)

	// List は全Subjectをデフォルト優先・名前昇順で返す。
	List(ctx context.Context) ([]*model.Subject, error)

	// Create はSubjectを作成し、採番されたIDをsubject.IDに書き戻す。
	Create(ctx context.Context, subject *model.Subject) error

	// UpdateName はSubjectの表示名と短縮名を更新する。
	UpdateName(ctx context.Context, id int64, name, shortName string) error

	// SetDefault は指定Subjectをデフォルトにし、他のSubjectのデフォルトを解除する。
	// 同一トランザクションで実行する。
	SetDefault(ctx context.Context, id int64) error

	// UpdateLastTimeUpdate は最終更新日時を更新する。
	UpdateLastTimeUpdate(ctx context.Context, id int64, t time.Time) error

	// DeleteByID は指定IDのSubjectを削除する。
	// 関連するschedules、eventsはCASCADE削除される。event_extrasは
	// イベントへの外部キーを持たないため、クリーンアップワーカーが回収する。
	DeleteByID(ctx context.Context, id int64) error

	// ListRefreshable はバックグラウンド更新の対象となるSubjectを返す。
	// カスタムSubjectを除外し、last_time_updateがolderThanより古いものを古い順に返す。
	ListRefreshable(ctx context.Context, olderThan time.Time) ([]*model.Subject, error)
}

// ScheduleRepository はScheduleデータの永続化インターフェース。
// Scheduleは所属イベントと常に一体で読み書きする。
type ScheduleRepository interface {
	// ListBySubjectID はSubjectの全Scheduleをイベント付きで返す。
	ListBySubjectID(ctx context.Context, subjectID int64) ([]*model.Schedule, error)

	// ReplaceAll はSubjectの全Scheduleを削除してから引数の内容を挿入する。
	// 同一トランザクションで実行する。イベントのIDが正の場合はそのIDのまま
	// 挿入し、0の場合は新規採番する。
	ReplaceAll(ctx context.Context, subjectID int64, schedules []*model.Schedule) error

	// SetDefault は指定Scheduleをデフォルトにし、同一Subjectの他のScheduleの
	// デフォルトを解除する。同一トランザクションで実行する。
	SetDefault(ctx context.Context, subjectID, scheduleID int64) error
}

// EventRepository は個別イベント操作の永続化インターフェース。
type EventRepository interface {
	// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Event, error)

	// Create はカスタムイベントを作成し、採番されたIDをevent.IDに書き戻す。
	Create(ctx context.Context, event *model.Event) error

	// UpdateHidden はイベントの表示・非表示フラグを更新する。
	UpdateHidden(ctx context.Context, id int64, hidden bool) error
}

// EventExtraRepository はイベントのメモ・タグの永続化インターフェース。
type EventExtraRepository interface {
	// FindByEventID は指定イベントのEventExtraを取得する。見つからない場合はnilを返す。
	FindByEventID(ctx context.Context, eventID int64) (*model.EventExtra, error)

	// Upsert はEventExtraを冪等にUPSERTする。
	Upsert(ctx context.Context, extra *model.EventExtra) error

	// DeleteByEventID は指定イベントのEventExtraを削除する。
	DeleteByEventID(ctx context.Context, eventID int64) error

	// DeleteOrphaned は対応するイベントが存在しなくなったEventExtraを削除し、
	// 削除件数を返す。クリーンアップワーカーから呼ばれる。
	DeleteOrphaned(ctx context.Context) (int64, error)
}
