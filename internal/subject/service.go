// Package subject は追跡対象（グループ・教員・教室・カスタム）管理の
// ドメインロジックを提供する。
package subject

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/jikanwari/internal/model"
	"github.com/hitoshi/jikanwari/internal/repository"
	"github.com/hitoshi/jikanwari/internal/schedule"
	"github.com/hitoshi/jikanwari/internal/security"
)

// Fetcher は大学APIからの時間割取得のインターフェース。
// fetch.Orchestratorが実装する。
type Fetcher interface {
	Fetch(ctx context.Context, name, apiID string, subjectType model.SubjectType, targetID int64, force bool) (*model.SubjectSchedule, bool, error)
}

// Applier は取得した時間割を保存済み内容とマージして永続化するインターフェース。
// merge.Mergerが実装する。
type Applier interface {
	Apply(ctx context.Context, fresh *model.SubjectSchedule) error
}

// Service は追跡対象管理のサービス層。
// 対象のCRUD、手動更新、カスタムイベント作成、非表示切り替え、
// メモ・タグ管理のビジネスロジックを提供する。
type Service struct {
	subjects  repository.SubjectRepository
	schedules repository.ScheduleRepository
	events    repository.EventRepository
	extras    repository.EventExtraRepository
	fetcher   Fetcher
	applier   Applier
	sanitizer security.CommentSanitizerService
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	subjects repository.SubjectRepository,
	schedules repository.ScheduleRepository,
	events repository.EventRepository,
	extras repository.EventExtraRepository,
	fetcher Fetcher,
	applier Applier,
	sanitizer security.CommentSanitizerService,
	logger *slog.Logger,
) *Service {
	return &Service{
		subjects:  subjects,
		schedules: schedules,
		events:    events,
		extras:    extras,
		fetcher:   fetcher,
		applier:   applier,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// ListSubjects は全追跡対象をデフォルト優先・名前昇順で返す。
func (s *Service) ListSubjects(ctx context.Context) ([]*model.Subject, error) {
	subjects, err := s.subjects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("追跡対象一覧の取得に失敗しました: %w", err)
	}
	return subjects, nil
}

// GetSubject は指定IDの追跡対象を返す。
func (s *Service) GetSubject(ctx context.Context, id int64) (*model.Subject, error) {
	subject, err := s.subjects.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("追跡対象の取得に失敗しました: %w", err)
	}
	if subject == nil {
		return nil, model.NewSubjectNotFoundError(id)
	}
	return subject, nil
}

// CreateSubject は追跡対象を新規作成する。
//
// カスタム対象は名前だけで作成され、大学APIには問い合わせない。
// それ以外の種別はまず大学APIから時間割を取得し、取得に成功した場合のみ
// 対象を保存する。取得した時間割もあわせて永続化される。
// 最初に作成された対象は自動的にデフォルトになる。
func (s *Service) CreateSubject(ctx context.Context, name, apiID string, subjectType model.SubjectType) (*model.Subject, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewInvalidSubjectError("名前が空です")
	}
	if !model.ValidSubjectType(subjectType) {
		return nil, model.NewInvalidSubjectError(fmt.Sprintf("不正な種別です: %s", subjectType))
	}
	if subjectType != model.SubjectTypeCustom && apiID == "" {
		return nil, model.NewInvalidSubjectError("カスタム以外の対象にはapi_idが必要です")
	}

	existing, err := s.subjects.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("重複チェックに失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateSubjectError(name)
	}

	if subjectType == model.SubjectTypeCustom {
		return s.createCustomSubject(ctx, name)
	}
	return s.createFetchedSubject(ctx, name, apiID, subjectType)
}

// createCustomSubject はカスタム対象を作成する。
func (s *Service) createCustomSubject(ctx context.Context, name string) (*model.Subject, error) {
	isFirst, err := s.noSubjectsYet(ctx)
	if err != nil {
		return nil, err
	}

	subject := &model.Subject{
		Name:           name,
		ShortName:      name,
		Type:           model.SubjectTypeCustom,
		IsDefault:      isFirst,
		LastTimeUpdate: time.Now(),
	}
	if err := s.subjects.Create(ctx, subject); err != nil {
		return nil, fmt.Errorf("追跡対象の作成に失敗しました: %w", err)
	}

	s.logger.Info("カスタム対象を作成しました",
		slog.Int64("subject_id", subject.ID),
		slog.String("name", name),
	)
	return subject, nil
}

// createFetchedSubject は大学APIから時間割を取得してから対象を作成する。
// 同じapi_idの対象が既に存在する場合は重複エラーを返す。
func (s *Service) createFetchedSubject(ctx context.Context, name, apiID string, subjectType model.SubjectType) (*model.Subject, error) {
	stored, err := s.subjects.FindByAPIID(ctx, apiID)
	if err != nil {
		return nil, fmt.Errorf("重複チェックに失敗しました: %w", err)
	}
	if stored != nil {
		return nil, model.NewDuplicateSubjectError(stored.Name)
	}

	fresh, _, err := s.fetcher.Fetch(ctx, name, apiID, subjectType, 0, true)
	if err != nil {
		return nil, err
	}

	isFirst, err := s.noSubjectsYet(ctx)
	if err != nil {
		return nil, err
	}

	subject := fresh.Subject
	subject.IsDefault = isFirst
	if err := s.subjects.Create(ctx, subject); err != nil {
		return nil, fmt.Errorf("追跡対象の作成に失敗しました: %w", err)
	}

	// 採番されたIDを時間割側にも反映してから永続化する
	for _, sched := range fresh.Schedules {
		sched.SubjectID = subject.ID
	}
	if err := s.applier.Apply(ctx, fresh); err != nil {
		return nil, err
	}

	s.logger.Info("追跡対象を作成しました",
		slog.Int64("subject_id", subject.ID),
		slog.String("api_id", apiID),
		slog.Int("schedule_count", len(fresh.Schedules)),
	)
	return subject, nil
}

// noSubjectsYet は追跡対象が1件も存在しないかを返す。
func (s *Service) noSubjectsYet(ctx context.Context) (bool, error) {
	subjects, err := s.subjects.List(ctx)
	if err != nil {
		return false, fmt.Errorf("追跡対象一覧の取得に失敗しました: %w", err)
	}
	return len(subjects) == 0, nil
}

// RenameSubject は追跡対象の表示名を変更する。短縮名も再導出される。
func (s *Service) RenameSubject(ctx context.Context, id int64, name string) (*model.Subject, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewInvalidSubjectError("名前が空です")
	}

	subject, err := s.GetSubject(ctx, id)
	if err != nil {
		return nil, err
	}

	existing, err := s.subjects.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("重複チェックに失敗しました: %w", err)
	}
	if existing != nil && existing.ID != id {
		return nil, model.NewDuplicateSubjectError(name)
	}

	shortName := model.DeriveShortName(name, subject.Type)
	if err := s.subjects.UpdateName(ctx, id, name, shortName); err != nil {
		return nil, fmt.Errorf("名前の更新に失敗しました: %w", err)
	}

	subject.Name = name
	subject.ShortName = shortName
	return subject, nil
}

// SetDefaultSubject は指定対象をデフォルトにする。他の対象のデフォルトは解除される。
func (s *Service) SetDefaultSubject(ctx context.Context, id int64) error {
	if _, err := s.GetSubject(ctx, id); err != nil {
		return err
	}
	if err := s.subjects.SetDefault(ctx, id); err != nil {
		return fmt.Errorf("デフォルト対象の設定に失敗しました: %w", err)
	}
	return nil
}

// SetDefaultSchedule は対象内のデフォルト時間割を切り替える。
func (s *Service) SetDefaultSchedule(ctx context.Context, subjectID, scheduleID int64) error {
	if _, err := s.GetSubject(ctx, subjectID); err != nil {
		return err
	}

	scheds, err := s.schedules.ListBySubjectID(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("時間割一覧の取得に失敗しました: %w", err)
	}
	found := false
	for _, sched := range scheds {
		if sched.ID == scheduleID {
			found = true
			break
		}
	}
	if !found {
		return model.NewScheduleNotFoundError(scheduleID)
	}

	if err := s.schedules.SetDefault(ctx, subjectID, scheduleID); err != nil {
		return fmt.Errorf("デフォルト時間割の設定に失敗しました: %w", err)
	}
	return nil
}

// DeleteSubject は追跡対象を削除する。時間割・イベントはCASCADE削除され、
// 残ったメモ・タグはクリーンアップワーカーが回収する。
func (s *Service) DeleteSubject(ctx context.Context, id int64) error {
	if _, err := s.GetSubject(ctx, id); err != nil {
		return err
	}
	if err := s.subjects.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("追跡対象の削除に失敗しました: %w", err)
	}

	s.logger.Info("追跡対象を削除しました", slog.Int64("subject_id", id))
	return nil
}

// Refresh は大学APIから時間割を強制再取得し、保存済み内容とマージする。
// カスタム対象は大学APIに存在しないため更新できない。
// マージ後の永続化済み状態を返す。
func (s *Service) Refresh(ctx context.Context, id int64) (*model.SubjectSchedule, error) {
	subject, err := s.GetSubject(ctx, id)
	if err != nil {
		return nil, err
	}
	if subject.Type == model.SubjectTypeCustom {
		return nil, model.NewInvalidSubjectError("カスタム対象は大学APIから更新できません")
	}

	fresh, _, err := s.fetcher.Fetch(ctx, subject.Name, subject.APIID, subject.Type, subject.ID, true)
	if err != nil {
		return nil, err
	}

	fresh.Subject.ID = subject.ID
	fresh.Subject.IsDefault = subject.IsDefault
	for _, sched := range fresh.Schedules {
		sched.SubjectID = subject.ID
	}
	if err := s.applier.Apply(ctx, fresh); err != nil {
		return nil, err
	}

	return s.loadSubjectSchedule(ctx, id)
}

// ScheduleView は指定時間割の表示用データを構築して返す。
// scheduleIDが0の場合はデフォルト時間割（なければ先頭）を使う。
func (s *Service) ScheduleView(ctx context.Context, subjectID, scheduleID int64, now time.Time) (*schedule.ViewData, error) {
	if _, err := s.GetSubject(ctx, subjectID); err != nil {
		return nil, err
	}

	scheds, err := s.schedules.ListBySubjectID(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("時間割一覧の取得に失敗しました: %w", err)
	}

	target := pickSchedule(scheds, scheduleID)
	if target == nil {
		return nil, model.NewScheduleNotFoundError(scheduleID)
	}
	return schedule.BuildViewData(target, now), nil
}

// pickSchedule は表示対象の時間割を選ぶ。
func pickSchedule(scheds []*model.Schedule, scheduleID int64) *model.Schedule {
	if scheduleID != 0 {
		for _, sched := range scheds {
			if sched.ID == scheduleID {
				return sched
			}
		}
		return nil
	}
	for _, sched := range scheds {
		if sched.IsDefault {
			return sched
		}
	}
	if len(scheds) > 0 {
		return scheds[0]
	}
	return nil
}

// CreateCustomEvent はユーザー定義のイベントを時間割に追加する。
// カスタムイベントはマージで上書きされず、明示的に削除されるまで残る。
// scheduleIDが0の場合はデフォルト時間割（なければ先頭）に追加する。
func (s *Service) CreateCustomEvent(ctx context.Context, subjectID, scheduleID int64, event *model.Event) (*model.Event, error) {
	if strings.TrimSpace(event.Name) == "" {
		return nil, model.NewInvalidSubjectError("イベント名が空です")
	}
	if event.StartsAt.IsZero() || event.EndsAt.IsZero() {
		return nil, model.NewInvalidSubjectError("開始・終了時刻が必要です")
	}
	if !event.EndsAt.After(event.StartsAt) {
		return nil, model.NewInvalidSubjectError("終了時刻は開始時刻より後でなければなりません")
	}

	if _, err := s.GetSubject(ctx, subjectID); err != nil {
		return nil, err
	}

	scheds, err := s.schedules.ListBySubjectID(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("時間割一覧の取得に失敗しました: %w", err)
	}
	target := pickSchedule(scheds, scheduleID)
	if target == nil {
		return nil, model.NewScheduleNotFoundError(scheduleID)
	}

	event.ID = 0
	event.ScheduleID = target.ID
	event.IsCustom = true
	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}

	s.logger.Info("カスタムイベントを作成しました",
		slog.Int64("event_id", event.ID),
		slog.Int64("schedule_id", target.ID),
	)
	return event, nil
}

// SetEventHidden はイベントの表示・非表示を切り替える。
// 非表示フラグはマージをまたいで維持される。
func (s *Service) SetEventHidden(ctx context.Context, eventID int64, hidden bool) error {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return model.NewEventNotFoundError(eventID)
	}

	if err := s.events.UpdateHidden(ctx, eventID, hidden); err != nil {
		return fmt.Errorf("非表示フラグの更新に失敗しました: %w", err)
	}
	return nil
}

// GetEventExtra はイベントのメモ・タグを返す。
// 注釈が存在しない場合は空のEventExtraを返す。
func (s *Service) GetEventExtra(ctx context.Context, eventID int64) (*model.EventExtra, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(eventID)
	}

	extra, err := s.extras.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("メモ・タグの取得に失敗しました: %w", err)
	}
	if extra == nil {
		return &model.EventExtra{EventID: eventID}, nil
	}
	return extra, nil
}

// UpsertEventExtra はイベントのメモ・タグを保存する。
// メモはプレーンテキストとしてサニタイズされる。タグは0〜8のみ許容する。
// メモとタグの両方が空になった場合は注釈行ごと削除する。
func (s *Service) UpsertEventExtra(ctx context.Context, eventID int64, comment string, tag int) (*model.EventExtra, error) {
	if !model.ValidTag(tag) {
		return nil, model.NewInvalidTagError(tag)
	}

	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(eventID)
	}

	extra := &model.EventExtra{
		EventID:       eventID,
		Comment:       s.sanitizer.Sanitize(comment),
		Tag:           tag,
		EventName:     event.Name,
		EventStartsAt: event.StartsAt,
	}

	if extra.IsEmpty() {
		if err := s.extras.DeleteByEventID(ctx, eventID); err != nil {
			return nil, fmt.Errorf("メモ・タグの削除に失敗しました: %w", err)
		}
		return extra, nil
	}

	if err := s.extras.Upsert(ctx, extra); err != nil {
		return nil, fmt.Errorf("メモ・タグの保存に失敗しました: %w", err)
	}
	return extra, nil
}

// loadSubjectSchedule は永続化済みのSubjectScheduleを読み直す。
func (s *Service) loadSubjectSchedule(ctx context.Context, subjectID int64) (*model.SubjectSchedule, error) {
	subject, err := s.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	scheds, err := s.schedules.ListBySubjectID(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("時間割一覧の取得に失敗しました: %w", err)
	}
	return &model.SubjectSchedule{Subject: subject, Schedules: scheds}, nil
}
