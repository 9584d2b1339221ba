// Package merge は取得済み時間割と保存済み時間割の突き合わせを提供する。
// ユーザーが加えた状態（非表示フラグ・カスタムイベント・メモの紐付くID）を
// 保ったまま、上流の最新内容で時間割を置き換える。
package merge

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/jikanwari/internal/metrics"
	"github.com/hitoshi/jikanwari/internal/model"
	"github.com/hitoshi/jikanwari/internal/repository"
)

// Options はマージエンジンの動作設定。
type Options struct {
	// DropExpired がtrueの場合、上流から消えた時間割のうち有効期間の
	// 終了した（today > EndDate）ものを削除する。falseの場合は常に残す。
	DropExpired bool
}

// Merger は保存済み時間割と新規取得内容の突き合わせと永続化を行う。
type Merger struct {
	schedules repository.ScheduleRepository
	subjects  repository.SubjectRepository
	collector metrics.MetricsCollector
	logger    *slog.Logger
	dropStale bool
	now       func() time.Time // テストで差し替えるため関数として保持する
}

// NewMerger はMergerの新しいインスタンスを生成する。
func NewMerger(
	schedules repository.ScheduleRepository,
	subjects repository.SubjectRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Merger {
	return &Merger{
		schedules: schedules,
		subjects:  subjects,
		collector: collector,
		logger:    logger,
		dropStale: opts.DropExpired,
		now:       time.Now,
	}
}

// Apply は新規取得内容を保存済み時間割と突き合わせて永続化する。
// 時間割とイベントは全削除してから挿入し直すが、内容の一致するイベントは
// IDと非表示フラグを引き継ぐため、ユーザーから見た状態は保たれる。
func (m *Merger) Apply(ctx context.Context, fresh *model.SubjectSchedule) error {
	subjectID := fresh.Subject.ID

	stored, err := m.schedules.ListBySubjectID(ctx, subjectID)
	if err != nil {
		return model.NewUnexpectedError(err)
	}

	merged := Reconcile(stored, fresh.Schedules, m.now(), m.dropStale)

	if err := m.schedules.ReplaceAll(ctx, subjectID, merged); err != nil {
		return model.NewUnexpectedError(err)
	}

	now := m.now()
	if err := m.subjects.UpdateLastTimeUpdate(ctx, subjectID, now); err != nil {
		return model.NewUnexpectedError(err)
	}

	eventCount := 0
	for _, sched := range merged {
		eventCount += len(sched.Events)
	}
	m.collector.RecordEventsMerged(eventCount)

	m.logger.Info("時間割のマージが完了しました",
		slog.Int64("subject_id", subjectID),
		slog.Int("schedule_count", len(merged)),
		slog.Int("event_count", eventCount),
	)
	return nil
}

// Reconcile は保存済み時間割と新規取得の時間割をtimetable_idで突き合わせる。
//
//   - 両方にある時間割: 新規内容を採用し、保存済みのID・デフォルトフラグを
//     引き継ぐ。イベントは内容キーで照合してIDと非表示フラグを引き継ぎ、
//     カスタムイベントはそのまま残す。
//   - 新規取得にだけある時間割: そのまま追加する。
//   - 保存済みにだけある時間割: 原則残す。dropStaleがtrueで有効期間の
//     終了したものだけを落とす。
func Reconcile(stored, fresh []*model.Schedule, today time.Time, dropStale bool) []*model.Schedule {
	merged := make([]*model.Schedule, 0, len(fresh)+len(stored))

	byTimetableID := make(map[string]*model.Schedule, len(stored))
	for _, sched := range stored {
		byTimetableID[sched.TimetableID] = sched
	}

	seen := make(map[string]bool, len(fresh))
	for _, f := range fresh {
		seen[f.TimetableID] = true
		if old, ok := byTimetableID[f.TimetableID]; ok {
			merged = append(merged, mergeSchedule(old, f))
		} else {
			merged = append(merged, f)
		}
	}

	// 上流から消えた時間割
	for _, old := range stored {
		if seen[old.TimetableID] {
			continue
		}
		if dropStale && today.After(old.EndDate) {
			continue
		}
		merged = append(merged, old)
	}

	return merged
}

// mergeSchedule は1つの時間割の新旧内容を統合する。
func mergeSchedule(old, fresh *model.Schedule) *model.Schedule {
	fresh.ID = old.ID
	fresh.SubjectID = old.SubjectID
	// デフォルト時間割の選択はユーザー操作で変わるため保存済みの値を正とする
	fresh.IsDefault = old.IsDefault

	// 大学側の週カウントが進んでいない限り、確定済みの位相情報を保つ
	if old.Recurrence != nil && fresh.Recurrence != nil &&
		old.Recurrence.CurrentNumber == fresh.Recurrence.CurrentNumber {
		fresh.Recurrence = old.Recurrence
	}

	fresh.Events = mergeEvents(old.Events, fresh.Events, fresh.ID)
	return fresh
}

// mergeEvents は新旧イベントを内容キーで照合する。
// 一致した新イベントは旧イベントのIDと非表示フラグを引き継ぐ。
// 旧イベントのうちカスタムのものはそのまま残し、
// それ以外の一致しなかったものは破棄される（上流から消えたイベント）。
func mergeEvents(old, fresh []*model.Event, scheduleID int64) []*model.Event {
	byFingerprint := make(map[string]*model.Event, len(old))
	for _, ev := range old {
		if ev.IsCustom {
			continue
		}
		byFingerprint[ev.Fingerprint()] = ev
	}

	merged := make([]*model.Event, 0, len(fresh)+len(old))
	for _, ev := range fresh {
		ev.ScheduleID = scheduleID
		if prev, ok := byFingerprint[ev.Fingerprint()]; ok {
			ev.ID = prev.ID
			ev.Hidden = prev.Hidden
		}
		merged = append(merged, ev)
	}

	for _, ev := range old {
		if ev.IsCustom {
			merged = append(merged, ev)
		}
	}

	return merged
}
