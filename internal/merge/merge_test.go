package merge

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/jikanwari/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// recordingScheduleRepo はReplaceAllの引数を記録するScheduleRepositoryのテスト用実装。
type recordingScheduleRepo struct {
	stored   []*model.Schedule
	replaced []*model.Schedule
}

func (r *recordingScheduleRepo) ListBySubjectID(ctx context.Context, subjectID int64) ([]*model.Schedule, error) {
	return r.stored, nil
}
func (r *recordingScheduleRepo) ReplaceAll(ctx context.Context, subjectID int64, schedules []*model.Schedule) error {
	r.replaced = schedules
	return nil
}
func (r *recordingScheduleRepo) SetDefault(ctx context.Context, subjectID, scheduleID int64) error {
	return nil
}

// recordingSubjectRepo はUpdateLastTimeUpdateの引数を記録するSubjectRepositoryのテスト用実装。
type recordingSubjectRepo struct {
	lastUpdateID int64
	lastUpdateAt time.Time
}

func (r *recordingSubjectRepo) FindByID(ctx context.Context, id int64) (*model.Subject, error) {
	return nil, nil
}
func (r *recordingSubjectRepo) FindByAPIID(ctx context.Context, apiID string) (*model.Subject, error) {
	return nil, nil
}
func (r *recordingSubjectRepo) FindByName(ctx context.Context, name string) (*model.Subject, error) {
	return nil, nil
}
func (r *recordingSubjectRepo) List(ctx context.Context) ([]*model.Subject, error) { return nil, nil }
func (r *recordingSubjectRepo) Create(ctx context.Context, subject *model.Subject) error {
	return nil
}
func (r *recordingSubjectRepo) UpdateName(ctx context.Context, id int64, name, shortName string) error {
	return nil
}
func (r *recordingSubjectRepo) SetDefault(ctx context.Context, id int64) error { return nil }
func (r *recordingSubjectRepo) UpdateLastTimeUpdate(ctx context.Context, id int64, t time.Time) error {
	r.lastUpdateID = id
	r.lastUpdateAt = t
	return nil
}
func (r *recordingSubjectRepo) DeleteByID(ctx context.Context, id int64) error { return nil }
func (r *recordingSubjectRepo) ListRefreshable(ctx context.Context, olderThan time.Time) ([]*model.Subject, error) {
	return nil, nil
}

// fakeCollector はMetricsCollectorのテスト用実装。
type fakeCollector struct {
	mu     sync.Mutex
	merged int
}

func (c *fakeCollector) RecordFetchSuccess(apiID string)               {}
func (c *fakeCollector) RecordFetchFailure(apiID string, reason string) {}
func (c *fakeCollector) RecordNormalizeFailure(apiID string)            {}
func (c *fakeCollector) RecordHTTPStatus(statusCode int)                {}
func (c *fakeCollector) RecordFetchLatency(duration time.Duration)      {}
func (c *fakeCollector) RecordEventsMerged(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.merged += count
}

func periodicEvent(name string, weekday time.Weekday, hour int, interval, period int) *model.Event {
	// 2025-09-01は月曜日。曜日に応じて日をずらした雛形日時を作る
	base := time.Date(2025, 9, 1, hour, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(time.Monday) + 7) % 7
	start := base.AddDate(0, 0, offset)
	return &model.Event{
		Name:               name,
		TypeName:           "講義",
		StartsAt:           start,
		EndsAt:             start.Add(80 * time.Minute),
		RecurrenceInterval: interval,
		PeriodNumber:       period,
	}
}

// 内容の一致するイベントがIDと非表示フラグを引き継ぐことを検証
func TestReconcile_PreservesEventState(t *testing.T) {
	oldEvent := periodicEvent("データベース論", time.Monday, 8, 2, 1)
	oldEvent.ID = 7
	oldEvent.Hidden = true

	stored := []*model.Schedule{
		{
			ID:          3,
			SubjectID:   1,
			TimetableID: "tt-1",
			IsDefault:   true,
			EndDate:     time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC),
			Events:      []*model.Event{oldEvent},
		},
	}

	// 新規取得: 同じ内容のイベント + 新しいイベント
	fresh := []*model.Schedule{
		{
			TimetableID: "tt-1",
			IsDefault:   true,
			EndDate:     time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC),
			Events: []*model.Event{
				periodicEvent("データベース論", time.Monday, 8, 2, 1),
				periodicEvent("新講義", time.Tuesday, 8, 2, 2),
			},
		},
	}

	merged := Reconcile(stored, fresh, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), false)

	if len(merged) != 1 {
		t.Fatalf("時間割数 = %d, want 1", len(merged))
	}
	sched := merged[0]
	if sched.ID != 3 {
		t.Errorf("Schedule.ID = %d, want 3（保存済みIDを引き継ぐ）", sched.ID)
	}
	if len(sched.Events) != 2 {
		t.Fatalf("イベント数 = %d, want 2", len(sched.Events))
	}

	var matched, added *model.Event
	for _, ev := range sched.Events {
		if ev.Name == "データベース論" {
			matched = ev
		} else {
			added = ev
		}
	}
	if matched == nil || matched.ID != 7 || !matched.Hidden {
		t.Errorf("一致イベントはID=7とHidden=trueを引き継ぐべき: %+v", matched)
	}
	if added == nil || added.ID != 0 {
		t.Errorf("新規イベントのIDは未採番(0)であるべき: %+v", added)
	}
	if matched.ScheduleID != 3 {
		t.Errorf("イベントのScheduleID = %d, want 3", matched.ScheduleID)
	}
}

// カスタムイベントがマージ後も残ることを検証
func TestReconcile_CustomEventsSurvive(t *testing.T) {
	custom := periodicEvent("自主ゼミ", time.Friday, 18, 1, 0)
	custom.ID = 20
	custom.IsCustom = true

	dropped := periodicEvent("廃講", time.Wednesday, 8, 2, 1)
	dropped.ID = 21

	stored := []*model.Schedule{
		{ID: 3, TimetableID: "tt-1", Events: []*model.Event{custom, dropped}},
	}
	fresh := []*model.Schedule{
		{TimetableID: "tt-1", Events: []*model.Event{periodicEvent("新講義", time.Monday, 8, 2, 1)}},
	}

	merged := Reconcile(stored, fresh, time.Now(), false)

	if len(merged[0].Events) != 2 {
		t.Fatalf("イベント数 = %d, want 2（新講義+カスタム）", len(merged[0].Events))
	}
	names := map[string]bool{}
	for _, ev := range merged[0].Events {
		names[ev.Name] = true
	}
	if !names["自主ゼミ"] {
		t.Error("カスタムイベントは残るべき")
	}
	if names["廃講"] {
		t.Error("上流から消えた非カスタムイベントは破棄されるべき")
	}
}

// 現在週番号が変わらない限り確定済みの繰り返し情報を保つことを検証
func TestReconcile_RecurrencePhase(t *testing.T) {
	stored := []*model.Schedule{
		{
			ID:          3,
			TimetableID: "tt-1",
			Recurrence:  &model.Recurrence{Interval: 2, CurrentNumber: 1, FirstWeekNumber: 2},
			Events:      []*model.Event{periodicEvent("講義", time.Monday, 8, 2, 1)},
		},
	}

	// 現在週番号が同じ → 確定済みのFirstWeekNumberを保つ
	fresh := []*model.Schedule{
		{
			TimetableID: "tt-1",
			Recurrence:  &model.Recurrence{Interval: 2, CurrentNumber: 1, FirstWeekNumber: 1},
			Events:      []*model.Event{periodicEvent("講義", time.Monday, 8, 2, 1)},
		},
	}
	merged := Reconcile(stored, fresh, time.Now(), false)
	if merged[0].Recurrence.FirstWeekNumber != 2 {
		t.Errorf("FirstWeekNumber = %d, want 2（保存済みの位相を保つ）", merged[0].Recurrence.FirstWeekNumber)
	}

	// 現在週番号が進んだ → 新規取得の繰り返し情報を採用する
	fresh2 := []*model.Schedule{
		{
			TimetableID: "tt-1",
			Recurrence:  &model.Recurrence{Interval: 2, CurrentNumber: 2, FirstWeekNumber: 1},
			Events:      []*model.Event{periodicEvent("講義", time.Monday, 8, 2, 1)},
		},
	}
	merged = Reconcile(stored, fresh2, time.Now(), false)
	if merged[0].Recurrence.CurrentNumber != 2 || merged[0].Recurrence.FirstWeekNumber != 1 {
		t.Errorf("Recurrence = %+v, want 新規取得の値", merged[0].Recurrence)
	}
}

// 上流から消えた時間割の扱いを検証
func TestReconcile_VanishedSchedules(t *testing.T) {
	today := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	expired := &model.Schedule{ID: 4, TimetableID: "tt-old", EndDate: time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)}
	active := &model.Schedule{ID: 5, TimetableID: "tt-active", EndDate: time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)}

	// 削除ポリシーなし: どちらも残る
	merged := Reconcile([]*model.Schedule{expired, active}, nil, today, false)
	if len(merged) != 2 {
		t.Errorf("時間割数 = %d, want 2（ポリシーなしでは削除しない）", len(merged))
	}

	// 削除ポリシーあり: 有効期間の終了したものだけ落ちる
	merged = Reconcile([]*model.Schedule{expired, active}, nil, today, true)
	if len(merged) != 1 || merged[0].ID != 5 {
		t.Errorf("期限切れ時間割だけが削除されるべき: %+v", merged)
	}
}

// 同じ内容のマージを繰り返してもID割り当てが安定していることを検証
func TestReconcile_RoundTripStable(t *testing.T) {
	makeFresh := func() []*model.Schedule {
		return []*model.Schedule{
			{
				TimetableID: "tt-1",
				EndDate:     time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC),
				Events: []*model.Event{
					periodicEvent("講義A", time.Monday, 8, 2, 1),
					periodicEvent("講義B", time.Tuesday, 9, 2, 2),
				},
			},
		}
	}

	first := Reconcile(nil, makeFresh(), time.Now(), false)
	// 永続化でIDが採番されたとみなす
	first[0].ID = 3
	for i, ev := range first[0].Events {
		ev.ID = int64(100 + i)
	}

	second := Reconcile(first, makeFresh(), time.Now(), false)
	if second[0].ID != 3 {
		t.Errorf("Schedule.ID = %d, want 3", second[0].ID)
	}
	for _, ev := range second[0].Events {
		if ev.ID == 0 {
			t.Errorf("イベント %q のIDが引き継がれていない", ev.Name)
		}
	}
}

// Applyが永続化と最終更新日時の記録を行うことを検証
func TestMerger_Apply(t *testing.T) {
	schedRepo := &recordingScheduleRepo{}
	subjRepo := &recordingSubjectRepo{}
	collector := &fakeCollector{}
	m := NewMerger(schedRepo, subjRepo, collector, discardLogger(), Options{})

	fixed := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	fresh := &model.SubjectSchedule{
		Subject: &model.Subject{ID: 5, Name: "G-101", Type: model.SubjectTypeGroup},
		Schedules: []*model.Schedule{
			{
				TimetableID: "tt-1",
				Events: []*model.Event{
					periodicEvent("講義A", time.Monday, 8, 2, 1),
					periodicEvent("講義B", time.Tuesday, 9, 2, 2),
				},
			},
		},
	}

	if err := m.Apply(context.Background(), fresh); err != nil {
		t.Fatalf("Apply がエラーを返した: %v", err)
	}
	if len(schedRepo.replaced) != 1 {
		t.Fatalf("永続化された時間割数 = %d, want 1", len(schedRepo.replaced))
	}
	if subjRepo.lastUpdateID != 5 || !subjRepo.lastUpdateAt.Equal(fixed) {
		t.Errorf("最終更新日時の記録 = (%d, %v), want (5, %v)", subjRepo.lastUpdateID, subjRepo.lastUpdateAt, fixed)
	}
	if collector.merged != 2 {
		t.Errorf("マージイベント数メトリクス = %d, want 2", collector.merged)
	}
}
