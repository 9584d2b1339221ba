// Package schedule は上流の時間割表現を内部モデルへ正規化するコアロジックを提供する。
// 正規化（Normalizer）・永続化形への変換（Mapper）・表示用データの導出を含む。
package schedule

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/hitoshi/jikanwari/internal/calendar"
	"github.com/hitoshi/jikanwari/internal/model"
	"github.com/hitoshi/jikanwari/internal/university"
)

// CurrentWeekProvider は大学側の「現在週番号」を取得するコラボレータのインターフェース。
// 構造化された繰り返し情報を持たない周期時間割の位相合わせに必要となる。
type CurrentWeekProvider interface {
	FetchCurrentWeekNumber(ctx context.Context, apiID string, startDate time.Time, typeHint model.TimetableType) (int, error)
}

// Normalizer は生の時間割DTOを内部のScheduleモデルへ正規化する。
// 時間割の種別判定はTimetableメタデータ側のtypeを正とする。
// 上流が周期時間割を平坦なイベントリストとして返してきた場合は、
// ISO週によるクラスタリングで繰り返し情報を合成する。
type Normalizer struct {
	weekProvider CurrentWeekProvider
	logger       *slog.Logger
}

// NewNormalizer はNormalizerの新しいインスタンスを生成する。
func NewNormalizer(weekProvider CurrentWeekProvider, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		weekProvider: weekProvider,
		logger:       logger,
	}
}

// Normalize は1つの時間割+内容のペアを正規化する。
// 出力のScheduleは開始日時を持たないイベントを決して含まない。
// RecurrenceのFirstWeekNumberはここでは確定せず、Mapperが導出する。
func (n *Normalizer) Normalize(ctx context.Context, apiID string, timetable *model.Timetable, raw *university.ScheduleDTO) (*model.Schedule, error) {
	sched := &model.Schedule{
		TimetableID: timetable.ID,
		Name:        timetable.Name,
		Type:        timetable.Type,
		DownloadURL: timetable.DownloadURL,
		StartDate:   timetable.StartDate,
		EndDate:     timetable.EndDate,
	}

	if timetable.Type != model.TimetableTypePeriodic {
		sched.Events = n.normalizeNonPeriodic(raw)
		return sched, nil
	}

	// 周期時間割で上流が構造化された繰り返し情報を持つ場合はそのまま通す
	if hasStructuredRecurrence(raw) {
		rec := raw.PeriodicContent.Recurrence
		sched.Recurrence = &model.Recurrence{
			Interval:      *rec.Interval,
			CurrentNumber: *rec.CurrentNumber,
		}
		sched.Events = convertEvents(raw.PeriodicContent.Events)
		for _, ev := range sched.Events {
			if ev.RecurrenceInterval <= 0 {
				ev.RecurrenceInterval = 1
			}
		}
		return sched, nil
	}

	// 平坦なイベントリストしかない周期時間割: 繰り返し情報を合成する
	return n.synthesizeRecurrence(ctx, apiID, timetable, sched, raw)
}

// normalizeNonPeriodic は非周期・試験期間の時間割内容を正規化する。
// 上流自身のnonPeriodicContentを優先し、欠けている場合はperiodicContentの
// イベントにフォールバックする（内容のラベル付けを誤るレスポンスがある）。
func (n *Normalizer) normalizeNonPeriodic(raw *university.ScheduleDTO) []*model.Event {
	var events []*model.Event
	if raw.NonPeriodicContent != nil {
		events = convertEvents(raw.NonPeriodicContent.Events)
	}
	if len(events) == 0 && raw.PeriodicContent != nil {
		events = convertEvents(raw.PeriodicContent.Events)
	}

	// 非周期イベントは繰り返し情報を持たない
	for _, ev := range events {
		ev.RecurrenceInterval = 0
		ev.PeriodNumber = 0
	}
	return events
}

// synthesizeRecurrence は平坦なイベントリストから繰り返し情報を合成する。
// 手順: イベントのフィルタと重複除去 → ISO週でグルーピング →
// 週グループ数をintervalとする → 週番号と時限ラベルの付与 →
// 大学APIから現在週番号を取得。現在週番号の取得失敗は
// この時間割全体の正規化失敗として伝播する。
func (n *Normalizer) synthesizeRecurrence(ctx context.Context, apiID string, timetable *model.Timetable, sched *model.Schedule, raw *university.ScheduleDTO) (*model.Schedule, error) {
	var candidates []*model.Event
	if raw.PeriodicContent != nil {
		candidates = convertEvents(raw.PeriodicContent.Events)
	}
	if len(candidates) == 0 && raw.NonPeriodicContent != nil {
		candidates = convertEvents(raw.NonPeriodicContent.Events)
	}

	// 開始・終了・名前のそろったイベントだけを残し、内容キーで重複を除去する
	seen := make(map[string]bool)
	events := make([]*model.Event, 0, len(candidates))
	for _, ev := range candidates {
		if ev.EndsAt.IsZero() || ev.Name == "" {
			continue
		}
		key := ev.Fingerprint()
		if seen[key] {
			continue
		}
		seen[key] = true
		events = append(events, ev)
	}

	if len(events) == 0 {
		n.logger.Warn("合成対象のイベントがありません",
			slog.String("api_id", apiID),
			slog.String("timetable_id", timetable.ID),
		)
		return sched, nil
	}

	// ISO週でグルーピングし、出現する週の数をintervalとする
	weeks := make(map[int]bool)
	for _, ev := range events {
		weeks[calendar.ISOWeekOfYear(ev.StartsAt)] = true
	}
	interval := len(weeks)

	for _, ev := range events {
		ev.RecurrenceInterval = interval
		ev.PeriodNumber = calendar.ISOWeekOfYear(ev.StartsAt)%interval + 1
		ev.TimeSlotLabel = calendar.TimeSlotLabel(ev.StartsAt, ev.EndsAt)
	}

	currentNumber, err := n.weekProvider.FetchCurrentWeekNumber(ctx, apiID, timetable.StartDate, timetable.Type)
	if err != nil {
		n.logger.Error("現在週番号の取得に失敗しました",
			slog.String("api_id", apiID),
			slog.String("timetable_id", timetable.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	sched.Recurrence = &model.Recurrence{
		Interval:      interval,
		CurrentNumber: currentNumber,
	}
	sched.Events = events

	n.logger.Info("繰り返し情報を合成しました",
		slog.String("api_id", apiID),
		slog.String("timetable_id", timetable.ID),
		slog.Int("interval", interval),
		slog.Int("current_number", currentNumber),
		slog.Int("event_count", len(events)),
	)

	return sched, nil
}

// hasStructuredRecurrence は上流が構造化された繰り返し情報を持つかを判定する。
func hasStructuredRecurrence(raw *university.ScheduleDTO) bool {
	if raw.PeriodicContent == nil || raw.PeriodicContent.Recurrence == nil {
		return false
	}
	rec := raw.PeriodicContent.Recurrence
	return rec.Interval != nil && *rec.Interval >= 1 && rec.CurrentNumber != nil
}

// convertEvents は生のイベントDTO群を内部モデルへ変換する。
// 開始日時を持たないイベントはここで除外される。
func convertEvents(dtos []university.EventDTO) []*model.Event {
	events := make([]*model.Event, 0, len(dtos))
	for _, dto := range dtos {
		ev := dto.ToModel()
		if ev == nil {
			continue
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartsAt.Before(events[j].StartsAt)
	})
	return events
}
