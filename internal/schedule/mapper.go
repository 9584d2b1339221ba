package schedule

import (
	"time"

	"github.com/hitoshi/jikanwari/internal/calendar"
	"github.com/hitoshi/jikanwari/internal/model"
)

// Mapper は正規化済みScheduleを永続化可能な形に仕上げる。
// デフォルト時間割の決定とRecurrenceのFirstWeekNumberの確定を担う。
type Mapper struct {
	now func() time.Time // テストで差し替えるため関数として保持する
}

// NewMapper はMapperの新しいインスタンスを生成する。
func NewMapper() *Mapper {
	return &Mapper{now: time.Now}
}

// Map は1つの正規化済みScheduleを永続化形に変換する。
// subjectIDは所有Subjectの永続化ID（未保存なら0）、indexは兄弟時間割の中での
// 位置（上流の並び順）を表す。利用可能なイベントが1つもないScheduleは
// 永続化しないためnilを返す。
func (m *Mapper) Map(sched *model.Schedule, subjectID int64, index int) *model.Schedule {
	if sched == nil {
		return nil
	}

	events := make([]*model.Event, 0, len(sched.Events))
	for _, ev := range sched.Events {
		if ev.StartsAt.IsZero() {
			continue
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil
	}

	sched.Events = events
	sched.SubjectID = subjectID
	// 上流が最初に返した時間割がこのSubjectのデフォルトになる
	sched.IsDefault = index == 0

	if sched.Recurrence != nil {
		sched.Recurrence.FirstWeekNumber = m.firstWeekNumber(sched)
	}

	return sched
}

// firstWeekNumber はRecurrenceのFirstWeekNumberを確定する。
// 開始日が過去の場合は、経過した週数だけ大学側の「現在週番号」を前方に
// 巻き戻して位相を合わせる。これにより以後のCurrentPeriodNumber計算が
// 「現在週」を毎回取得し直すことなく正しく位相整合する。
// 開始日が未来の場合は補正不要でCurrentNumberをそのまま使う。
func (m *Mapper) firstWeekNumber(sched *model.Schedule) int {
	rec := sched.Recurrence
	today := m.now()

	if !today.After(sched.StartDate) {
		return rec.CurrentNumber
	}
	if rec.Interval <= 1 {
		return 1
	}

	weeks := calendar.WeeksBetweenFirstDays(sched.StartDate, today)
	return (weeks+rec.CurrentNumber)%rec.Interval + 1
}
