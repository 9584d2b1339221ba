package schedule

import (
	"sort"
	"time"

	"github.com/hitoshi/jikanwari/internal/calendar"
	"github.com/hitoshi/jikanwari/internal/model"
)

// eveningCutoffHour は「今日」のレビューを翌日に繰り越す夕方の基準時刻。
// 授業のない日にこの時刻を過ぎたら、翌日の予定を表示する。
const eveningCutoffHour = 19

// dateKeyLayout は非周期イベントの日付グルーピングに使うキーのフォーマット。
const dateKeyLayout = "2006-01-02"

// ViewData は1つのScheduleから導出されたUI非依存の表示用データ。
// 副作用を持たない純粋な導出結果であり、永続化されない。
type ViewData struct {
	ScheduleID  int64
	Periodic    bool
	HiddenCount int

	// WeeksByNumber は周期時間割の週番号→曜日→イベントのグルーピング。
	// 毎週のイベント（interval=1）は全ての週に現れる。
	WeeksByNumber map[int]map[time.Weekday][]*model.Event

	// DayKeys / DaysByDate は非周期時間割の日付ごとのグルーピング。
	// DayKeysは昇順にソートされた日付キー（"2006-01-02"）。
	DayKeys    []string
	DaysByDate map[string][]*model.Event

	// ページャの初期位置
	DefaultDate    time.Time
	WeekPagerIndex int
	DayPagerIndex  int

	Review Review
}

// Review は「今日（または翌日）の予定」の集計結果。
type Review struct {
	// Date は表示対象の日。今日の授業が全て終わっている場合や、
	// 授業のない日に夕方を過ぎた場合は翌日になる。
	Date time.Time
	// Events は表示対象日の可視イベント。
	Events []*model.Event
	// WeekEventCount は表示対象日を含む週のイベント数（開始時刻で重複除去済み）。
	WeekEventCount int
}

// BuildViewData はScheduleから表示用データを導出する。
func BuildViewData(sched *model.Schedule, now time.Time) *ViewData {
	vd := &ViewData{
		ScheduleID: sched.ID,
		Periodic:   sched.IsPeriodic(),
	}

	visible := make([]*model.Event, 0, len(sched.Events))
	for _, ev := range sched.Events {
		if ev.Hidden {
			vd.HiddenCount++
			continue
		}
		visible = append(visible, ev)
	}

	if vd.Periodic {
		vd.WeeksByNumber = groupByWeekAndDay(visible, sched.Recurrence.Interval)
	} else {
		vd.DaysByDate = make(map[string][]*model.Event)
		for _, ev := range visible {
			key := ev.StartsAt.Format(dateKeyLayout)
			vd.DaysByDate[key] = append(vd.DaysByDate[key], ev)
		}
		vd.DayKeys = make([]string, 0, len(vd.DaysByDate))
		for key := range vd.DaysByDate {
			vd.DayKeys = append(vd.DayKeys, key)
		}
		sort.Strings(vd.DayKeys)
	}

	vd.DefaultDate, vd.WeekPagerIndex, vd.DayPagerIndex = pagerPosition(sched, now)
	vd.Review = buildReview(sched, visible, now)

	return vd
}

// groupByWeekAndDay は可視イベントを週番号×曜日でグルーピングする。
// intervalが1のイベントは毎週発生するため全ての週に含める。
func groupByWeekAndDay(events []*model.Event, interval int) map[int]map[time.Weekday][]*model.Event {
	weeks := make(map[int]map[time.Weekday][]*model.Event, interval)
	for week := 1; week <= interval; week++ {
		days := make(map[time.Weekday][]*model.Event)
		for _, ev := range events {
			if ev.RecurrenceInterval != 1 && ev.PeriodNumber != week {
				continue
			}
			day := ev.StartsAt.Weekday()
			days[day] = append(days[day], ev)
		}
		weeks[week] = days
	}
	return weeks
}

// pagerPosition はページャのデフォルト位置を計算する。
// 今日が有効期間内なら開始日からの経過週・経過日、開始前なら先頭、
// 終了後なら最終ページを返す。
func pagerPosition(sched *model.Schedule, now time.Time) (time.Time, int, int) {
	switch {
	case now.Before(sched.StartDate):
		return sched.StartDate, 0, 0
	case now.After(sched.EndDate):
		lastWeek := calendar.WeeksBetweenFirstDays(sched.StartDate, sched.EndDate)
		lastDay := calendar.DaysBetweenDates(sched.StartDate, sched.EndDate)
		return sched.EndDate, lastWeek, lastDay
	default:
		week := calendar.WeeksBetweenFirstDays(sched.StartDate, now)
		day := calendar.DaysBetweenDates(sched.StartDate, now)
		return now, week, day
	}
}

// buildReview は「今日の予定」集計を構築する。
// 今日の授業が全て終わっている場合、または授業のない日に夕方の基準時刻を
// 過ぎた場合は翌日に繰り越す。
func buildReview(sched *model.Schedule, visible []*model.Event, now time.Time) Review {
	date := now
	events := eventsOnDate(sched, visible, date)

	rollover := false
	if len(events) > 0 {
		last := events[len(events)-1]
		if now.After(occurrenceEnd(last, date)) {
			rollover = true
		}
	} else if now.Hour() >= eveningCutoffHour {
		rollover = true
	}

	if rollover {
		date = now.AddDate(0, 0, 1)
		events = eventsOnDate(sched, visible, date)
	}

	return Review{
		Date:           date,
		Events:         events,
		WeekEventCount: weekEventCount(sched, visible, date),
	}
}

// eventsOnDate は指定日に発生する可視イベントを開始時刻順で返す。
// 周期時間割では指定日の週番号と曜日で照合し、非周期時間割では暦日で照合する。
func eventsOnDate(sched *model.Schedule, visible []*model.Event, date time.Time) []*model.Event {
	var events []*model.Event

	if sched.IsPeriodic() {
		period := calendar.CurrentPeriodNumber(date, sched.StartDate, sched.Recurrence)
		for _, ev := range visible {
			if ev.StartsAt.Weekday() != date.Weekday() {
				continue
			}
			if ev.RecurrenceInterval != 1 && ev.PeriodNumber != period {
				continue
			}
			events = append(events, ev)
		}
	} else {
		for _, ev := range visible {
			if calendar.SameDate(ev.StartsAt, date) {
				events = append(events, ev)
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return clockMinutes(events[i].StartsAt) < clockMinutes(events[j].StartsAt)
	})
	return events
}

// weekEventCount は指定日を含む週のイベント数を返す。
// 周期時間割ではその週番号のイベント、非周期時間割では同一暦週のイベントを数え、
// 同じ開始時刻のイベントは1つとして数える。
func weekEventCount(sched *model.Schedule, visible []*model.Event, date time.Time) int {
	seen := make(map[string]bool)

	if sched.IsPeriodic() {
		period := calendar.CurrentPeriodNumber(date, sched.StartDate, sched.Recurrence)
		for _, ev := range visible {
			if ev.RecurrenceInterval != 1 && ev.PeriodNumber != period {
				continue
			}
			key := ev.StartsAt.Weekday().String() + ev.StartsAt.Format("15:04")
			seen[key] = true
		}
		return len(seen)
	}

	weekStart := calendar.FirstDayOfWeek(date)
	for _, ev := range visible {
		if !calendar.FirstDayOfWeek(ev.StartsAt).Equal(weekStart) {
			continue
		}
		seen[ev.StartsAt.Format(time.RFC3339)] = true
	}
	return len(seen)
}

// occurrenceEnd はイベントが指定日に発生した場合の終了時刻を返す。
// 周期イベントのStartsAt/EndsAtはパターン上の雛形日時のため、
// 時刻部分だけを指定日に写して使う。
func occurrenceEnd(ev *model.Event, date time.Time) time.Time {
	if ev.RecurrenceInterval > 0 {
		return time.Date(date.Year(), date.Month(), date.Day(),
			ev.EndsAt.Hour(), ev.EndsAt.Minute(), 0, 0, date.Location())
	}
	return ev.EndsAt
}

// clockMinutes は時刻部分を分単位の整数に変換する。
func clockMinutes(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
