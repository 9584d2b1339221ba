package handler

import (
	"sort"
	"time"

	"github.com/hitoshi/jikanwari/internal/model"
	"github.com/hitoshi/jikanwari/internal/schedule"
)

// subjectResponse は追跡対象のAPIレスポンス。
type subjectResponse struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	ShortName      string    `json:"short_name"`
	APIID          string    `json:"api_id,omitempty"`
	Type           string    `json:"type"`
	IsDefault      bool      `json:"is_default"`
	LastTimeUpdate time.Time `json:"last_time_update"`
}

func toSubjectResponse(s *model.Subject) subjectResponse {
	return subjectResponse{
		ID:             s.ID,
		Name:           s.Name,
		ShortName:      s.ShortName,
		APIID:          s.APIID,
		Type:           string(s.Type),
		IsDefault:      s.IsDefault,
		LastTimeUpdate: s.LastTimeUpdate,
	}
}

// recurrenceResponse は周期時間割の繰り返し情報のAPIレスポンス。
type recurrenceResponse struct {
	Interval        int `json:"interval"`
	CurrentNumber   int `json:"current_number"`
	FirstWeekNumber int `json:"first_week_number"`
}

// participantResponse はイベントの教員・教室・グループのAPIレスポンス。
type participantResponse struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
	Hint string `json:"hint,omitempty"`
}

func toParticipantResponses(ps []model.Participant) []participantResponse {
	if len(ps) == 0 {
		return nil
	}
	out := make([]participantResponse, len(ps))
	for i, p := range ps {
		out[i] = participantResponse{ID: p.ID, Name: p.Name, URL: p.URL, Hint: p.Hint}
	}
	return out
}

// eventResponse はイベントのAPIレスポンス。
type eventResponse struct {
	ID                 int64                 `json:"id"`
	ScheduleID         int64                 `json:"schedule_id"`
	Name               string                `json:"name"`
	TypeName           string                `json:"type_name,omitempty"`
	StartsAt           time.Time             `json:"starts_at"`
	EndsAt             time.Time             `json:"ends_at"`
	Hidden             bool                  `json:"hidden"`
	IsCustom           bool                  `json:"is_custom"`
	RecurrenceInterval int                   `json:"recurrence_interval,omitempty"`
	PeriodNumber       int                   `json:"period_number,omitempty"`
	TimeSlotLabel      string                `json:"time_slot_label,omitempty"`
	Lecturers          []participantResponse `json:"lecturers,omitempty"`
	Rooms              []participantResponse `json:"rooms,omitempty"`
	Groups             []participantResponse `json:"groups,omitempty"`
}

func toEventResponse(ev *model.Event) eventResponse {
	return eventResponse{
		ID:                 ev.ID,
		ScheduleID:         ev.ScheduleID,
		Name:               ev.Name,
		TypeName:           ev.TypeName,
		StartsAt:           ev.StartsAt,
		EndsAt:             ev.EndsAt,
		Hidden:             ev.Hidden,
		IsCustom:           ev.IsCustom,
		RecurrenceInterval: ev.RecurrenceInterval,
		PeriodNumber:       ev.PeriodNumber,
		TimeSlotLabel:      ev.TimeSlotLabel,
		Lecturers:          toParticipantResponses(ev.Lecturers),
		Rooms:              toParticipantResponses(ev.Rooms),
		Groups:             toParticipantResponses(ev.Groups),
	}
}

func toEventResponses(events []*model.Event) []eventResponse {
	out := make([]eventResponse, len(events))
	for i, ev := range events {
		out[i] = toEventResponse(ev)
	}
	return out
}

// scheduleResponse は時間割のAPIレスポンス。
type scheduleResponse struct {
	ID          int64               `json:"id"`
	SubjectID   int64               `json:"subject_id"`
	TimetableID string              `json:"timetable_id"`
	Name        string              `json:"name"`
	Type        string              `json:"type"`
	DownloadURL string              `json:"download_url,omitempty"`
	StartDate   time.Time           `json:"start_date"`
	EndDate     time.Time           `json:"end_date"`
	Recurrence  *recurrenceResponse `json:"recurrence,omitempty"`
	IsDefault   bool                `json:"is_default"`
	Events      []eventResponse     `json:"events"`
}

func toScheduleResponse(s *model.Schedule) scheduleResponse {
	resp := scheduleResponse{
		ID:          s.ID,
		SubjectID:   s.SubjectID,
		TimetableID: s.TimetableID,
		Name:        s.Name,
		Type:        string(s.Type),
		DownloadURL: s.DownloadURL,
		StartDate:   s.StartDate,
		EndDate:     s.EndDate,
		IsDefault:   s.IsDefault,
		Events:      toEventResponses(s.Events),
	}
	if s.Recurrence != nil {
		resp.Recurrence = &recurrenceResponse{
			Interval:        s.Recurrence.Interval,
			CurrentNumber:   s.Recurrence.CurrentNumber,
			FirstWeekNumber: s.Recurrence.FirstWeekNumber,
		}
	}
	return resp
}

// subjectScheduleResponse は追跡対象と全時間割のAPIレスポンス。
type subjectScheduleResponse struct {
	Subject   subjectResponse    `json:"subject"`
	Schedules []scheduleResponse `json:"schedules"`
}

func toSubjectScheduleResponse(ss *model.SubjectSchedule) subjectScheduleResponse {
	schedules := make([]scheduleResponse, len(ss.Schedules))
	for i, s := range ss.Schedules {
		schedules[i] = toScheduleResponse(s)
	}
	return subjectScheduleResponse{
		Subject:   toSubjectResponse(ss.Subject),
		Schedules: schedules,
	}
}

// viewWeekDayResponse は周期ビューの1曜日分のイベント。
type viewWeekDayResponse struct {
	Weekday int             `json:"weekday"` // time.Weekday互換（0=日曜）
	Events  []eventResponse `json:"events"`
}

// viewWeekResponse は周期ビューの1週分。
type viewWeekResponse struct {
	WeekNumber int                   `json:"week_number"`
	Days       []viewWeekDayResponse `json:"days"`
}

// viewDayResponse は非周期ビューの1日分。
type viewDayResponse struct {
	Date   string          `json:"date"` // "2006-01-02"
	Events []eventResponse `json:"events"`
}

// viewReviewResponse は「今日（または翌日）の予定」のAPIレスポンス。
type viewReviewResponse struct {
	Date           string          `json:"date"`
	Events         []eventResponse `json:"events"`
	WeekEventCount int             `json:"week_event_count"`
}

// viewDataResponse は時間割ビューのAPIレスポンス。
type viewDataResponse struct {
	ScheduleID     int64              `json:"schedule_id"`
	Periodic       bool               `json:"periodic"`
	HiddenCount    int                `json:"hidden_count"`
	Weeks          []viewWeekResponse `json:"weeks,omitempty"`
	Days           []viewDayResponse  `json:"days,omitempty"`
	DefaultDate    string             `json:"default_date"`
	WeekPagerIndex int                `json:"week_pager_index"`
	DayPagerIndex  int                `json:"day_pager_index"`
	Review         viewReviewResponse `json:"review"`
}

const viewDateLayout = "2006-01-02"

func toViewDataResponse(vd *schedule.ViewData) viewDataResponse {
	resp := viewDataResponse{
		ScheduleID:     vd.ScheduleID,
		Periodic:       vd.Periodic,
		HiddenCount:    vd.HiddenCount,
		DefaultDate:    vd.DefaultDate.Format(viewDateLayout),
		WeekPagerIndex: vd.WeekPagerIndex,
		DayPagerIndex:  vd.DayPagerIndex,
		Review: viewReviewResponse{
			Date:           vd.Review.Date.Format(viewDateLayout),
			Events:         toEventResponses(vd.Review.Events),
			WeekEventCount: vd.Review.WeekEventCount,
		},
	}

	if vd.Periodic {
		weekNumbers := make([]int, 0, len(vd.WeeksByNumber))
		for week := range vd.WeeksByNumber {
			weekNumbers = append(weekNumbers, week)
		}
		sort.Ints(weekNumbers)

		for _, week := range weekNumbers {
			days := vd.WeeksByNumber[week]
			weekResp := viewWeekResponse{WeekNumber: week}
			for wd := time.Sunday; wd <= time.Saturday; wd++ {
				events, ok := days[wd]
				if !ok {
					continue
				}
				weekResp.Days = append(weekResp.Days, viewWeekDayResponse{
					Weekday: int(wd),
					Events:  toEventResponses(events),
				})
			}
			resp.Weeks = append(resp.Weeks, weekResp)
		}
		return resp
	}

	for _, key := range vd.DayKeys {
		resp.Days = append(resp.Days, viewDayResponse{
			Date:   key,
			Events: toEventResponses(vd.DaysByDate[key]),
		})
	}
	return resp
}

// extraResponse はイベントのメモ・タグのAPIレスポンス。
type extraResponse struct {
	EventID       int64     `json:"event_id"`
	Comment       string    `json:"comment"`
	Tag           int       `json:"tag"`
	EventName     string    `json:"event_name,omitempty"`
	EventStartsAt time.Time `json:"event_starts_at"`
}

func toExtraResponse(x *model.EventExtra) extraResponse {
	return extraResponse{
		EventID:       x.EventID,
		Comment:       x.Comment,
		Tag:           x.Tag,
		EventName:     x.EventName,
		EventStartsAt: x.EventStartsAt,
	}
}
