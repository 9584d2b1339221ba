// Package university は大学の時間割APIのクライアントを提供する。
// 生のDTOから内部モデルへの検証付き変換もこのパッケージが担う。
package university

import (
	"time"

	"github.com/hitoshi/jikanwari/internal/model"
)

// TimetableDTO は大学APIが返す時間割メタデータの生の形。
// 上流のレスポンスは欠損フィールドが多いため、全フィールドをポインタで受ける。
type TimetableDTO struct {
	ID          *string `json:"id"`
	Name        *string `json:"name"`
	Type        *string `json:"type"`
	DownloadURL *string `json:"downloadUrl"`
	StartDate   *string `json:"startDate"` // "2006-01-02"
	EndDate     *string `json:"endDate"`
}

// timetableListResponse は時間割リストAPIのレスポンス。
type timetableListResponse struct {
	Timetables []TimetableDTO `json:"timetables"`
}

// ScheduleDTO は大学APIが返す時間割内容の生の形。
// periodicContentとnonPeriodicContentの両方が意味を持って埋まることは稀で、
// 種別の判定はTimetable側のtypeを正とする。
type ScheduleDTO struct {
	PeriodicContent    *ContentDTO `json:"periodicContent"`
	NonPeriodicContent *ContentDTO `json:"nonPeriodicContent"`
}

// ContentDTO は時間割内容の一方（周期・非周期）を表す。
type ContentDTO struct {
	Events     []EventDTO     `json:"events"`
	Recurrence *RecurrenceDTO `json:"recurrence"`
}

// RecurrenceDTO は上流が構造化された繰り返し情報を持つ場合のその形。
type RecurrenceDTO struct {
	Interval      *int `json:"interval"`
	CurrentNumber *int `json:"currentNumber"`
}

// EventDTO は大学APIが返すイベントの生の形。
type EventDTO struct {
	Name               *string          `json:"name"`
	TypeName           *string          `json:"typeName"`
	StartsAt           *time.Time       `json:"startsAt"`
	EndsAt             *time.Time       `json:"endsAt"`
	RecurrenceInterval *int             `json:"recurrenceInterval"`
	PeriodNumber       *int             `json:"periodNumber"`
	TimeSlot           *string          `json:"timeSlot"`
	Lecturers          []ParticipantDTO `json:"lecturers"`
	Rooms              []ParticipantDTO `json:"rooms"`
	Groups             []ParticipantDTO `json:"groups"`
}

// ParticipantDTO は教員・教室・グループの生の形。
type ParticipantDTO struct {
	ID   *string `json:"id"`
	Name *string `json:"name"`
	URL  *string `json:"url"`
	Hint *string `json:"hint"`
}

// currentWeekResponse は現在週番号APIのレスポンス。
type currentWeekResponse struct {
	Week *int `json:"week"`
}

// dateLayout は大学APIの日付フォーマット。
const dateLayout = "2006-01-02"

// ToModel はTimetableDTOを内部モデルに変換する。
// コアが依存するフィールド（id・種別・有効期間）が欠けている場合はnilを返し、
// 呼び出し側でそのDTOを除外する。
func (d TimetableDTO) ToModel() *model.Timetable {
	if d.ID == nil || *d.ID == "" || d.Type == nil {
		return nil
	}

	var ttype model.TimetableType
	switch *d.Type {
	case "periodic":
		ttype = model.TimetableTypePeriodic
	case "nonperiodic":
		ttype = model.TimetableTypeNonPeriodic
	case "session":
		ttype = model.TimetableTypeSession
	default:
		return nil
	}

	if d.StartDate == nil || d.EndDate == nil {
		return nil
	}
	start, err := time.Parse(dateLayout, *d.StartDate)
	if err != nil {
		return nil
	}
	end, err := time.Parse(dateLayout, *d.EndDate)
	if err != nil {
		return nil
	}

	tt := &model.Timetable{
		ID:        *d.ID,
		Type:      ttype,
		StartDate: start,
		EndDate:   end,
	}
	if d.Name != nil {
		tt.Name = *d.Name
	}
	if d.DownloadURL != nil {
		tt.DownloadURL = *d.DownloadURL
	}
	return tt
}

// ToModel はEventDTOを内部モデルに変換する。
// 開始日時を持たないイベントはコアに到達してはならないため、nilを返して除外する。
func (d EventDTO) ToModel() *model.Event {
	if d.StartsAt == nil {
		return nil
	}

	ev := &model.Event{
		StartsAt:  d.StartsAt.UTC(),
		Lecturers: convertParticipants(d.Lecturers),
		Rooms:     convertParticipants(d.Rooms),
		Groups:    convertParticipants(d.Groups),
	}
	if d.Name != nil {
		ev.Name = *d.Name
	}
	if d.TypeName != nil {
		ev.TypeName = *d.TypeName
	}
	if d.EndsAt != nil {
		ev.EndsAt = d.EndsAt.UTC()
	}
	if d.RecurrenceInterval != nil {
		ev.RecurrenceInterval = *d.RecurrenceInterval
	}
	if d.PeriodNumber != nil {
		ev.PeriodNumber = *d.PeriodNumber
	}
	if d.TimeSlot != nil {
		ev.TimeSlotLabel = *d.TimeSlot
	}
	return ev
}

// convertParticipants はParticipantDTOのリストを内部モデルに変換する。
// 名前を持たない要素は除外する。
func convertParticipants(dtos []ParticipantDTO) []model.Participant {
	if len(dtos) == 0 {
		return nil
	}
	out := make([]model.Participant, 0, len(dtos))
	for _, d := range dtos {
		if d.Name == nil || *d.Name == "" {
			continue
		}
		p := model.Participant{Name: *d.Name}
		if d.ID != nil {
			p.ID = *d.ID
		}
		if d.URL != nil {
			p.URL = *d.URL
		}
		if d.Hint != nil {
			p.Hint = *d.Hint
		}
		out = append(out, p)
	}
	return out
}
