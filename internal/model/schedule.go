// Package model はドメインモデルを定義する。
package model

import "time"

// TimetableType は大学APIが配信する時間割の種別を表す。
type TimetableType string

const (
	// TimetableTypePeriodic はN週周期で繰り返す時間割（通常学期）。
	TimetableTypePeriodic TimetableType = "periodic"
	// TimetableTypeNonPeriodic は繰り返しを持たない時間割。
	TimetableTypeNonPeriodic TimetableType = "nonperiodic"
	// TimetableTypeSession は試験期間の時間割。非周期として扱う。
	TimetableTypeSession TimetableType = "session"
)

// Timetable は大学APIが返す時間割メタデータを表す。
// 1つのSubjectは複数の時間割（学期・試験期間・補講など）を持ちうる。
type Timetable struct {
	ID          string
	Name        string
	Type        TimetableType
	DownloadURL string // 外部文書（PDF等）のダウンロードURL
	StartDate   time.Time
	EndDate     time.Time
}

// Recurrence はN週周期の繰り返しパターンと位相情報を表す。
type Recurrence struct {
	// Interval は繰り返しパターンに含まれる週の数（1以上）。
	Interval int
	// CurrentNumber は取得時点で大学側が「現在」とみなす週番号。
	CurrentNumber int
	// FirstWeekNumber はStartDateの週に対応する週番号。
	// 大学APIからは受け取らず、マッパーが導出する。
	FirstWeekNumber int
}

// Schedule は1つの時間割を正規化・永続化した内容を表す。
// 周期時間割の場合のみRecurrenceを持つ。
type Schedule struct {
	ID          int64
	SubjectID   int64
	TimetableID string // 大学API側の時間割識別子
	Name        string
	Type        TimetableType
	DownloadURL string
	StartDate   time.Time
	EndDate     time.Time
	Recurrence  *Recurrence
	IsDefault   bool
	Events      []*Event
}

// IsPeriodic は周期時間割かどうかを返す。
func (s *Schedule) IsPeriodic() bool {
	return s.Recurrence != nil
}

// SubjectSchedule はSubjectとその全Scheduleをまとめた集約。
// フェッチオーケストレータの出力であり、マージエンジンの入力でもある。
type SubjectSchedule struct {
	Subject   *Subject
	Schedules []*Schedule
}
