// Package model はドメインモデルを定義する。
package model

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Event は1回の授業・会合を表す。
type Event struct {
	ID         int64 // 永続化されるまでは0
	ScheduleID int64
	Name       string
	TypeName   string // 講義・演習・試験などの種別名
	StartsAt   time.Time
	EndsAt     time.Time
	Hidden     bool // ユーザーが非表示にしたイベント。削除はしない。
	IsCustom   bool // ユーザーが手動で作成したイベント

	// RecurrenceInterval は周期イベントの繰り返し間隔（週数）。
	// 非周期イベントでは0。
	RecurrenceInterval int
	// PeriodNumber はパターン内の何週目に発生するか。
	// RecurrenceIntervalが2以上の場合に必須。毎週のイベントでは0でもよい。
	PeriodNumber int

	TimeSlotLabel string // 「1限」〜「10限」。該当しない場合は空。

	Lecturers []Participant
	Rooms     []Participant
	Groups    []Participant
}

// Participant はイベントに紐づく教員・教室・グループのサブエンティティ。
type Participant struct {
	ID   string
	Name string
	URL  string
	Hint string
}

// Fingerprint はイベントの内容に基づく同一性キーを返す。
// データベースIDではなくこのキーがマージ時の照合に使われるため、
// ネットワーク・永続化の往復をまたいで安定でなければならない。
//
// 周期イベント: name | typeName | 曜日 | 開始時刻 | interval | periodNumber | groups
// 非周期イベント: name | typeName | 開始日時 | groups
func (e *Event) Fingerprint() string {
	var b strings.Builder
	b.WriteString(e.Name)
	b.WriteString("|")
	b.WriteString(e.TypeName)
	b.WriteString("|")

	// 同じ瞬間でもロケーションが異なればWeekdayやFormatの結果が変わるため、
	// 両分岐ともUTCに正規化してから文字列化する。
	start := e.StartsAt.UTC()
	if e.RecurrenceInterval > 0 {
		b.WriteString(start.Weekday().String())
		b.WriteString("|")
		b.WriteString(start.Format("15:04"))
		b.WriteString("|")
		b.WriteString(fmt.Sprintf("%d|%d", e.RecurrenceInterval, e.PeriodNumber))
	} else {
		b.WriteString(start.Format(time.RFC3339))
	}

	b.WriteString("|")
	b.WriteString(joinGroupNames(e.Groups))

	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", hash)
}

// joinGroupNames はグループ名をソートして連結する。
// 大学APIのレスポンス内での並び順に依存しないようにする。
func joinGroupNames(groups []Participant) string {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
