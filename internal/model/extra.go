// Package model はドメインモデルを定義する。
package model

import "time"

// TagMax はタグの最大値。0はタグなしを表す。
const TagMax = 8

// EventExtra はイベントに対するユーザー注釈（コメント・タグ）を表す。
// イベントIDをキーとするため、マージでイベントIDが維持される限り注釈も生き残る。
// コメントとタグの両方が空に戻った時点で行ごと削除される。
type EventExtra struct {
	EventID int64
	Comment string // 空文字列はコメントなし
	Tag     int    // 0〜8。0はタグなし。

	// 表示用の非正規化コピー。JOINなしで一覧表示するために保持する。
	EventName     string
	EventStartsAt time.Time
}

// IsEmpty はコメント・タグがともに空であるかを返す。
// trueの場合、この注釈行は削除対象になる。
func (x *EventExtra) IsEmpty() bool {
	return x.Comment == "" && x.Tag == 0
}

// ValidTag はタグ値が許容範囲（0〜TagMax）に収まっているかを検証する。
func ValidTag(tag int) bool {
	return tag >= 0 && tag <= TagMax
}
