package calendar

import "time"

// SlotDuration は1コマの授業時間。
// この長さと一致しないイベントには時限ラベルを付与しない。
const SlotDuration = 80 * time.Minute

// slotStarts は1日10コマの開始時刻（"HH:MM"）。
// 8:00開始・授業80分・休憩15分の95分ピッチで並ぶ。
var slotStarts = [...]string{
	"08:00", // 1限
	"09:35", // 2限
	"11:10", // 3限
	"12:45", // 4限
	"14:20", // 5限
	"15:55", // 6限
	"17:30", // 7限
	"19:05", // 8限
	"20:40", // 9限
	"22:15", // 10限
}

// slotLabels は時限ラベル。slotStartsと同じ並び。
var slotLabels = [...]string{
	"1限", "2限", "3限", "4限", "5限",
	"6限", "7限", "8限", "9限", "10限",
}

// TimeSlotLabel は開始・終了時刻から時限ラベル（「1限」〜「10限」）を導出する。
// 授業時間がちょうど80分でない場合、または開始時刻が既知の10コマの
// いずれとも一致しない場合は空文字列を返す。
func TimeSlotLabel(start, end time.Time) string {
	if end.Sub(start) != SlotDuration {
		return ""
	}

	hhmm := start.Format("15:04")
	for i, s := range slotStarts {
		if s == hhmm {
			return slotLabels[i]
		}
	}
	return ""
}
