package model

import (
	"testing"
	"time"
)

// 周期イベントの内容キーは、同じ瞬間を別のタイムゾーンで保持していても
// 一致しなければならない。DBから読み戻した時刻はドライバのセッション
// タイムゾーンに依存するため、ここが崩れるとマージでIDと非表示フラグの
// 引き継ぎが全滅する。
func TestEventFingerprint_PeriodicStableAcrossLocations(t *testing.T) {
	utc := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	moscow := utc.In(time.FixedZone("MSK", 3*60*60))
	if !utc.Equal(moscow) {
		t.Fatal("テストの前提が崩れている: 同じ瞬間であること")
	}

	base := Event{
		Name:               "線形代数",
		TypeName:           "講義",
		RecurrenceInterval: 2,
		PeriodNumber:       1,
		Groups:             []Participant{{Name: "G-101"}},
	}

	inUTC := base
	inUTC.StartsAt = utc
	inMoscow := base
	inMoscow.StartsAt = moscow

	if inUTC.Fingerprint() != inMoscow.Fingerprint() {
		t.Error("同じ瞬間の周期イベントはロケーションに関わらず同じ内容キーになるべき")
	}
}

// 非周期イベントも同様にロケーション非依存であることを検証する。
func TestEventFingerprint_NonPeriodicStableAcrossLocations(t *testing.T) {
	utc := time.Date(2025, 12, 20, 10, 0, 0, 0, time.UTC)

	inUTC := Event{Name: "期末試験", TypeName: "試験", StartsAt: utc}
	inLocal := Event{Name: "期末試験", TypeName: "試験", StartsAt: utc.In(time.FixedZone("", 5*60*60+30*60))}

	if inUTC.Fingerprint() != inLocal.Fingerprint() {
		t.Error("同じ瞬間の非周期イベントはロケーションに関わらず同じ内容キーになるべき")
	}
}

// グループの並び順は上流レスポンスの都合で変わるため、内容キーに影響しない。
func TestEventFingerprint_GroupOrderInsensitive(t *testing.T) {
	start := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

	a := Event{Name: "英語", TypeName: "演習", StartsAt: start,
		Groups: []Participant{{Name: "G-101"}, {Name: "G-102"}}}
	b := Event{Name: "英語", TypeName: "演習", StartsAt: start,
		Groups: []Participant{{Name: "G-102"}, {Name: "G-101"}}}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("グループの並び順だけが異なるイベントは同じ内容キーになるべき")
	}
}

// 内容の異なるイベントは別の内容キーになる。
func TestEventFingerprint_DistinguishesContent(t *testing.T) {
	start := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	base := Event{Name: "物理", TypeName: "講義", StartsAt: start, RecurrenceInterval: 1}

	other := base
	other.PeriodNumber = 2
	if base.Fingerprint() == other.Fingerprint() {
		t.Error("周期内の位置が異なるイベントは別の内容キーになるべき")
	}

	shifted := base
	shifted.StartsAt = start.Add(95 * time.Minute)
	if base.Fingerprint() == shifted.Fingerprint() {
		t.Error("開始時刻が異なるイベントは別の内容キーになるべき")
	}
}
