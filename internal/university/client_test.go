package university

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/jikanwari/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// 時間割リストの取得と不正DTOの除外を検証
func TestClient_FetchTimetables(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/timetables" {
			t.Errorf("path = %s, want /timetables", r.URL.Path)
		}
		if got := r.URL.Query().Get("subject"); got != "group-101" {
			t.Errorf("subject = %s, want group-101", got)
		}
		if got := r.URL.Query().Get("type"); got != "group" {
			t.Errorf("type = %s, want group", got)
		}

		resp := timetableListResponse{
			Timetables: []TimetableDTO{
				{
					ID:        strPtr("tt-1"),
					Name:      strPtr("前期"),
					Type:      strPtr("periodic"),
					StartDate: strPtr("2025-09-01"),
					EndDate:   strPtr("2026-01-25"),
				},
				{
					// IDなし: 除外されるべき
					Name:      strPtr("壊れた時間割"),
					Type:      strPtr("periodic"),
					StartDate: strPtr("2025-09-01"),
					EndDate:   strPtr("2026-01-25"),
				},
				{
					ID:        strPtr("tt-2"),
					Name:      strPtr("試験期間"),
					Type:      strPtr("session"),
					StartDate: strPtr("2026-01-26"),
					EndDate:   strPtr("2026-02-08"),
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	timetables, err := c.FetchTimetables(context.Background(), "group-101", model.SubjectTypeGroup)
	if err != nil {
		t.Fatalf("FetchTimetables がエラーを返した: %v", err)
	}

	if len(timetables) != 2 {
		t.Fatalf("時間割数 = %d, want 2（不正DTOは除外）", len(timetables))
	}
	if timetables[0].ID != "tt-1" {
		t.Errorf("timetables[0].ID = %q, want %q", timetables[0].ID, "tt-1")
	}
	if timetables[1].Type != model.TimetableTypeSession {
		t.Errorf("timetables[1].Type = %q, want %q", timetables[1].Type, model.TimetableTypeSession)
	}
}

// 非2xxレスポンスがHTTP_ERRORに分類されることを検証
func TestClient_FetchTimetables_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	_, err := c.FetchTimetables(context.Background(), "missing", model.SubjectTypeGroup)
	if err == nil {
		t.Fatal("エラーが返るべき")
	}
	if code := model.CodeOf(err); code != model.ErrCodeHTTP {
		t.Errorf("エラーコード = %s, want %s", code, model.ErrCodeHTTP)
	}
}

// 壊れたJSONがSERIALIZATION_ERRORに分類されることを検証
func TestClient_FetchSchedule_SerializationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	_, err := c.FetchSchedule(context.Background(), "group-101", model.SubjectTypeGroup, "tt-1")
	if err == nil {
		t.Fatal("エラーが返るべき")
	}
	if code := model.CodeOf(err); code != model.ErrCodeSerialization {
		t.Errorf("エラーコード = %s, want %s", code, model.ErrCodeSerialization)
	}
}

// 接続不能がNETWORK_ERRORに分類されることを検証
func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close() // 即座に閉じて接続失敗させる

	var buf bytes.Buffer
	c := NewClient(http.DefaultClient, serverURL, newTestLogger(&buf))

	_, err := c.FetchTimetables(context.Background(), "group-101", model.SubjectTypeGroup)
	if err == nil {
		t.Fatal("エラーが返るべき")
	}
	if code := model.CodeOf(err); code != model.ErrCodeNetwork {
		t.Errorf("エラーコード = %s, want %s", code, model.ErrCodeNetwork)
	}
	if !model.IsRetryable(err) {
		t.Error("ネットワークエラーは再試行可能であるべき")
	}
}

// 現在週番号の取得と欠落時のエラーを検証
func TestClient_FetchCurrentWeekNumber(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/current-week" {
			t.Errorf("path = %s, want /current-week", r.URL.Path)
		}
		if got := r.URL.Query().Get("date"); got != "2025-09-01" {
			t.Errorf("date = %s, want 2025-09-01", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"week": 2})
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	start := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	week, err := c.FetchCurrentWeekNumber(context.Background(), "group-101", start, model.TimetableTypePeriodic)
	if err != nil {
		t.Fatalf("FetchCurrentWeekNumber がエラーを返した: %v", err)
	}
	if week != 2 {
		t.Errorf("week = %d, want 2", week)
	}
}

func TestClient_FetchCurrentWeekNumber_Missing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	_, err := c.FetchCurrentWeekNumber(context.Background(), "group-101", time.Now(), model.TimetableTypePeriodic)
	if err == nil {
		t.Fatal("エラーが返るべき")
	}
	if code := model.CodeOf(err); code != model.ErrCodeSerialization {
		t.Errorf("エラーコード = %s, want %s", code, model.ErrCodeSerialization)
	}
}

// EventDTOの変換で開始日時なしイベントが除外されることを検証
func TestEventDTO_ToModel_DropsMissingStart(t *testing.T) {
	start := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(80 * time.Minute)

	valid := EventDTO{
		Name:     strPtr("データベース論"),
		TypeName: strPtr("講義"),
		StartsAt: &start,
		EndsAt:   &end,
		Groups:   []ParticipantDTO{{Name: strPtr("G-101")}},
	}
	if ev := valid.ToModel(); ev == nil {
		t.Fatal("開始日時を持つイベントは変換されるべき")
	}

	broken := EventDTO{Name: strPtr("開始なし")}
	if ev := broken.ToModel(); ev != nil {
		t.Error("開始日時のないイベントはnilになるべき")
	}
}
