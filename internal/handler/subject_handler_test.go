package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/jikanwari/internal/model"
	"github.com/hitoshi/jikanwari/internal/schedule"
)

// --- モック定義 ---

// mockSubjectService はScheduleServiceInterfaceのモック実装。
type mockSubjectService struct {
	listSubjectsFn       func(ctx context.Context) ([]*model.Subject, error)
	getSubjectFn         func(ctx context.Context, id int64) (*model.Subject, error)
	createSubjectFn      func(ctx context.Context, name, apiID string, subjectType model.SubjectType) (*model.Subject, error)
	renameSubjectFn      func(ctx context.Context, id int64, name string) (*model.Subject, error)
	setDefaultSubjectFn  func(ctx context.Context, id int64) error
	deleteSubjectFn      func(ctx context.Context, id int64) error
	refreshFn            func(ctx context.Context, id int64) (*model.SubjectSchedule, error)
	scheduleViewFn       func(ctx context.Context, subjectID, scheduleID int64, now time.Time) (*schedule.ViewData, error)
	setDefaultScheduleFn func(ctx context.Context, subjectID, scheduleID int64) error
	createCustomEventFn  func(ctx context.Context, subjectID, scheduleID int64, event *model.Event) (*model.Event, error)
}

func (m *mockSubjectService) ListSubjects(ctx context.Context) ([]*model.Subject, error) {
	if m.listSubjectsFn != nil {
		return m.listSubjectsFn(ctx)
	}
	return nil, nil
}

func (m *mockSubjectService) GetSubject(ctx context.Context, id int64) (*model.Subject, error) {
	if m.getSubjectFn != nil {
		return m.getSubjectFn(ctx, id)
	}
	return nil, model.NewSubjectNotFoundError(id)
}

func (m *mockSubjectService) CreateSubject(ctx context.Context, name, apiID string, subjectType model.SubjectType) (*model.Subject, error) {
	if m.createSubjectFn != nil {
		return m.createSubjectFn(ctx, name, apiID, subjectType)
	}
	return nil, nil
}

func (m *mockSubjectService) RenameSubject(ctx context.Context, id int64, name string) (*model.Subject, error) {
	if m.renameSubjectFn != nil {
		return m.renameSubjectFn(ctx, id, name)
	}
	return nil, nil
}

func (m *mockSubjectService) SetDefaultSubject(ctx context.Context, id int64) error {
	if m.setDefaultSubjectFn != nil {
		return m.setDefaultSubjectFn(ctx, id)
	}
	return nil
}

func (m *mockSubjectService) DeleteSubject(ctx context.Context, id int64) error {
	if m.deleteSubjectFn != nil {
		return m.deleteSubjectFn(ctx, id)
	}
	return nil
}

func (m *mockSubjectService) Refresh(ctx context.Context, id int64) (*model.SubjectSchedule, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSubjectService) ScheduleView(ctx context.Context, subjectID, scheduleID int64, now time.Time) (*schedule.ViewData, error) {
	if m.scheduleViewFn != nil {
		return m.scheduleViewFn(ctx, subjectID, scheduleID, now)
	}
	return nil, nil
}

func (m *mockSubjectService) SetDefaultSchedule(ctx context.Context, subjectID, scheduleID int64) error {
	if m.setDefaultScheduleFn != nil {
		return m.setDefaultScheduleFn(ctx, subjectID, scheduleID)
	}
	return nil
}

func (m *mockSubjectService) CreateCustomEvent(ctx context.Context, subjectID, scheduleID int64, event *model.Event) (*model.Event, error) {
	if m.createCustomEventFn != nil {
		return m.createCustomEventFn(ctx, subjectID, scheduleID, event)
	}
	return nil, nil
}

// newSubjectRequest はchiのURLパラメータ付きリクエストを生成する。
func newSubjectRequest(method, target, id string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if id != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	return req
}

// --- テスト ---

// TestSubjectHandler_List は一覧取得を検証する。
func TestSubjectHandler_List(t *testing.T) {
	svc := &mockSubjectService{
		listSubjectsFn: func(ctx context.Context) ([]*model.Subject, error) {
			return []*model.Subject{
				{ID: 1, Name: "G-101", Type: model.SubjectTypeGroup, IsDefault: true},
				{ID: 2, Name: "Ivanov Ivan Ivanovich", ShortName: "Ivanov I.I.", Type: model.SubjectTypePerson},
			}, nil
		},
	}
	h := NewSubjectHandler(svc)

	w := httptest.NewRecorder()
	h.List(w, newSubjectRequest(http.MethodGet, "/api/subjects", "", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp []subjectResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("件数 = %d, want 2", len(resp))
	}
	if !resp[0].IsDefault || resp[0].Name != "G-101" {
		t.Errorf("先頭の対象が想定と異なる: %+v", resp[0])
	}
	if resp[1].ShortName != "Ivanov I.I." {
		t.Errorf("short_name = %q, want %q", resp[1].ShortName, "Ivanov I.I.")
	}
}

// TestSubjectHandler_Create は作成の201レスポンスを検証する。
func TestSubjectHandler_Create(t *testing.T) {
	svc := &mockSubjectService{
		createSubjectFn: func(ctx context.Context, name, apiID string, subjectType model.SubjectType) (*model.Subject, error) {
			return &model.Subject{ID: 5, Name: name, ShortName: name, APIID: apiID, Type: subjectType}, nil
		},
	}
	h := NewSubjectHandler(svc)

	body, _ := json.Marshal(createSubjectRequest{Name: "G-101", APIID: "group-1", Type: "group"})
	w := httptest.NewRecorder()
	h.Create(w, newSubjectRequest(http.MethodPost, "/api/subjects", "", body))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	var resp subjectResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.ID != 5 || resp.Type != "group" {
		t.Errorf("レスポンスが想定と異なる: %+v", resp)
	}
}

// TestSubjectHandler_Create_Duplicate は重複エラーが409になることを検証する。
func TestSubjectHandler_Create_Duplicate(t *testing.T) {
	svc := &mockSubjectService{
		createSubjectFn: func(ctx context.Context, name, apiID string, subjectType model.SubjectType) (*model.Subject, error) {
			return nil, model.NewDuplicateSubjectError(name)
		},
	}
	h := NewSubjectHandler(svc)

	body, _ := json.Marshal(createSubjectRequest{Name: "G-101", APIID: "group-1", Type: "group"})
	w := httptest.NewRecorder()
	h.Create(w, newSubjectRequest(http.MethodPost, "/api/subjects", "", body))

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}

	var resp apiErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Code != model.ErrCodeDuplicateSubject {
		t.Errorf("code = %q, want DUPLICATE_SUBJECT", resp.Code)
	}
}

// TestSubjectHandler_Create_InvalidBody は不正JSONが400になることを検証する。
func TestSubjectHandler_Create_InvalidBody(t *testing.T) {
	h := NewSubjectHandler(&mockSubjectService{})

	w := httptest.NewRecorder()
	h.Create(w, newSubjectRequest(http.MethodPost, "/api/subjects", "", []byte("{broken")))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

// TestSubjectHandler_Get_NotFound は404マッピングを検証する。
func TestSubjectHandler_Get_NotFound(t *testing.T) {
	h := NewSubjectHandler(&mockSubjectService{})

	w := httptest.NewRecorder()
	h.Get(w, newSubjectRequest(http.MethodGet, "/api/subjects/42", "42", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	var resp apiErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Code != model.ErrCodeSubjectNotFound {
		t.Errorf("code = %q, want SUBJECT_NOT_FOUND", resp.Code)
	}
}

// TestSubjectHandler_Get_InvalidID は数値でないIDが400になることを検証する。
func TestSubjectHandler_Get_InvalidID(t *testing.T) {
	h := NewSubjectHandler(&mockSubjectService{})

	w := httptest.NewRecorder()
	h.Get(w, newSubjectRequest(http.MethodGet, "/api/subjects/abc", "abc", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

// TestSubjectHandler_Refresh_UpstreamFailure は上流エラーが502になることを検証する。
func TestSubjectHandler_Refresh_UpstreamFailure(t *testing.T) {
	svc := &mockSubjectService{
		refreshFn: func(ctx context.Context, id int64) (*model.SubjectSchedule, error) {
			return nil, model.NewHTTPError(http.StatusBadGateway, "大学APIがエラーを返しました")
		},
	}
	h := NewSubjectHandler(svc)

	w := httptest.NewRecorder()
	h.Refresh(w, newSubjectRequest(http.MethodPost, "/api/subjects/1/refresh", "1", nil))

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
}

// TestSubjectHandler_Refresh はマージ後の内容が返ることを検証する。
func TestSubjectHandler_Refresh(t *testing.T) {
	svc := &mockSubjectService{
		refreshFn: func(ctx context.Context, id int64) (*model.SubjectSchedule, error) {
			return &model.SubjectSchedule{
				Subject: &model.Subject{ID: id, Name: "G-101", Type: model.SubjectTypeGroup},
				Schedules: []*model.Schedule{
					{ID: 3, SubjectID: id, TimetableID: "tt-1", Name: "秋学期", IsDefault: true,
						Recurrence: &model.Recurrence{Interval: 2, CurrentNumber: 1, FirstWeekNumber: 1}},
				},
			}, nil
		},
	}
	h := NewSubjectHandler(svc)

	w := httptest.NewRecorder()
	h.Refresh(w, newSubjectRequest(http.MethodPost, "/api/subjects/1/refresh", "1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp subjectScheduleResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if len(resp.Schedules) != 1 || resp.Schedules[0].Recurrence == nil {
		t.Fatalf("時間割が想定と異なる: %+v", resp.Schedules)
	}
	if resp.Schedules[0].Recurrence.Interval != 2 {
		t.Errorf("interval = %d, want 2", resp.Schedules[0].Recurrence.Interval)
	}
}

// TestSubjectHandler_Delete は204レスポンスを検証する。
func TestSubjectHandler_Delete(t *testing.T) {
	var deletedID int64
	svc := &mockSubjectService{
		deleteSubjectFn: func(ctx context.Context, id int64) error {
			deletedID = id
			return nil
		},
	}
	h := NewSubjectHandler(svc)

	w := httptest.NewRecorder()
	h.Delete(w, newSubjectRequest(http.MethodDelete, "/api/subjects/7", "7", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if deletedID != 7 {
		t.Errorf("deletedID = %d, want 7", deletedID)
	}
}
