package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/jikanwari/internal/model"
)

// ScheduleServiceInterface は時間割ハンドラーが必要とするサービスインターフェース。
type ScheduleServiceInterface interface {
	SubjectServiceInterface
	// SetDefaultSchedule は対象内のデフォルト時間割を切り替える。
	SetDefaultSchedule(ctx context.Context, subjectID, scheduleID int64) error
	// CreateCustomEvent はユーザー定義のイベントを時間割に追加する。
	CreateCustomEvent(ctx context.Context, subjectID, scheduleID int64, event *model.Event) (*model.Event, error)
}

// ScheduleHandler は時間割ビューとカスタムイベントのHTTPハンドラー。
type ScheduleHandler struct {
	service ScheduleServiceInterface

	// now はテストで差し替えるための現在時刻取得関数。
	now func() time.Time
}

// NewScheduleHandler はScheduleHandlerを生成する。
func NewScheduleHandler(service ScheduleServiceInterface) *ScheduleHandler {
	return &ScheduleHandler{
		service: service,
		now:     time.Now,
	}
}

// defaultScheduleRequest はデフォルト時間割切り替えリクエストのボディ。
type defaultScheduleRequest struct {
	ScheduleID int64 `json:"schedule_id"`
}

// createEventRequest はカスタムイベント作成リクエストのボディ。
type createEventRequest struct {
	ScheduleID         int64     `json:"schedule_id"` // 0ならデフォルト時間割
	Name               string    `json:"name"`
	TypeName           string    `json:"type_name"`
	StartsAt           time.Time `json:"starts_at"`
	EndsAt             time.Time `json:"ends_at"`
	RecurrenceInterval int       `json:"recurrence_interval"`
	PeriodNumber       int       `json:"period_number"`
	TimeSlotLabel      string    `json:"time_slot_label"`
}

// View は時間割の表示用データを返す。
// GET /api/subjects/{id}/schedule?schedule_id=N
func (h *ScheduleHandler) View(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := pathID(r, "id")
	if !ok {
		writeInvalidID(w)
		return
	}

	// schedule_idクエリパラメータは省略可能。省略時はデフォルト時間割。
	var scheduleID int64
	if raw := r.URL.Query().Get("schedule_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeInvalidID(w)
			return
		}
		scheduleID = parsed
	}

	view, err := h.service.ScheduleView(r.Context(), subjectID, scheduleID, h.now())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toViewDataResponse(view))
}

// SetDefault は対象内のデフォルト時間割を切り替える。
// PUT /api/subjects/{id}/schedule/default
func (h *ScheduleHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := pathID(r, "id")
	if !ok {
		writeInvalidID(w)
		return
	}

	var req defaultScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.SetDefaultSchedule(r.Context(), subjectID, req.ScheduleID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateEvent はカスタムイベントを作成する。
// POST /api/subjects/{id}/events
func (h *ScheduleHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := pathID(r, "id")
	if !ok {
		writeInvalidID(w)
		return
	}

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	event := &model.Event{
		Name:               req.Name,
		TypeName:           req.TypeName,
		StartsAt:           req.StartsAt,
		EndsAt:             req.EndsAt,
		RecurrenceInterval: req.RecurrenceInterval,
		PeriodNumber:       req.PeriodNumber,
		TimeSlotLabel:      req.TimeSlotLabel,
	}

	created, err := h.service.CreateCustomEvent(r.Context(), subjectID, req.ScheduleID, event)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toEventResponse(created))
}
