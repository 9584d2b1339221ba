package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/jikanwari/internal/model"
	"github.com/hitoshi/jikanwari/internal/schedule"
)

// SubjectServiceInterface は追跡対象ハンドラーが必要とするサービスインターフェース。
type SubjectServiceInterface interface {
	// ListSubjects は全追跡対象を返す。
	ListSubjects(ctx context.Context) ([]*model.Subject, error)
	// GetSubject は指定IDの追跡対象を返す。
	GetSubject(ctx context.Context, id int64) (*model.Subject, error)
	// CreateSubject は追跡対象を新規作成する。カスタム以外は大学APIから取得する。
	CreateSubject(ctx context.Context, name, apiID string, subjectType model.SubjectType) (*model.Subject, error)
	// RenameSubject は表示名を変更する。
	RenameSubject(ctx context.Context, id int64, name string) (*model.Subject, error)
	// SetDefaultSubject はデフォルトの追跡対象を切り替える。
	SetDefaultSubject(ctx context.Context, id int64) error
	// DeleteSubject は追跡対象を削除する。
	DeleteSubject(ctx context.Context, id int64) error
	// Refresh は大学APIから強制再取得してマージする。
	Refresh(ctx context.Context, id int64) (*model.SubjectSchedule, error)
	// ScheduleView は表示用データを構築する。
	ScheduleView(ctx context.Context, subjectID, scheduleID int64, now time.Time) (*schedule.ViewData, error)
}

// SubjectHandler は追跡対象管理のHTTPハンドラー。
type SubjectHandler struct {
	service SubjectServiceInterface
}

// NewSubjectHandler はSubjectHandlerを生成する。
func NewSubjectHandler(service SubjectServiceInterface) *SubjectHandler {
	return &SubjectHandler{service: service}
}

// createSubjectRequest は追跡対象作成リクエストのボディ。
type createSubjectRequest struct {
	Name  string `json:"name"`
	APIID string `json:"api_id"`
	Type  string `json:"type"`
}

// renameSubjectRequest は名前変更リクエストのボディ。
type renameSubjectRequest struct {
	Name string `json:"name"`
}

// pathID はパスパラメータ{id}をint64として取り出す。
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// List は追跡対象の一覧を返す。
// GET /api/subjects
func (h *SubjectHandler) List(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.service.ListSubjects(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]subjectResponse, len(subjects))
	for i, s := range subjects {
		resp[i] = toSubjectResponse(s)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Get は指定IDの追跡対象を返す。
// GET /api/subjects/{id}
func (h *SubjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeInvalidID(w)
		return
	}

	subject, err := h.service.GetSubject(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSubjectResponse(subject))
}

// Create は追跡対象を新規作成する。
// POST /api/subjects
func (h *SubjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	subject, err := h.service.CreateSubject(r.Context(), req.Name, req.APIID, model.SubjectType(req.Type))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toSubjectResponse(subject))
}

// Rename は追跡対象の表示名を変更する。
// PATCH /api/subjects/{id}
func (h *SubjectHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeInvalidID(w)
		return
	}

	var req renameSubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	subject, err := h.service.RenameSubject(r.Context(), id, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSubjectResponse(subject))
}

// SetDefault は指定対象をデフォルトにする。
// PUT /api/subjects/{id}/default
func (h *SubjectHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeInvalidID(w)
		return
	}

	if err := h.service.SetDefaultSubject(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete は追跡対象を削除する。
// DELETE /api/subjects/{id}
func (h *SubjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeInvalidID(w)
		return
	}

	if err := h.service.DeleteSubject(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Refresh は大学APIから時間割を強制再取得する。
// POST /api/subjects/{id}/refresh
func (h *SubjectHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeInvalidID(w)
		return
	}

	result, err := h.service.Refresh(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSubjectScheduleResponse(result))
}
