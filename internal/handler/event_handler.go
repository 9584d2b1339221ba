package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/jikanwari/internal/model"
)

// EventServiceInterface はイベントハンドラーが必要とするサービスインターフェース。
type EventServiceInterface interface {
	// SetEventHidden はイベントの表示・非表示を切り替える。
	SetEventHidden(ctx context.Context, eventID int64, hidden bool) error
	// GetEventExtra はイベントのメモ・タグを返す。
	GetEventExtra(ctx context.Context, eventID int64) (*model.EventExtra, error)
	// UpsertEventExtra はイベントのメモ・タグを保存する。
	UpsertEventExtra(ctx context.Context, eventID int64, comment string, tag int) (*model.EventExtra, error)
}

// EventHandler は個別イベント操作のHTTPハンドラー。
type EventHandler struct {
	service EventServiceInterface
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(service EventServiceInterface) *EventHandler {
	return &EventHandler{service: service}
}

// hiddenRequest は非表示切り替えリクエストのボディ。
type hiddenRequest struct {
	Hidden bool `json:"hidden"`
}

// extraRequest はメモ・タグ保存リクエストのボディ。
type extraRequest struct {
	Comment string `json:"comment"`
	Tag     int    `json:"tag"`
}

// SetHidden はイベントの表示・非表示フラグを更新する。
// PUT /api/events/{id}/hidden
func (h *EventHandler) SetHidden(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeInvalidID(w)
		return
	}

	var req hiddenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.SetEventHidden(r.Context(), id, req.Hidden); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetExtra はイベントのメモ・タグを返す。存在しない場合は空の内容を返す。
// GET /api/events/{id}/extra
func (h *EventHandler) GetExtra(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeInvalidID(w)
		return
	}

	extra, err := h.service.GetEventExtra(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toExtraResponse(extra))
}

// UpsertExtra はイベントのメモ・タグを保存する。
// PUT /api/events/{id}/extra
func (h *EventHandler) UpsertExtra(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeInvalidID(w)
		return
	}

	var req extraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	extra, err := h.service.UpsertEventExtra(r.Context(), id, req.Comment, req.Tag)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toExtraResponse(extra))
}
