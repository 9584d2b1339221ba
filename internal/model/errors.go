// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: transport, validation, schedule, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	// 大学APIトランスポートのエラー分類
	ErrCodeNetwork       = "NETWORK_ERROR"
	ErrCodeTimeout       = "TIMEOUT_ERROR"
	ErrCodeHTTP          = "HTTP_ERROR"
	ErrCodeSerialization = "SERIALIZATION_ERROR"
	ErrCodeEmptyBody     = "EMPTY_BODY_ERROR"
	ErrCodeUnexpected    = "UNEXPECTED_ERROR"

	// ドメイン・バリデーションのエラー
	ErrCodeSubjectNotFound  = "SUBJECT_NOT_FOUND"
	ErrCodeScheduleNotFound = "SCHEDULE_NOT_FOUND"
	ErrCodeEventNotFound    = "EVENT_NOT_FOUND"
	ErrCodeInvalidTag       = "INVALID_TAG"
	ErrCodeInvalidSubject   = "INVALID_SUBJECT"
	ErrCodeDuplicateSubject = "DUPLICATE_SUBJECT"
)

// CodeOf はエラーチェーンからAPIErrorのコードを取り出す。
// APIErrorが含まれない場合はErrCodeUnexpectedを返す。
func CodeOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrCodeUnexpected
}

// IsRetryable はトランスポート層で再試行する価値のあるエラーかを返す。
// ネットワーク障害とタイムアウトのみを再試行可能とみなす。
func IsRetryable(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeNetwork || code == ErrCodeTimeout
}

// NewNetworkError は接続・IO失敗エラーを生成する。
func NewNetworkError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNetwork,
		Message:  fmt.Sprintf("大学APIへの接続に失敗しました: %s", reason),
		Category: "transport",
		Action:   "ネットワーク接続を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewTimeoutError はデッドライン超過エラーを生成する。
func NewTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeTimeout,
		Message:  "大学APIからの応答がタイムアウトしました。",
		Category: "transport",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewHTTPError は非2xxレスポンスのエラーを生成する。
func NewHTTPError(statusCode int, message string) *APIError {
	return &APIError{
		Code:     ErrCodeHTTP,
		Message:  fmt.Sprintf("大学APIがステータス %d を返しました: %s", statusCode, message),
		Category: "transport",
		Action:   "時間をおいて再度お試しください。解消しない場合は検索条件を確認してください。",
	}
}

// NewSerializationError はレスポンスが期待した形式と一致しない場合のエラーを生成する。
// この呼び出しに対しては恒久的な失敗として扱う。
func NewSerializationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSerialization,
		Message:  fmt.Sprintf("大学APIのレスポンスの解析に失敗しました: %s", reason),
		Category: "transport",
		Action:   "アプリを最新版に更新してください。",
	}
}

// NewEmptyBodyError は成功レスポンスに利用可能な内容が含まれない場合のエラーを生成する。
// 例: 時間割リストが0件。
func NewEmptyBodyError(what string) *APIError {
	return &APIError{
		Code:     ErrCodeEmptyBody,
		Message:  fmt.Sprintf("大学APIから%sを取得できませんでした。", what),
		Category: "schedule",
		Action:   "検索した対象の名前・IDが正しいか確認してください。",
	}
}

// NewUnexpectedError は分類不能な失敗のエラーを生成する。
func NewUnexpectedError(err error) *APIError {
	msg := "不明なエラー"
	if err != nil {
		msg = err.Error()
	}
	return &APIError{
		Code:     ErrCodeUnexpected,
		Message:  fmt.Sprintf("予期しないエラーが発生しました: %s", msg),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewSubjectNotFoundError は対象未検出エラーを生成する。
func NewSubjectNotFoundError(subjectID int64) *APIError {
	return &APIError{
		Code:     ErrCodeSubjectNotFound,
		Message:  fmt.Sprintf("指定された対象が見つかりません: %d", subjectID),
		Category: "schedule",
		Action:   "対象のIDを確認してください。",
	}
}

// NewScheduleNotFoundError は時間割未検出エラーを生成する。
func NewScheduleNotFoundError(scheduleID int64) *APIError {
	return &APIError{
		Code:     ErrCodeScheduleNotFound,
		Message:  fmt.Sprintf("指定された時間割が見つかりません: %d", scheduleID),
		Category: "schedule",
		Action:   "時間割のIDを確認してください。",
	}
}

// NewEventNotFoundError はイベント未検出エラーを生成する。
func NewEventNotFoundError(eventID int64) *APIError {
	return &APIError{
		Code:     ErrCodeEventNotFound,
		Message:  fmt.Sprintf("指定されたイベントが見つかりません: %d", eventID),
		Category: "schedule",
		Action:   "イベントのIDを確認してください。",
	}
}

// NewInvalidTagError は無効なタグ値のエラーを生成する。
func NewInvalidTagError(tag int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTag,
		Message:  fmt.Sprintf("無効なタグ値です: %d", tag),
		Category: "validation",
		Action:   fmt.Sprintf("タグには0〜%dの値を指定してください。", TagMax),
	}
}

// NewInvalidSubjectError は対象の入力値が不正な場合のエラーを生成する。
func NewInvalidSubjectError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSubject,
		Message:  fmt.Sprintf("対象の指定が不正です: %s", reason),
		Category: "validation",
		Action:   "名前・種別・APIのIDを確認してください。",
	}
}

// NewDuplicateSubjectError は同じ対象を二重に登録しようとした場合のエラーを生成する。
func NewDuplicateSubjectError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateSubject,
		Message:  fmt.Sprintf("この対象は既に登録されています: %s", name),
		Category: "schedule",
		Action:   "登録済み一覧から該当の対象を確認してください。",
	}
}
