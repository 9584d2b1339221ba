// Package security はアプリケーションのセキュリティ機能を提供する。
//
// CommentSanitizerService はユーザーが入力するメモ（コメント）を
// プレーンテキストとしてサニタイズし、XSS攻撃などのセキュリティリスクから
// ユーザーを保護する。bluemondayライブラリのStrictPolicyを使用し、
// すべてのHTMLタグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// CommentSanitizerService はメモのサニタイズ機能のインターフェースを定義する。
// メモ・タグの保存前に使用される。
type CommentSanitizerService interface {
	// Sanitize はメモをサニタイズしてプレーンテキストを返す。
	// メモはHTMLとして表示されることがないため、すべてのタグを除去し、
	// 前後の空白を取り除く。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// commentSanitizer はCommentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type commentSanitizer struct {
	policy *bluemonday.Policy
}

// NewCommentSanitizer はCommentSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはすべてのタグと属性を除去し、テキストのみを残す。
func NewCommentSanitizer() *commentSanitizer {
	return &commentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はメモをサニタイズしてプレーンテキストを返す。
// bluemondayはタグ除去後のテキストをHTMLエスケープして返すため、
// プレーンテキストとして保存できるようエスケープを元に戻す。
func (s *commentSanitizer) Sanitize(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
