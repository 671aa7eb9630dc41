// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NoteSanitizerService はレジャーに書き込む注記テキストをサニタイズし、
// プロバイダー由来の文字列を経由した格納型XSSからSPA側を保護する。
// 注記はプレーンテキストとして描画されるため、bluemondayの
// 厳格ポリシーで全てのマークアップを除去する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NoteSanitizerService は注記テキストのサニタイズ機能のインターフェースを定義する。
// レジャーへの書き込み前に使用される。
type NoteSanitizerService interface {
	// Sanitize はテキストから全てのHTMLマークアップを除去して返す。
	// 前後の空白もトリムする。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// noteSanitizer はNoteSanitizerServiceの実装。
// bluemondayの厳格ポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type noteSanitizer struct {
	policy *bluemonday.Policy
}

// NewNoteSanitizer はNoteSanitizerServiceの新しいインスタンスを生成する。
// 厳格ポリシー（全タグ除去）を使用する。注記にマークアップの正当な用途はない。
func NewNoteSanitizer() *noteSanitizer {
	return &noteSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はテキストから全てのHTMLマークアップを除去して返す。
func (s *noteSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

// compile-time interface check
var _ NoteSanitizerService = (*noteSanitizer)(nil)
