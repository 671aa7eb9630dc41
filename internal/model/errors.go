package model

import (
	"errors"
	"fmt"
)

// 同期エンジン内部のエラー分類用センチネル。
var (
	// ErrUnauthorized はトークン無効またはプロバイダーの認可エラー（401系）。
	// 呼び出し元はTokenStoreをクリアし再認可を促すことが期待される。
	ErrUnauthorized = errors.New("認可エラー: トークンが無効です")

	// ErrMalformedResponse はプロバイダーの集約レスポンスがパースできない場合のエラー。
	ErrMalformedResponse = errors.New("プロバイダーのレスポンスを解析できません")

	// ErrUserCancelled はユーザーが認可サーフェスを完了せずに閉じた場合のエラー。
	ErrUserCancelled = errors.New("ユーザーが認可をキャンセルしました")

	// ErrAuthTimeout は認可ハンドシェイクがタイムアウトした場合のエラー。
	ErrAuthTimeout = errors.New("認可ハンドシェイクがタイムアウトしました")

	// ErrProviderDenied はプロバイダーが認可を明示的に拒否した場合のエラー。
	ErrProviderDenied = errors.New("プロバイダーが認可を拒否しました")

	// ErrAuthorizeInFlight は認可ハンドシェイクが既に実行中の場合のエラー。
	// 同時に実行できるauthorizeは1つのみ。
	ErrAuthorizeInFlight = errors.New("認可ハンドシェイクが既に実行中です")

	// ErrNotConnected は未接続状態で同期が要求された場合のエラー。
	ErrNotConnected = errors.New("プロバイダーに接続されていません")
)

// ProviderError は認可エラー以外のプロバイダー側エラー（非2xxレスポンス）を表す。
type ProviderError struct {
	Status  int
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	return fmt.Sprintf("プロバイダーエラー (status=%d): %s", e.Status, e.Message)
}

// LedgerError はアクティビティレジャーのcreate/update/list失敗を表す。
// 接続状態には影響せず、次回の同期サイクルで再試行される。
type LedgerError struct {
	Op  string // "list", "create", "update"
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *LedgerError) Error() string {
	return fmt.Sprintf("レジャー操作に失敗しました (op=%s): %v", e.Op, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *LedgerError) Unwrap() error { return e.Err }

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, provider, ledger, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeReconnectRequired   = "RECONNECT_REQUIRED"
	ErrCodeAuthCancelled       = "AUTH_CANCELLED"
	ErrCodeAuthTimeout         = "AUTH_TIMEOUT"
	ErrCodeAuthDenied          = "AUTH_DENIED"
	ErrCodeAuthInFlight        = "AUTH_IN_FLIGHT"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrCodeMalformedResponse   = "MALFORMED_RESPONSE"
	ErrCodeLedgerWriteFailed   = "LEDGER_WRITE_FAILED"
	ErrCodeNotConnected        = "NOT_CONNECTED"
)

// NewReconnectRequiredError はトークン失効による再接続要求エラーを生成する。
func NewReconnectRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeReconnectRequired,
		Message:  "プロバイダーとの接続が無効になりました。",
		Category: "auth",
		Action:   "再度接続してください。",
	}
}

// NewAuthCancelledError は認可キャンセルエラーを生成する。
func NewAuthCancelledError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthCancelled,
		Message:  "認可がキャンセルされました。",
		Category: "auth",
		Action:   "接続するには認可を完了してください。",
	}
}

// NewAuthTimeoutError は認可タイムアウトエラーを生成する。
func NewAuthTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthTimeout,
		Message:  "認可ハンドシェイクがタイムアウトしました。",
		Category: "auth",
		Action:   "再度接続をお試しください。",
	}
}

// NewAuthDeniedError はプロバイダーによる認可拒否エラーを生成する。
func NewAuthDeniedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthDenied,
		Message:  fmt.Sprintf("プロバイダーが認可を拒否しました: %s", reason),
		Category: "auth",
		Action:   "プロバイダー側のアカウント設定を確認してください。",
	}
}

// NewProviderUnavailableError はプロバイダー一時エラーを生成する。
// 接続は維持され、次回の定期同期で自動的に再試行される。
func NewProviderUnavailableError(status int) *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnavailable,
		Message:  fmt.Sprintf("プロバイダーがエラーを返しました (status=%d)。", status),
		Category: "provider",
		Action:   "次回の定期同期で自動的に再試行されます。",
	}
}

// NewLedgerWriteError はレジャー書き込み失敗エラーを生成する。
func NewLedgerWriteError() *APIError {
	return &APIError{
		Code:     ErrCodeLedgerWriteFailed,
		Message:  "活動レコードの保存に失敗しました。",
		Category: "ledger",
		Action:   "次回の同期で再度保存を試みます。",
	}
}

// NewNotConnectedError は未接続エラーを生成する。
func NewNotConnectedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotConnected,
		Message:  "プロバイダーに接続されていません。",
		Category: "validation",
		Action:   "先に接続を実行してください。",
	}
}
