package model

import "time"

// ConnectionStatus はプロバイダーとの接続状態を表す。
type ConnectionStatus string

const (
	// StatusDisconnected は未接続状態。
	StatusDisconnected ConnectionStatus = "disconnected"
	// StatusConnecting は認可ハンドシェイク実行中。
	StatusConnecting ConnectionStatus = "connecting"
	// StatusConnected は接続済みで定期同期が稼働中。
	StatusConnected ConnectionStatus = "connected"
	// StatusError はエラーにより再接続が必要な状態。
	StatusError ConnectionStatus = "error"
)

// SyncSession は同期オーケストレーターが保持するセッション状態のスナップショット。
// オーケストレーターのみが変更し、UI境界からは読み取り専用で参照される。
type SyncSession struct {
	Status        ConnectionStatus
	StatusMessage string     // StatusErrorの場合の原因メッセージ
	LastError     string     // 接続を維持したまま発生した直近のエラー
	LastSyncedAt  *time.Time // 一度も同期していない場合はnil
	LatestMetrics *DailyMetrics
	LatestResult  *DecomposedCalories
}
