// Package token はプロバイダーのベアラークレデンシャルのインメモリ保持を提供する。
package token

import (
	"sync"
	"time"

	"github.com/hitoshi/fitsync/internal/model"
)

// Store はベアラークレデンシャルを保持するスレッドセーフなストア。
// I/Oは行わない。オーケストレーターが排他的に所有し、
// 外部からはアクセサメソッド経由でのみ参照される。
type Store struct {
	mu         sync.RWMutex
	credential model.Credential
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{}
}

// Set はクレデンシャルを保存する。既存の値は上書きされる。
func (s *Store) Set(c model.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = c
}

// Get は現在のクレデンシャルを返す。
// 未設定の場合は2番目の戻り値がfalseとなる。
func (s *Store) Get() (model.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.credential.AccessToken == "" {
		return model.Credential{}, false
	}
	return s.credential, true
}

// Clear はクレデンシャルを破棄する。
// 期限切れ検出時、明示的なサインアウト時、またはプロバイダーの401系応答時に呼ばれる。
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = model.Credential{}
}

// IsValid は保持中のクレデンシャルが現時点で有効かを返す。
// 有効期限が欠落している場合は無効として扱う（fail-closed）。
func (s *Store) IsValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential.IsValid(time.Now())
}
