// Package statestore はデーモンの永続状態をJSONファイルで管理する。
// 再起動後に前回の同期時刻と接続履歴を復元するために使用する。
// トークンは保存しない（プロセス再起動後は再認可が必要）。
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// State は永続化されるデーモン状態。
type State struct {
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	WasConnected bool       `json:"was_connected"`
}

// Store は状態ファイルの読み書きを提供する。
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore はStore の新しいインスタンスを生成する。
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Load は状態ファイルを読み込む。
// ファイルが存在しない場合や破損している場合はゼロ状態を返す
// （デーモンは初回起動と同じ挙動で継続する）。
func (s *Store) Load() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("状態ファイルの読み込みに失敗しました。初期状態で起動します",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
		}
		return State{}
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("状態ファイルが破損しています。初期状態で起動します",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return State{}
	}

	return state
}

// Save は状態ファイルを書き込む。
// 一時ファイルに書いてからリネームすることで、書き込み中のクラッシュで
// 既存の状態ファイルが壊れないようにする。
func (s *Store) Save(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("状態のシリアライズに失敗しました: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("状態ディレクトリの作成に失敗しました: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("状態ファイルの書き込みに失敗しました: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("状態ファイルの置き換えに失敗しました: %w", err)
	}

	return nil
}
