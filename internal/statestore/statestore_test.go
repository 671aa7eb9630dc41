package statestore

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestStore_LoadMissingFile はファイルがない場合にゼロ状態が返ることをテストする。
func TestStore_LoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "state.json"), newTestLogger())

	state := s.Load()
	if state.WasConnected {
		t.Error("WasConnected = true, want false")
	}
	if state.LastSyncedAt != nil {
		t.Errorf("LastSyncedAt = %v, want nil", state.LastSyncedAt)
	}
}

// TestStore_SaveAndLoad は保存した状態が復元できることをテストする。
func TestStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewStore(path, newTestLogger())

	syncedAt := time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC)
	if err := s.Save(State{LastSyncedAt: &syncedAt, WasConnected: true}); err != nil {
		t.Fatalf("Save() error = %v, want nil", err)
	}

	loaded := s.Load()
	if !loaded.WasConnected {
		t.Error("WasConnected = false, want true")
	}
	if loaded.LastSyncedAt == nil || !loaded.LastSyncedAt.Equal(syncedAt) {
		t.Errorf("LastSyncedAt = %v, want %v", loaded.LastSyncedAt, syncedAt)
	}
}

// TestStore_LoadCorruptFile は破損ファイルでゼロ状態にフォールバック
// することをテストする。
func TestStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, newTestLogger())
	state := s.Load()
	if state.WasConnected || state.LastSyncedAt != nil {
		t.Errorf("Load() = %+v, want zero state", state)
	}
}

// TestStore_SaveCreatesDirectory は保存先ディレクトリが自動作成される
// ことをテストする。
func TestStore_SaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	s := NewStore(path, newTestLogger())

	if err := s.Save(State{WasConnected: true}); err != nil {
		t.Fatalf("Save() error = %v, want nil", err)
	}
	if !s.Load().WasConnected {
		t.Error("保存した状態が読み込めません")
	}
}
