package ledger

import (
	"testing"

	"github.com/hitoshi/fitsync/internal/model"
)

// TestBuildNotes は注記テキストの生成をテストする。
func TestBuildNotes(t *testing.T) {
	tests := []struct {
		name    string
		metrics model.DailyMetrics
		want    string
	}{
		{
			name: "心拍あり",
			metrics: model.DailyMetrics{
				Steps:          8000,
				DistanceMeters: 6200,
				HeartRate:      model.HeartRateSummary{Average: 72, Min: 55, Max: 140},
			},
			want: "自動同期: 8000歩 / 6.20km / 心拍 平均72 (55-140)",
		},
		{
			name: "心拍なし",
			metrics: model.DailyMetrics{
				Steps:          3000,
				DistanceMeters: 2100,
			},
			want: "自動同期: 3000歩 / 2.10km",
		},
		{
			name:    "ゼロメトリクス",
			metrics: model.DailyMetrics{},
			want:    "自動同期: 0歩 / 0.00km",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildNotes(tt.metrics)
			if got != tt.want {
				t.Errorf("BuildNotes() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestBuildNotes_Deterministic は同一メトリクスから同一注記が
// 生成されることをテストする。
func TestBuildNotes_Deterministic(t *testing.T) {
	m := model.DailyMetrics{Steps: 8000, DistanceMeters: 6200}
	if BuildNotes(m) != BuildNotes(m) {
		t.Error("BuildNotes() is not deterministic")
	}
}

// TestFindSyncedRecord は同期由来レコードの検索をテストする。
func TestFindSyncedRecord(t *testing.T) {
	records := []model.ActivityRecord{
		{ID: "1", Provenance: model.ProvenanceManual},
		{ID: "2", Provenance: model.ProvenanceSynced},
		{ID: "3", Provenance: model.ProvenanceManual},
	}

	got := FindSyncedRecord(records)
	if got == nil {
		t.Fatal("FindSyncedRecord() = nil, want record")
	}
	if got.ID != "2" {
		t.Errorf("ID = %q, want %q", got.ID, "2")
	}
}

// TestFindSyncedRecord_ManualOnly は手入力レコードのみの場合に
// nilが返ることをテストする。
func TestFindSyncedRecord_ManualOnly(t *testing.T) {
	records := []model.ActivityRecord{
		{ID: "1", Provenance: model.ProvenanceManual},
	}
	if got := FindSyncedRecord(records); got != nil {
		t.Errorf("FindSyncedRecord() = %+v, want nil", got)
	}
}

// TestFindSyncedRecord_Empty は空リストでnilが返ることをテストする。
func TestFindSyncedRecord_Empty(t *testing.T) {
	if got := FindSyncedRecord(nil); got != nil {
		t.Errorf("FindSyncedRecord(nil) = %+v, want nil", got)
	}
}
