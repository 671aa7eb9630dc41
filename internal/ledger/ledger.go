// Package ledger はアクティビティレジャーへのアクセスを提供する。
// バックエンドAPI経由（api方式）とデータベース直結（postgres方式）の
// 2つの実装が同一インターフェースを満たす。
package ledger

import (
	"context"
	"fmt"

	"github.com/hitoshi/fitsync/internal/model"
)

// ActivityLedger はアクティビティレジャーの操作を定義する。
// Listは指定日のレコードを返し、該当なしの場合は空スライスを返す。
// 同期レコードの一意性（ユーザー×日付×provenance=syncedで最大1件）は
// 呼び出し元のlookup-then-upsertとレジャー側の制約の両方で守られる。
type ActivityLedger interface {
	List(ctx context.Context, date string) ([]model.ActivityRecord, error)
	Create(ctx context.Context, record model.ActivityRecord) (model.ActivityRecord, error)
	Update(ctx context.Context, record model.ActivityRecord) (model.ActivityRecord, error)
}

// SyncedRecordName は同期レコードに付与するアクティビティ名。
const SyncedRecordName = "デイリーアクティビティ（自動同期）"

// BuildNotes は同期レコードの注記テキストを生成する。
// 歩数・距離のサマリーに、心拍の測定があればその集約値を加える。
// 同一メトリクスからは常に同一の注記が生成される。
func BuildNotes(m model.DailyMetrics) string {
	notes := fmt.Sprintf("自動同期: %d歩 / %.2fkm", m.Steps, m.DistanceMeters/1000)
	if m.HeartRate.Average > 0 {
		notes += fmt.Sprintf(" / 心拍 平均%.0f (%d-%d)", m.HeartRate.Average, m.HeartRate.Min, m.HeartRate.Max)
	}
	return notes
}

// FindSyncedRecord はレコード一覧から同期由来のレコードを探す。
// 見つからない場合はnilを返す。
func FindSyncedRecord(records []model.ActivityRecord) *model.ActivityRecord {
	for i := range records {
		if records[i].Provenance == model.ProvenanceSynced {
			return &records[i]
		}
	}
	return nil
}
