// Package repository はアクティビティレジャーのデータベース実装を提供する。
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/fitsync/internal/ledger"
	"github.com/hitoshi/fitsync/internal/model"
)

// PostgresActivityRepo はPostgreSQLを使用したアクティビティレジャー実装。
// レジャーのデータベースに直接接続する構成（postgres方式）で使用する。
// 同期レコードの一意性は部分ユニークインデックスでも保証される。
type PostgresActivityRepo struct {
	db     *sql.DB
	userID string
}

// NewPostgresActivityRepo はPostgresActivityRepoを生成する。
func NewPostgresActivityRepo(db *sql.DB, userID string) *PostgresActivityRepo {
	return &PostgresActivityRepo{db: db, userID: userID}
}

// List は指定日のアクティビティレコードを取得する。該当なしの場合は空スライスを返す。
func (r *PostgresActivityRepo) List(ctx context.Context, date string) ([]model.ActivityRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, type, calories_burned, notes, date,
		        provenance, created_at, updated_at
		 FROM activity_records
		 WHERE user_id = $1 AND date = $2
		 ORDER BY created_at`,
		r.userID, date,
	)
	if err != nil {
		return nil, &model.LedgerError{Op: "list", Err: fmt.Errorf("活動レコードの取得に失敗しました: %w", err)}
	}
	defer rows.Close()

	records := make([]model.ActivityRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, &model.LedgerError{Op: "list", Err: err}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.LedgerError{Op: "list", Err: fmt.Errorf("活動レコードの走査に失敗しました: %w", err)}
	}

	return records, nil
}

// Create はアクティビティレコードを作成する。
// IDが未指定の場合は新しいUUIDを採番する。
func (r *PostgresActivityRepo) Create(ctx context.Context, record model.ActivityRecord) (model.ActivityRecord, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.UserID == "" {
		record.UserID = r.userID
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activity_records (id, user_id, name, type, calories_burned,
		                               notes, date, provenance, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.UserID, record.Name, record.Type, record.CaloriesBurned,
		record.Notes, record.Date, string(record.Provenance),
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return model.ActivityRecord{}, &model.LedgerError{Op: "create", Err: fmt.Errorf("活動レコードの作成に失敗しました: %w", err)}
	}

	return record, nil
}

// Update は既存のアクティビティレコードを更新する。
// 更新対象はカロリー・注記・名前のみで、日付と出所は変更しない。
func (r *PostgresActivityRepo) Update(ctx context.Context, record model.ActivityRecord) (model.ActivityRecord, error) {
	if record.ID == "" {
		return model.ActivityRecord{}, &model.LedgerError{Op: "update", Err: fmt.Errorf("レコードIDが指定されていません")}
	}
	record.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx,
		`UPDATE activity_records SET
		    name = $2, calories_burned = $3, notes = $4, updated_at = $5
		 WHERE id = $1 AND user_id = $6`,
		record.ID, record.Name, record.CaloriesBurned, record.Notes,
		record.UpdatedAt, r.userID,
	)
	if err != nil {
		return model.ActivityRecord{}, &model.LedgerError{Op: "update", Err: fmt.Errorf("活動レコードの更新に失敗しました: %w", err)}
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return model.ActivityRecord{}, &model.LedgerError{Op: "update", Err: fmt.Errorf("更新対象のレコードが見つかりません: %s", record.ID)}
	}

	return record, nil
}

// scanRecord は1行分のアクティビティレコードを読み取る。
func scanRecord(rows *sql.Rows) (model.ActivityRecord, error) {
	var record model.ActivityRecord
	var provenance string
	var date time.Time

	err := rows.Scan(
		&record.ID, &record.UserID, &record.Name, &record.Type,
		&record.CaloriesBurned, &record.Notes, &date,
		&provenance, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return model.ActivityRecord{}, fmt.Errorf("活動レコードの読み取りに失敗しました: %w", err)
	}

	record.Date = date.Format(model.DateLayout)
	record.Provenance = model.Provenance(provenance)
	return record, nil
}

// compile-time interface check
var _ ledger.ActivityLedger = (*PostgresActivityRepo)(nil)
