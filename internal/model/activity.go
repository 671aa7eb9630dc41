package model

import "time"

// Provenance はレジャーレコードの出所（プロバイダー同期か手入力か）を表す。
type Provenance string

const (
	// ProvenanceSynced はプロバイダーから同期されたレコード。
	ProvenanceSynced Provenance = "synced"
	// ProvenanceManual はユーザーが手入力したレコード。
	ProvenanceManual Provenance = "manual"
)

// ActivityTypeOther は同期レコードに付与する活動種別のデフォルト値。
const ActivityTypeOther = "other"

// ActivityRecord はアクティビティレジャー上の1日分の活動レコードを表す。
// (userID, date, provenance=synced) の組み合わせにつき最大1件しか存在してはならない。
type ActivityRecord struct {
	ID             string
	UserID         string
	Name           string
	Type           string
	CaloriesBurned int
	Notes          string
	Date           string // DateLayout形式
	Provenance     Provenance
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
