// Package model はドメインモデルを定義する。
package model

// DateLayout はプロバイダーの日単位バケットで使用するカレンダー日付のフォーマット。
const DateLayout = "2006-01-02"

// DailyMetrics はプロバイダーから取得した1日分の活動メトリクスを表す。
// 1バケット（1カレンダー日）につき1つ生成され、生成後は変更されない。
type DailyMetrics struct {
	Date             string // DateLayout形式（プロバイダーのローカル日バケット）
	CaloriesExpended float64
	Steps            int
	DistanceMeters   float64
	HeartRate        HeartRateSummary
}

// HeartRateSummary は1日分の心拍数の集約値を表す。
// 各値は0以上で、0は「測定なし」を意味する。
type HeartRateSummary struct {
	Average float64
	Min     int
	Max     int
}

// IsZero はメトリクスが全てゼロ値（データなし）かを返す。
func (m *DailyMetrics) IsZero() bool {
	return m.CaloriesExpended == 0 && m.Steps == 0 && m.DistanceMeters == 0 &&
		m.HeartRate.Average == 0 && m.HeartRate.Min == 0 && m.HeartRate.Max == 0
}

// DecomposedCalories は消費カロリーを基礎代謝分と運動由来分に分解した結果を表す。
// (caloriesExpended, steps) から決定論的に導出され、隠れた状態を持たない。
type DecomposedCalories struct {
	// ActivityCalories は運動由来と推定されるカロリー（整数に丸め済み）。
	// 常に消費カロリーの60%以上となる。
	ActivityCalories int
	// EstimatedRest は差し引いた基礎代謝分の推定値。
	// 消費カロリーの40%を超えることはない。
	EstimatedRest float64
}
