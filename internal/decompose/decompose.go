// Package decompose は消費カロリーの基礎代謝・運動由来分解を提供する。
// 入力のみから決定論的に結果を導出する純粋な計算で、隠れた状態を持たない。
package decompose

import (
	"math"

	"github.com/hitoshi/fitsync/internal/model"
)

const (
	// DefaultRestBaselineKcal は基礎代謝ベースラインのデフォルト値（kcal/日）。
	DefaultRestBaselineKcal = 1800.0

	// stepNormalization はベースラインを1歩あたりに換算する歩数の基準値。
	// 推定式を定義する定数であり、設定対象ではない。
	stepNormalization = 10000.0

	// restAttributionShare は歩行に帰属させる基礎代謝の割合。
	restAttributionShare = 0.3

	// maxRestShare は基礎代謝として差し引ける上限（消費カロリー比）。
	maxRestShare = 0.4

	// minActivityShare は運動由来カロリーの下限（消費カロリー比）。
	minActivityShare = 0.6
)

// Decompose は消費カロリーを基礎代謝分と運動由来分に分解する。
// 負の入力は0にクランプされる。
//
// 推定式:
//
//	restPerStep   = baseline / 10000
//	estimatedRest = min(steps * restPerStep * 0.3, calories * 0.4)
//	activity      = max(calories - estimatedRest, calories * 0.6)（最近接整数に丸め）
//
// 不変条件: 運動由来カロリーは常に消費カロリーの60%以上であり、
// 基礎代謝の差し引きが消費カロリーの40%を超えることはない。
// ゼロ歩・高カロリーや超多歩・低カロリーといった極端な入力に対しても
// 推定値がこの範囲に収まることを保証する。
func Decompose(caloriesExpended float64, steps int, baselineKcal float64) model.DecomposedCalories {
	if caloriesExpended < 0 {
		caloriesExpended = 0
	}
	if steps < 0 {
		steps = 0
	}
	if baselineKcal <= 0 {
		baselineKcal = DefaultRestBaselineKcal
	}

	restPerStep := baselineKcal / stepNormalization
	estimatedRest := float64(steps) * restPerStep * restAttributionShare

	if limit := caloriesExpended * maxRestShare; estimatedRest > limit {
		estimatedRest = limit
	}

	activity := caloriesExpended - estimatedRest
	if floor := caloriesExpended * minActivityShare; activity < floor {
		activity = floor
	}

	return model.DecomposedCalories{
		ActivityCalories: int(math.Round(activity)),
		EstimatedRest:    estimatedRest,
	}
}
