package decompose

import "testing"

// TestDecompose_Typical は通常入力での分解をテストする。
func TestDecompose_Typical(t *testing.T) {
	// restPerStep = 1800/10000 = 0.18
	// estimatedRest = min(2000 * 0.18 * 0.3, 500 * 0.4) = min(108, 200) = 108
	// activity = max(500 - 108, 300) = 392
	got := Decompose(500, 2000, 1800)
	if got.ActivityCalories != 392 {
		t.Errorf("ActivityCalories = %d, want 392", got.ActivityCalories)
	}
	if got.EstimatedRest != 108 {
		t.Errorf("EstimatedRest = %v, want 108", got.EstimatedRest)
	}
}

// TestDecompose_RestCapped は基礎代謝の差し引きが消費カロリーの40%で
// 打ち切られることをテストする。
func TestDecompose_RestCapped(t *testing.T) {
	// estimatedRest候補 = 20000 * 0.18 * 0.3 = 1080 → 上限 100 * 0.4 = 40
	// activity = max(100 - 40, 60) = 60
	got := Decompose(100, 20000, 1800)
	if got.ActivityCalories != 60 {
		t.Errorf("ActivityCalories = %d, want 60", got.ActivityCalories)
	}
	if got.EstimatedRest != 40 {
		t.Errorf("EstimatedRest = %v, want 40", got.EstimatedRest)
	}
}

// TestDecompose_ActivityFloor は運動由来カロリーが消費カロリーの60%を
// 下回らないことをテストする。
func TestDecompose_ActivityFloor(t *testing.T) {
	// estimatedRest候補 = 8000 * 0.18 * 0.3 = 432 → 上限 500 * 0.4 = 200
	// activity = max(500 - 200, 300) = 300
	got := Decompose(500, 8000, 1800)
	if got.ActivityCalories != 300 {
		t.Errorf("ActivityCalories = %d, want 300", got.ActivityCalories)
	}
}

// TestDecompose_ZeroInputs はゼロ入力でゼロが返ることをテストする。
func TestDecompose_ZeroInputs(t *testing.T) {
	got := Decompose(0, 0, 1800)
	if got.ActivityCalories != 0 {
		t.Errorf("ActivityCalories = %d, want 0", got.ActivityCalories)
	}
	if got.EstimatedRest != 0 {
		t.Errorf("EstimatedRest = %v, want 0", got.EstimatedRest)
	}
}

// TestDecompose_NegativeInputsClamped は負の入力が0にクランプされることをテストする。
func TestDecompose_NegativeInputsClamped(t *testing.T) {
	got := Decompose(-100, -5000, 1800)
	if got.ActivityCalories != 0 {
		t.Errorf("ActivityCalories = %d, want 0", got.ActivityCalories)
	}
}

// TestDecompose_BaselineConfigurable はベースライン変更が結果に反映されることをテストする。
func TestDecompose_BaselineConfigurable(t *testing.T) {
	// baseline=1000: estimatedRest = min(2000 * 0.1 * 0.3, 200) = 60
	// activity = max(500 - 60, 300) = 440
	got := Decompose(500, 2000, 1000)
	if got.ActivityCalories != 440 {
		t.Errorf("ActivityCalories = %d, want 440", got.ActivityCalories)
	}

	// 非正のベースラインはデフォルト値（1800）にフォールバックする
	fallback := Decompose(500, 2000, 0)
	if fallback.ActivityCalories != 392 {
		t.Errorf("ActivityCalories = %d, want 392 (default baseline)", fallback.ActivityCalories)
	}
}

// TestDecompose_Bounds は全入力域で
// 0.6*calories <= activity <= calories（丸め誤差内）が成り立つことをテストする。
func TestDecompose_Bounds(t *testing.T) {
	calories := []float64{0, 1, 60, 100, 250.5, 500, 1234.5, 5000}
	steps := []int{0, 1, 100, 2000, 8000, 10000, 20000, 100000}

	for _, cal := range calories {
		for _, st := range steps {
			got := Decompose(cal, st, 1800)
			activity := float64(got.ActivityCalories)

			if activity < cal*0.6-0.5 {
				t.Errorf("Decompose(%v, %d): activity %v < 60%% floor %v", cal, st, activity, cal*0.6)
			}
			if activity > cal+0.5 {
				t.Errorf("Decompose(%v, %d): activity %v > calories %v", cal, st, activity, cal)
			}
			if got.EstimatedRest > cal*0.4 {
				t.Errorf("Decompose(%v, %d): estimatedRest %v > 40%% cap %v", cal, st, got.EstimatedRest, cal*0.4)
			}
		}
	}
}
