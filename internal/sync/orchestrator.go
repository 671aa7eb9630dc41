// Package sync は同期エンジンの中核となるオーケストレーターを提供する。
// 接続ライフサイクル（認可・切断）、定期同期のスケジューリング、
// メトリクス取得からレジャーへの冪等なアップサートまでを調停する。
package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/fitsync/internal/decompose"
	"github.com/hitoshi/fitsync/internal/ledger"
	"github.com/hitoshi/fitsync/internal/metrics"
	"github.com/hitoshi/fitsync/internal/model"
	"github.com/hitoshi/fitsync/internal/statestore"
	"github.com/hitoshi/fitsync/internal/token"
)

// Authorizer は認可ハンドシェイクの実行インターフェース。
type Authorizer interface {
	Initialize() error
	Authorize(ctx context.Context) (model.Credential, error)
}

// MetricsFetcher はプロバイダーからのメトリクス取得インターフェース。
type MetricsFetcher interface {
	FetchToday(ctx context.Context) (model.DailyMetrics, error)
}

// NoteSanitizer はレジャー書き込み前の注記サニタイズインターフェース。
type NoteSanitizer interface {
	Sanitize(raw string) string
}

// Deps はオーケストレーターの依存一式。
type Deps struct {
	Authorizer   Authorizer
	Fetcher      MetricsFetcher
	Ledger       ledger.ActivityLedger
	Tokens       *token.Store
	Sanitizer    NoteSanitizer
	States       *statestore.Store
	Collector    metrics.MetricsCollector
	Logger       *slog.Logger
	UserID       string
	BaselineKcal float64
	Interval     time.Duration // 定期同期の間隔
	Debounce     time.Duration // ウェイク起因同期の最小間隔
}

// Orchestrator は同期エンジンの状態機械。
// 接続状態は disconnected / connecting / connected / error の4状態で、
// 全ての状態変更はオーケストレーターのミューテックス配下で行われる。
// 同時に実行できる同期サイクルは1つのみで、実行中に届いた追加の
// トリガーはキューイングせずに破棄される。
type Orchestrator struct {
	authorizer   Authorizer
	fetcher      MetricsFetcher
	ledger       ledger.ActivityLedger
	tokens       *token.Store
	sanitizer    NoteSanitizer
	states       *statestore.Store
	collector    metrics.MetricsCollector
	logger       *slog.Logger
	userID       string
	baselineKcal float64
	interval     time.Duration

	// ウェイク起因同期のデバウンス。ページ表示イベントの連打を抑制する。
	debounce *rate.Limiter

	mu      sync.Mutex
	session model.SyncSession
	syncing bool
	// generation は切断のたびに加算される世代カウンター。
	// 実行中の同期や認可の結果は、開始時の世代と一致する場合のみ
	// 反映される（切断後に届いた結果の混入を防ぐ）。
	generation uint64

	consecutiveFailures int

	onConnectionChange func(connected bool)
	onDataSync         func(m model.DailyMetrics, result model.DecomposedCalories)
}

// NewOrchestrator はOrchestrator の新しいインスタンスを生成する。
// 前回セッションの永続状態（最終同期時刻・接続履歴）を復元する。
// トークンは永続化されないため、前回接続済みでも再認可が必要になる。
func NewOrchestrator(deps Deps) *Orchestrator {
	o := &Orchestrator{
		authorizer:   deps.Authorizer,
		fetcher:      deps.Fetcher,
		ledger:       deps.Ledger,
		tokens:       deps.Tokens,
		sanitizer:    deps.Sanitizer,
		states:       deps.States,
		collector:    deps.Collector,
		logger:       deps.Logger,
		userID:       deps.UserID,
		baselineKcal: deps.BaselineKcal,
		interval:     deps.Interval,
		debounce:     rate.NewLimiter(rate.Every(deps.Debounce), 1),
		session:      model.SyncSession{Status: model.StatusDisconnected},
	}

	state := deps.States.Load()
	o.session.LastSyncedAt = state.LastSyncedAt
	if state.WasConnected {
		o.session.StatusMessage = "前回のセッションは接続済みでした。再度接続してください。"
		o.logger.Info("前回の接続状態を検出しました。再認可が必要です")
	}

	return o
}

// SetOnConnectionChange は接続状態変化の通知コールバックを設定する。
// Start前に呼び出すこと。
func (o *Orchestrator) SetOnConnectionChange(fn func(connected bool)) {
	o.onConnectionChange = fn
}

// SetOnDataSync は同期完了の通知コールバックを設定する。
// Start前に呼び出すこと。
func (o *Orchestrator) SetOnDataSync(fn func(m model.DailyMetrics, result model.DecomposedCalories)) {
	o.onDataSync = fn
}

// Status は現在のセッション状態のスナップショットを返す。
func (o *Orchestrator) Status() model.SyncSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// Connect は認可ハンドシェイクを開始する。
// ハンドシェイクはバックグラウンドで進行し、完了時に接続状態が更新される。
// すでに接続済みの場合は何もしない。ハンドシェイク実行中の再呼び出しは
// model.ErrAuthorizeInFlight を返す。
func (o *Orchestrator) Connect() error {
	if err := o.authorizer.Initialize(); err != nil {
		return err
	}

	o.mu.Lock()
	switch o.session.Status {
	case model.StatusConnecting:
		o.mu.Unlock()
		return model.ErrAuthorizeInFlight
	case model.StatusConnected:
		o.mu.Unlock()
		return nil
	}
	gen := o.generation
	o.session.Status = model.StatusConnecting
	o.session.StatusMessage = ""
	o.mu.Unlock()

	o.logger.Info("認可ハンドシェイクを開始します")
	go o.runHandshake(gen)
	return nil
}

// runHandshake は認可ハンドシェイクを実行し、結果を状態機械に反映する。
// ハンドシェイク中に切断された場合、結果は破棄される。
func (o *Orchestrator) runHandshake(gen uint64) {
	credential, err := o.authorizer.Authorize(context.Background())

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		o.logger.Info("切断されたため認可結果を破棄します")
		return
	}

	if err != nil {
		// キャンセルとタイムアウトは再試行可能な中断として未接続に戻す。
		// error状態は再認可が必要な失敗（プロバイダー拒否など）に限る。
		switch {
		case errors.Is(err, model.ErrUserCancelled):
			o.session.Status = model.StatusDisconnected
			o.session.StatusMessage = "認可がキャンセルされました。"
		case errors.Is(err, model.ErrAuthTimeout):
			o.session.Status = model.StatusDisconnected
			o.session.StatusMessage = "認可ハンドシェイクがタイムアウトしました。"
		case errors.Is(err, model.ErrProviderDenied):
			o.session.Status = model.StatusError
			o.session.StatusMessage = err.Error()
		default:
			o.session.Status = model.StatusError
			o.session.StatusMessage = err.Error()
		}
		o.mu.Unlock()
		o.logger.Warn("認可ハンドシェイクが失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	o.tokens.Set(credential)
	o.session.Status = model.StatusConnected
	o.session.StatusMessage = ""
	o.session.LastError = ""
	o.mu.Unlock()

	o.logger.Info("プロバイダーに接続しました",
		slog.Time("token_expires_at", credential.ExpiresAt),
	)
	o.collector.SetConnectionStatus(true)
	o.persistState(true)
	if o.onConnectionChange != nil {
		o.onConnectionChange(true)
	}

	// 接続直後に1回同期する
	if err := o.SyncNow(context.Background()); err != nil {
		o.logger.Warn("接続直後の同期に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// Disconnect は接続を解除し、保持しているトークンを破棄する。
// 実行中の同期サイクルがあれば、その結果は反映されずに破棄される。
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	o.generation++
	o.session.Status = model.StatusDisconnected
	o.session.StatusMessage = ""
	o.session.LastError = ""
	o.session.LatestMetrics = nil
	o.session.LatestResult = nil
	o.mu.Unlock()

	o.tokens.Clear()
	o.logger.Info("プロバイダーから切断しました")
	o.collector.SetConnectionStatus(false)
	o.persistState(false)
	if o.onConnectionChange != nil {
		o.onConnectionChange(false)
	}
}

// RequestSync はウェイクイベント起因の同期を要求する。
// デバウンス間隔内の連続要求や未接続時の要求は破棄される。
// 同期が起動された場合はtrueを返す。
func (o *Orchestrator) RequestSync() bool {
	o.mu.Lock()
	connected := o.session.Status == model.StatusConnected
	o.mu.Unlock()

	if !connected {
		return false
	}
	if !o.debounce.Allow() {
		o.logger.Debug("デバウンス間隔内のためウェイク同期をスキップします")
		return false
	}

	go func() {
		if err := o.SyncNow(context.Background()); err != nil {
			o.logger.Warn("ウェイク同期に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}()
	return true
}

// SyncNow は同期サイクルを1回実行する。
// 当日のメトリクスを取得し、カロリーを分解してレジャーへ冪等に
// アップサートする。実行中に届いた2つ目のトリガーはエラーなしで
// 破棄される（同一日のlookup-then-upsertを並走させない）。
//
// エラー時の状態遷移:
//   - 認可エラー → トークン破棄、error状態（再接続が必要）
//   - その他のプロバイダー/レジャーエラー → 接続維持、LastErrorに記録
func (o *Orchestrator) SyncNow(ctx context.Context) error {
	o.mu.Lock()
	if o.session.Status != model.StatusConnected {
		o.mu.Unlock()
		return model.ErrNotConnected
	}
	if o.syncing {
		o.mu.Unlock()
		o.logger.Info("同期サイクルが実行中のためトリガーを破棄します")
		return nil
	}
	o.syncing = true
	gen := o.generation
	o.mu.Unlock()

	// サイクル開始時にデバウンス枠を消費し、定期同期の直後に届いた
	// ウェイク要求が二重の同期を起こさないようにする
	o.debounce.Allow()

	defer func() {
		o.mu.Lock()
		o.syncing = false
		o.mu.Unlock()
	}()

	start := time.Now()
	todayMetrics, err := o.fetcher.FetchToday(ctx)
	o.collector.RecordFetchLatency(time.Since(start))
	if err != nil {
		return o.handleFetchError(gen, err)
	}

	result := decompose.Decompose(todayMetrics.CaloriesExpended, todayMetrics.Steps, o.baselineKcal)

	// 取得済みのメトリクスは永続化の成否に関わらず表示用に反映する。
	// LastSyncedAtはレジャーへの書き込みが成功した場合のみ進む。
	o.mu.Lock()
	if gen == o.generation {
		o.session.LatestMetrics = &todayMetrics
		o.session.LatestResult = &result
	}
	o.mu.Unlock()

	upserted, err := o.reconcile(ctx, gen, todayMetrics, result)
	if err != nil {
		o.recordCycleFailure(gen, "ledger", err)
		return err
	}

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		o.logger.Info("切断されたため同期結果を破棄します")
		return nil
	}
	now := time.Now()
	o.session.LastSyncedAt = &now
	o.session.LastError = ""
	o.consecutiveFailures = 0
	o.mu.Unlock()

	o.collector.RecordSyncSuccess()
	o.collector.RecordRecordsUpserted(upserted)
	o.persistState(true)

	o.logger.Info("同期サイクルが完了しました",
		slog.String("date", todayMetrics.Date),
		slog.Float64("calories_expended", todayMetrics.CaloriesExpended),
		slog.Int("steps", todayMetrics.Steps),
		slog.Int("activity_calories", result.ActivityCalories),
		slog.Int("upserted", upserted),
	)

	if o.onDataSync != nil {
		o.onDataSync(todayMetrics, result)
	}
	return nil
}

// reconcile は分解結果をレジャーへ冪等にアップサートする。
// 同期由来レコードが既にあれば上書き更新し、なければ運動由来カロリーが
// 正の場合のみ新規作成する（同一日の同期レコードは常に最大1件）。
// 切断後の書き込みは行わず0件で返す。
func (o *Orchestrator) reconcile(ctx context.Context, gen uint64, m model.DailyMetrics, result model.DecomposedCalories) (int, error) {
	records, err := o.ledger.List(ctx, m.Date)
	if err != nil {
		return 0, err
	}

	existing := ledger.FindSyncedRecord(records)
	if existing == nil && result.ActivityCalories <= 0 {
		return 0, nil
	}

	// レジャー書き込み直前の世代チェック。切断済みなら書き込まない。
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		o.logger.Info("切断されたためレジャーへの書き込みを中止します")
		return 0, nil
	}
	o.mu.Unlock()

	notes := o.sanitizer.Sanitize(ledger.BuildNotes(m))

	if existing != nil {
		updated := *existing
		updated.Name = ledger.SyncedRecordName
		updated.CaloriesBurned = result.ActivityCalories
		updated.Notes = notes
		if _, err := o.ledger.Update(ctx, updated); err != nil {
			return 0, err
		}
		return 1, nil
	}

	record := model.ActivityRecord{
		UserID:         o.userID,
		Name:           ledger.SyncedRecordName,
		Type:           model.ActivityTypeOther,
		CaloriesBurned: result.ActivityCalories,
		Notes:          notes,
		Date:           m.Date,
		Provenance:     model.ProvenanceSynced,
	}
	if _, err := o.ledger.Create(ctx, record); err != nil {
		return 0, err
	}
	return 1, nil
}

// handleFetchError はメトリクス取得エラーを分類して状態機械に反映する。
func (o *Orchestrator) handleFetchError(gen uint64, err error) error {
	if errors.Is(err, model.ErrUnauthorized) {
		o.tokens.Clear()

		o.mu.Lock()
		if gen == o.generation {
			o.session.Status = model.StatusError
			o.session.StatusMessage = "プロバイダーとの接続が無効になりました。再度接続してください。"
		}
		o.mu.Unlock()

		o.logger.Warn("トークンが無効です。再認可が必要です")
		o.collector.RecordSyncFailure("unauthorized")
		o.collector.SetConnectionStatus(false)
		o.persistState(false)
		if o.onConnectionChange != nil {
			o.onConnectionChange(false)
		}
		return err
	}

	var providerErr *model.ProviderError
	reason := "provider"
	switch {
	case errors.As(err, &providerErr):
		o.collector.RecordProviderStatus(providerErr.Status)
	case errors.Is(err, model.ErrMalformedResponse):
		reason = "malformed"
	}

	o.recordCycleFailure(gen, reason, err)
	return err
}

// recordCycleFailure は接続を維持したままのサイクル失敗を記録する。
// 次回の定期同期で自動的に再試行される。
func (o *Orchestrator) recordCycleFailure(gen uint64, reason string, err error) {
	o.mu.Lock()
	if gen == o.generation {
		o.session.LastError = err.Error()
		o.consecutiveFailures++
	}
	failures := o.consecutiveFailures
	o.mu.Unlock()

	o.collector.RecordSyncFailure(reason)
	o.logger.Warn("同期サイクルが失敗しました。接続は維持されます",
		slog.String("reason", reason),
		slog.String("error", err.Error()),
		slog.Int("consecutive_failures", failures),
	)
}

// persistState は現在の状態を状態ファイルに書き込む。
func (o *Orchestrator) persistState(connected bool) {
	o.mu.Lock()
	state := statestore.State{
		LastSyncedAt: o.session.LastSyncedAt,
		WasConnected: connected,
	}
	o.mu.Unlock()

	if err := o.states.Save(state); err != nil {
		o.logger.Warn("状態ファイルの保存に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// Start は定期同期スケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
// 未接続の間は各ティックを読み飛ばす。
func (o *Orchestrator) Start(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", o.interval),
	)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := o.SyncNow(ctx); err != nil && !errors.Is(err, model.ErrNotConnected) {
				o.logger.Error("定期同期の実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
