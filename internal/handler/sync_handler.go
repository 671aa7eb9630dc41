// Package handler はコントロールAPIのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/fitsync/internal/model"
)

// SyncServiceInterface は同期ハンドラーが必要とするオーケストレーターの
// インターフェース。
type SyncServiceInterface interface {
	// Status は現在のセッション状態のスナップショットを返す。
	Status() model.SyncSession
	// Connect は認可ハンドシェイクを開始する。
	Connect() error
	// Disconnect は接続を解除しトークンを破棄する。
	Disconnect()
	// SyncNow は同期サイクルを1回実行する。
	SyncNow(ctx context.Context) error
	// RequestSync はウェイク起因の同期を要求する。
	RequestSync() bool
}

// SyncHandler は同期エンジンのコントロールAPIハンドラー。
type SyncHandler struct {
	service SyncServiceInterface
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(service SyncServiceInterface) *SyncHandler {
	return &SyncHandler{service: service}
}

// metricsResponse は当日メトリクスのAPIレスポンス。
type metricsResponse struct {
	Date             string  `json:"date"`
	CaloriesExpended float64 `json:"calories_expended"`
	Steps            int     `json:"steps"`
	DistanceMeters   float64 `json:"distance_meters"`
	HeartRateAvg     float64 `json:"heart_rate_avg"`
	HeartRateMin     int     `json:"heart_rate_min"`
	HeartRateMax     int     `json:"heart_rate_max"`
}

// resultResponse はカロリー分解結果のAPIレスポンス。
type resultResponse struct {
	ActivityCalories int     `json:"activity_calories"`
	EstimatedRest    float64 `json:"estimated_rest"`
}

// statusResponse はセッション状態のAPIレスポンス。
type statusResponse struct {
	ConnectionStatus string           `json:"connection_status"`
	StatusMessage    string           `json:"status_message,omitempty"`
	LastError        string           `json:"last_error,omitempty"`
	LastSyncedAt     *time.Time       `json:"last_synced_at,omitempty"`
	LatestMetrics    *metricsResponse `json:"latest_metrics,omitempty"`
	LatestResult     *resultResponse  `json:"latest_result,omitempty"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// GetStatus はセッション状態を返す。
// GET /api/sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	session := h.service.Status()

	resp := statusResponse{
		ConnectionStatus: string(session.Status),
		StatusMessage:    session.StatusMessage,
		LastError:        session.LastError,
		LastSyncedAt:     session.LastSyncedAt,
	}
	if session.LatestMetrics != nil {
		m := session.LatestMetrics
		resp.LatestMetrics = &metricsResponse{
			Date:             m.Date,
			CaloriesExpended: m.CaloriesExpended,
			Steps:            m.Steps,
			DistanceMeters:   m.DistanceMeters,
			HeartRateAvg:     m.HeartRate.Average,
			HeartRateMin:     m.HeartRate.Min,
			HeartRateMax:     m.HeartRate.Max,
		}
	}
	if session.LatestResult != nil {
		resp.LatestResult = &resultResponse{
			ActivityCalories: session.LatestResult.ActivityCalories,
			EstimatedRest:    session.LatestResult.EstimatedRest,
		}
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// Connect は認可ハンドシェイクを開始する。
// ハンドシェイクはバックグラウンドで進行するため202を返す。
// POST /api/sync/connect
func (h *SyncHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Connect(); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusAccepted, map[string]string{
		"connection_status": string(h.service.Status().Status),
	})
}

// Disconnect は接続を解除する。
// POST /api/sync/disconnect
func (h *SyncHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.service.Disconnect()
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"connection_status": string(model.StatusDisconnected),
	})
}

// SyncNow は同期サイクルを即時実行する。
// POST /api/sync/now
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SyncNow(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}
	h.GetStatus(w, r)
}

// Wake はフォアグラウンド復帰などのウェイクイベントを受ける。
// デバウンスにより破棄された場合も202を返す（呼び出し側は結果を待たない）。
// POST /api/sync/wake
func (h *SyncHandler) Wake(w http.ResponseWriter, r *http.Request) {
	triggered := h.service.RequestSync()
	writeJSONResponse(w, http.StatusAccepted, map[string]bool{
		"sync_triggered": triggered,
	})
}

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はオーケストレーターから返されたエラーを
// 統一エラーフォーマットとHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var providerErr *model.ProviderError
	var ledgerErr *model.LedgerError

	switch {
	case errors.Is(err, model.ErrNotConnected):
		writeAPIErrorResponse(w, http.StatusConflict, model.NewNotConnectedError())
	case errors.Is(err, model.ErrAuthorizeInFlight):
		writeAPIErrorResponse(w, http.StatusConflict, &model.APIError{
			Code:     model.ErrCodeAuthInFlight,
			Message:  "認可ハンドシェイクが既に実行中です。",
			Category: "auth",
			Action:   "実行中のハンドシェイクの完了を待ってください。",
		})
	case errors.Is(err, model.ErrUnauthorized):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewReconnectRequiredError())
	case errors.Is(err, model.ErrUserCancelled):
		writeAPIErrorResponse(w, http.StatusConflict, model.NewAuthCancelledError())
	case errors.Is(err, model.ErrAuthTimeout):
		writeAPIErrorResponse(w, http.StatusGatewayTimeout, model.NewAuthTimeoutError())
	case errors.Is(err, model.ErrMalformedResponse):
		writeAPIErrorResponse(w, http.StatusBadGateway, &model.APIError{
			Code:     model.ErrCodeMalformedResponse,
			Message:  "プロバイダーのレスポンスを解析できませんでした。",
			Category: "provider",
			Action:   "次回の定期同期で自動的に再試行されます。",
		})
	case errors.As(err, &providerErr):
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewProviderUnavailableError(providerErr.Status))
	case errors.As(err, &ledgerErr):
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewLedgerWriteError())
	default:
		slog.Error("internal server error", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     "INTERNAL_ERROR",
			Message:  "内部エラーが発生しました。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		})
	}
}
