// Package provider はフィットネスプロバイダーAPIとの連携機能を提供する。
// 日単位バケットの集約メトリクス取得と、レスポンスのDailyMetricsへの正規化を含む。
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/fitsync/internal/model"
	"github.com/hitoshi/fitsync/internal/token"
)

// 集約リクエストで要求するメトリクス名。
const (
	metricCalories  = "calories_expended"
	metricSteps     = "steps"
	metricDistance  = "distance"
	metricHeartRate = "heart_rate"
)

// bucketOneDay は日単位バケットの指定値。
const bucketOneDay = "1d"

// Client はプロバイダーの集約データAPIのクライアント。
// 日単位バケットで複数メトリクスを一括取得し、1日につき1つの
// DailyMetricsへ正規化する。レスポンスに含まれない日はゼロ埋めされる。
type Client struct {
	httpClient  *http.Client
	tokens      *token.Store
	logger      *slog.Logger
	limiter     *rate.Limiter
	apiURL      string
	apiKey      string
	maxBodySize int64
}

// NewClient はClient の新しいインスタンスを生成する。
// rateLimit はプロバイダーAPI呼び出しの上限（req/sec）。
func NewClient(httpClient *http.Client, tokens *token.Store, apiURL, apiKey string, rateLimit float64, maxBodySize int64, logger *slog.Logger) *Client {
	return &Client{
		httpClient:  httpClient,
		tokens:      tokens,
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Limit(rateLimit), 1),
		apiURL:      apiURL,
		apiKey:      apiKey,
		maxBodySize: maxBodySize,
	}
}

// rangeRequest は集約データAPIへのリクエストボディ。
type rangeRequest struct {
	Metrics   []string `json:"metrics"`
	Bucket    string   `json:"bucket"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
}

// valueBucket は単一値メトリクスの1日分のバケット。
type valueBucket struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// heartRateBucket は心拍メトリクスの1日分のバケット。
type heartRateBucket struct {
	Date string  `json:"date"`
	Avg  float64 `json:"avg"`
	Min  int     `json:"min"`
	Max  int     `json:"max"`
}

// aggregateResponse は集約データAPIのレスポンスボディ。
type aggregateResponse struct {
	CaloriesExpended []valueBucket     `json:"calories_expended"`
	Steps            []valueBucket     `json:"steps"`
	Distance         []valueBucket     `json:"distance"`
	HeartRate        []heartRateBucket `json:"heart_rate"`
}

// FetchRange は指定期間の日単位メトリクスを取得する。
// 期間内の全カレンダー日について1日1つのDailyMetricsを日付昇順で返す。
// データのない日はゼロ値で補完される。
//
// クレデンシャルが無効な場合およびプロバイダーが401/403を返した場合は
// model.ErrUnauthorized を返す（呼び出し元はTokenStoreをクリアすることが
// 期待される）。その他の非2xxは model.ProviderError、レスポンスの解析失敗は
// model.ErrMalformedResponse を返す。
func (c *Client) FetchRange(ctx context.Context, start, end time.Time) ([]model.DailyMetrics, error) {
	if !c.tokens.IsValid() {
		return nil, model.ErrUnauthorized
	}
	credential, ok := c.tokens.Get()
	if !ok {
		return nil, model.ErrUnauthorized
	}

	// クライアント側レートリミット（プロバイダーのクォータ保護）
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("レートリミット待機が中断されました: %w", err)
	}

	reqBody := rangeRequest{
		Metrics:   []string{metricCalories, metricSteps, metricDistance, metricHeartRate},
		Bucket:    bucketOneDay,
		StartTime: start.Format(time.RFC3339),
		EndTime:   end.Format(time.RFC3339),
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential.AccessToken)
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("プロバイダーAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, &model.ProviderError{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	// 巨大レスポンスからの保護のため読み取りサイズを制限する
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.Warn("プロバイダーが認可エラーを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.logger.Error("プロバイダーがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &model.ProviderError{Status: resp.StatusCode, Message: truncate(string(body), 200)}
	}

	var aggregate aggregateResponse
	if err := json.Unmarshal(body, &aggregate); err != nil {
		c.logger.Error("プロバイダーのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedResponse, err)
	}

	return normalize(aggregate, start, end), nil
}

// FetchToday は当日（ローカル日）の1バケット分のメトリクスを取得する。
// プロバイダーが当日のバケットを返さない場合はゼロ値のDailyMetricsを返す。
func (c *Client) FetchToday(ctx context.Context) (model.DailyMetrics, error) {
	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	endOfDay := startOfDay.Add(24*time.Hour - time.Nanosecond)

	metrics, err := c.FetchRange(ctx, startOfDay, endOfDay)
	if err != nil {
		return model.DailyMetrics{}, err
	}

	today := now.Format(model.DateLayout)
	for _, m := range metrics {
		if m.Date == today {
			return m, nil
		}
	}
	return model.DailyMetrics{Date: today}, nil
}

// normalize は集約レスポンスを期間内の全カレンダー日のDailyMetricsに正規化する。
// 同一日の重複バケットは、カロリー・歩数・距離は加算、心拍は
// min/max/最後の非ゼロ平均値に縮約する。期間外の日付のバケットは無視される。
func normalize(aggregate aggregateResponse, start, end time.Time) []model.DailyMetrics {
	days := enumerateDays(start, end)
	index := make(map[string]*model.DailyMetrics, len(days))

	result := make([]model.DailyMetrics, len(days))
	for i, d := range days {
		result[i] = model.DailyMetrics{Date: d}
		index[d] = &result[i]
	}

	for _, b := range aggregate.CaloriesExpended {
		if m, ok := index[b.Date]; ok && b.Value > 0 {
			m.CaloriesExpended += b.Value
		}
	}
	for _, b := range aggregate.Steps {
		if m, ok := index[b.Date]; ok && b.Value > 0 {
			m.Steps += int(b.Value)
		}
	}
	for _, b := range aggregate.Distance {
		if m, ok := index[b.Date]; ok && b.Value > 0 {
			m.DistanceMeters += b.Value
		}
	}
	for _, b := range aggregate.HeartRate {
		m, ok := index[b.Date]
		if !ok {
			continue
		}
		if b.Min > 0 && (m.HeartRate.Min == 0 || b.Min < m.HeartRate.Min) {
			m.HeartRate.Min = b.Min
		}
		if b.Max > m.HeartRate.Max {
			m.HeartRate.Max = b.Max
		}
		if b.Avg > 0 {
			m.HeartRate.Average = b.Avg
		}
	}

	return result
}

// enumerateDays は期間内の全カレンダー日をDateLayout形式で昇順に列挙する。
// 開始と終了の時刻部分は無視し、日付単位で扱う。
func enumerateDays(start, end time.Time) []string {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())

	var days []string
	for d := startDay; !d.After(endDay); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(model.DateLayout))
	}
	return days
}

// truncate は文字列を最大長で切り詰める。
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
