package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/fitsync/internal/model"
)

// serviceTokenLifetime はリクエストごとに発行するサービストークンの有効期間。
const serviceTokenLifetime = 2 * time.Minute

// HTTPClient はバックエンドのアクティビティAPIを経由するレジャー実装。
// リクエストごとに短命のHS256サービストークンを発行して認証する。
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	jwtSecret  []byte
	userID     string
	logger     *slog.Logger
}

// NewHTTPClient はHTTPClient の新しいインスタンスを生成する。
func NewHTTPClient(httpClient *http.Client, baseURL, jwtSecret, userID string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		jwtSecret:  []byte(jwtSecret),
		userID:     userID,
		logger:     logger,
	}
}

// activityDTO はアクティビティAPIのワイヤ表現。
type activityDTO struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	CaloriesBurned int       `json:"calories_burned"`
	Notes          string    `json:"notes"`
	Date           string    `json:"date"`
	Provenance     string    `json:"provenance"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toDTO(r model.ActivityRecord) activityDTO {
	return activityDTO{
		ID:             r.ID,
		UserID:         r.UserID,
		Name:           r.Name,
		Type:           r.Type,
		CaloriesBurned: r.CaloriesBurned,
		Notes:          r.Notes,
		Date:           r.Date,
		Provenance:     string(r.Provenance),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func fromDTO(d activityDTO) model.ActivityRecord {
	return model.ActivityRecord{
		ID:             d.ID,
		UserID:         d.UserID,
		Name:           d.Name,
		Type:           d.Type,
		CaloriesBurned: d.CaloriesBurned,
		Notes:          d.Notes,
		Date:           d.Date,
		Provenance:     model.Provenance(d.Provenance),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// List は指定日のアクティビティレコードを取得する。
func (c *HTTPClient) List(ctx context.Context, date string) ([]model.ActivityRecord, error) {
	endpoint := fmt.Sprintf("%s/api/activities?date=%s", c.baseURL, url.QueryEscape(date))

	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &model.LedgerError{Op: "list", Err: err}
	}

	var dtos []activityDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, &model.LedgerError{Op: "list", Err: fmt.Errorf("レスポンスのパースに失敗しました: %w", err)}
	}

	records := make([]model.ActivityRecord, 0, len(dtos))
	for _, d := range dtos {
		records = append(records, fromDTO(d))
	}
	return records, nil
}

// Create はアクティビティレコードを新規作成する。
func (c *HTTPClient) Create(ctx context.Context, record model.ActivityRecord) (model.ActivityRecord, error) {
	payload, err := json.Marshal(toDTO(record))
	if err != nil {
		return model.ActivityRecord{}, &model.LedgerError{Op: "create", Err: err}
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/activities", payload)
	if err != nil {
		return model.ActivityRecord{}, &model.LedgerError{Op: "create", Err: err}
	}

	var dto activityDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return model.ActivityRecord{}, &model.LedgerError{Op: "create", Err: fmt.Errorf("レスポンスのパースに失敗しました: %w", err)}
	}
	return fromDTO(dto), nil
}

// Update は既存のアクティビティレコードを更新する。
func (c *HTTPClient) Update(ctx context.Context, record model.ActivityRecord) (model.ActivityRecord, error) {
	if record.ID == "" {
		return model.ActivityRecord{}, &model.LedgerError{Op: "update", Err: fmt.Errorf("レコードIDが指定されていません")}
	}

	payload, err := json.Marshal(toDTO(record))
	if err != nil {
		return model.ActivityRecord{}, &model.LedgerError{Op: "update", Err: err}
	}

	body, err := c.do(ctx, http.MethodPut, fmt.Sprintf("%s/api/activities/%s", c.baseURL, url.PathEscape(record.ID)), payload)
	if err != nil {
		return model.ActivityRecord{}, &model.LedgerError{Op: "update", Err: err}
	}

	var dto activityDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return model.ActivityRecord{}, &model.LedgerError{Op: "update", Err: fmt.Errorf("レスポンスのパースに失敗しました: %w", err)}
	}
	return fromDTO(dto), nil
}

// do はサービストークン付きのHTTPリクエストを実行し、2xxのボディを返す。
func (c *HTTPClient) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	serviceToken, err := c.mintServiceToken()
	if err != nil {
		return nil, fmt.Errorf("サービストークンの発行に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+serviceToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("レジャーAPIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("レジャーAPIがエラーステータスを返しました",
			slog.String("method", method),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("レジャーAPIがステータス %d を返しました", resp.StatusCode)
	}

	return body, nil
}

// mintServiceToken は短命のHS256サービストークンを発行する。
func (c *HTTPClient) mintServiceToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   c.userID,
		"scope": "activity:write",
		"iat":   now.Unix(),
		"exp":   now.Add(serviceTokenLifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.jwtSecret)
}

// compile-time interface check
var _ ActivityLedger = (*HTTPClient)(nil)
