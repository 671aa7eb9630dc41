package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/fitsync/internal/model"
	"github.com/hitoshi/fitsync/internal/token"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newValidTokenStore() *token.Store {
	s := token.NewStore()
	s.Set(model.Credential{
		AccessToken: "test-token",
		ExpiresAt:   time.Now().Add(1 * time.Hour),
	})
	return s
}

func newTestClient(serverURL string, tokens *token.Store) *Client {
	return NewClient(&http.Client{}, tokens, serverURL, "test-api-key", 1000, 1048576, newTestLogger())
}

func day(dateStr string) time.Time {
	t, _ := time.Parse(model.DateLayout, dateStr)
	return t
}

// TestFetchRange_Success は正常系の取得と日付ごとの正規化をテストする。
func TestFetchRange_Success(t *testing.T) {
	var gotAuth, gotAPIKey string
	var gotRequest rangeRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("X-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("リクエストボディのデコードに失敗: %v", err)
		}

		resp := aggregateResponse{
			CaloriesExpended: []valueBucket{
				{Date: "2026-08-29", Value: 500},
				{Date: "2026-08-31", Value: 320},
			},
			Steps: []valueBucket{
				{Date: "2026-08-29", Value: 8000},
			},
			Distance: []valueBucket{
				{Date: "2026-08-29", Value: 6200},
			},
			HeartRate: []heartRateBucket{
				{Date: "2026-08-29", Avg: 72.5, Min: 55, Max: 140},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL, newValidTokenStore())
	metrics, err := client.FetchRange(context.Background(), day("2026-08-29"), day("2026-08-31"))
	if err != nil {
		t.Fatalf("FetchRange() error = %v, want nil", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer test-token")
	}
	if gotAPIKey != "test-api-key" {
		t.Errorf("X-Api-Key = %q, want %q", gotAPIKey, "test-api-key")
	}
	if gotRequest.Bucket != "1d" {
		t.Errorf("bucket = %q, want %q", gotRequest.Bucket, "1d")
	}
	if len(gotRequest.Metrics) != 4 {
		t.Errorf("metrics count = %d, want 4", len(gotRequest.Metrics))
	}

	// 3日分、1日1バケット、日付昇順
	if len(metrics) != 3 {
		t.Fatalf("len(metrics) = %d, want 3", len(metrics))
	}

	first := metrics[0]
	if first.Date != "2026-08-29" {
		t.Errorf("metrics[0].Date = %q, want %q", first.Date, "2026-08-29")
	}
	if first.CaloriesExpended != 500 {
		t.Errorf("CaloriesExpended = %v, want 500", first.CaloriesExpended)
	}
	if first.Steps != 8000 {
		t.Errorf("Steps = %d, want 8000", first.Steps)
	}
	if first.DistanceMeters != 6200 {
		t.Errorf("DistanceMeters = %v, want 6200", first.DistanceMeters)
	}
	if first.HeartRate.Average != 72.5 || first.HeartRate.Min != 55 || first.HeartRate.Max != 140 {
		t.Errorf("HeartRate = %+v, want {72.5 55 140}", first.HeartRate)
	}

	// データのない日はゼロ埋めされる
	middle := metrics[1]
	if middle.Date != "2026-08-30" {
		t.Errorf("metrics[1].Date = %q, want %q", middle.Date, "2026-08-30")
	}
	if !middle.IsZero() {
		t.Errorf("metrics[1].IsZero() = false, want true: %+v", middle)
	}

	last := metrics[2]
	if last.Date != "2026-08-31" || last.CaloriesExpended != 320 {
		t.Errorf("metrics[2] = %+v, want date 2026-08-31 calories 320", last)
	}
}

// TestFetchRange_DuplicateBuckets は同一日の重複バケットの縮約をテストする。
func TestFetchRange_DuplicateBuckets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := aggregateResponse{
			CaloriesExpended: []valueBucket{
				{Date: "2026-08-30", Value: 200},
				{Date: "2026-08-30", Value: 150},
			},
			Steps: []valueBucket{
				{Date: "2026-08-30", Value: 3000},
				{Date: "2026-08-30", Value: 2500},
			},
			HeartRate: []heartRateBucket{
				{Date: "2026-08-30", Avg: 70, Min: 60, Max: 120},
				{Date: "2026-08-30", Avg: 85, Min: 55, Max: 150},
				{Date: "2026-08-30", Avg: 0, Min: 0, Max: 0},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL, newValidTokenStore())
	metrics, err := client.FetchRange(context.Background(), day("2026-08-30"), day("2026-08-30"))
	if err != nil {
		t.Fatalf("FetchRange() error = %v, want nil", err)
	}
	if len(metrics) != 1 {
		t.Fatalf("len(metrics) = %d, want 1", len(metrics))
	}

	got := metrics[0]
	// カロリー・歩数は加算
	if got.CaloriesExpended != 350 {
		t.Errorf("CaloriesExpended = %v, want 350", got.CaloriesExpended)
	}
	if got.Steps != 5500 {
		t.Errorf("Steps = %d, want 5500", got.Steps)
	}
	// 心拍は min/max/最後の非ゼロ平均値に縮約（ゼロバケットは無視）
	if got.HeartRate.Min != 55 {
		t.Errorf("HeartRate.Min = %d, want 55", got.HeartRate.Min)
	}
	if got.HeartRate.Max != 150 {
		t.Errorf("HeartRate.Max = %d, want 150", got.HeartRate.Max)
	}
	if got.HeartRate.Average != 85 {
		t.Errorf("HeartRate.Average = %v, want 85", got.HeartRate.Average)
	}
}

// TestFetchRange_InvalidToken は無効クレデンシャルでリクエストを送らずに
// Unauthorizedが返ることをテストする。
func TestFetchRange_InvalidToken(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := newTestClient(server.URL, token.NewStore())
	_, err := client.FetchRange(context.Background(), day("2026-08-30"), day("2026-08-30"))
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("FetchRange() error = %v, want ErrUnauthorized", err)
	}
	if called {
		t.Error("無効トークンでプロバイダーAPIが呼ばれました")
	}
}

// TestFetchRange_AuthError はプロバイダーの401/403がUnauthorizedに
// 分類されることをテストする。
func TestFetchRange_AuthError(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		client := newTestClient(server.URL, newValidTokenStore())
		_, err := client.FetchRange(context.Background(), day("2026-08-30"), day("2026-08-30"))
		if !errors.Is(err, model.ErrUnauthorized) {
			t.Errorf("status %d: FetchRange() error = %v, want ErrUnauthorized", status, err)
		}
		server.Close()
	}
}

// TestFetchRange_ProviderError は認可以外の非2xxがProviderErrorに
// 分類されることをテストする。
func TestFetchRange_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL, newValidTokenStore())
	_, err := client.FetchRange(context.Background(), day("2026-08-30"), day("2026-08-30"))

	var providerErr *model.ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("FetchRange() error = %v, want *model.ProviderError", err)
	}
	if providerErr.Status != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want %d", providerErr.Status, http.StatusServiceUnavailable)
	}
}

// TestFetchRange_MalformedResponse は解析不能なレスポンスが
// MalformedResponseに分類されることをテストする。
func TestFetchRange_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, newValidTokenStore())
	_, err := client.FetchRange(context.Background(), day("2026-08-30"), day("2026-08-30"))
	if !errors.Is(err, model.ErrMalformedResponse) {
		t.Errorf("FetchRange() error = %v, want ErrMalformedResponse", err)
	}
}

// TestFetchToday は当日バケットの取得とゼロ値補完をテストする。
func TestFetchToday(t *testing.T) {
	today := time.Now().Format(model.DateLayout)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := aggregateResponse{
			CaloriesExpended: []valueBucket{{Date: today, Value: 450}},
			Steps:            []valueBucket{{Date: today, Value: 6000}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL, newValidTokenStore())
	got, err := client.FetchToday(context.Background())
	if err != nil {
		t.Fatalf("FetchToday() error = %v, want nil", err)
	}
	if got.Date != today {
		t.Errorf("Date = %q, want %q", got.Date, today)
	}
	if got.CaloriesExpended != 450 || got.Steps != 6000 {
		t.Errorf("metrics = %+v, want calories 450 steps 6000", got)
	}
}

// TestFetchToday_NoData はプロバイダーが空レスポンスを返した場合に
// 当日のゼロ値メトリクスが返ることをテストする。
func TestFetchToday_NoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, newValidTokenStore())
	got, err := client.FetchToday(context.Background())
	if err != nil {
		t.Fatalf("FetchToday() error = %v, want nil", err)
	}
	if got.Date != time.Now().Format(model.DateLayout) {
		t.Errorf("Date = %q, want today", got.Date)
	}
	if !got.IsZero() {
		t.Errorf("IsZero() = false, want true: %+v", got)
	}
}
