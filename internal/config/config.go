// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LedgerMode はアクティビティレジャーへの接続方式。
type LedgerMode string

const (
	// LedgerModeAPI はバックエンドのREST APIを経由する方式。
	LedgerModeAPI LedgerMode = "api"
	// LedgerModePostgres はレジャーのデータベースに直接接続する方式。
	LedgerModePostgres LedgerMode = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Provider
	ProviderClientID  string
	ProviderAPIKey    string
	ProviderAuthURL   string
	ProviderAPIURL    string
	ProviderRateLimit float64 // プロバイダーAPI呼び出しのレート（req/sec）

	// Authorization
	AuthCallbackAddr string // 認可コールバック用ループバックリスナーのアドレス
	AuthTimeout      time.Duration

	// Sync
	SyncInterval     time.Duration
	SyncDebounce     time.Duration
	RestBaselineKcal float64 // 基礎代謝ベースライン（kcal/日）

	// Ledger
	LedgerMode      LedgerMode
	LedgerAPIURL    string
	LedgerJWTSecret string
	LedgerUserID    string
	DatabaseURL     string

	// Fetch
	FetchTimeout time.Duration
	FetchMaxSize int64

	// State
	StateFile string

	// Rate Limit（コントロールAPI）
	RateLimitControl int

	// Server
	ServerPort string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.ProviderClientID = os.Getenv("PROVIDER_CLIENT_ID")
	if cfg.ProviderClientID == "" {
		missing = append(missing, "PROVIDER_CLIENT_ID")
	}

	cfg.ProviderAPIKey = os.Getenv("PROVIDER_API_KEY")
	if cfg.ProviderAPIKey == "" {
		missing = append(missing, "PROVIDER_API_KEY")
	}

	cfg.ProviderAuthURL = os.Getenv("PROVIDER_AUTH_URL")
	if cfg.ProviderAuthURL == "" {
		missing = append(missing, "PROVIDER_AUTH_URL")
	}

	cfg.ProviderAPIURL = os.Getenv("PROVIDER_API_URL")
	if cfg.ProviderAPIURL == "" {
		missing = append(missing, "PROVIDER_API_URL")
	}

	cfg.LedgerUserID = os.Getenv("LEDGER_USER_ID")
	if cfg.LedgerUserID == "" {
		missing = append(missing, "LEDGER_USER_ID")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// レジャーの接続方式に応じて必須項目が変わる
	mode := LedgerMode(getEnvString("LEDGER_MODE", string(LedgerModeAPI)))
	switch mode {
	case LedgerModeAPI:
		cfg.LedgerAPIURL = os.Getenv("LEDGER_API_URL")
		cfg.LedgerJWTSecret = os.Getenv("LEDGER_JWT_SECRET")
		if cfg.LedgerAPIURL == "" || cfg.LedgerJWTSecret == "" {
			return nil, fmt.Errorf("LEDGER_MODE=api requires LEDGER_API_URL and LEDGER_JWT_SECRET")
		}
	case LedgerModePostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("LEDGER_MODE=postgres requires DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("invalid LEDGER_MODE: %s (allowed: api, postgres)", mode)
	}
	cfg.LedgerMode = mode

	// Optional fields with defaults
	cfg.ProviderRateLimit = getEnvFloat("PROVIDER_RATE_LIMIT", 2.0)
	cfg.AuthCallbackAddr = getEnvString("AUTH_CALLBACK_ADDR", "127.0.0.1:8484")
	cfg.AuthTimeout = getEnvDuration("AUTH_TIMEOUT", 5*time.Minute)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 30*time.Minute)
	cfg.SyncDebounce = getEnvDuration("SYNC_DEBOUNCE", 10*time.Second)
	cfg.RestBaselineKcal = getEnvFloat("SYNC_REST_BASELINE_KCAL", 1800)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 1048576)
	cfg.StateFile = getEnvString("STATE_FILE", "fitsync_state.json")
	cfg.RateLimitControl = getEnvInt("RATE_LIMIT_CONTROL", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8090")
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))

	if cfg.RestBaselineKcal <= 0 {
		return nil, fmt.Errorf("SYNC_REST_BASELINE_KCAL must be positive: %v", cfg.RestBaselineKcal)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
