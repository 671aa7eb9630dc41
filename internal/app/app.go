// Package app はアプリケーションの初期化・依存ワイヤリング・起動を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/fitsync/internal/auth"
	"github.com/hitoshi/fitsync/internal/config"
	"github.com/hitoshi/fitsync/internal/database"
	"github.com/hitoshi/fitsync/internal/handler"
	"github.com/hitoshi/fitsync/internal/ledger"
	"github.com/hitoshi/fitsync/internal/logger"
	"github.com/hitoshi/fitsync/internal/metrics"
	"github.com/hitoshi/fitsync/internal/middleware"
	"github.com/hitoshi/fitsync/internal/provider"
	"github.com/hitoshi/fitsync/internal/repository"
	"github.com/hitoshi/fitsync/internal/security"
	"github.com/hitoshi/fitsync/internal/statestore"
	syncpkg "github.com/hitoshi/fitsync/internal/sync"
	"github.com/hitoshi/fitsync/internal/token"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする（レベルは読み込み後に確定）
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8090"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("ledger_mode", string(cfg.LedgerMode)),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe は同期デーモンモードで起動する。
// 全依存関係をワイヤリングし、定期同期スケジューラとコントロールAPIの
// HTTPサーバーを起動する。SIGINTまたはSIGTERMシグナルを受信すると
// グレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. 外部エンドポイントの検証
	providerGuard := security.NewEndpointGuard()
	if err := providerGuard.ValidateEndpoint(cfg.ProviderAuthURL); err != nil {
		return fmt.Errorf("invalid PROVIDER_AUTH_URL: %w", err)
	}
	if err := providerGuard.ValidateEndpoint(cfg.ProviderAPIURL); err != nil {
		return fmt.Errorf("invalid PROVIDER_API_URL: %w", err)
	}

	// 2. 共有コンポーネントの初期化
	tokens := token.NewStore()
	states := statestore.NewStore(cfg.StateFile, slog.Default())
	sanitizer := security.NewNoteSanitizer()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. 認可フローの初期化
	flow := auth.NewFlow(
		cfg.ProviderClientID, cfg.ProviderAPIKey,
		cfg.ProviderAuthURL, cfg.AuthCallbackAddr,
		cfg.AuthTimeout, slog.Default(),
	)
	if err := flow.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize authorization flow: %w", err)
	}

	// 4. プロバイダークライアントの初期化
	providerClient := provider.NewClient(
		providerGuard.NewSafeClient(cfg.FetchTimeout),
		tokens,
		cfg.ProviderAPIURL, cfg.ProviderAPIKey,
		cfg.ProviderRateLimit, cfg.FetchMaxSize,
		slog.Default(),
	)

	// 5. レジャーの初期化（接続方式はLEDGER_MODEで切り替わる）
	var activityLedger ledger.ActivityLedger
	switch cfg.LedgerMode {
	case config.LedgerModePostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")

		activityLedger = repository.NewPostgresActivityRepo(db, cfg.LedgerUserID)
	default:
		// バックエンドAPIは同一ホスト同居構成を許可する
		ledgerGuard := security.NewLocalEndpointGuard()
		if err := ledgerGuard.ValidateEndpoint(cfg.LedgerAPIURL); err != nil {
			return fmt.Errorf("invalid LEDGER_API_URL: %w", err)
		}
		activityLedger = ledger.NewHTTPClient(
			ledgerGuard.NewSafeClient(cfg.FetchTimeout),
			cfg.LedgerAPIURL, cfg.LedgerJWTSecret, cfg.LedgerUserID,
			slog.Default(),
		)
	}

	// 6. オーケストレーターの初期化
	orchestrator := syncpkg.NewOrchestrator(syncpkg.Deps{
		Authorizer:   flow,
		Fetcher:      providerClient,
		Ledger:       activityLedger,
		Tokens:       tokens,
		Sanitizer:    sanitizer,
		States:       states,
		Collector:    collector,
		Logger:       slog.Default(),
		UserID:       cfg.LedgerUserID,
		BaselineKcal: cfg.RestBaselineKcal,
		Interval:     cfg.SyncInterval,
		Debounce:     cfg.SyncDebounce,
	})

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitControl))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		SyncService: orchestrator,
		RateLimiter: rateLimiter,
		Logger:      slog.Default(),
		Gatherer:    registry,
	})

	// 8. スケジューラとHTTPサーバーの起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go orchestrator.Start(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("control API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down sync daemon...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("sync daemon stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.LedgerMode != config.LedgerModePostgres {
		return fmt.Errorf("migrate requires LEDGER_MODE=postgres")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
