package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/fitsync/internal/metrics"
	"github.com/hitoshi/fitsync/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	SyncService SyncServiceInterface
	RateLimiter *middleware.RateLimiter
	Logger      *slog.Logger
	Gatherer    prometheus.Gatherer
}

// NewRouter はコントロールAPIのルーティングとミドルウェアチェーンを
// 構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → RateLimitMiddleware
//
// /metrics と /healthz はレート制限の外に配置する（スクレイプと
// 死活監視を制限しない）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	syncHandler := NewSyncHandler(deps.SyncService)

	// --- 監視系ルート（レート制限なし） ---
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// --- コントロールAPI ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())

		r.Route("/api/sync", func(r chi.Router) {
			r.Get("/status", syncHandler.GetStatus)
			r.Post("/connect", syncHandler.Connect)
			r.Post("/disconnect", syncHandler.Disconnect)
			r.Post("/now", syncHandler.SyncNow)
			r.Post("/wake", syncHandler.Wake)
		})
	})

	return r
}
