package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/repodigest/internal/metrics"
	"github.com/hitoshi/repodigest/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Sessions          middleware.SessionStore
	SessionCookie     middleware.SessionCookieConfig
	CSRF              middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusObserver    middleware.StatusObserver // nilの場合はHTTPメトリクスを記録しない

	// 運用
	Gatherer            prometheus.Gatherer // nilの場合は/metricsを公開しない
	HealthChecker       HealthChecker       // nilの場合は履歴DBを確認しない
	DirectoryConfigured bool

	// 更新取得
	Catalog  CatalogService
	Workflow WorkflowRunner
	Renderer MarkdownRenderer

	// ダウンロード
	DownloadDir string

	// 実行履歴（nilの場合は無効）
	History HistoryLister
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → Session → CSRF → RateLimit(General)
//
// /health と /metrics はセッションを発行しないよう、Session以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusObserver))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", NewHealthHandler(deps.HealthChecker, deps.DirectoryConfigured))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	optionsHandler := NewOptionsHandler(deps.Catalog, deps.Logger)
	fetchHandler := NewFetchHandler(deps.Workflow, deps.Renderer, deps.Logger, deps.CORSAllowedOrigin)
	downloadHandler := NewDownloadHandler(deps.DownloadDir, deps.Logger)
	historyHandler := NewHistoryHandler(deps.History, deps.Logger)

	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Sessions, deps.SessionCookie))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		// 選択肢
		r.Get("/options", optionsHandler.Options)
		r.Get("/models", optionsHandler.Models)
		r.Get("/source-types", optionsHandler.SourceTypes)
		r.Get("/sources", optionsHandler.Sources)

		// 更新取得と送信（取得専用レート制限を追加）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.FetchMiddleware())
			r.Post("/fetch", fetchHandler.Fetch)
			r.Get("/fetch/stream", fetchHandler.Stream)
			r.Post("/send", fetchHandler.Send)
		})

		r.Post("/recipients/validate", fetchHandler.ValidateRecipients)
		r.Post("/download", downloadHandler.Download)
		r.Get("/history", historyHandler.List)
	})

	return r
}
