package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/repodigest/internal/config"
	"github.com/hitoshi/repodigest/internal/database"
	"github.com/hitoshi/repodigest/internal/directory"
	"github.com/hitoshi/repodigest/internal/handler"
	"github.com/hitoshi/repodigest/internal/logger"
	"github.com/hitoshi/repodigest/internal/metrics"
	"github.com/hitoshi/repodigest/internal/middleware"
	"github.com/hitoshi/repodigest/internal/render"
	"github.com/hitoshi/repodigest/internal/repository"
	"github.com/hitoshi/repodigest/internal/session"
	"github.com/hitoshi/repodigest/internal/worker/cleanup"
	"github.com/hitoshi/repodigest/internal/workflow"
)

const (
	shutdownTimeout = 30 * time.Second
	cleanupInterval = 24 * time.Hour
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// SIGINTまたはSIGTERMを受信するとコンテキストをキャンセルし、各モードを停止する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, w, args)
}

// RunContext はctxがキャンセルされるまで、引数で指定されたモードで動作する。
func RunContext(ctx context.Context, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		PrintUsage(w)
		return nil
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
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
		slog.String("base_url", cfg.BaseURL),
		slog.Bool("directory_configured", cfg.DirectoryURL != ""),
		slog.Bool("history_enabled", cfg.HistoryEnabled()),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openHistoryDB は実行履歴用のDB接続を開く。
// DATABASE_URLが未設定の場合はnilを返す。
func openHistoryDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if !cfg.HistoryEnabled() {
		return nil, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// newDirectory はSource Directoryクライアントを生成する。
// DIRECTORY_URLが未設定の場合はnilを返し、全カテゴリがモックデータで動作する。
func newDirectory(cfg *config.Config, logger *slog.Logger) directory.Directory {
	if cfg.DirectoryURL == "" {
		return nil
	}
	return directory.NewClient(&http.Client{Timeout: cfg.DirectoryTimeout}, logger, cfg.DirectoryURL)
}

// newServer は全依存関係をワイヤリングしたHTTPサーバーを生成する。
// 戻り値のcloseはサーバー停止後に呼び出す。
func newServer(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*http.Server, func()) {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. Source Directory
	gateway := directory.NewGateway(newDirectory(cfg, logger), logger, collector)
	catalog := workflow.NewCatalog(gateway, logger, collector)

	// 3. 実行履歴（任意）
	controllerDeps := workflow.ControllerDeps{
		Gateway:    gateway,
		Logger:     logger,
		StageDelay: cfg.StageDelay,
		Observer:   collector,
	}
	deps := &handler.RouterDeps{
		Logger: logger,
		SessionCookie: middleware.SessionCookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
		},
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin:   cfg.CORSAllowedOrigin,
		StatusObserver:      collector,
		Gatherer:            reg,
		DirectoryConfigured: gateway.Available(),
		Catalog:             catalog,
		Renderer:            render.NewRenderer(nil),
		DownloadDir:         cfg.DownloadDir,
	}
	if db != nil {
		runRepo := repository.NewPostgresRunRepo(db)
		controllerDeps.History = runRepo
		deps.History = runRepo
		deps.HealthChecker = db
	}
	deps.Workflow = workflow.NewController(controllerDeps)

	// 4. セッションとレート制限
	sessions := session.NewStore(catalog, cfg.SessionMaxIdle)
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitFetch))
	deps.Sessions = sessions
	deps.RateLimiter = limiter

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// 更新取得はSource Directoryの応答を待つため、その上限より長くする
		WriteTimeout: cfg.DirectoryTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	closeFn := func() {
		limiter.Stop()
		sessions.Stop()
	}
	return server, closeFn
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openHistoryDB(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	server, closeFn := newServer(cfg, db, slog.Default())
	defer closeFn()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 実行履歴と一時ファイルのクリーンアップを日次で実行し、ctxのキャンセルで停止する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openHistoryDB(ctx, cfg)
	if err != nil {
		return err
	}

	var pruner cleanup.RunPruner
	if db != nil {
		defer db.Close()
		pruner = repository.NewPostgresRunRepo(db)
	}

	reg := prometheus.NewRegistry()
	job := cleanup.NewCleanupJob(pruner, cfg.DownloadDir, slog.Default(), metrics.NewCollector(reg))
	job.RetentionDays = cfg.HistoryRetentionDays

	// ワーカーは/healthと/metricsのみを公開する
	mux := chi.NewRouter()
	var checker handler.HealthChecker
	if db != nil {
		checker = db
	}
	mux.Get("/health", handler.NewHealthHandler(checker, cfg.DirectoryURL != ""))
	mux.Handle("/metrics", metrics.Handler(reg))
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cleanupInterval),
		slog.Int("retention_days", cfg.HistoryRetentionDays),
		slog.String("addr", server.Addr),
	)

	job.Start(ctx, cleanupInterval)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("worker shutdown failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if !cfg.HistoryEnabled() {
		return errors.New("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.MigrateUp(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
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
