package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hitoshi/ministers/internal/auth"
	"github.com/hitoshi/ministers/internal/browse"
	"github.com/hitoshi/ministers/internal/client"
	"github.com/hitoshi/ministers/internal/config"
	"github.com/hitoshi/ministers/internal/database"
	"github.com/hitoshi/ministers/internal/handler"
	"github.com/hitoshi/ministers/internal/localstore"
	"github.com/hitoshi/ministers/internal/logger"
	"github.com/hitoshi/ministers/internal/metrics"
	"github.com/hitoshi/ministers/internal/middleware"
	"github.com/hitoshi/ministers/internal/minister"
	"github.com/hitoshi/ministers/internal/rating"
	"github.com/hitoshi/ministers/internal/repository"
	"github.com/hitoshi/ministers/internal/security"
	"github.com/hitoshi/ministers/internal/session"
	"github.com/hitoshi/ministers/internal/wiki"
	"github.com/hitoshi/ministers/internal/worker/cleanup"
)

// cleanupInterval は要約キャッシュ削除ジョブの実行間隔。
const cleanupInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck と browse はサーバー設定を必要としないため、フル初期化をスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandBrowse:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runBrowse(ctx, os.Stdin, w)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		migrateArgs, err := ParseMigrateArgs(args[1:])
		if err != nil {
			return err
		}
		return runMigrate(cfg, migrateArgs)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// newWikiClient はSSRFガード付きのWikipediaクライアントを生成する。
func newWikiClient(cfg *config.Config) *wiki.Client {
	guard := security.NewSSRFGuard(wiki.DefaultHost)
	httpClient := guard.NewSafeClient(cfg.WikiFetchTimeout, cfg.WikiFetchMaxSize)
	cleaner := wiki.NewCleaner(wiki.DefaultOrigin, security.NewContentSanitizer())
	return wiki.NewClient(httpClient, cleaner, slog.Default())
}

// rateLimiterConfig は設定値（req/min）をレートリミッターの設定（req/sec）に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rlCfg.GeneralBurst = cfg.RateLimitGeneral
	rlCfg.RatingRate = rate.Limit(float64(cfg.RateLimitRating) / 60.0)
	rlCfg.RatingBurst = cfg.RateLimitRating
	return rlCfg
}

// newRegistry はアプリケーションとランタイムのメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	ministerRepo := repository.NewPostgresMinisterRepo(db)
	ratingRepo := repository.NewPostgresRatingRepo(db)
	adminRepo := repository.NewPostgresAdminRepo(db)
	wikiRepo := repository.NewPostgresWikiRepo(db)

	// 3. メトリクス
	reg, collector := newRegistry()

	// 4. ドメインサービスの初期化
	ministerService := minister.NewService(ministerRepo, wikiRepo, newWikiClient(cfg), slog.Default()).
		WithMetrics(collector)
	ratingService := rating.NewService(ratingRepo, collector, slog.Default())

	verifier := auth.NewVerifier(auth.VerifierConfig{
		Secret:   []byte(cfg.AuthJWTSecret),
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		Leeway:   auth.DefaultLeeway,
	})
	admins := auth.NewAdminChecker(adminRepo, cfg.AdminCacheTTL)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Verifier:          verifier,
		Admins:            admins,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		HealthChecker:  db,
		StatusMetrics:  collector,
		MetricsHandler: metrics.SetupMetricsRoute(reg),

		MinisterService: ministerService,
		RatingService:   ratingService,
		AdminService:    ministerService,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// Wikipedia要約のバッチ更新と、古い要約キャッシュの日次削除を並行して実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. 依存関係の初期化
	wikiRepo := repository.NewPostgresWikiRepo(db)
	_, collector := newRegistry()

	batch := wiki.NewBatchJob(wikiRepo, newWikiClient(cfg), collector, slog.Default(), wiki.BatchConfig{
		BatchInterval:    cfg.WikiBatchInterval,
		APIInterval:      cfg.WikiAPIInterval,
		MaxCallsPerCycle: cfg.WikiMaxCallsPerCycle,
		TTL:              cfg.WikiTTL,
	})

	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), collector)
	cleanupJob.RetentionDays = cfg.WikiRetentionDays

	slog.Info("worker starting",
		slog.Duration("wiki_batch_interval", cfg.WikiBatchInterval),
		slog.Int("wiki_retention_days", cfg.WikiRetentionDays),
	)

	// 3. ジョブの起動（コンテキストのキャンセルで両方とも終了する）
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		batch.Start(gctx)
		return nil
	})
	g.Go(func() error {
		cleanupJob.Start(gctx, cleanupInterval)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, args MigrateArgs) error {
	slog.Info("running database migrations",
		slog.String("action", string(args.Action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch args.Action {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, args.Steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back", slog.Int("steps", args.Steps))
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("database migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}

	return nil
}

// runBrowse は対話型の端末クライアントを起動する。
// ログは標準エラー出力に人間が読みやすい形式で出力する。
func runBrowse(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	l := logger.SetupConsole(os.Stderr, slog.LevelWarn)

	store, err := localstore.Open(ctx, cfg.StatePath)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions := session.NewProvider()
	if cfg.AccessToken != "" {
		if _, err := sessions.SignIn(cfg.AccessToken); err != nil {
			l.Warn("ACCESS_TOKENを読み込めないため匿名で起動します", logger.Err(err))
		}
	}

	api, err := client.New(cfg.APIBaseURL, sessions, l, cfg.RequestTimeout)
	if err != nil {
		return err
	}

	view := browse.New(api, sessions, store, out, l)
	// 期限切れのトークンでは匿名で閲覧できるよう、拒否されたらログアウトする
	api.OnUnauthorized(view.SessionExpired)
	return view.Run(ctx, in)
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

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "xxx")
	}
	u.RawQuery = ""
	return u.String()
}
