package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/jikanwari/internal/config"
	"github.com/hitoshi/jikanwari/internal/database"
	fetchpkg "github.com/hitoshi/jikanwari/internal/fetch"
	"github.com/hitoshi/jikanwari/internal/handler"
	"github.com/hitoshi/jikanwari/internal/logger"
	"github.com/hitoshi/jikanwari/internal/merge"
	"github.com/hitoshi/jikanwari/internal/metrics"
	"github.com/hitoshi/jikanwari/internal/middleware"
	"github.com/hitoshi/jikanwari/internal/repository"
	"github.com/hitoshi/jikanwari/internal/schedule"
	"github.com/hitoshi/jikanwari/internal/security"
	"github.com/hitoshi/jikanwari/internal/subject"
	"github.com/hitoshi/jikanwari/internal/university"
	"github.com/hitoshi/jikanwari/internal/worker/cleanup"
	"github.com/hitoshi/jikanwari/internal/worker/refresh"
)

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
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// fetchStack は時間割の取得・マージに関わる依存関係の束。
// serveとworkerの両モードで同じワイヤリングを使う。
type fetchStack struct {
	subjects  repository.SubjectRepository
	schedules repository.ScheduleRepository
	events    repository.EventRepository
	extras    repository.EventExtraRepository

	orchestrator *fetchpkg.Orchestrator
	merger       *merge.Merger
	collector    *metrics.Collector
	registry     *prometheus.Registry
}

// buildFetchStack はDB接続から取得・マージまでの依存関係を構築する。
// 大学APIのベースURLは起動時にSSRF検証を行い、危険なURLなら起動を中止する。
func buildFetchStack(cfg *config.Config, db *sql.DB) (*fetchStack, error) {
	ssrfGuard := security.NewSSRFGuard()
	if err := ssrfGuard.ValidateURL(cfg.UniversityAPIURL); err != nil {
		return nil, fmt.Errorf("university API URL failed validation: %w", err)
	}

	subjectRepo := repository.NewPostgresSubjectRepo(db)
	scheduleRepo := repository.NewPostgresScheduleRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)
	extraRepo := repository.NewPostgresEventExtraRepo(db)

	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	httpClient := ssrfGuard.NewSafeClient(cfg.FetchTimeout, cfg.FetchMaxSize)
	client := university.NewClient(httpClient, cfg.UniversityAPIURL, slog.Default())

	normalizer := schedule.NewNormalizer(client, slog.Default())
	mapper := schedule.NewMapper()

	orchestrator := fetchpkg.NewOrchestrator(
		client, normalizer, mapper,
		subjectRepo, scheduleRepo,
		fetchpkg.NewRegistry(), collector, slog.Default(),
	)

	merger := merge.NewMerger(scheduleRepo, subjectRepo, collector, slog.Default(), merge.Options{
		DropExpired: cfg.DropExpiredSchedules,
	})

	return &fetchStack{
		subjects:     subjectRepo,
		schedules:    scheduleRepo,
		events:       eventRepo,
		extras:       extraRepo,
		orchestrator: orchestrator,
		merger:       merger,
		collector:    collector,
		registry:     promRegistry,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 取得・マージスタックの構築
	stack, err := buildFetchStack(cfg, db)
	if err != nil {
		return err
	}

	// 3. ドメインサービスの初期化
	sanitizer := security.NewCommentSanitizer()
	subjectService := subject.NewService(
		stack.subjects, stack.schedules, stack.events, stack.extras,
		stack.orchestrator, stack.merger, sanitizer, slog.Default(),
	)

	// 4. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		// configはreq/min単位なのでreq/secに変換する
		rateLimiterCfg.GeneralRate = rateLimit(cfg.RateLimitGeneral)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitRefresh > 0 {
		rateLimiterCfg.RefreshRate = rateLimit(cfg.RateLimitRefresh)
		rateLimiterCfg.RefreshBurst = cfg.RateLimitRefresh
	}

	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterCfg),
		Logger:            slog.Default(),

		ScheduleService: subjectService,
		EventService:    subjectService,

		HealthChecker:   db,
		MetricsHandler:  metrics.Handler(stack.registry),
		StatusCollector: stack.collector,
	}

	router := handler.NewRouter(deps)

	// 5. HTTPサーバーの起動
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
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
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
// DB接続を開き、更新スケジューラとクリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. 取得・マージスタックの構築
	stack, err := buildFetchStack(cfg, db)
	if err != nil {
		return err
	}

	// 3. 更新スケジューラの初期化
	refresher := refresh.NewRefresher(stack.orchestrator, stack.merger, slog.Default())
	scheduler := refresh.NewScheduler(
		stack.subjects, refresher, slog.Default(),
		cfg.UpdateThreshold, cfg.RefreshMaxConcurrent,
	)

	// 4. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(stack.extras, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("refresh_interval", cfg.RefreshInterval),
		slog.Duration("update_threshold", cfg.UpdateThreshold),
		slog.Int("max_concurrent", cfg.RefreshMaxConcurrent),
	)

	// クリーンアップジョブをバックグラウンドで定期実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}
		cleanupJob.Start(ctx, cfg.CleanupInterval)
	}()

	// 更新スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.RefreshInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
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

// rateLimit はreq/min単位の設定値をrate.Limit（req/sec）に変換する。
func rateLimit(perMinute int) rate.Limit {
	return rate.Limit(float64(perMinute) / 60.0)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
