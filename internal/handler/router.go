package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/jikanwari/internal/middleware"
)

// HealthChecker はヘルスチェックでDB疎通を確認するためのインターフェース。
// *sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス。subject.Serviceが全インターフェースを実装する。
	ScheduleService ScheduleServiceInterface
	EventService    EventServiceInterface

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
	// StatusCollector はレスポンスのステータスコードをカウンタに記録する。
	// nilの場合は記録しない。
	StatusCollector middleware.HTTPStatusCollector
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → CORS → Logging → Recovery → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusCollector))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())

	subjectHandler := NewSubjectHandler(deps.ScheduleService)
	scheduleHandler := NewScheduleHandler(deps.ScheduleService)
	eventHandler := NewEventHandler(deps.EventService)

	// --- 運用エンドポイント（レート制限の外） ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- APIルート ---

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 追跡対象管理
		r.Route("/api/subjects", func(r chi.Router) {
			r.Get("/", subjectHandler.List)
			r.Post("/", subjectHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", subjectHandler.Get)
				r.Patch("/", subjectHandler.Rename)
				r.Delete("/", subjectHandler.Delete)
				r.Put("/default", subjectHandler.SetDefault)

				// POST /api/subjects/{id}/refresh - 手動更新（専用レート制限を追加）
				r.With(deps.RateLimiter.RefreshMiddleware()).Post("/refresh", subjectHandler.Refresh)

				// 時間割ビューとカスタムイベント
				r.Get("/schedule", scheduleHandler.View)
				r.Put("/schedule/default", scheduleHandler.SetDefault)
				r.Post("/events", scheduleHandler.CreateEvent)
			})
		})

		// 個別イベント操作
		r.Route("/api/events/{id}", func(r chi.Router) {
			r.Put("/hidden", eventHandler.SetHidden)
			r.Get("/extra", eventHandler.GetExtra)
			r.Put("/extra", eventHandler.UpsertExtra)
		})
	})

	return r
}

// healthHandler はDB疎通を含むヘルスチェックのハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := "ok"
		statusCode := http.StatusOK
		if checker != nil {
			if err := checker.PingContext(ctx); err != nil {
				status = "db unreachable"
				statusCode = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
