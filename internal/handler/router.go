package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/ministers/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Verifier          middleware.TokenVerifier
	Admins            middleware.AdminAuthorizer
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 運用
	HealthChecker  HealthChecker
	StatusMetrics  middleware.StatusCollector
	MetricsHandler http.Handler

	// サービス
	MinisterService MinisterServiceInterface
	RatingService   RatingServiceInterface
	AdminService    AdminServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → SecurityHeaders → CORS → Metrics
//	  /api/*: Identity → Logging → RateLimit(General)
//
// /health と /metrics は認証とレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(chimw.RealIP)
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.StatusMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusMetrics))
	}

	ministerHandler := NewMinisterHandler(deps.MinisterService)
	ratingHandler := NewRatingHandler(deps.RatingService)
	adminHandler := NewAdminHandler(deps.AdminService)
	meHandler := NewMeHandler(deps.Admins)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.Verifier))
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// カタログ読み取り（匿名可）
		r.Route("/ministers", func(r chi.Router) {
			r.Get("/", ministerHandler.ListMinisters)
			r.Get("/{id}", ministerHandler.GetMinister)
			r.Get("/{id}/wiki", ministerHandler.GetWiki)
			r.With(middleware.NewRequireAuthMiddleware()).Patch("/{id}/rating", ratingHandler.UpdateOwnRating)
		})

		// 評価（作成は匿名可、評価投稿専用レート制限を追加）
		r.Route("/ratings", func(r chi.Router) {
			r.With(deps.RateLimiter.RatingMiddleware()).Post("/", ratingHandler.CreateRating)
			r.With(middleware.NewRequireAuthMiddleware()).Patch("/{id}", ratingHandler.UpdateRatingByID)
		})

		// 現在の操作主体
		r.Route("/me", func(r chi.Router) {
			r.Get("/", meHandler.Me)
			r.Group(func(r chi.Router) {
				r.Use(middleware.NewRequireAuthMiddleware())
				r.Get("/ratings", ratingHandler.MyRatings)
				r.Get("/history", ratingHandler.History)
			})
		})

		// カタログ管理（管理者のみ）
		r.Route("/admin/ministers", func(r chi.Router) {
			r.Use(middleware.NewAdminMiddleware(deps.Admins))
			r.Get("/", adminHandler.ListMinisters)
			r.Post("/", adminHandler.CreateMinister)
			r.Put("/{id}", adminHandler.UpdateMinister)
			r.Delete("/{id}", adminHandler.DeleteMinister)
		})
	})

	return r
}
