package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/taskbid/internal/metrics"
	"github.com/hitoshi/taskbid/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// セッション
	Sessions              SessionManager
	ProfileSanitizer      ProfileSanitizer
	FederatedLoginEnabled bool

	// 入札
	Bids BidCache

	// タスク
	Tasks TaskService

	// メトリクス
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → OriginGuard
//
// 入札・自分のタスク・タスクの変更・ダッシュボードはさらにRequireSessionを通す。
// ログイン系のルートには認証操作のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewOriginGuardMiddleware(deps.CORSAllowedOrigin, deps.Logger))

	sessionHandler := NewSessionHandler(deps.Sessions, deps.ProfileSanitizer, deps.FederatedLoginEnabled, deps.Logger)
	bidHandler := NewBidHandler(deps.Bids, deps.Logger)
	taskHandler := NewTaskHandler(deps.Tasks, deps.Logger)
	dashboardHandler := NewDashboardHandler(deps.Sessions, deps.Tasks, deps.Bids, deps.Logger)
	requireSession := middleware.NewRequireSessionMiddleware(deps.Sessions)

	r.Get("/health", health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// セッション管理
	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", sessionHandler.GetSession)
		r.Post("/logout", sessionHandler.Logout)

		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.AuthMiddleware())
			}
			r.Post("/signup", sessionHandler.Signup)
			r.Post("/login", sessionHandler.Login)
			r.Post("/google", sessionHandler.LoginWithGoogle)
		})

		r.With(requireSession).Patch("/profile", sessionHandler.UpdateProfile)
	})

	// 入札
	r.Route("/api/bids", func(r chi.Router) {
		r.Get("/summary", bidHandler.Summary)
		r.Post("/refresh", bidHandler.Refresh)
		r.With(requireSession).Get("/mine", bidHandler.Mine)

		r.Route("/tasks/{taskID}", func(r chi.Router) {
			r.Get("/", bidHandler.Status)
			r.With(requireSession).Post("/", bidHandler.Place)
		})
	})

	// タスク
	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", taskHandler.List)
		r.Get("/{id}", taskHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Get("/mine", taskHandler.ListMine)
			r.Post("/", taskHandler.Create)
			r.Put("/{id}", taskHandler.Update)
			r.Delete("/{id}", taskHandler.Delete)
		})
	})

	r.With(requireSession).Get("/api/dashboard", dashboardHandler.Overview)

	return r
}

// health はプロセスの死活を返す。
func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
