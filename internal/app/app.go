// Package app はエージェントの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/taskbid/internal/auth"
	"github.com/hitoshi/taskbid/internal/bids"
	"github.com/hitoshi/taskbid/internal/config"
	"github.com/hitoshi/taskbid/internal/handler"
	"github.com/hitoshi/taskbid/internal/identity"
	"github.com/hitoshi/taskbid/internal/logger"
	"github.com/hitoshi/taskbid/internal/marketapi"
	"github.com/hitoshi/taskbid/internal/metrics"
	"github.com/hitoshi/taskbid/internal/middleware"
	"github.com/hitoshi/taskbid/internal/security"
	"github.com/hitoshi/taskbid/internal/task"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// shutdownTimeout はグレースフルシャットダウンの上限時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 設定読み込み前のエラーもJSONで出力できるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel)), nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("AGENT_PORT")
		if port == "" {
			port = "7070"
		}
		return runHealthcheck(port)
	}

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.AgentPort),
		slog.String("market_api_url", cfg.MarketAPIURL),
		slog.Bool("federated_login", cfg.FederatedLoginEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", cfg.AgentPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return runAgent(ctx, cfg, log, listener)
}

// Agent はエージェントの依存関係一式を保持する。
type Agent struct {
	Handler http.Handler

	identity *identity.Client
	sessions *auth.Manager
	bids     *bids.Cache
	limiter  *middleware.RateLimiter
}

// NewAgent は設定から全依存関係をワイヤリングしたAgentを生成する。
// registryにはアプリケーションのメトリクスを登録する。
func NewAgent(cfg *config.Config, log *slog.Logger, registry *prometheus.Registry) *Agent {
	collector := metrics.NewCollector(registry)
	httpClient := &http.Client{Timeout: cfg.APITimeout}
	sanitizer := security.NewNameSanitizer()

	// 1. IdP
	var authorizer identity.Authorizer
	if cfg.FederatedLoginEnabled() {
		authorizer = identity.NewGoogleFlow(identity.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			CallbackAddr: cfg.GoogleCallbackAddr,
			Timeout:      cfg.FederatedLoginTimeout,
		}, httpClient, log, newBrowserOpener(log))
	}
	idp := identity.NewClient(httpClient, log, clockwork.NewRealClock(), authorizer, identity.Config{
		APIKey:              cfg.IdentityAPIKey,
		IdentityEndpoint:    cfg.IdentityEndpoint,
		SecureTokenEndpoint: cfg.SecureTokenEndpoint,
		RefreshSkew:         cfg.TokenRefreshSkew,
	})

	// 2. セッション
	sessions := auth.NewManager(idp, log, collector)

	// 3. マーケットプレイスAPI
	api := marketapi.NewClient(httpClient, log, collector, idp, marketapi.ClientConfig{
		BaseURL:           cfg.MarketAPIURL,
		RequestsPerSecond: cfg.APIRateLimit,
		Burst:             cfg.APIRateBurst,
	})

	// 4. 入札キャッシュとタスク
	cache := bids.NewCache(api, sessions, sanitizer, log, collector, bids.Config{
		RefreshTimeout: cfg.BidRefreshTimeout,
	})
	tasks := task.NewService(api, sessions, sanitizer, log)

	// 5. ルーター
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), log)
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:                log,
		CORSAllowedOrigin:     cfg.CORSAllowedOrigin,
		RateLimiter:           limiter,
		Sessions:              sessions,
		ProfileSanitizer:      sanitizer,
		FederatedLoginEnabled: cfg.FederatedLoginEnabled(),
		Bids:                  cache,
		Tasks:                 tasks,
		Gatherer:              registry,
	})

	return &Agent{
		Handler:  router,
		identity: idp,
		sessions: sessions,
		bids:     cache,
		limiter:  limiter,
	}
}

// Close はバックグラウンド処理を停止する。
// 入札キャッシュ、セッション、IdPの順に購読を解除する。
func (a *Agent) Close() {
	a.bids.Close()
	a.bids.Wait()
	a.sessions.Close()
	a.identity.Close()
	a.limiter.Stop()
}

// runAgent はlistenerでエージェントAPIを提供し、ctxがキャンセルされるとグレースフルシャットダウンする。
func runAgent(ctx context.Context, cfg *config.Config, log *slog.Logger, listener net.Listener) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	agent := NewAgent(cfg, log, registry)
	defer agent.Close()

	// 対話的ログインはブラウザでの操作を待つため、WriteTimeoutはログインの上限時間に合わせる
	server := &http.Server{
		Handler:      agent.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.FederatedLoginTimeout + cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("agent API starting", slog.String("addr", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("agent server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down agent API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("agent API stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://127.0.0.1:%s/health", port)
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
