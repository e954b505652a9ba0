// Package main は認証Webアプリのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/gatehouse/internal/auth"
	"github.com/yourusername/gatehouse/internal/config"
	"github.com/yourusername/gatehouse/internal/httpx"
	"github.com/yourusername/gatehouse/internal/logging"
	"github.com/yourusername/gatehouse/internal/session"
	"github.com/yourusername/gatehouse/internal/users"
	"github.com/yourusername/gatehouse/internal/users/postgres"
	"github.com/yourusername/gatehouse/internal/users/sqlite"
	"github.com/yourusername/gatehouse/internal/views"
)

const serviceName = "gatehouse"

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Service: serviceName,
		Version: cfg.AppVersion,
		Env:     cfg.GinMode,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userStore, err := openUserStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer userStore.Close()

	sessionStore, closeSessions, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	auditing, err := setupAudit(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := auditing.close(); err != nil {
			logger.Warn("failed to close audit queue", "error", err)
		}
	}()

	manager := session.NewManager(sessionStore, userStore, session.Policy{
		Lifetime: cfg.SessionLifetime,
		Idle:     cfg.SessionIdle,
	})

	flow := auth.New(userStore, auth.NewBcryptHasher(cfg.BcryptCost), manager, auth.Options{
		Throttle: auth.NewThrottle(auth.ThrottleConfig{
			MaxAttempts: cfg.LoginMaxAttempts,
			Window:      cfg.LoginWindow,
			Lock:        cfg.LoginLock,
		}),
		Audit:    auditing.dispatcher,
		Activity: auditing.reader,
	})

	router, err := newRouter(cfg, logger, flow)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "mode", cfg.GinMode, "db_driver", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter はミドルウェアとルートを登録した gin エンジンを返します。
func newRouter(cfg *config.Config, logger *slog.Logger, flow *auth.Flow) (*gin.Engine, error) {
	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	router := gin.New()
	// ClientIP をレート制限とログイン試行制限のキーに使うため、X-Forwarded-For は指定プロキシからのみ受け付ける
	if err := router.SetTrustedProxies(cfg.TrustedProxyList()); err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	router.Use(gin.Recovery(), logging.Middleware(logger))

	if err := views.Load(router); err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	// セッションストアの設定（クッキーにはトークンとフラッシュだけを載せる）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionLifetime.Seconds()),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"X-CSRF-Token",
		logging.RequestIDHeader,
	}
	// CSRF トークンとリクエストIDをレスポンスヘッダーから読めるように公開
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token", logging.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthHandler(cfg))

	web := router.Group("/")
	web.Use(
		httpx.RateLimit(httpx.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			Burst:             cfg.RateLimitBurst,
		}),
		flow.VerifyCSRF(),
	)
	flow.Routes(web)

	return router, nil
}

// healthHandler はヘルスチェックエンドポイントのハンドラーです。
func healthHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": serviceName,
			"version": cfg.AppVersion,
		})
	}
}

func openUserStore(ctx context.Context, cfg *config.Config) (users.Store, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		store, err := sqlite.NewStore(cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		if err := store.ApplyMigrations(); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMemory:
		return users.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

func openSessionStore(cfg *config.Config) (session.Store, func() error, error) {
	if cfg.SessionRedisURL == "" {
		return session.NewMemoryStore(), func() error { return nil }, nil
	}
	opt, err := redis.ParseURL(cfg.SessionRedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse SESSION_REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	return session.NewRedisStore(rdb), rdb.Close, nil
}
