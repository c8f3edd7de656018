package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/background"
	"github.com/BradenHooton/gatekeeper/internal/config"
	"github.com/BradenHooton/gatekeeper/internal/gateway"
	"github.com/BradenHooton/gatekeeper/internal/handlers"
	middlewareCustom "github.com/BradenHooton/gatekeeper/internal/middleware"
	"github.com/BradenHooton/gatekeeper/internal/routes"
	"github.com/BradenHooton/gatekeeper/internal/services"
	"github.com/BradenHooton/gatekeeper/internal/store"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.Bool("redis_enabled", cfg.Redis.Enabled()))

	// Initialize key-value store
	var kv store.Store = store.Unavailable{Reason: "REDIS_URL not configured"}
	var closeStore func() error
	if cfg.Redis.Enabled() {
		client, err := store.NewRedisClient(&cfg.Redis, logger)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		kv = store.NewRedisStore(client)
		closeStore = client.Close
	} else {
		logger.Warn("no redis configured: sessions are rejected and guards fail open")
	}

	// Initialize security services
	csrfManager := auth.NewCSRFTokenManager(kv, cfg.Gateway.CSRFTokenTTL, logger)
	sessionService := services.NewSessionService(kv, csrfManager, cfg.Gateway.SessionTTL, logger)
	rateLimitService := services.NewRateLimitService(kv, cfg.Gateway.Policies, logger)
	ipService := services.NewIPReputationService(kv, cfg.Gateway.BlockDuration, logger)
	auditService := services.NewAuditService(kv, cfg.Gateway.AuditRetention, logger)

	resolver, err := pkghttp.NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	pipeline := gateway.NewPipeline(gateway.Guards{
		IPs:      ipService,
		Limiter:  rateLimitService,
		Sessions: sessionService,
		CSRF:     csrfManager,
		Audit:    auditService,
	}, resolver, logger)

	// Store health monitor
	monitor := background.NewStoreMonitor(kv, logger, cfg.Redis.HealthInterval)

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(sessionService, csrfManager, auditService, cfg.Cookie, cfg.Gateway.CSRFTokenTTL, logger)
	adminHandler := handlers.NewAdminHandler(ipService, auditService, logger)
	healthHandler := handlers.NewHealthHandler(monitor)

	// Setup router. chi's RealIP is not used: client addresses are resolved
	// by the pipeline, which only honours forwarding headers from trusted proxies.
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, routes.Dependencies{
		Pipeline:      pipeline,
		Resolver:      resolver,
		InternalToken: auth.NewInternalTokenVerifier(cfg.Server.InternalAPIToken),
		Sessions:      sessionHandler,
		Admin:         adminHandler,
		Health:        healthHandler,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start store monitor
	monitorCtx, monitorCancel := context.WithCancel(context.Background())
	defer monitorCancel()

	go monitor.Start(monitorCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	monitorCancel()
	monitor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	if closeStore != nil {
		if err := closeStore(); err != nil {
			logger.Error("failed to close redis client", slog.Any("error", err))
		}
	}

	logger.Info("server stopped gracefully")
}
