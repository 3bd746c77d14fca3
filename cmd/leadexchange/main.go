package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/tradelink/leadexchange/pkg/api"
	"github.com/tradelink/leadexchange/pkg/audit"
	"github.com/tradelink/leadexchange/pkg/auth"
	"github.com/tradelink/leadexchange/pkg/config"
	"github.com/tradelink/leadexchange/pkg/middleware"
	"github.com/tradelink/leadexchange/pkg/observability"
	"github.com/tradelink/leadexchange/pkg/storage/postgres"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const replicaCheckInterval = 30 * time.Second

func main() {
	configFile := flag.String("config", "", "Path to a YAML config file (overrides LEADX_CONFIG_FILE)")
	flag.Parse()

	if *configFile != "" {
		os.Setenv("LEADX_CONFIG_FILE", *configFile)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "leadexchange").
		WithField("version", version)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	db, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Database.ReplicaURLs),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		return err
	}

	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db.Primary()); err != nil {
			db.Close()
			return err
		}
		logger.Info("Database schema is up to date")
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(postgres.RedisConfig{
			URL:        cfg.Redis.URL,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
			PoolSize:   cfg.Redis.PoolSize,
		})
		if err != nil {
			db.Close()
			return err
		}
	}

	auditLog, err := auditLogger(cfg, logger)
	if err != nil {
		db.Close()
		if redisClient != nil {
			redisClient.Close()
		}
		return err
	}

	if cfg.Auth.WebhookSecret == "" {
		logger.Warn("No billing webhook secret configured, all webhook deliveries will be rejected")
	}

	stores := rateLimitStores(cfg, redisClient)
	server := api.NewServer(api.ServerConfig{
		Users:    postgres.NewUserStore(db),
		Leads:    postgres.NewLeadStore(db),
		Sessions: auth.NewSessionManager(sessionStore(cfg, redisClient), cfg.Auth.SessionTTL),
		LoginLimiter: middleware.NewLoginRateLimiter(&middleware.LoginRateLimitConfig{
			Attempts:   middleware.RateLimitConfig{Max: cfg.RateLimit.LoginMaxAttempts, Window: cfg.RateLimit.LoginWindow},
			Failures:   middleware.RateLimitConfig{Max: cfg.RateLimit.LoginMaxFailures, Window: cfg.RateLimit.LoginWindow},
			TrustProxy: cfg.Server.TrustProxy,
		}, stores, logger),
		RegisterLimiter: middleware.NewRegisterRateLimiter(&middleware.RegisterRateLimitConfig{
			Attempts:   middleware.RateLimitConfig{Max: cfg.RateLimit.RegisterMax, Window: cfg.RateLimit.RegisterWindow},
			TrustProxy: cfg.Server.TrustProxy,
		}, stores, logger),
		Logger:        logger,
		Metrics:       metrics,
		Audit:         auditLog,
		WebhookSecret: cfg.Auth.WebhookSecret,
		SecureCookies: cfg.Auth.SecureCookies,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(db.Primary(), redisClient).
		WithVersion(version).
		WithMetrics(metrics)
	observability.RegisterHealthRoutes(healthMux, checker)
	observability.RegisterMetricsEndpoint(healthMux, registry)
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return db.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return auditLog.Close()
	})

	g, gctx := errgroup.WithContext(ctx)

	db.StartHealthCheckRoutine(gctx, replicaCheckInterval)

	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("Starting API server")
		return serve(apiServer)
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Starting health server")
		return serve(healthServer)
	})
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})

	return g.Wait()
}

func serve(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server %s: %w", server.Addr, err)
	}
	return nil
}

func auditLogger(cfg *config.Config, logger *observability.Logger) (audit.Logger, error) {
	structured := audit.NewStructuredLogger(logger)
	if cfg.Audit.Dir == "" {
		return structured, nil
	}
	file, err := audit.NewFileLogger(audit.FileLoggerConfig{
		BasePath: cfg.Audit.Dir,
		MaxSize:  cfg.Audit.MaxSize,
		MaxFiles: cfg.Audit.MaxFiles,
	})
	if err != nil {
		return nil, err
	}
	return audit.NewMultiLogger(structured, file), nil
}

func sessionStore(cfg *config.Config, client *redis.Client) auth.SessionStore {
	if cfg.Auth.SessionStore == config.StoreRedis && client != nil {
		return auth.NewRedisSessionStore(client, "leadx:session")
	}
	return auth.NewMemorySessionStore(cfg.Auth.MaxSessions, cfg.Auth.SessionTTL)
}

func rateLimitStores(cfg *config.Config, client *redis.Client) middleware.StoreFactory {
	if cfg.RateLimit.Store == config.StoreRedis && client != nil {
		return middleware.RedisStoreFactory(client, "leadx:ratelimit")
	}
	return middleware.MemoryStoreFactory
}
