package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/helios/pkg/api"
	"github.com/platinummonkey/helios/pkg/auth"
	"github.com/platinummonkey/helios/pkg/config"
	"github.com/platinummonkey/helios/pkg/httputil"
	"github.com/platinummonkey/helios/pkg/middleware"
	"github.com/platinummonkey/helios/pkg/observability"
	"github.com/platinummonkey/helios/pkg/orgs"
	"github.com/platinummonkey/helios/pkg/projects"
	"github.com/platinummonkey/helios/pkg/realtime"
	"github.com/platinummonkey/helios/pkg/session"
	"github.com/platinummonkey/helios/pkg/storage/postgres"
	"github.com/platinummonkey/helios/pkg/users"
)

var version = "dev"

func main() {
	configFile := flag.String("config", "", "Path to a YAML config file (overrides HELIOS_CONFIG_FILE)")
	flag.Parse()
	if *configFile != "" {
		os.Setenv("HELIOS_CONFIG_FILE", *configFile)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).WithField("service", "helios")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	if cfg.Observability.OTelEnabled {
		providers, err := observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
		}
		shutdown.Register("otel", providers.Shutdown)
	}

	// Database
	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfigFrom(cfg.Storage), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	shutdown.Register("postgres", func(context.Context) error { return conns.Close() })
	if err := postgres.EnsureSchema(ctx, conns.Primary()); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	conns.StartHealthCheckRoutine(ctx, time.Minute)

	// Session state is optional; without Redis, revocation and lockout are disabled
	redisClient, sessions := connectSessions(ctx, cfg, logger)
	metrics.SetSessionStoreAvailable(redisClient != nil)
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	tokens, err := auth.NewTokenService(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret,
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
		auth.WithRememberTTL(cfg.Auth.RememberTTL),
	)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}
	svcOpts := []auth.ServiceOption{
		auth.WithBcryptCost(cfg.Auth.BcryptCost),
		auth.WithBlacklistTTL(cfg.Auth.BlacklistTTL),
	}
	if cfg.Auth.PasswordStrict {
		svcOpts = append(svcOpts, auth.WithPasswordPolicy(auth.StrictPasswordPolicy()))
	}
	authService := auth.NewService(tokens, sessions, svcOpts...)

	userStore := users.NewPostgresStore(conns.Primary())
	orgService := orgs.NewCachedService(orgs.NewPostgresService(conns.Primary()), orgs.DefaultCacheSize, orgs.DefaultCacheTTL)
	projectStore := projects.NewPostgresStore(conns)

	authenticator := middleware.NewAuthenticator(authService, userStore, metrics, logger)

	limiterCfg := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.Auth.RateLimitRequests,
		WindowDuration:    cfg.Auth.RateLimitWindow,
		BurstSize:         cfg.Auth.RateLimitBurst,
	}
	var limiter middleware.Limiter
	if redisClient != nil {
		limiter = middleware.NewDistributedRateLimiter(redisClient, limiterCfg, "ratelimit:auth")
	} else {
		local := middleware.NewRateLimiter(limiterCfg)
		local.StartCleanup(ctx, logger)
		limiter = local
	}

	// Real-time broadcasts
	rtService := realtime.NewService(realtimeConfig(cfg), realtime.Deps{
		Projects:   projectStore,
		Health:     realtime.NewSystemHealthProvider(conns.Primary()),
		Identities: authenticator,
		Logger:     logger,
		Metrics:    metrics,
	})
	shutdown.Register("realtime", func(context.Context) error {
		rtService.Close()
		return nil
	})
	scheduler, err := realtime.NewScheduler(rtService, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create broadcast scheduler: %w", err)
	}
	scheduler.Start()
	shutdown.Register("scheduler", scheduler.Stop)

	trusted, err := httputil.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	apiServer := api.NewServer(ctx, api.Config{
		CORSOrigins:    cfg.Server.CORSOrigins,
		TrustedProxies: trusted,
		RetryAfter:     cfg.Auth.RateLimitWindow,
		Tracing:        cfg.Observability.OTelEnabled,
		ServiceName:    cfg.Observability.OTelServiceName,
	}, api.Deps{
		Auth:          authService,
		Authenticator: authenticator,
		Users:         userStore,
		Orgs:          orgService,
		Realtime:      rtService,
		AuthLimiter:   limiter,
		Registry:      metricsRegistry(cfg, registry),
		Metrics:       metrics,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(conns.Primary(), redisClient, version))
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.Handler(registry))
	}
	healthServer := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Registered last so servers stop accepting before their dependencies close
	shutdown.Register("health server", healthServer.Shutdown)
	shutdown.Register("http server", httpServer.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", httpServer.Addr).Info("Starting HTTP server")
		return serve(httpServer)
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Starting health server")
		return serve(healthServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		return shutdown.Shutdown(context.Background())
	})
	return g.Wait()
}

func serve(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func connectSessions(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*redis.Client, *session.Optional) {
	if !cfg.Storage.RedisEnabled {
		logger.Warn("Redis disabled: token revocation and login lockout are unavailable")
		return nil, session.Disabled(logger)
	}

	client, err := postgres.NewRedisClient(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable: token revocation and login lockout are disabled")
		return nil, session.Disabled(logger)
	}

	policy := session.LockoutPolicy{
		MaxAttempts: cfg.Auth.MaxLoginAttempts,
		Window:      cfg.Auth.LockoutDuration,
	}
	logger.Info("Connected to Redis session store")
	return client, session.NewOptional(session.NewRedisStore(client), policy, logger)
}

func realtimeConfig(cfg *config.Config) realtime.Config {
	rc := realtime.DefaultConfig()
	rc.AuthorizeJoins = cfg.Realtime.AuthorizeJoins
	rc.AllowedOrigins = cfg.Server.CORSOrigins
	rc.HealthInterval = cfg.Realtime.HealthInterval
	rc.MetricsInterval = cfg.Realtime.MetricsInterval
	rc.SendQueueSize = cfg.Realtime.SendQueueSize
	rc.RecentMetricsCapacity = cfg.Realtime.RecentMetricsCapacity
	rc.NotificationCapacity = cfg.Realtime.NotificationCapacity
	return rc
}

// metricsRegistry exposes /metrics on the API port only when enabled
func metricsRegistry(cfg *config.Config, registry *prometheus.Registry) *prometheus.Registry {
	if !cfg.Observability.MetricsEnabled {
		return nil
	}
	return registry
}
