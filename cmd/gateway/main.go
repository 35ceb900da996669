package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/cmd/gateway/internal/handlers"
	"github.com/fleetworks/fleet-api/cmd/gateway/internal/middleware"
	"github.com/fleetworks/fleet-api/internal/auth"
	"github.com/fleetworks/fleet-api/internal/circuitbreaker"
	"github.com/fleetworks/fleet-api/internal/config"
	"github.com/fleetworks/fleet-api/internal/dashboard"
	"github.com/fleetworks/fleet-api/internal/db"
	"github.com/fleetworks/fleet-api/internal/health"
	"github.com/fleetworks/fleet-api/internal/locations"
	"github.com/fleetworks/fleet-api/internal/policy"
	"github.com/fleetworks/fleet-api/internal/store"
	"github.com/fleetworks/fleet-api/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, logger)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	dbClient, err := db.NewClient(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbClient.Close()
	database := dbClient.Wrapper()

	redisClient, err := connectRedis(ctx, cfg.Redis.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	cache := circuitbreaker.NewRedisWrapper(redisClient, logger)

	// Services
	authService := auth.NewService(database, logger, auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL), cfg.App.URL)
	fleetStore := store.New(database, logger)
	dashboardService := dashboard.NewService(database, cache, cfg.Dashboard, logger)
	locationService := locations.NewService(fleetStore, locations.NewHub(), cfg.Server.AllowedOrigins, logger)

	engine, err := policy.NewOPAEngine(policy.FromSettings(cfg.Policy), logger)
	if err != nil {
		logger.Fatal("Failed to initialize policy engine", zap.Error(err))
	}

	healthManager := health.NewManager(logger)
	for _, c := range []health.Checker{
		health.NewDatabaseHealthChecker(database),
		health.NewRedisHealthChecker(cache),
		policyChecker(engine),
	} {
		if err := healthManager.RegisterChecker(c); err != nil {
			logger.Fatal("Failed to register health checker", zap.String("checker", c.Name()), zap.Error(err))
		}
	}
	healthManager.Start()
	defer healthManager.Stop()

	// Handlers
	deps := handlers.Deps{
		Store:     fleetStore,
		Dashboard: dashboardService,
		Logger:    logger,
		Debug:     cfg.App.Debug,
	}
	routes := routeHandlers{
		auth:        handlers.NewAuthHandler(authService, cfg.Auth.LoginRate, cfg.Auth.LoginBurst, logger),
		profile:     handlers.NewProfileHandler(deps, authService),
		dashboard:   handlers.NewDashboardHandler(dashboardService, logger),
		locations:   handlers.NewLocationHandler(deps, locationService),
		vehicles:    handlers.NewVehicleHandler(deps),
		drivers:     handlers.NewDriverHandler(deps),
		trips:       handlers.NewTripHandler(deps),
		fillups:     handlers.NewFillupHandler(deps),
		services:    handlers.NewServiceHandler(deps),
		inspections: handlers.NewInspectionHandler(deps),
		issues:      handlers.NewIssueHandler(deps),
		expenses:    handlers.NewExpenseHandler(deps),
	}

	// Middlewares
	rateLimit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimit.Enabled {
		rateLimit = middleware.NewRateLimiter(redisClient, cfg.RateLimit.RequestsPerMinute, logger).Middleware
	}
	c := chain{
		tracing:     middleware.NewTracingMiddleware(logger).Middleware,
		auth:        middleware.NewAuthMiddleware(authService, cfg.Auth.SkipAuth, logger).Middleware,
		rateLimit:   rateLimit,
		validate:    middleware.NewValidationMiddleware(logger).Middleware,
		idempotency: middleware.NewIdempotencyMiddleware(redisClient, logger).Middleware,
		policy:      middleware.NewPolicyMiddleware(engine, logger),
	}

	mux := http.NewServeMux()
	registerRoutes(mux, c, routes)
	health.NewHTTPHandler(healthManager, logger).RegisterRoutes(mux)
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      middleware.CORS(cfg.Server.AllowedOrigins, mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Gateway starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("policy_mode", cfg.Policy.Mode),
			zap.Bool("skip_auth", cfg.Auth.SkipAuth),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start gateway", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Gateway shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; their
	// handlers exit when the process does.
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Gateway forced to shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Failed to flush traces", zap.Error(err))
	}

	logger.Info("Gateway stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		zc.Level = lvl
	}
	return zc.Build()
}

// connectRedis waits for Redis the same way the database client waits for
// postgres.
func connectRedis(ctx context.Context, url string, logger *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	err = retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			return client.Ping(pingCtx).Err()
		},
		retry.Context(ctx),
		retry.Attempts(10),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Redis not ready, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// policyChecker reports degraded when the engine cannot admit an admin
// listing vehicles, which means the module failed to load.
func policyChecker(engine policy.Engine) health.Checker {
	return health.NewCustomHealthChecker("policy", false, 2*time.Second, func(ctx context.Context) health.CheckResult {
		d, err := engine.Evaluate(ctx, &policy.Input{Role: auth.RoleAdmin, Action: policy.ActionList, Resource: "vehicles"})
		res := health.CheckResult{
			Status:  health.StatusHealthy,
			Details: map[string]interface{}{"mode": string(engine.Mode())},
		}
		switch {
		case err != nil:
			res.Status = health.StatusDegraded
			res.Error = err.Error()
		case !d.Allow:
			res.Status = health.StatusDegraded
			res.Message = d.Reason
		}
		return res
	})
}
