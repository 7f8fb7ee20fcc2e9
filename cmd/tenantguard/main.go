package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tenantguard/pkg/api"
	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/config"
	"github.com/platinummonkey/tenantguard/pkg/entities"
	"github.com/platinummonkey/tenantguard/pkg/middleware"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/policy"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/storage"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// version is set at build time
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := cfg.Observability.NewLogger().WithField("version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("tenantguard stopped with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	db, dialect, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.EnsureSchema(ctx, db, dialect); err != nil {
		return err
	}

	redisClient, err := storage.NewRedisClient(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var (
		registry *prometheus.Registry
		metrics  = observability.NewNopMetrics()
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	tenants := tenant.NewStore(db, nil)
	roles := rbac.NewStore(db)
	if err := seedRoles(ctx, cfg.Auth.SeedFile, roles, tenants); err != nil {
		return err
	}
	resolver := rbac.NewResolver(roles,
		rbac.WithCache(cfg.Auth.PermissionCacheSize, cfg.Auth.PermissionCacheTTL),
		rbac.WithLogger(logger),
		rbac.WithMetrics(metrics),
	)

	tokens, err := auth.NewTokenService(cfg.Auth.SigningSecret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
		auth.WithRevocationStore(revocationStore(redisClient, cfg.Auth)),
		auth.WithTokenLogger(logger),
		auth.WithTokenMetrics(metrics),
	)
	if err != nil {
		return err
	}

	users := auth.NewUserStore(db)
	authnOpts := []auth.AuthenticatorOption{
		auth.WithTenantLookup(tenants),
		auth.WithLockoutPolicy(auth.LockoutPolicy{MaxAttempts: cfg.Auth.LockoutAttempts, Duration: cfg.Auth.LockoutDuration}),
		auth.WithAuthLogger(logger),
		auth.WithAuthMetrics(metrics),
	}
	if cfg.Auth.LoginFailureLimit > 0 {
		limits := middleware.RateLimitConfig{Limit: cfg.Auth.LoginFailureLimit, Window: cfg.Auth.LoginFailureWindow}
		authnOpts = append(authnOpts, auth.WithFailureLimiter(newLimiter(ctx, redisClient, limits, "tenantguard:login-failures:")))
	}
	authenticator := auth.NewAuthenticator(users, tokens, authnOpts...)

	redactor := audit.NewRedactor(cfg.Audit.SensitivePatterns...)
	recorder := audit.NewRecorder(audit.NewStore(db),
		audit.WithFailurePolicy(audit.FailurePolicy{Mode: cfg.Audit.FailureMode, FatalActions: cfg.Audit.FatalActions}),
		audit.WithRedactor(redactor),
		audit.WithLogger(logger),
		audit.WithMetrics(metrics),
		audit.WithTracer(observability.Tracer()),
	)

	repos, err := entities.NewRepositories(db,
		tenant.WithEventRecorder(audit.NewBypassAuditor(recorder, logger)),
		tenant.WithLogger(logger),
		tenant.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	engine := policy.NewEngine(resolver,
		policy.WithLogger(logger),
		policy.WithMetrics(metrics),
		policy.WithTracer(observability.Tracer()),
	)
	if err := entities.RegisterPolicies(engine.Registry()); err != nil {
		return err
	}

	var limiter middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limits := middleware.RateLimitConfig{Limit: cfg.Server.RateLimit, Window: cfg.Server.RateLimitWindow}
		limiter = newLimiter(ctx, redisClient, limits, "tenantguard:api:")
	}

	server, err := api.NewServer(api.Config{
		DB:            db,
		Redis:         redisClient,
		Users:         users,
		Tenants:       tenants,
		Tokens:        tokens,
		Authenticator: authenticator,
		Permissions:   resolver,
		Roles:         resolver,
		Engine:        engine,
		Repos:         repos,
		Recorder:      recorder,
		Limiter:       limiter,
		Logger:        logger,
		Metrics:       metrics,
		Registry:      registry,
		Version:       version,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := []observability.ShutdownFunc{httpServer.Shutdown}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", httpServer.Addr).Info("Starting tenantguard API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	if cfg.Audit.PatternsFile != "" {
		watcher, err := audit.NewPatternWatcher(cfg.Audit.PatternsFile, redactor, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			watcher.Run(gctx)
			return nil
		})
	}

	if cfg.Audit.CleanupEnabled {
		job, err := audit.NewRetentionJob(recorder, cfg.Audit.RetentionYears, cfg.Audit.CleanupSchedule, logger)
		if err != nil {
			return err
		}
		if err := job.Start(); err != nil {
			return err
		}
		shutdown = append(shutdown, job.Stop)
	}

	shutdown = append(shutdown, func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers)
	})

	g.Go(func() error {
		<-gctx.Done()
		return observability.Shutdown(context.Background(), logger, cfg.Server.ShutdownTimeout, shutdown...)
	})

	return g.Wait()
}

// seedRoles installs the system roles and makes sure every tenant has its role set
func seedRoles(ctx context.Context, seedFile string, roles *rbac.Store, tenants *tenant.Store) error {
	catalog, err := rbac.DefaultCatalog()
	if seedFile != "" {
		catalog, err = rbac.LoadCatalog(seedFile)
	}
	if err != nil {
		return fmt.Errorf("failed to load role catalog: %w", err)
	}

	if err := rbac.Seed(ctx, roles, catalog); err != nil {
		return err
	}
	all, err := tenants.List(ctx)
	if err != nil {
		return err
	}
	for _, t := range all {
		if err := rbac.SeedTenant(ctx, roles, catalog, t.ID); err != nil {
			return fmt.Errorf("failed to seed roles for tenant %d: %w", t.ID, err)
		}
	}
	return nil
}

func revocationStore(client *redis.Client, cfg config.AuthConfig) auth.RevocationStore {
	if client != nil {
		return auth.NewRedisRevocationStore(client, "tenantguard:revoked:")
	}
	return auth.NewMemoryRevocationStore(cfg.RefreshTTL)
}

// newLimiter shares limits across instances through Redis when it is configured
func newLimiter(ctx context.Context, client *redis.Client, limits middleware.RateLimitConfig, prefix string) middleware.Limiter {
	if client != nil {
		return middleware.NewRedisRateLimiter(client, limits, prefix)
	}
	limiter := middleware.NewMemoryRateLimiter(limits)
	limiter.StartCleanup(ctx)
	return limiter
}
