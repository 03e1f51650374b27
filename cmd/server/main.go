package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	appservice "github.com/turtacn/psn/internal/application/service"
	"github.com/turtacn/psn/internal/config"
	domainservice "github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/internal/infrastructure/audit"
	"github.com/turtacn/psn/internal/infrastructure/cache"
	"github.com/turtacn/psn/internal/infrastructure/identity"
	"github.com/turtacn/psn/internal/infrastructure/monitoring"
	"github.com/turtacn/psn/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/psn/internal/infrastructure/persistence/redis"
	httpapi "github.com/turtacn/psn/internal/interfaces/http"
	"github.com/turtacn/psn/internal/interfaces/http/handlers"
	"github.com/turtacn/psn/internal/interfaces/http/middleware"
	"github.com/turtacn/psn/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, v, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	if v.ConfigFileUsed() != "" {
		config.WatchLogLevel(v, appLogger, appLogger.SetLevel)
	}

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error(context.Background(), "Server exited with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, appLogger logger.Logger) error {
	// Initialize tracing
	tracing, err := monitoring.NewTracingManager(ctx, &cfg.Tracing, appLogger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	// Initialize database
	db, err := postgres.NewDBConnection(ctx, &cfg.Database, appLogger)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		err := monitoring.TraceOperation(ctx, tracing.Tracer(), "startup.migrate", func(ctx context.Context) error {
			return postgres.Migrate(ctx, db.DB())
		})
		if err != nil {
			return err
		}
	}

	healthChecks := map[string]handlers.Pinger{"database": db}

	// Optional Redis domain config cache
	var configCache domainservice.DomainConfigCache
	if cfg.Redis.Enabled {
		redisConn, err := redis.NewRedisConnection(ctx, &cfg.Redis, appLogger)
		if err != nil {
			return err
		}
		defer func() { _ = redisConn.Close() }()
		configCache = redis.NewDomainCache(redisConn.Client(), cfg.Redis.DomainTTL, appLogger)
		healthChecks["redis"] = redisConn
	}

	// Audit sinks
	auditSinks := audit.Fanout{audit.NewGormAuditService(db.DB(), appLogger)}
	if cfg.Kafka.Enabled {
		producer := audit.NewKafkaProducer(cfg.Kafka, appLogger)
		defer func() { _ = producer.Close() }()
		auditSinks = append(auditSinks, producer)
	}

	// Identity provider and access path cache
	var accessCache domainservice.AccessPathCache
	if cfg.Vault.Enabled {
		vaultClient, err := identity.NewVaultClient(cfg.Vault)
		if err != nil {
			return err
		}
		accessCache = cache.NewAccessPathCache(identity.NewVaultProvider(vaultClient, appLogger), cfg.AccessCache, metrics, appLogger)
		healthChecks["vault"] = handlers.PingFunc(func(ctx context.Context) error {
			_, err := vaultClient.Sys().HealthWithContext(ctx)
			return err
		})
	}

	// Repositories and domain services
	gdb := db.DB()
	domainRepo := postgres.NewDomainRepository(gdb, appLogger)
	recordRepo := postgres.NewPseudonymRepository(gdb, appLogger)
	tx := postgres.NewTransactor(gdb)
	planner := domainservice.NewCapacityPlanner(cfg.Pseudonym.RetryBudget, cfg.Pseudonym.DefaultSuccessProbability,
		cfg.Pseudonym.MinimumLength, appLogger)
	validity := domainservice.NewValidityResolver()
	resolver := domainservice.NewDomainResolver(planner, validity, appLogger)

	// Application services
	domainAppSvc := appservice.NewDomainAppService(domainRepo, recordRepo, tx, resolver, planner,
		configCache, accessCache, auditSinks, appLogger)
	pseudonymAppSvc := appservice.NewPseudonymAppService(domainAppSvc, domainRepo, recordRepo, tx, planner,
		validity, metrics, auditSinks, cfg.Pseudonym.MaxBatchSize, appLogger)

	// HTTP handlers and router
	opts := []httpapi.RouterOption{
		httpapi.WithObservability(middleware.ObservabilityMiddleware(tracing.Tracer(), metrics)),
		httpapi.WithGatherer(reg),
	}
	var access handlers.AccessChecker
	if cfg.Auth.Enabled {
		authz := middleware.NewAuthorizer(accessCache, domainAppSvc, cfg.Auth.PathPrefix, appLogger)
		access = authz
		opts = append(opts, httpapi.WithAuth(middleware.RequireJWT(cfg.Auth.JWTSecret, cfg.Auth.Issuer, appLogger), authz))
	}

	router := httpapi.NewRouter(cfg, appLogger,
		handlers.NewHealthHandler(healthChecks, appLogger),
		handlers.NewDomainHandler(domainAppSvc, access, appLogger),
		handlers.NewPseudonymHandler(pseudonymAppSvc, appLogger),
		opts...,
	)
	router.SetupRoutes()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(router.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return router.Stop(shutdownCtx)
	})
	return g.Wait()
}
