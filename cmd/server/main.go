package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	_ "go.uber.org/automaxprocs"

	"github.com/stackwarden/stackwarden/internal/application/provisioning"
	"github.com/stackwarden/stackwarden/internal/application/reconciler"
	tenantApp "github.com/stackwarden/stackwarden/internal/application/tenant"
	"github.com/stackwarden/stackwarden/internal/config"
	httpAdapter "github.com/stackwarden/stackwarden/internal/infra/adapters/http"
	"github.com/stackwarden/stackwarden/internal/infra/cloud"
	"github.com/stackwarden/stackwarden/internal/infra/metrics"
	tenantStore "github.com/stackwarden/stackwarden/internal/infra/storage/tenant/postgres"
	"github.com/stackwarden/stackwarden/pkg/common/logger"
	"github.com/stackwarden/stackwarden/pkg/common/otel"
)

const serviceName = "stackwarden"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel), serviceName, otel.GetTraceID)

	if err := run(log, cfg); err != nil {
		log.Error(context.Background(), "startup failed", "error", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tracer trace.Tracer
	if cfg.TelemetryEnabled {
		tp, cleanup, err := otel.InitTelemetry(log, otel.Config{
			ServiceName:      cfg.ServiceName,
			ExporterEndpoint: cfg.OTLPEndpoint,
			ExcludedRoutes: map[string]struct{}{
				"/healthz": {},
			},
			Probability: cfg.TraceSampleRate,
		})
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer cleanup(ctx)
		tracer = tp.Tracer(serviceName)
	} else {
		tracer = noop.NewTracerProvider().Tracer(serviceName)
	}

	pool, err := openDB(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	if err := runMigrations(ctx, pool); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info(ctx, "database ready")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}

	metricsRegistry, err := metrics.NewRegistry(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	repo := tenantStore.NewTenantStore(pool, tracer)
	broker := cloud.NewBroker(sts.NewFromConfig(awsCfg), log, tracer)
	factory := cloud.NewFactory(log, tracer)
	provisioner := cloud.NewProvisioner(broker, factory, cfg.StackTemplateURL, log)
	registryReconciler := reconciler.NewService(repo, log, tracer)

	provisioningService := provisioning.NewService(
		broker,
		factory,
		registryReconciler,
		log,
		tracer,
		metricsRegistry.Provisioning,
		provisioning.WithMaxAttempts(cfg.PollMaxAttempts),
	)

	tenantService := tenantApp.NewService(
		repo,
		provisioner,
		provisioningService,
		cfg.PollInterval,
		log,
		tracer,
	)

	handler := httpAdapter.NewHandler(provisioningService, tenantService, log)
	router := httpAdapter.NewRouter(handler, httpAdapter.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst), log)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info(ctx, "http server listening", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case sig := <-shutdown:
		log.Info(ctx, "shutdown started", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown: %w", err)
		}
	}

	log.Info(ctx, "shutdown complete")
	return nil
}

func openDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MinConns = 5
	poolCfg.MaxConns = 20
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// runMigrations applies all up migrations from db/migrations over a
// connection borrowed from the pool.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	db := stdlib.OpenDBFromPool(pool)

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://db/migrations", "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("applying migrations: %w", err)
	}

	return nil
}
