package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tournevent/printbridge/internal/config"
	"github.com/tournevent/printbridge/internal/fulfillment"
	"github.com/tournevent/printbridge/internal/repository"
	"github.com/tournevent/printbridge/internal/repository/memory"
	"github.com/tournevent/printbridge/internal/repository/postgres"
	"github.com/tournevent/printbridge/internal/telemetry"
	"github.com/tournevent/printbridge/pkg/printer"
	"github.com/tournevent/printbridge/pkg/printer/lulu"
	"github.com/tournevent/printbridge/pkg/printer/mock"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// app holds the wired dependencies shared by all commands.
type app struct {
	cfg      *config.Config
	logger   *otelzap.Logger
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	service  *fulfillment.Service

	closers []func(context.Context) error
}

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(cfg *config.Config) (*otelzap.Logger, error) {
	return telemetry.NewLogger(telemetry.LoggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	return telemetry.InitTracer(ctx, telemetry.TracerConfig{
		Enabled:     cfg.OTELEnabled,
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Attributes:  cfg.Attributes(),
	})
}

func initMetrics() (*prometheus.Registry, *telemetry.Metrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, telemetry.NewMetrics(registry)
}

// initRepositories uses PostgreSQL when DATABASE_URL is set and process
// memory otherwise.
func initRepositories(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (*repository.Repositories, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		return memory.NewRepositories(), nil, nil
	}

	db, err := postgres.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return postgres.NewRepositories(db, logger), db, nil
}

func initPrinterRegistry(cfg *config.Config, tokens lulu.TokenStore, metrics *telemetry.Metrics, logger *otelzap.Logger, tracer trace.Tracer) *printer.Registry {
	registry := printer.NewRegistry()

	luluCfg := cfg.Lulu()
	luluCfg.TokenStore = tokens
	luluCfg.OnTokenGrant = metrics.RecordTokenGrant
	registry.Register(lulu.New(luluCfg, logger, tracer))

	registry.Register(mock.New("mock"))

	return registry
}

// newApp loads configuration and wires every dependency. The returned app
// must be closed.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	tracer, tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
		tracer, tracerShutdown, _ = telemetry.InitTracer(ctx, telemetry.TracerConfig{ServiceName: cfg.ServiceName})
	}
	a.closers = append(a.closers, tracerShutdown)

	a.registry, a.metrics = initMetrics()

	repos, db, err := initRepositories(ctx, cfg, logger)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if db != nil {
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	}

	printers := initPrinterRegistry(cfg, repos.Token, a.metrics, logger, tracer)
	client, err := printers.Get(cfg.Printer)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("%w (registered: %v)", err, printers.Names())
	}
	a.service = fulfillment.NewService(client, repos, cfg.Fulfillment(), logger,
		fulfillment.WithMetrics(a.metrics))

	return a, nil
}

func (a *app) close(ctx context.Context) {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Shutdown incomplete", zap.Error(err))
	}
	_ = a.logger.Sync()
}
