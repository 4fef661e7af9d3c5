package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"wxdata/internal/config"
	"wxdata/internal/repository"
	"wxdata/pkg/database"
	"wxdata/pkg/logging"
	"wxdata/pkg/metrics"
)

// Version is reported in every log line.
const Version = "1.0.0"

const metricsNamespace = "wxdata"

// GlobalOptions are the store and logging flags shared by every command.
// Set flags override the environment.
type GlobalOptions struct {
	Database string
	Driver   string
	LogLevel string
}

func addGlobalFlags(cmd *cobra.Command, opts *GlobalOptions) {
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "database DSN or SQLite file path (env DB_DSN)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "database driver: sqlite3 or postgres (env DB_DRIVER)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (env LOG_LEVEL)")
}

// NewRootCommand groups every job under one binary.
func NewRootCommand() *cobra.Command {
	opts := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:           "wxdata",
		Short:         "Weather observation ingestion and statistics",
		Long:          "Loads daily station weather records into a relational store, computes yearly statistics and serves both over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addGlobalFlags(cmd, opts)

	cmd.AddCommand(newIngestCommand(opts, "ingest"))
	cmd.AddCommand(newAggregateCommand(opts, "aggregate"))
	cmd.AddCommand(newMigrateCommand(opts, "migrate"))
	cmd.AddCommand(newServeCommand(opts, "serve"))

	return cmd
}

// env is what every command runs against.
type env struct {
	cfg      *config.Config
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
	registry *prometheus.Registry
	db       *database.DB
	repo     repository.WeatherRepository
}

func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

// loadConfig reads the environment, applies flag overrides and validates.
func loadConfig(opts *GlobalOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, WrapExitError(ExitFatal, "failed to load configuration", err)
	}
	if opts.Database != "" {
		cfg.Database.DSN = opts.Database
	}
	if opts.Driver != "" {
		cfg.Database.Driver = opts.Driver
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	return cfg, nil
}

// setup builds the logger, metrics and store for service. The caller
// validates cfg after applying its own overrides.
func setup(ctx context.Context, cmd *cobra.Command, cfg *config.Config, service string) (*env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitFatal, "invalid configuration", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, WrapExitError(ExitFatal, "invalid configuration", err)
	}
	logger := logging.NewStructuredLogger(service, Version, level)
	logger.SetOutput(cmd.ErrOrStderr())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(metricsNamespace, registry)

	db, err := database.Open(&database.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.ConnectionString(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, logger, collector)
	if err != nil {
		logger.Error(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{
			"driver": cfg.Database.Driver,
		}, err)
		return nil, WrapExitError(ExitFatal, "failed to connect to database", err)
	}

	return &env{
		cfg:      cfg,
		logger:   logger,
		metrics:  collector,
		registry: registry,
		db:       db,
		repo:     repository.NewWeatherRepository(db, logger, collector),
	}, nil
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
