package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"wxdata/pkg/logging"
	"wxdata/pkg/metrics"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// Config holds database connection configuration
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Queryer is the instrumented query surface shared by DB and Tx.
type Queryer interface {
	ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error
	Rebind(query string) string
}

// DB wraps sqlx.DB with monitoring and metrics
type DB struct {
	db      *sqlx.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	config  *Config

	stopMonitor chan struct{}
	closeOnce   sync.Once
}

// Open opens a connection for cfg.Driver and verifies it with a ping.
func Open(cfg *Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*DB, error) {
	switch cfg.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// SQLite only supports one writer; a single long-lived connection
		// also keeps per-connection pragmas in force.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	logger.Info(ctx, "[DB_INIT] Database connection established", logging.Fields{
		"driver":         cfg.Driver,
		"max_open_conns": db.Stats().MaxOpenConnections,
	})

	d := &DB{
		db:          db,
		logger:      logger,
		metrics:     metricsCollector,
		config:      cfg,
		stopMonitor: make(chan struct{}),
	}

	go d.monitorConnectionPool()

	return d, nil
}

func applyPragmas(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Migrate applies the embedded schema for the configured driver.
// Every statement is CREATE ... IF NOT EXISTS, so this is safe to repeat.
func (d *DB) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if d.config.Driver == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := d.ExecContext(ctx, "migrate", schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	d.logger.Info(ctx, "[DB_MIGRATE] Schema applied", logging.Fields{
		"driver": d.config.Driver,
	})
	return nil
}

// Close stops pool monitoring and closes the database connection
func (d *DB) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.stopMonitor)
		d.logger.Info(context.Background(), "[DB_CLOSE] Closing database connection", logging.Fields{
			"driver": d.config.Driver,
		})
		err = d.db.Close()
	})
	return err
}

// DriverName reports the driver the connection was opened with.
func (d *DB) DriverName() string {
	return d.config.Driver
}

// Rebind converts '?' placeholders to the driver's bindvar style.
func (d *DB) Rebind(query string) string {
	return d.db.Rebind(query)
}

// ExecContext executes a command with context and metrics
func (d *DB) ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error) {
	return execContext(ctx, d, d.db, queryType, query, args...)
}

// GetContext executes a query that returns a single row
func (d *DB) GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	return getContext(ctx, d, d.db, queryType, dest, query, args...)
}

// SelectContext executes a query that returns multiple rows
func (d *DB) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	return selectContext(ctx, d, d.db, queryType, dest, query, args...)
}

// BeginTx begins a new transaction at the driver's default isolation.
func (d *DB) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		d.metrics.RecordDBError("transaction_begin_error")
		d.logger.Error(ctx, "[DB_TX_ERROR] Failed to begin transaction", logging.Fields{}, err)
		return nil, err
	}
	return &Tx{tx: tx, db: d}, nil
}

// WithTx runs fn inside a transaction. The transaction is committed when
// fn returns nil and rolled back otherwise.
func (d *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := d.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		d.metrics.RecordDBError("transaction_commit_error")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx is an instrumented transaction.
type Tx struct {
	tx *sqlx.Tx
	db *DB
}

// Rebind converts '?' placeholders to the driver's bindvar style.
func (t *Tx) Rebind(query string) string {
	return t.tx.Rebind(query)
}

// ExecContext executes a command inside the transaction.
func (t *Tx) ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error) {
	return execContext(ctx, t.db, t.tx, queryType, query, args...)
}

// GetContext executes a single-row query inside the transaction.
func (t *Tx) GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	return getContext(ctx, t.db, t.tx, queryType, dest, query, args...)
}

// SelectContext executes a multi-row query inside the transaction.
func (t *Tx) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	return selectContext(ctx, t.db, t.tx, queryType, dest, query, args...)
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction. Calling it after Commit is a no-op.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func execContext(ctx context.Context, d *DB, e sqlx.ExecerContext, queryType, query string, args ...interface{}) (sql.Result, error) {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		d.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())

		d.logger.Debug(ctx, "[DB_EXEC] Command executed", logging.Fields{
			"query_type":  queryType,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	result, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		d.metrics.RecordDBError("exec_error")
		d.logger.Error(ctx, "[DB_EXEC_ERROR] Command failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return nil, err
	}

	return result, nil
}

func getContext(ctx context.Context, d *DB, q sqlx.QueryerContext, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer func() {
		d.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(timer).Seconds())
	}()

	err := sqlx.GetContext(ctx, q, dest, query, args...)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		d.metrics.RecordDBError("get_error")
		d.logger.Error(ctx, "[DB_GET_ERROR] Get query failed", logging.Fields{
			"query_type": queryType,
		}, err)
	}

	return err
}

func selectContext(ctx context.Context, d *DB, q sqlx.QueryerContext, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer func() {
		d.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(timer).Seconds())
	}()

	err := sqlx.SelectContext(ctx, q, dest, query, args...)
	if err != nil {
		d.metrics.RecordDBError("select_error")
		d.logger.Error(ctx, "[DB_SELECT_ERROR] Select query failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return err
	}

	return nil
}

// IsUniqueViolation reports whether err is a unique-constraint failure
// from either supported driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func (d *DB) monitorConnectionPool() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopMonitor:
			return
		case <-ticker.C:
		}

		stats := d.db.Stats()
		d.metrics.UpdateDBConnectionPool(stats.InUse, stats.Idle, stats.OpenConnections)

		if stats.MaxOpenConnections <= 1 {
			continue
		}
		utilization := float64(stats.InUse) / float64(stats.MaxOpenConnections)
		if utilization > 0.8 {
			d.logger.Warn(context.Background(), "[DB_POOL_WARNING] Connection pool utilization high", logging.Fields{
				"in_use":      stats.InUse,
				"idle":        stats.Idle,
				"total":       stats.OpenConnections,
				"max_open":    stats.MaxOpenConnections,
				"utilization": fmt.Sprintf("%.2f%%", utilization*100),
			})
		}
	}
}

// HealthCheck performs a database health check
func (d *DB) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}
