package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wxdata/pkg/logging"
	"wxdata/pkg/metrics"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	cfg := &Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	}
	db, err := Open(cfg, logging.NewNopLogger(), metrics.NewTestCollector())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(&Config{Driver: "oracle"}, logging.NewNopLogger(), metrics.NewTestCollector())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))

	var tables []string
	err := db.SelectContext(context.Background(), "tables", &tables,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'weather_%' ORDER BY name")
	require.NoError(t, err)
	assert.Equal(t, []string{"weather_data", "weather_stations", "weather_stats"}, tables)
}

func TestSQLitePragmas(t *testing.T) {
	db := openTestDB(t)

	var fk int
	require.NoError(t, db.GetContext(context.Background(), "pragma", &fk, "PRAGMA foreign_keys"))
	assert.Equal(t, 1, fk)

	var mode string
	require.NoError(t, db.GetContext(context.Background(), "pragma", &mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)
}

func TestIsUniqueViolation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	insert := db.Rebind("INSERT INTO weather_stations (state, station_code) VALUES (?, ?)")

	_, err := db.ExecContext(ctx, "insert_station", insert, "NE", "NE")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, "insert_station", insert, "NE", "NE")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	sentinel := errors.New("abort")

	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.ExecContext(ctx, "insert_station",
			tx.Rebind("INSERT INTO weather_stations (state, station_code) VALUES (?, ?)"), "IA", "IA")
		require.NoError(t, err)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	var count int
	require.NoError(t, db.GetContext(ctx, "count", &count, "SELECT COUNT(*) FROM weather_stations"))
	assert.Zero(t, count)
}

func TestWithTx_Commit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.ExecContext(ctx, "insert_station",
			tx.Rebind("INSERT INTO weather_stations (state, station_code) VALUES (?, ?)"), "OH", "OH")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.GetContext(ctx, "count", &count, "SELECT COUNT(*) FROM weather_stations"))
	assert.Equal(t, 1, count)
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.HealthCheck(context.Background()))
}
