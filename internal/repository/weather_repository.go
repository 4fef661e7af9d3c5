package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wxdata/internal/models"
	"wxdata/pkg/database"
	"wxdata/pkg/logging"
	"wxdata/pkg/metrics"
)

// WeatherRepository provides data access for weather data
type WeatherRepository interface {
	// Station operations
	ResolveStation(ctx context.Context, code, state string) (int64, error)
	GetStation(ctx context.Context, id int64) (*models.Station, error)
	ListStations(ctx context.Context, limit, offset int) ([]*models.Station, int, error)

	// Observation operations
	InsertObservations(ctx context.Context, observations []*models.Observation) (BatchResult, error)
	GetObservations(ctx context.Context, filter ObservationFilter) ([]*models.Observation, int, error)

	// Statistics operations
	RecomputeStatistics(ctx context.Context) (int64, error)
	GetStatistics(ctx context.Context, filter StatisticsFilter) ([]*models.YearlyStatistic, int, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// ObservationFilter defines filters for querying observations
type ObservationFilter struct {
	StationID *int64
	Date      *time.Time
	Limit     int
	Offset    int
}

// StatisticsFilter defines filters for querying statistics
type StatisticsFilter struct {
	StationID *int64
	Year      *int
	Limit     int
	Offset    int
}

// BatchResult counts the outcome of one observation batch.
type BatchResult struct {
	Inserted   int
	Duplicates int
}

// weatherRepository implements WeatherRepository
type weatherRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherRepository creates a new weather repository
func NewWeatherRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) WeatherRepository {
	return &weatherRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ResolveStation returns the id for code, inserting the station first if
// it does not exist. Concurrent callers converge on one row through the
// UNIQUE(station_code) constraint.
func (r *weatherRepository) ResolveStation(ctx context.Context, code, state string) (int64, error) {
	insert := r.db.Rebind(`
		INSERT INTO weather_stations (state, station_code)
		VALUES (?, ?)
		ON CONFLICT (station_code) DO NOTHING
	`)

	res, err := r.db.ExecContext(ctx, "insert_station", insert, state, code)
	if err != nil && !database.IsUniqueViolation(err) {
		return 0, storageError("resolve station", err)
	}

	var id int64
	query := r.db.Rebind(`SELECT id FROM weather_stations WHERE station_code = ?`)
	if err := r.db.GetContext(ctx, "get_station_id", &id, query, code); err != nil {
		return 0, storageError("resolve station", err)
	}

	r.metrics.StationsResolvedTotal.Inc()
	created := false
	if res != nil {
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			created = true
		}
	}
	r.logger.Debug(ctx, "[REPO_RESOLVE_STATION] Station resolved", logging.Fields{
		"station_code": code,
		"state":        state,
		"station_id":   id,
		"created":      created,
	})

	return id, nil
}

// GetStation retrieves a weather station by ID
func (r *weatherRepository) GetStation(ctx context.Context, id int64) (*models.Station, error) {
	query := r.db.Rebind(`
		SELECT id, state, station_code
		FROM weather_stations
		WHERE id = ?
	`)

	var station models.Station
	err := r.db.GetContext(ctx, "get_station", &station, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{
			Resource: "weather_station",
			ID:       fmt.Sprintf("%d", id),
		}
	}
	if err != nil {
		return nil, storageError("get station", err)
	}

	return &station, nil
}

// ListStations retrieves weather stations with pagination
func (r *weatherRepository) ListStations(ctx context.Context, limit, offset int) ([]*models.Station, int, error) {
	var total int
	if err := r.db.GetContext(ctx, "count_stations", &total, `SELECT COUNT(*) FROM weather_stations`); err != nil {
		return nil, 0, storageError("count stations", err)
	}

	query := r.db.Rebind(`
		SELECT id, state, station_code
		FROM weather_stations
		ORDER BY id
		LIMIT ? OFFSET ?
	`)

	stations := []*models.Station{}
	if err := r.db.SelectContext(ctx, "list_stations", &stations, query, limit, offset); err != nil {
		return nil, 0, storageError("list stations", err)
	}

	return stations, total, nil
}

// InsertObservations inserts a batch in one transaction. Rows whose
// (station_id, date) already exists are counted as duplicates and left
// untouched. On error nothing from the batch is committed.
func (r *weatherRepository) InsertObservations(ctx context.Context, observations []*models.Observation) (BatchResult, error) {
	var result BatchResult
	if len(observations) == 0 {
		return result, nil
	}

	timer := time.Now()
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		for _, obs := range observations {
			err := insertObservation(ctx, tx, obs)
			switch {
			case err == nil:
				result.Inserted++
			case errors.Is(err, ErrDuplicate):
				result.Duplicates++
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, storageError("insert observations", err)
	}

	r.metrics.IngestionBatchSize.Observe(float64(len(observations)))
	r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Batch insert completed", logging.Fields{
		"count":       len(observations),
		"inserted":    result.Inserted,
		"duplicates":  result.Duplicates,
		"duration_ms": time.Since(timer).Milliseconds(),
	})

	return result, nil
}

// insertObservation returns ErrDuplicate when the (station_id, date) key
// is already present.
func insertObservation(ctx context.Context, q database.Queryer, obs *models.Observation) error {
	query := q.Rebind(`
		INSERT INTO weather_data (
			station_id, date, max_temperature, min_temperature, precipitation
		)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (station_id, date) DO NOTHING
		RETURNING id
	`)

	err := q.GetContext(ctx, "insert_observation", &obs.ID, query,
		obs.StationID,
		obs.DateString(),
		obs.MaxTemperature,
		obs.MinTemperature,
		obs.Precipitation,
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows), database.IsUniqueViolation(err):
		return ErrDuplicate
	default:
		return fmt.Errorf("failed to insert observation: %w", err)
	}
}

// GetObservations retrieves weather observations with filtering and pagination
func (r *weatherRepository) GetObservations(ctx context.Context, filter ObservationFilter) ([]*models.Observation, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}

	if filter.StationID != nil {
		where += " AND station_id = ?"
		args = append(args, *filter.StationID)
	}

	if filter.Date != nil {
		where += " AND date = ?"
		args = append(args, filter.Date.Format(models.DateLayout))
	}

	var totalCount int
	countQuery := r.db.Rebind("SELECT COUNT(*) FROM weather_data" + where)
	if err := r.db.GetContext(ctx, "count_observations", &totalCount, countQuery, args...); err != nil {
		return nil, 0, storageError("count observations", err)
	}

	query := r.db.Rebind(`
		SELECT id, station_id, date, max_temperature, min_temperature, precipitation
		FROM weather_data` + where + `
		ORDER BY date, station_id
		LIMIT ? OFFSET ?
	`)
	args = append(args, filter.Limit, filter.Offset)

	observations := []*models.Observation{}
	if err := r.db.SelectContext(ctx, "get_observations", &observations, query, args...); err != nil {
		return nil, 0, storageError("get observations", err)
	}

	return observations, totalCount, nil
}

// yearExpr extracts the calendar year of weather_data.date per dialect.
func (r *weatherRepository) yearExpr() string {
	if r.db.DriverName() == database.DriverPostgres {
		return "CAST(EXTRACT(YEAR FROM date) AS INTEGER)"
	}
	return "CAST(strftime('%Y', date) AS INTEGER)"
}

// RecomputeStatistics rebuilds weather_stats from weather_data in a single
// statement inside one transaction: every (station, year) row is inserted
// or fully replaced. Sentinel readings are excluded per field.
func (r *weatherRepository) RecomputeStatistics(ctx context.Context) (int64, error) {
	timer := time.Now()
	defer func() {
		r.metrics.StatsCalculationDuration.Observe(time.Since(timer).Seconds())
	}()

	// The WHERE clause keeps SQLite from reading ON CONFLICT as a join
	// constraint.
	query := fmt.Sprintf(`
		INSERT INTO weather_stats (
			station_id, year,
			avg_max_temperature, avg_min_temperature, total_precipitation
		)
		SELECT
			station_id,
			%[1]s AS year,
			AVG(CASE WHEN max_temperature <> %[2]d THEN max_temperature * %[3]g END),
			AVG(CASE WHEN min_temperature <> %[2]d THEN min_temperature * %[3]g END),
			SUM(CASE WHEN precipitation <> %[2]d THEN precipitation * %[3]g END)
		FROM weather_data
		WHERE 1=1
		GROUP BY station_id, %[1]s
		ON CONFLICT (station_id, year) DO UPDATE SET
			avg_max_temperature = EXCLUDED.avg_max_temperature,
			avg_min_temperature = EXCLUDED.avg_min_temperature,
			total_precipitation = EXCLUDED.total_precipitation
	`, r.yearExpr(), models.MissingValue, models.Scale)

	var affected int64
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		res, err := tx.ExecContext(ctx, "recompute_statistics", query)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, storageError("recompute statistics", err)
	}

	r.logger.Debug(ctx, "[REPO_RECOMPUTE_STATS] Statistics recomputed", logging.Fields{
		"rows_affected": affected,
		"duration_ms":   time.Since(timer).Milliseconds(),
	})

	return affected, nil
}

// GetStatistics retrieves weather statistics with filtering and pagination
func (r *weatherRepository) GetStatistics(ctx context.Context, filter StatisticsFilter) ([]*models.YearlyStatistic, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}

	if filter.StationID != nil {
		where += " AND station_id = ?"
		args = append(args, *filter.StationID)
	}

	if filter.Year != nil {
		where += " AND year = ?"
		args = append(args, *filter.Year)
	}

	var totalCount int
	countQuery := r.db.Rebind("SELECT COUNT(*) FROM weather_stats" + where)
	if err := r.db.GetContext(ctx, "count_statistics", &totalCount, countQuery, args...); err != nil {
		return nil, 0, storageError("count statistics", err)
	}

	query := r.db.Rebind(`
		SELECT id, station_id, year,
		       avg_max_temperature, avg_min_temperature, total_precipitation
		FROM weather_stats` + where + `
		ORDER BY year, station_id
		LIMIT ? OFFSET ?
	`)
	args = append(args, filter.Limit, filter.Offset)

	statistics := []*models.YearlyStatistic{}
	if err := r.db.SelectContext(ctx, "get_statistics", &statistics, query, args...); err != nil {
		return nil, 0, storageError("get statistics", err)
	}

	return statistics, totalCount, nil
}

// HealthCheck performs a repository health check
func (r *weatherRepository) HealthCheck(ctx context.Context) error {
	if err := r.db.HealthCheck(ctx); err != nil {
		return storageError("health check", err)
	}
	return nil
}
