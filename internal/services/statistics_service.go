package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/jonboulle/clockwork"

	"wxdata/internal/models"
	"wxdata/internal/repository"
	"wxdata/pkg/logging"
	"wxdata/pkg/metrics"
)

// StatisticsService handles weather statistics calculations
type StatisticsService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	clock   clockwork.Clock
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, clock clockwork.Clock) *StatisticsService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StatisticsService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
		clock:   clock,
	}
}

// Recompute rebuilds every yearly statistic from current observations and
// returns the number of rows written. It is all-or-nothing.
func (s *StatisticsService) Recompute(ctx context.Context) (int64, error) {
	startTime := s.clock.Now()

	s.logger.Info(ctx, "[STATS_CALC_START] Starting statistics calculation", logging.Fields{
		"stage": "INITIALIZATION",
	})

	affected, err := s.repo.RecomputeStatistics(ctx)
	if err != nil {
		s.logger.Error(ctx, "[STATS_CALC_ERROR] Statistics calculation failed", logging.Fields{
			"stage": "FAILED",
		}, err)
		return 0, fmt.Errorf("failed to recompute statistics: %w", err)
	}

	duration := s.clock.Since(startTime)
	s.metrics.StatsRowsAffected.Set(float64(affected))
	s.metrics.StatsLastSuccess.Set(float64(s.clock.Now().Unix()))

	s.logger.Info(ctx, "[STATS_CALC_COMPLETE] Statistics calculation completed", logging.Fields{
		"rows_affected":    affected,
		"duration_seconds": duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return affected, nil
}

// StartScheduler recomputes statistics every interval until ctx is done.
// Runs never overlap.
func (s *StatisticsService) StartScheduler(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid statistics refresh interval %s", interval)
	}

	scheduler := gocron.NewScheduler(time.UTC)
	_, err := scheduler.Every(interval).SingletonMode().Do(func() {
		if _, err := s.Recompute(ctx); err != nil {
			s.logger.Warn(ctx, "[STATS_SCHEDULE_ERROR] Scheduled recompute failed", logging.Fields{
				"error": err.Error(),
			})
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule statistics refresh: %w", err)
	}

	s.logger.Info(ctx, "[STATS_SCHEDULE_START] Statistics refresh scheduled", logging.Fields{
		"interval": interval.String(),
	})

	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()

	s.logger.Info(context.Background(), "[STATS_SCHEDULE_STOP] Statistics refresh stopped", logging.Fields{})
	return nil
}

// GetStatistics retrieves statistics with filtering
func (s *StatisticsService) GetStatistics(ctx context.Context, filter repository.StatisticsFilter) ([]*models.YearlyStatistic, int, error) {
	return s.repo.GetStatistics(ctx, filter)
}
