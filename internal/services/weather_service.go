package services

import (
	"context"

	"wxdata/internal/models"
	"wxdata/internal/repository"
)

// WeatherService serves read queries over stations and observations.
type WeatherService struct {
	repo repository.WeatherRepository
}

// NewWeatherService creates a new weather service
func NewWeatherService(repo repository.WeatherRepository) *WeatherService {
	return &WeatherService{repo: repo}
}

// GetObservations retrieves weather observations with filtering
func (s *WeatherService) GetObservations(ctx context.Context, filter repository.ObservationFilter) ([]*models.Observation, int, error) {
	return s.repo.GetObservations(ctx, filter)
}

// GetStation retrieves one station by id.
func (s *WeatherService) GetStation(ctx context.Context, id int64) (*models.Station, error) {
	return s.repo.GetStation(ctx, id)
}

// GetStations retrieves weather stations
func (s *WeatherService) GetStations(ctx context.Context, limit, offset int) ([]*models.Station, int, error) {
	return s.repo.ListStations(ctx, limit, offset)
}

// HealthCheck pings the store.
func (s *WeatherService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
