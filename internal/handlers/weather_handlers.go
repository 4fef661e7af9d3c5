package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"wxdata/internal/repository"
	"wxdata/internal/services"
	"wxdata/pkg/logging"
	"wxdata/pkg/metrics"
)

const (
	defaultLimit = 10
	maxLimit     = 1000

	// QueryDateLayout is the accepted form of the date query parameter.
	QueryDateLayout = "1/2/2006"
)

// WeatherHandler handles weather API endpoints
type WeatherHandler struct {
	weatherService *services.WeatherService
	statsService   *services.StatisticsService
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
}

// NewWeatherHandler creates a new weather handler
func NewWeatherHandler(
	weatherService *services.WeatherService,
	statsService *services.StatisticsService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *WeatherHandler {
	return &WeatherHandler{
		weatherService: weatherService,
		statsService:   statsService,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data   interface{} `json:"data"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// badRequest is a query parameter that failed validation.
type badRequest struct {
	param string
	msg   string
}

func (e *badRequest) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.param, e.msg)
}

// GetObservations handles GET /api/weather
func (h *WeatherHandler) GetObservations(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/weather"
	ctx := r.Context()
	timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues(endpoint))
	defer timer.ObserveDuration()

	q := r.URL.Query()
	limit, offset, err := parsePagination(q)
	if err != nil {
		h.sendBadRequest(w, endpoint, err)
		return
	}

	filter := repository.ObservationFilter{Limit: limit, Offset: offset}
	if filter.StationID, err = parseStationID(q); err != nil {
		h.sendBadRequest(w, endpoint, err)
		return
	}
	if filter.Date, err = parseDate(q); err != nil {
		h.sendBadRequest(w, endpoint, err)
		return
	}

	observations, total, err := h.weatherService.GetObservations(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_OBSERVATIONS_ERROR] Failed to get observations", logging.Fields{
			"query": r.URL.RawQuery,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, "failed to retrieve observations", http.StatusInternalServerError)
		return
	}

	data := interface{}(observations)
	if len(observations) == 0 {
		data = []struct{}{}
	}
	h.sendJSON(w, PaginatedResponse{Data: data, Total: total, Limit: limit, Offset: offset}, http.StatusOK)
}

// GetStatistics handles GET /api/weather/stats
func (h *WeatherHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/weather/stats"
	ctx := r.Context()
	timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues(endpoint))
	defer timer.ObserveDuration()

	q := r.URL.Query()
	limit, offset, err := parsePagination(q)
	if err != nil {
		h.sendBadRequest(w, endpoint, err)
		return
	}

	filter := repository.StatisticsFilter{Limit: limit, Offset: offset}
	if filter.StationID, err = parseStationID(q); err != nil {
		h.sendBadRequest(w, endpoint, err)
		return
	}
	if filter.Year, err = parseYear(q); err != nil {
		h.sendBadRequest(w, endpoint, err)
		return
	}

	date, err := parseDate(q)
	if err != nil {
		h.sendBadRequest(w, endpoint, err)
		return
	}
	if date != nil {
		year := date.Year()
		if filter.Year != nil && *filter.Year != year {
			h.sendBadRequest(w, endpoint, &badRequest{param: "date", msg: "year of date does not match year parameter"})
			return
		}
		filter.Year = &year
	}

	statistics, total, err := h.statsService.GetStatistics(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_STATISTICS_ERROR] Failed to get statistics", logging.Fields{
			"query": r.URL.RawQuery,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, "failed to retrieve statistics", http.StatusInternalServerError)
		return
	}

	data := interface{}(statistics)
	if len(statistics) == 0 {
		data = []struct{}{}
	}
	h.sendJSON(w, PaginatedResponse{Data: data, Total: total, Limit: limit, Offset: offset}, http.StatusOK)
}

// GetStations handles GET /api/stations
func (h *WeatherHandler) GetStations(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/stations"
	ctx := r.Context()
	timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues(endpoint))
	defer timer.ObserveDuration()

	limit, offset, err := parsePagination(r.URL.Query())
	if err != nil {
		h.sendBadRequest(w, endpoint, err)
		return
	}

	stations, total, err := h.weatherService.GetStations(ctx, limit, offset)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_STATIONS_ERROR] Failed to get stations", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, "failed to retrieve stations", http.StatusInternalServerError)
		return
	}

	data := interface{}(stations)
	if len(stations) == 0 {
		data = []struct{}{}
	}
	h.sendJSON(w, PaginatedResponse{Data: data, Total: total, Limit: limit, Offset: offset}, http.StatusOK)
}

// GetStation handles GET /api/stations/{id}
func (h *WeatherHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/stations/{id}"
	ctx := r.Context()
	timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues(endpoint))
	defer timer.ObserveDuration()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id < 1 {
		h.sendBadRequest(w, endpoint, &badRequest{param: "id", msg: "expected positive integer"})
		return
	}

	station, err := h.weatherService.GetStation(ctx, id)
	var notFound *repository.NotFoundError
	switch {
	case errors.As(err, &notFound):
		h.metrics.RecordAPIError("not_found", endpoint)
		h.sendError(w, notFound.Error(), http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error(ctx, "[API_GET_STATION_ERROR] Failed to get station", logging.Fields{
			"station_id": id,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, "failed to retrieve station", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, station, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *WeatherHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.weatherService.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Store unavailable", logging.Fields{"error": err.Error()})
		status["status"] = "unhealthy"
		h.sendJSON(w, status, http.StatusServiceUnavailable)
		return
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

func parsePagination(q url.Values) (limit, offset int, err error) {
	limit, offset = defaultLimit, 0

	if s := q.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 1 || limit > maxLimit {
			return 0, 0, &badRequest{param: "limit", msg: fmt.Sprintf("expected integer between 1 and %d", maxLimit)}
		}
	}
	if s := q.Get("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			return 0, 0, &badRequest{param: "offset", msg: "expected non-negative integer"}
		}
	}
	return limit, offset, nil
}

func parseStationID(q url.Values) (*int64, error) {
	s := q.Get("station_id")
	if s == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return nil, &badRequest{param: "station_id", msg: "expected positive integer"}
	}
	return &id, nil
}

func parseYear(q url.Values) (*int, error) {
	s := q.Get("year")
	if s == "" {
		return nil, nil
	}
	year, err := strconv.Atoi(s)
	if err != nil || len(s) != 4 || strings.Trim(s, "0123456789") != "" {
		return nil, &badRequest{param: "year", msg: "expected four-digit year"}
	}
	return &year, nil
}

// parseDate accepts MM/DD/YYYY with optional leading zeros and a four-digit
// year. The result is a calendar day in UTC.
func parseDate(q url.Values) (*time.Time, error) {
	s := q.Get("date")
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(QueryDateLayout, s)
	if err != nil {
		return nil, &badRequest{param: "date", msg: "expected MM/DD/YYYY"}
	}
	return &d, nil
}

// sendJSON sends a JSON response
func (h *WeatherHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error(context.Background(), "[API_ENCODE_ERROR] Failed to write response", logging.Fields{
			"status": statusCode,
		}, err)
	}
}

func (h *WeatherHandler) sendBadRequest(w http.ResponseWriter, endpoint string, err error) {
	h.metrics.RecordAPIError("bad_request", endpoint)
	h.sendError(w, err.Error(), http.StatusBadRequest)
}

// sendError sends an error response
func (h *WeatherHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all weather API routes
func (h *WeatherHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/weather", h.GetObservations).Methods("GET")
	router.HandleFunc("/api/weather/stats", h.GetStatistics).Methods("GET")
	router.HandleFunc("/api/stations", h.GetStations).Methods("GET")
	router.HandleFunc("/api/stations/{id}", h.GetStation).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", h.OpenAPISpec).Methods("GET")
	router.HandleFunc("/api/docs", h.SwaggerUI).Methods("GET")
}
