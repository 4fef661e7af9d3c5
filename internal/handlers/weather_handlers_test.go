package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wxdata/internal/models"
	"wxdata/internal/repository"
	"wxdata/internal/services"
	"wxdata/pkg/database"
	"wxdata/pkg/logging"
	"wxdata/pkg/metrics"
)

type fixture struct {
	router http.Handler
	db     *database.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := logging.NewNopLogger()
	collector := metrics.NewTestCollector()

	db, err := database.Open(&database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "api.db"),
	}, logger, collector)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))

	repo := repository.NewWeatherRepository(db, logger, collector)
	ne, err := repo.ResolveStation(ctx, "USC00250001", "NE")
	require.NoError(t, err)
	ia, err := repo.ResolveStation(ctx, "USC00130002", "IA")
	require.NoError(t, err)

	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	_, err = repo.InsertObservations(ctx, []*models.Observation{
		{StationID: ne, Date: day(1985, 1, 2), MaxTemperature: 100, MinTemperature: 50, Precipitation: 10},
		{StationID: ne, Date: day(1985, 1, 3), MaxTemperature: -9999, MinTemperature: 40, Precipitation: 20},
		{StationID: ia, Date: day(1985, 1, 2), MaxTemperature: 30, MinTemperature: 10, Precipitation: 0},
		{StationID: ne, Date: day(1986, 6, 1), MaxTemperature: 250, MinTemperature: 150, Precipitation: 5},
	})
	require.NoError(t, err)
	_, err = repo.RecomputeStatistics(ctx)
	require.NoError(t, err)

	h := NewWeatherHandler(
		services.NewWeatherService(repo),
		services.NewStatisticsService(repo, logger, collector, nil),
		logger, collector,
	)
	return &fixture{router: NewRouter(h, http.NotFoundHandler()), db: db}
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

type page struct {
	Data   []map[string]interface{} `json:"data"`
	Total  int                      `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) page {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestGetObservations_DefaultsAndOrdering(t *testing.T) {
	f := newFixture(t)

	p := decodePage(t, f.get(t, "/api/weather"))
	assert.Equal(t, 4, p.Total)
	assert.Equal(t, 10, p.Limit)
	assert.Equal(t, 0, p.Offset)
	require.Len(t, p.Data, 4)
	assert.Equal(t, "1985-01-02", p.Data[0]["date"])
	assert.Equal(t, "1986-06-01", p.Data[3]["date"])
}

func TestGetObservations_Filters(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"date with leading zeros", "?date=01/02/1985", 2},
		{"date without leading zeros", "?date=1/2/1985", 2},
		{"station", "?station_id=1", 3},
		{"station and date", "?station_id=1&date=01/03/1985", 1},
		{"unknown station", "?station_id=999", 0},
		{"no observations that day", "?date=12/31/1999", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := decodePage(t, f.get(t, "/api/weather"+tt.query))
			assert.Equal(t, tt.want, p.Total)
			assert.Len(t, p.Data, tt.want)
		})
	}
}

func TestGetObservations_Pagination(t *testing.T) {
	f := newFixture(t)

	p := decodePage(t, f.get(t, "/api/weather?limit=2&offset=1"))
	assert.Equal(t, 4, p.Total)
	assert.Equal(t, 2, p.Limit)
	assert.Equal(t, 1, p.Offset)
	assert.Len(t, p.Data, 2)
}

func TestGetObservations_BadParameters(t *testing.T) {
	f := newFixture(t)

	for _, query := range []string{
		"?date=1985-01-02",
		"?date=01/02/85",
		"?date=02/30/2023",
		"?date=13/01/2023",
		"?station_id=abc",
		"?station_id=0",
		"?limit=0",
		"?limit=1001",
		"?offset=-1",
	} {
		t.Run(query, func(t *testing.T) {
			rec := f.get(t, "/api/weather"+query)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, http.StatusBadRequest, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestGetStatistics(t *testing.T) {
	f := newFixture(t)

	p := decodePage(t, f.get(t, "/api/weather/stats"))
	assert.Equal(t, 3, p.Total)

	p = decodePage(t, f.get(t, "/api/weather/stats?year=1985&station_id=1"))
	require.Len(t, p.Data, 1)
	assert.InDelta(t, 10.0, p.Data[0]["avg_max_temperature"], 1e-9)
	assert.InDelta(t, 4.5, p.Data[0]["avg_min_temperature"], 1e-9)
	assert.InDelta(t, 3.0, p.Data[0]["total_precipitation"], 1e-9)

	p = decodePage(t, f.get(t, "/api/weather/stats?date=06/01/1986"))
	require.Len(t, p.Data, 1)
	assert.Equal(t, float64(1986), p.Data[0]["year"])
}

func TestGetStatistics_BadParameters(t *testing.T) {
	f := newFixture(t)

	for _, query := range []string{
		"?year=85",
		"?year=abcd",
		"?year=-001",
		"?year=%2B198",
		"?date=1/1/1985&year=1986",
		"?date=bad",
	} {
		t.Run(query, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/weather/stats"+query).Code)
		})
	}
}

func TestGetStations(t *testing.T) {
	f := newFixture(t)

	p := decodePage(t, f.get(t, "/api/stations?limit=1"))
	assert.Equal(t, 2, p.Total)
	require.Len(t, p.Data, 1)
	assert.Equal(t, "USC00250001", p.Data[0]["station_code"])
}

func TestGetStation(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/api/stations/2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "USC00130002", st["station_code"])
	assert.Equal(t, "IA", st["state"])

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/stations/999").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/stations/abc").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/stations/0").Code)
}

func TestGetObservations_ScaledReadings(t *testing.T) {
	f := newFixture(t)

	p := decodePage(t, f.get(t, "/api/weather?station_id=1&date=01/03/1985"))
	require.Len(t, p.Data, 1)
	scaled, ok := p.Data[0]["scaled"].(map[string]interface{})
	require.True(t, ok)
	assert.Nil(t, scaled["max_temperature"])
	assert.InDelta(t, 4.0, scaled["min_temperature"], 1e-9)
	assert.InDelta(t, 2.0, scaled["precipitation"], 1e-9)
}

func TestEmptyResultIsArray(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/api/weather?date=12/31/1999")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.get(t, "/health").Code)

	require.NoError(t, f.db.Close())
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/health").Code)
	assert.Equal(t, http.StatusInternalServerError, f.get(t, "/api/weather").Code)
}

func TestRequestID(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/health")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestOpenAPISpec(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/api/docs/openapi.json")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	paths, ok := doc["paths"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, paths, "/api/weather")
	assert.Contains(t, paths, "/api/weather/stats")
	assert.Contains(t, paths, "/api/stations")
	assert.Contains(t, paths, "/api/stations/{id}")

	ui := f.get(t, "/api/docs")
	assert.Equal(t, http.StatusOK, ui.Code)
	assert.Contains(t, ui.Body.String(), "openapi.json")
	assert.Contains(t, ui.Body.String(), "SwaggerUIBundle")
}

type failingWriter struct {
	header http.Header
}

func (w *failingWriter) Header() http.Header       { return w.header }
func (w *failingWriter) WriteHeader(int)           {}
func (w *failingWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSwaggerUI_LogsWriteFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewStructuredLogger("wxdata-api", "test", logging.DebugLevel)
	logger.SetOutput(&buf)
	h := &WeatherHandler{logger: logger, metrics: metrics.NewTestCollector()}

	h.SwaggerUI(&failingWriter{header: http.Header{}}, httptest.NewRequest(http.MethodGet, "/api/docs", nil))

	assert.Contains(t, buf.String(), "[API_DOCS_ERROR]")
	assert.Contains(t, buf.String(), "connection reset")
}
