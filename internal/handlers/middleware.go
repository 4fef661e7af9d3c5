package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wxdata/pkg/logging"
	"wxdata/pkg/metrics"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// RequestID takes the caller's X-Request-ID or assigns a new one, echoes it
// on the response and stores it in the request context for logging.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// AccessLog counts and logs every routed request.
func AccessLog(logger *logging.StructuredLogger, collector *metrics.Collector) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			endpoint := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					endpoint = tmpl
				}
			}
			collector.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(rec.status))

			logger.Debug(r.Context(), "[API_REQUEST] Request served", logging.Fields{
				"method":       r.Method,
				"endpoint":     endpoint,
				"status":       rec.status,
				"duration_ms":  time.Since(start).Milliseconds(),
				"query_string": r.URL.RawQuery,
			})
		})
	}
}

// NewRouter wires the API routes, middleware and the metrics endpoint.
// A nil metricsHandler serves the default Prometheus registry.
func NewRouter(h *WeatherHandler, metricsHandler http.Handler) *mux.Router {
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	router := mux.NewRouter()
	router.Use(RequestID, AccessLog(h.logger, h.metrics))
	h.RegisterRoutes(router)
	router.Handle("/metrics", metricsHandler).Methods("GET")
	return router
}
