package handler

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"

	"github.com/hive-corporation/iocscope/internal/adapter/metrics"
)

// RouterConfig wires the REST handler into a gorilla/mux router.
type RouterConfig struct {
	Handler        *RestHandler
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	CORSOrigins    []string
	Logger         *slog.Logger
}

func NewRouter(cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := cfg.Handler

	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/health", h.Health).Methods(http.MethodGet)

	// IOC endpoints
	api := router.PathPrefix("/api/v1/iocs").Subrouter()
	api.HandleFunc("/lookup", h.Lookup).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/extract", h.Extract).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/history", h.History).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/history/{id}", h.HistoryEntry).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/stats", h.Stats).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/feed", h.Feed).Methods(http.MethodGet, http.MethodOptions)

	if cfg.MetricsHandler != nil {
		router.Handle("/metrics", cfg.MetricsHandler).Methods(http.MethodGet)
	}

	// Middleware
	router.Use(loggingMiddleware(logger))
	router.Use(metricsMiddleware(cfg.Metrics))
	router.Use(corsMiddleware(cfg.CORSOrigins))

	return router
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		})
	}
}

func metricsMiddleware(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			timer := metrics.StartTimer()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// label by route template to keep cardinality bounded
			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.RecordHTTPRequest(r.Method, route, rec.status, timer.Elapsed())
		})
	}
}

// corsMiddleware allows the configured origins. A "*" entry allows any origin.
func corsMiddleware(origins []string) mux.MiddlewareFunc {
	allowAll := slices.Contains(origins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || slices.Contains(origins, origin)) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
