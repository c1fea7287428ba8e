package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/simple-weather-service/internal/observability"
)

// NewRouter wires the handler routes and middleware. limiter guards POST /messages only;
// requestTimeout <= 0 disables the read-route deadline.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	router.Handle("/messages", RateLimitMiddleware(limiter)(http.HandlerFunc(h.PostMessage))).Methods(http.MethodPost)

	weather := router.PathPrefix("/weather").Subrouter()
	if requestTimeout > 0 {
		weather.Use(TimeoutMiddleware(requestTimeout))
	}
	weather.HandleFunc("/current", h.GetCurrentWeather).Methods(http.MethodGet)
	weather.HandleFunc("/forecast", h.GetForecast).Methods(http.MethodGet)
	return router
}
