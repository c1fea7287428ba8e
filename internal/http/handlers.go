package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/simple-weather-service/internal/decoder"
	"github.com/kjstillabower/simple-weather-service/internal/lifecycle"
	"github.com/kjstillabower/simple-weather-service/internal/models"
	"github.com/kjstillabower/simple-weather-service/internal/store"
	"github.com/kjstillabower/simple-weather-service/internal/traffic"
)

// DefaultMaxMessageBytes bounds POST /messages bodies when no limit is configured.
const DefaultMaxMessageBytes = 512

// WeatherStore is the subset of *store.Store the handlers use.
type WeatherStore interface {
	Apply(buf []byte) store.Result
	CurrentWeather() (models.CurrentWeather, bool)
	Forecast() (models.Forecast, bool)
	Status(kind decoder.Kind) store.Status
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	// Window is the sliding window over which ingest outcomes are counted.
	Window time.Duration
	// IgnoredPct marks the service degraded when at least this share of decoded messages was ignored.
	IgnoredPct int
	// MinMessages is the number of decoded messages required before IgnoredPct is evaluated.
	MinMessages int
	// MQTTConnected, when set, reports broker connectivity. Nil means MQTT ingest is disabled.
	MQTTConnected func() bool
	// StartTime, when set, is reported as uptimeSeconds.
	StartTime time.Time
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store            WeatherStore
	healthConfig     *HealthConfig
	logger           *zap.Logger
	maxMessageBytes  int64
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. maxMessageBytes <= 0 selects DefaultMaxMessageBytes.
func NewHandler(
	weatherStore WeatherStore,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	maxMessageBytes int64,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}
	return &Handler{
		store:           weatherStore,
		healthConfig:    healthConfig,
		logger:          logger,
		maxMessageBytes: maxMessageBytes,
	}
}

// messageResult is the POST /messages response body.
type messageResult struct {
	Kind    string `json:"kind"`
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

// PostMessage handles POST /messages. The raw body is one wire frame.
// Ignored frames are still accepted; the response says what happened.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "MESSAGE_TOO_LARGE", "message exceeds maximum size")
			return
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "unable to read message body")
		return
	}

	res := h.store.Apply(body)
	out := messageResult{Kind: res.Kind.String(), Applied: res.Applied}
	if res.Reason != nil {
		out.Reason = res.Reason.Error()
	}
	requestLogger(r, h.logger).Debug("message received",
		zap.String("kind", out.Kind),
		zap.Bool("applied", out.Applied),
		zap.Int("bytes", len(body)))
	writeJSON(w, http.StatusAccepted, out)
}

// GetCurrentWeather handles GET /weather/current.
func (h *Handler) GetCurrentWeather(w http.ResponseWriter, r *http.Request) {
	if requestExpired(w, r) {
		return
	}
	cw, ok := h.store.CurrentWeather()
	if !ok {
		writeError(w, r, http.StatusNotFound, "NOT_AVAILABLE", "no fresh current weather")
		return
	}
	writeJSON(w, http.StatusOK, cw)
}

// GetForecast handles GET /weather/forecast.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	if requestExpired(w, r) {
		return
	}
	f, ok := h.store.Forecast()
	if !ok {
		writeError(w, r, http.StatusNotFound, "NOT_AVAILABLE", "no fresh forecast")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// requestExpired answers 503 REQUEST_TIMEOUT when the request context set by TimeoutMiddleware
// (or the client) is already done, so a late read is not served.
func requestExpired(w http.ResponseWriter, r *http.Request) bool {
	err := r.Context().Err()
	if err == nil {
		return false
	}
	requestLogger(r, zap.NewNop()).Debug("read abandoned", zap.Error(err))
	writeError(w, r, http.StatusServiceUnavailable, "REQUEST_TIMEOUT", "request deadline exceeded")
	return true
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{
		"current":  h.store.Status(decoder.KindCurrentWeather).String(),
		"forecast": h.store.Status(decoder.KindForecast).String(),
	}
	if h.healthConfig != nil && h.healthConfig.MQTTConnected != nil {
		if h.healthConfig.MQTTConnected() {
			checks["mqtt"] = "healthy"
		} else {
			checks["mqtt"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "simple-weather-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && h.healthConfig.Window > 0 {
		resp["ingest"] = traffic.Snapshot(h.healthConfig.Window)
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		resp["uptimeSeconds"] = int64(time.Since(h.healthConfig.StartTime).Seconds())
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > mqtt disconnected > ignored share over threshold > healthy.
// Stale or absent records do not make the service unhealthy; they only show in checks.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, lifecycle.ShutdownReason()}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.healthConfig.MQTTConnected != nil && !h.healthConfig.MQTTConnected() {
		return healthResult{"degraded", http.StatusServiceUnavailable, "mqtt_disconnected"}
	}
	if h.healthConfig.Window > 0 && h.healthConfig.IgnoredPct > 0 {
		counts := traffic.Snapshot(h.healthConfig.Window)
		if counts.Messages() > 0 && counts.Messages() >= h.healthConfig.MinMessages &&
			counts.IgnoredPct() >= float64(h.healthConfig.IgnoredPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "ignored_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": correlationID(r),
		},
	})
}

func correlationID(r *http.Request) string {
	if v, ok := r.Context().Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// requestLogger returns the request-scoped logger set by CorrelationIDMiddleware, or fallback.
func requestLogger(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if logger, ok := r.Context().Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return fallback
}
