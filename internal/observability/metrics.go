package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Inbound weather messages by kind and outcome (applied, ignored). Watch for: ignored share
	// rising after a companion app update (new wire version).
	WeatherMessagesTotal *prometheus.CounterVec

	// Consumer reads by kind and result (fresh, stale, absent). Watch for: stale reads = sender stopped.
	WeatherReadsTotal *prometheus.CounterVec

	// Timestamp asserted by the sender of the last applied record, per kind.
	WeatherRecordTimestampSeconds *prometheus.GaugeVec

	// Reads that served a record stamped ahead of the local clock. Watch for: clock skew or forged timestamps.
	WeatherFutureTimestampReadsTotal *prometheus.CounterVec

	// Payloads delivered by the MQTT transport.
	MQTTMessagesReceivedTotal prometheus.Counter

	// Rate limit denials on the ingest path.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherMessagesTotal",
			Help: "Inbound weather messages by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	WeatherReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherReadsTotal",
			Help: "Weather store reads by kind and result (fresh, stale, absent)",
		},
		[]string{"kind", "result"},
	)
	WeatherRecordTimestampSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weatherRecordTimestampSeconds",
			Help: "Sender timestamp of the last applied record, seconds since epoch",
		},
		[]string{"kind"},
	)
	WeatherFutureTimestampReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherFutureTimestampReadsTotal",
			Help: "Reads that served a record timestamped ahead of the local clock",
		},
		[]string{"kind"},
	)
	MQTTMessagesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mqttMessagesReceivedTotal",
			Help: "Total number of payloads received from the MQTT broker",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of ingest requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherMessagesTotal, WeatherReadsTotal,
		WeatherRecordTimestampSeconds, WeatherFutureTimestampReadsTotal,
		MQTTMessagesReceivedTotal,
		RateLimitDeniedTotal,
	)
}

// RecordMessage counts an inbound message outcome.
func RecordMessage(kind, outcome string) {
	WeatherMessagesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordRead counts a store read result.
func RecordRead(kind, result string) {
	WeatherReadsTotal.WithLabelValues(kind, result).Inc()
}

// SetRecordTimestamp exposes the sender timestamp of the last applied record of kind.
func SetRecordTimestamp(kind string, ts uint64) {
	WeatherRecordTimestampSeconds.WithLabelValues(kind).Set(float64(ts))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
