package store

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/simple-weather-service/internal/clock"
	"github.com/kjstillabower/simple-weather-service/internal/decoder"
	"github.com/kjstillabower/simple-weather-service/internal/models"
	"github.com/kjstillabower/simple-weather-service/internal/observability"
	"github.com/kjstillabower/simple-weather-service/internal/traffic"
)

// Result describes what Apply did with a message. It is informational only.
type Result struct {
	Kind    decoder.Kind
	Applied bool
	// Reason is the decoder's ignore outcome; nil when Applied.
	Reason error
}

// Option configures a Store.
type Option func(*Store)

// WithFreshnessWindow overrides DefaultFreshnessWindow. Non-positive values are ignored.
func WithFreshnessWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.freshness.Window = d
		}
	}
}

// WithLogger sets the logger used for apply and read diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store holds the latest current weather and forecast records.
// Apply replaces a whole record under the write lock; readers copy under the read lock,
// so a reader never observes a partially written record. Safe for concurrent use.
type Store struct {
	clock     clock.Clock
	freshness Freshness
	logger    *zap.Logger

	mu          sync.RWMutex
	current     models.CurrentWeather
	hasCurrent  bool
	forecast    models.Forecast
	hasForecast bool
}

// New creates an empty store. clk is consulted on every read and never modified.
func New(clk clock.Clock, opts ...Option) *Store {
	if clk == nil {
		clk = clock.System{}
	}
	s := &Store{
		clock:     clk,
		freshness: Freshness{Window: DefaultFreshnessWindow},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FreshnessWindow returns the configured window.
func (s *Store) FreshnessWindow() time.Duration {
	return s.freshness.Window
}

// Apply decodes buf and, on success, replaces the stored record of the decoded kind.
// Ignore outcomes (unknown kind, unsupported version, truncated buffer) leave state unchanged
// and are reported in Result.Reason, never as a failure.
func (s *Store) Apply(buf []byte) Result {
	msg, err := decoder.Decode(buf)
	kind := msg.Kind.String()
	if err != nil {
		traffic.RecordIgnored()
		observability.RecordMessage(kind, "ignored")
		s.logger.Debug("weather message ignored",
			zap.String("kind", kind),
			zap.Uint8("version", msg.Version),
			zap.Int("bytes", len(buf)),
			zap.Error(err))
		return Result{Kind: msg.Kind, Reason: err}
	}

	switch {
	case msg.Current != nil:
		cw := *msg.Current
		s.mu.Lock()
		s.current = cw
		s.hasCurrent = true
		s.mu.Unlock()
		observability.SetRecordTimestamp(kind, cw.Timestamp)
		s.logger.Info("current weather updated",
			zap.Uint64("timestamp", cw.Timestamp),
			zap.Int16("temperature", cw.Temperature),
			zap.Int16("min", cw.MinTemperature),
			zap.Int16("max", cw.MaxTemperature),
			zap.Stringer("icon", cw.Icon),
			zap.String("location", cw.Location.String()))
	case msg.Forecast != nil:
		f := *msg.Forecast
		s.mu.Lock()
		s.forecast = f
		s.hasForecast = true
		s.mu.Unlock()
		observability.SetRecordTimestamp(kind, f.Timestamp)
		s.logger.Info("forecast updated",
			zap.Uint64("timestamp", f.Timestamp),
			zap.Uint8("days", f.NbDays))
	}
	traffic.RecordApplied()
	observability.RecordMessage(kind, "applied")
	return Result{Kind: msg.Kind, Applied: true}
}

// CurrentWeather returns a copy of the stored current weather if it is still fresh.
// Returns (zero, false) when nothing has been stored or the record is stale.
func (s *Store) CurrentWeather() (models.CurrentWeather, bool) {
	s.mu.RLock()
	cw, ok := s.current, s.hasCurrent
	s.mu.RUnlock()

	if !s.readable(decoder.KindCurrentWeather, ok, cw.Timestamp) {
		return models.CurrentWeather{}, false
	}
	return cw, true
}

// Forecast returns a copy of the stored forecast if it is still fresh.
// Returns (zero, false) when nothing has been stored or the record is stale.
func (s *Store) Forecast() (models.Forecast, bool) {
	s.mu.RLock()
	f, ok := s.forecast, s.hasForecast
	s.mu.RUnlock()

	if !s.readable(decoder.KindForecast, ok, f.Timestamp) {
		return models.Forecast{}, false
	}
	return f, true
}

// Status reports absent, fresh or stale for kind without counting a read.
func (s *Store) Status(kind decoder.Kind) Status {
	s.mu.RLock()
	var ts uint64
	var ok bool
	switch kind {
	case decoder.KindCurrentWeather:
		ts, ok = s.current.Timestamp, s.hasCurrent
	case decoder.KindForecast:
		ts, ok = s.forecast.Timestamp, s.hasForecast
	}
	s.mu.RUnlock()
	return s.status(s.clock.Now(), ok, ts)
}

// status is the single absent/fresh/stale decision shared by reads and Status.
func (s *Store) status(now time.Time, present bool, ts uint64) Status {
	if !present {
		return StatusAbsent
	}
	if s.freshness.Fresh(now, ts) {
		return StatusFresh
	}
	return StatusStale
}

// readable evaluates freshness for a read and records it. Stale records stay in memory.
func (s *Store) readable(kind decoder.Kind, present bool, ts uint64) bool {
	now := s.clock.Now()
	st := s.status(now, present, ts)
	observability.RecordRead(kind.String(), st.String())
	if st != StatusFresh {
		return false
	}
	if age, ok := Age(now, ts); ok && age < 0 {
		observability.WeatherFutureTimestampReadsTotal.WithLabelValues(kind.String()).Inc()
		s.logger.Debug("serving record stamped ahead of local clock",
			zap.String("kind", kind.String()),
			zap.Uint64("timestamp", ts),
			zap.Int64("skew_seconds", -age))
	}
	return true
}
