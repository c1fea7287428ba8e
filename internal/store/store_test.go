package store

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/simple-weather-service/internal/clock"
	"github.com/kjstillabower/simple-weather-service/internal/decoder"
	"github.com/kjstillabower/simple-weather-service/internal/models"
	"github.com/kjstillabower/simple-weather-service/internal/testhelpers"
)

const parisTimestamp = 1700000000

func newTestStore(t *testing.T, now int64, opts ...Option) (*Store, *clock.Manual) {
	t.Helper()
	clk := clock.NewManualUnix(now)
	return New(clk, opts...), clk
}

func parisWeather() models.CurrentWeather {
	return models.CurrentWeather{
		Timestamp:      parisTimestamp,
		Temperature:    2750,
		MinTemperature: 2000,
		MaxTemperature: 3000,
		Icon:           models.IconCloudsSun,
		Location:       models.NewLocation([]byte("Paris")),
	}
}

func threeDayForecast(ts uint64) []byte {
	return testhelpers.ForecastFrame{
		Timestamp: ts,
		Days: []testhelpers.ForecastDay{
			{Min: 1000, Max: 2000, Icon: 0},
			{Min: 900, Max: 1800, Icon: 4},
			{Min: -200, Max: 500, Icon: 7},
		},
	}.Bytes()
}

// TestStore_EmptyOnStart verifies both accessors return nothing before any message.
func TestStore_EmptyOnStart(t *testing.T) {
	s, _ := newTestStore(t, parisTimestamp)
	if _, ok := s.CurrentWeather(); ok {
		t.Error("CurrentWeather() ok = true on empty store")
	}
	if _, ok := s.Forecast(); ok {
		t.Error("Forecast() ok = true on empty store")
	}
	if st := s.Status(decoder.KindCurrentWeather); st != StatusAbsent {
		t.Errorf("Status(current) = %v, want absent", st)
	}
}

// TestStore_ParisEndToEnd verifies the reference scenario: fresh an hour later,
// empty 25 hours later.
func TestStore_ParisEndToEnd(t *testing.T) {
	s, clk := newTestStore(t, parisTimestamp+3600)

	res := s.Apply(testhelpers.ParisFrame())
	if !res.Applied || res.Kind != decoder.KindCurrentWeather || res.Reason != nil {
		t.Fatalf("Apply() = %+v, want applied current weather", res)
	}

	got, ok := s.CurrentWeather()
	if !ok {
		t.Fatal("CurrentWeather() ok = false at +3600s, want true")
	}
	if !got.Equal(parisWeather()) {
		t.Errorf("CurrentWeather() = %+v, want %+v", got, parisWeather())
	}

	clk.Set(time.Unix(parisTimestamp+90000, 0))
	if _, ok := s.CurrentWeather(); ok {
		t.Error("CurrentWeather() ok = true at +90000s, want false")
	}
	if st := s.Status(decoder.KindCurrentWeather); st != StatusStale {
		t.Errorf("Status(current) = %v, want stale", st)
	}
}

// TestStore_FreshnessBoundary verifies the strict comparison: exactly 24h old is stale.
func TestStore_FreshnessBoundary(t *testing.T) {
	tests := []struct {
		name      string
		offset    int64
		wantFresh bool
	}{
		{"same second", 0, true},
		{"one second short", 86399, true},
		{"exactly 24h", 86400, false},
		{"one second past", 86401, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestStore(t, parisTimestamp+tc.offset)
			s.Apply(testhelpers.ParisFrame())
			s.Apply(threeDayForecast(parisTimestamp))

			if _, ok := s.CurrentWeather(); ok != tc.wantFresh {
				t.Errorf("CurrentWeather() ok = %v, want %v", ok, tc.wantFresh)
			}
			if _, ok := s.Forecast(); ok != tc.wantFresh {
				t.Errorf("Forecast() ok = %v, want %v", ok, tc.wantFresh)
			}
		})
	}
}

// TestStore_UnknownKindLeavesStateUnchanged verifies ignore outcomes never mutate state,
// whether the store is empty or populated.
func TestStore_UnknownKindLeavesStateUnchanged(t *testing.T) {
	ignored := [][]byte{
		{0x02, 0x00},
		{0xFF, 0x00, 1, 2, 3},
		append([]byte{0x07}, testhelpers.ParisFrame()[1:]...),
	}

	empty, _ := newTestStore(t, parisTimestamp)
	for _, buf := range ignored {
		res := empty.Apply(buf)
		if res.Applied || !errors.Is(res.Reason, decoder.ErrUnknownKind) {
			t.Errorf("Apply(% X) = %+v, want ignored unknown kind", buf[:2], res)
		}
	}
	if _, ok := empty.CurrentWeather(); ok {
		t.Error("empty store gained current weather from unknown kind")
	}
	if _, ok := empty.Forecast(); ok {
		t.Error("empty store gained forecast from unknown kind")
	}

	full, _ := newTestStore(t, parisTimestamp)
	full.Apply(testhelpers.ParisFrame())
	full.Apply(threeDayForecast(parisTimestamp))
	wantF, _ := full.Forecast()
	for _, buf := range ignored {
		full.Apply(buf)
	}
	if got, ok := full.CurrentWeather(); !ok || !got.Equal(parisWeather()) {
		t.Errorf("CurrentWeather() = %+v, %v after unknown kinds, want Paris", got, ok)
	}
	if got, ok := full.Forecast(); !ok || !got.Equal(wantF) {
		t.Errorf("Forecast() = %+v, %v after unknown kinds, want unchanged", got, ok)
	}
}

// TestStore_UnsupportedVersionIsNoop verifies a newer wire version does not replace the record.
func TestStore_UnsupportedVersionIsNoop(t *testing.T) {
	s, _ := newTestStore(t, parisTimestamp)
	s.Apply(testhelpers.ParisFrame())

	newer := testhelpers.CurrentWeatherFrame{Version: 1, Timestamp: parisTimestamp, Location: "Berlin"}.Bytes()
	res := s.Apply(newer)
	if res.Applied || !errors.Is(res.Reason, decoder.ErrUnsupportedVersion) {
		t.Fatalf("Apply(v1) = %+v, want ignored unsupported version", res)
	}
	got, _ := s.CurrentWeather()
	if got.Location.String() != "Paris" {
		t.Errorf("Location = %q, want Paris", got.Location.String())
	}
}

// TestStore_Idempotent verifies applying the same frame twice equals applying it once.
func TestStore_Idempotent(t *testing.T) {
	once, _ := newTestStore(t, parisTimestamp)
	once.Apply(testhelpers.ParisFrame())
	twice, _ := newTestStore(t, parisTimestamp)
	twice.Apply(testhelpers.ParisFrame())
	twice.Apply(testhelpers.ParisFrame())

	a, _ := once.CurrentWeather()
	b, _ := twice.CurrentWeather()
	if !a.Equal(b) {
		t.Errorf("after two applies = %+v, after one = %+v", b, a)
	}
}

// TestStore_OverwriteDiscardsPreviousFields verifies a new record replaces every field.
func TestStore_OverwriteDiscardsPreviousFields(t *testing.T) {
	s, _ := newTestStore(t, parisTimestamp+60)
	s.Apply(testhelpers.CurrentWeatherFrame{
		Timestamp:   parisTimestamp,
		Temperature: 2750,
		Min:         2000,
		Max:         3000,
		Location:    "Saint-Remy-de-Provence",
		Icon:        1,
	}.Bytes())
	s.Apply(testhelpers.CurrentWeatherFrame{
		Timestamp:   parisTimestamp + 30,
		Temperature: -150,
		Min:         -400,
		Max:         10,
		Location:    "Oslo",
		Icon:        7,
	}.Bytes())

	got, ok := s.CurrentWeather()
	if !ok {
		t.Fatal("CurrentWeather() ok = false")
	}
	want := models.CurrentWeather{
		Timestamp:      parisTimestamp + 30,
		Temperature:    -150,
		MinTemperature: -400,
		MaxTemperature: 10,
		Icon:           models.IconSnow,
		Location:       models.NewLocation([]byte("Oslo")),
	}
	if !got.Equal(want) {
		t.Errorf("CurrentWeather() = %+v, want %+v", got, want)
	}
	if got.Location.String() != "Oslo" {
		t.Errorf("Location = %q, want Oslo with no trailing bytes from the previous name", got.Location.String())
	}
}

// TestStore_ForecastReplacedNotMerged verifies a shorter forecast fully replaces a longer one.
func TestStore_ForecastReplacedNotMerged(t *testing.T) {
	s, _ := newTestStore(t, parisTimestamp)
	s.Apply(threeDayForecast(parisTimestamp))
	s.Apply(testhelpers.ForecastFrame{
		Timestamp: parisTimestamp + 1,
		Days:      []testhelpers.ForecastDay{{Min: 1, Max: 2, Icon: 8}},
	}.Bytes())

	f, ok := s.Forecast()
	if !ok {
		t.Fatal("Forecast() ok = false")
	}
	if f.NbDays != 1 || len(f.Populated()) != 1 {
		t.Fatalf("NbDays = %d, want 1", f.NbDays)
	}
	if f.Days[0].Icon != models.IconSmog {
		t.Errorf("Days[0].Icon = %v, want smog", f.Days[0].Icon)
	}
}

// TestStore_ForecastClamped verifies nbDays == min(declared, MaxForecastDays) through Apply.
func TestStore_ForecastClamped(t *testing.T) {
	s, _ := newTestStore(t, parisTimestamp)
	days := make([]testhelpers.ForecastDay, models.MaxForecastDays)
	s.Apply(testhelpers.ForecastFrame{Timestamp: parisTimestamp, DeclaredDays: 200, Days: days}.Bytes())

	f, ok := s.Forecast()
	if !ok {
		t.Fatal("Forecast() ok = false")
	}
	if f.NbDays != models.MaxForecastDays {
		t.Errorf("NbDays = %d, want %d", f.NbDays, models.MaxForecastDays)
	}
}

// TestStore_ReturnsCopies verifies callers cannot mutate the stored record.
func TestStore_ReturnsCopies(t *testing.T) {
	s, _ := newTestStore(t, parisTimestamp)
	s.Apply(testhelpers.ParisFrame())
	s.Apply(threeDayForecast(parisTimestamp))

	cw, _ := s.CurrentWeather()
	cw.Temperature = 0
	cw.Location[0] = 'X'
	f, _ := s.Forecast()
	f.Days[0].MaxTemperature = 0

	again, _ := s.CurrentWeather()
	if again.Temperature != 2750 || again.Location.String() != "Paris" {
		t.Errorf("stored current weather mutated through copy: %+v", again)
	}
	fAgain, _ := s.Forecast()
	if fAgain.Days[0].MaxTemperature != 2000 {
		t.Errorf("stored forecast mutated through copy: %+v", fAgain.Days[0])
	}
}

// TestStore_StaleRecordNotErased verifies a stale record becomes readable again when the
// clock moves back, since staleness is evaluated on every read.
func TestStore_StaleRecordNotErased(t *testing.T) {
	s, clk := newTestStore(t, parisTimestamp)
	s.Apply(testhelpers.ParisFrame())

	clk.Advance(48 * time.Hour)
	if _, ok := s.CurrentWeather(); ok {
		t.Fatal("CurrentWeather() ok = true at +48h")
	}
	clk.Advance(-47 * time.Hour)
	if _, ok := s.CurrentWeather(); !ok {
		t.Error("CurrentWeather() ok = false after clock moved back within window")
	}
}

// TestStore_NewApplyRefreshesStaleRecord verifies Stale -> Fresh only via a newer timestamp.
func TestStore_NewApplyRefreshesStaleRecord(t *testing.T) {
	s, clk := newTestStore(t, parisTimestamp)
	s.Apply(testhelpers.ParisFrame())
	clk.Advance(30 * time.Hour)
	if st := s.Status(decoder.KindCurrentWeather); st != StatusStale {
		t.Fatalf("Status = %v, want stale", st)
	}

	s.Apply(testhelpers.CurrentWeatherFrame{Timestamp: uint64(clk.Now().Unix()), Location: "Paris"}.Bytes())
	if st := s.Status(decoder.KindCurrentWeather); st != StatusFresh {
		t.Errorf("Status = %v, want fresh after new apply", st)
	}
}

// TestStore_FutureTimestampServed verifies a record stamped ahead of the clock is served.
func TestStore_FutureTimestampServed(t *testing.T) {
	s, _ := newTestStore(t, parisTimestamp-7200)
	s.Apply(testhelpers.ParisFrame())
	if _, ok := s.CurrentWeather(); !ok {
		t.Error("CurrentWeather() ok = false for future timestamp, want true")
	}
}

// TestStore_UnrepresentableTimestampIsStale verifies timestamps beyond int64 are never served.
func TestStore_UnrepresentableTimestampIsStale(t *testing.T) {
	s, _ := newTestStore(t, parisTimestamp)
	s.Apply(testhelpers.CurrentWeatherFrame{Timestamp: math.MaxUint64, Location: "Nowhere"}.Bytes())
	if _, ok := s.CurrentWeather(); ok {
		t.Error("CurrentWeather() ok = true for MaxUint64 timestamp, want false")
	}
}

// TestStore_WithFreshnessWindow verifies the window option.
func TestStore_WithFreshnessWindow(t *testing.T) {
	s, clk := newTestStore(t, parisTimestamp, WithFreshnessWindow(time.Hour))
	if s.FreshnessWindow() != time.Hour {
		t.Fatalf("FreshnessWindow() = %v, want 1h", s.FreshnessWindow())
	}
	s.Apply(testhelpers.ParisFrame())
	clk.Advance(59 * time.Minute)
	if _, ok := s.CurrentWeather(); !ok {
		t.Error("CurrentWeather() ok = false at 59m with 1h window")
	}
	clk.Advance(time.Minute)
	if _, ok := s.CurrentWeather(); ok {
		t.Error("CurrentWeather() ok = true at 60m with 1h window")
	}

	def, _ := newTestStore(t, 0, WithFreshnessWindow(-time.Second))
	if def.FreshnessWindow() != DefaultFreshnessWindow {
		t.Errorf("FreshnessWindow() = %v, want default for non-positive option", def.FreshnessWindow())
	}
}

// TestStore_LogsAppliedAndIgnored verifies apply outcomes reach the logger.
func TestStore_LogsAppliedAndIgnored(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s, _ := newTestStore(t, parisTimestamp, WithLogger(zap.New(core)))

	s.Apply(testhelpers.ParisFrame())
	s.Apply([]byte{0x09, 0x00})

	applied := logs.FilterMessage("current weather updated").All()
	if len(applied) != 1 {
		t.Fatalf("applied log entries = %d, want 1", len(applied))
	}
	if loc := applied[0].ContextMap()["location"]; loc != "Paris" {
		t.Errorf("logged location = %v, want Paris", loc)
	}
	ignored := logs.FilterMessage("weather message ignored").All()
	if len(ignored) != 1 {
		t.Fatalf("ignored log entries = %d, want 1", len(ignored))
	}
	if ignored[0].Level != zapcore.DebugLevel {
		t.Errorf("ignored log level = %v, want debug", ignored[0].Level)
	}
}

// TestStore_ConcurrentApplyAndRead verifies readers only ever see one of the complete records
// being written. Run with -race.
func TestStore_ConcurrentApplyAndRead(t *testing.T) {
	s, _ := newTestStore(t, parisTimestamp)
	a := testhelpers.CurrentWeatherFrame{Timestamp: parisTimestamp, Temperature: 100, Min: 100, Max: 100, Location: "Alpha", Icon: 0}.Bytes()
	b := testhelpers.CurrentWeatherFrame{Timestamp: parisTimestamp, Temperature: -100, Min: -100, Max: -100, Location: "Bravo", Icon: 7}.Bytes()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				if (i+j)%2 == 0 {
					s.Apply(a)
				} else {
					s.Apply(b)
				}
			}
		}(i)
	}
	errs := make(chan string, 8)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				cw, ok := s.CurrentWeather()
				if !ok {
					continue
				}
				switch cw.Location.String() {
				case "Alpha":
					if cw.Temperature != 100 || cw.MinTemperature != 100 || cw.Icon != models.IconSun {
						errs <- "torn Alpha record"
						return
					}
				case "Bravo":
					if cw.Temperature != -100 || cw.MaxTemperature != -100 || cw.Icon != models.IconSnow {
						errs <- "torn Bravo record"
						return
					}
				default:
					errs <- "unexpected location " + cw.Location.String()
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

// TestStore_StatusAgreesWithReads verifies Status and the read path make the same decision.
func TestStore_StatusAgreesWithReads(t *testing.T) {
	s, clk := newTestStore(t, parisTimestamp, WithFreshnessWindow(1500*time.Millisecond))
	if got := s.Status(decoder.KindCurrentWeather); got != StatusAbsent {
		t.Fatalf("Status() = %v before apply, want absent", got)
	}
	s.Apply(testhelpers.ParisFrame())
	for _, offset := range []int64{-10, 0, 1, 2, 86400} {
		clk.Set(time.Unix(parisTimestamp+offset, 0))
		_, ok := s.CurrentWeather()
		st := s.Status(decoder.KindCurrentWeather)
		if ok != (st == StatusFresh) {
			t.Errorf("offset %ds: CurrentWeather() ok = %v but Status() = %v", offset, ok, st)
		}
		if !ok && st != StatusStale {
			t.Errorf("offset %ds: Status() = %v, want stale", offset, st)
		}
	}
}

// TestFreshness_Fresh verifies the policy in isolation.
func TestFreshness_Fresh(t *testing.T) {
	f := Freshness{Window: DefaultFreshnessWindow}
	now := time.Unix(parisTimestamp, 0)
	tests := []struct {
		name string
		ts   uint64
		want bool
	}{
		{"now", parisTimestamp, true},
		{"23h59m59s ago", parisTimestamp - 86399, true},
		{"24h ago", parisTimestamp - 86400, false},
		{"epoch", 0, false},
		{"one day ahead", parisTimestamp + 86400, true},
		{"beyond int64", math.MaxInt64 + 1, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := f.Fresh(now, tc.ts); got != tc.want {
				t.Errorf("Fresh(%d) = %v, want %v", tc.ts, got, tc.want)
			}
		})
	}
}

// TestFreshness_SubSecondWindow verifies a fractional window is not truncated to whole seconds.
func TestFreshness_SubSecondWindow(t *testing.T) {
	f := Freshness{Window: 1500 * time.Millisecond}
	now := time.Unix(parisTimestamp, 0)
	tests := []struct {
		name string
		ts   uint64
		want bool
	}{
		{"0s old", parisTimestamp, true},
		{"1s old", parisTimestamp - 1, true},
		{"2s old", parisTimestamp - 2, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := f.Fresh(now, tc.ts); got != tc.want {
				t.Errorf("Fresh(%d) with 1.5s window = %v, want %v", tc.ts, got, tc.want)
			}
		})
	}
}

// TestFreshness_AgeBeyondDurationRange verifies ages too large for time.Duration are stale.
func TestFreshness_AgeBeyondDurationRange(t *testing.T) {
	f := Freshness{Window: time.Duration(math.MaxInt64)}
	if f.Fresh(time.Unix(1<<40, 0), 0) {
		t.Error("Fresh() = true for an age beyond the time.Duration range")
	}
	if !f.Fresh(time.Unix(parisTimestamp, 0), math.MaxInt64) {
		t.Error("Fresh() = false for a far-future timestamp, want true")
	}
}

func TestAge(t *testing.T) {
	now := time.Unix(100, 0)
	if age, ok := Age(now, 40); !ok || age != 60 {
		t.Errorf("Age(100, 40) = %d, %v, want 60, true", age, ok)
	}
	if age, ok := Age(now, 160); !ok || age != -60 {
		t.Errorf("Age(100, 160) = %d, %v, want -60, true", age, ok)
	}
	if _, ok := Age(now, math.MaxUint64); ok {
		t.Error("Age(MaxUint64) ok = true, want false")
	}
}

func TestStatus_String(t *testing.T) {
	for st, want := range map[Status]string{StatusAbsent: "absent", StatusFresh: "fresh", StatusStale: "stale"} {
		if got := st.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", st, got, want)
		}
	}
}
