package testhelpers

import (
	"encoding/binary"

	"github.com/kjstillabower/simple-weather-service/internal/models"
)

// Wire kind bytes used by the companion app.
const (
	KindCurrentWeather byte = 0
	KindForecast       byte = 1
)

// CurrentWeatherFrame holds the fields of a version-0 current weather frame.
type CurrentWeatherFrame struct {
	Version     byte
	Timestamp   uint64
	Temperature int16
	Min         int16
	Max         int16
	Location    string
	Icon        byte
}

// Bytes encodes the frame the way the companion app does. Location is truncated to 32 bytes.
func (f CurrentWeatherFrame) Bytes() []byte {
	buf := make([]byte, 49)
	buf[0] = KindCurrentWeather
	buf[1] = f.Version
	binary.LittleEndian.PutUint64(buf[2:10], f.Timestamp)
	binary.LittleEndian.PutUint16(buf[10:12], uint16(f.Temperature))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(f.Min))
	binary.LittleEndian.PutUint16(buf[14:16], uint16(f.Max))
	copy(buf[16:16+models.LocationSize], f.Location)
	buf[48] = f.Icon
	return buf
}

// ForecastDay is one encoded forecast day.
type ForecastDay struct {
	Min  int16
	Max  int16
	Icon byte
}

// ForecastFrame holds the fields of a version-0 forecast frame.
// DeclaredDays is written to the day-count byte; when zero, len(Days) is used.
type ForecastFrame struct {
	Version      byte
	Timestamp    uint64
	DeclaredDays byte
	Days         []ForecastDay
}

// Bytes encodes the frame with every entry of Days, regardless of the declared count.
func (f ForecastFrame) Bytes() []byte {
	buf := make([]byte, 11+5*len(f.Days))
	buf[0] = KindForecast
	buf[1] = f.Version
	binary.LittleEndian.PutUint64(buf[2:10], f.Timestamp)
	buf[10] = f.DeclaredDays
	if buf[10] == 0 {
		buf[10] = byte(len(f.Days))
	}
	for i, d := range f.Days {
		base := 11 + 5*i
		binary.LittleEndian.PutUint16(buf[base:base+2], uint16(d.Min))
		binary.LittleEndian.PutUint16(buf[base+2:base+4], uint16(d.Max))
		buf[base+4] = d.Icon
	}
	return buf
}

// ParisFrame is the reference current weather frame: 27.50 degrees in Paris at 1700000000.
func ParisFrame() []byte {
	return CurrentWeatherFrame{
		Timestamp:   1700000000,
		Temperature: 2750,
		Min:         2000,
		Max:         3000,
		Location:    "Paris",
		Icon:        1,
	}.Bytes()
}
