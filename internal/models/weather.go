package models

import (
	"bytes"
	"encoding/json"
)

// MaxForecastDays is the number of forecast days the device can hold.
const MaxForecastDays = 5

// LocationSize is the wire capacity of a location name.
const LocationSize = 32

// Icon identifies a weather condition glyph.
type Icon uint8

const (
	IconSun Icon = iota
	IconCloudsSun
	IconClouds
	IconBrokenClouds
	IconCloudShowerHeavy
	IconCloudSunRain
	IconThunderstorm
	IconSnow
	IconSmog
	IconUnknown Icon = 255
)

var iconNames = map[Icon]string{
	IconSun:              "sun",
	IconCloudsSun:        "clouds_sun",
	IconClouds:           "clouds",
	IconBrokenClouds:     "broken_clouds",
	IconCloudShowerHeavy: "cloud_shower_heavy",
	IconCloudSunRain:     "cloud_sun_rain",
	IconThunderstorm:     "thunderstorm",
	IconSnow:             "snow",
	IconSmog:             "smog",
	IconUnknown:          "unknown",
}

// IconFromByte maps a raw wire byte to an Icon. Values outside the known set map to IconUnknown.
func IconFromByte(b byte) Icon {
	if Icon(b) > IconSmog {
		return IconUnknown
	}
	return Icon(b)
}

func (i Icon) String() string {
	if name, ok := iconNames[i]; ok {
		return name
	}
	return iconNames[IconUnknown]
}

// MarshalJSON encodes the icon as its numeric id and name.
func (i Icon) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID   uint8  `json:"id"`
		Name string `json:"name"`
	}{uint8(i), i.String()})
}

// Location is a fixed-capacity location name. Index LocationSize always holds a terminator.
type Location [LocationSize + 1]byte

// NewLocation copies at most LocationSize bytes of raw and terminates the result.
func NewLocation(raw []byte) Location {
	var l Location
	copy(l[:LocationSize], raw)
	l[LocationSize] = 0
	return l
}

// String returns the bytes before the first terminator.
func (l Location) String() string {
	if i := bytes.IndexByte(l[:], 0); i >= 0 {
		return string(l[:i])
	}
	return string(l[:LocationSize])
}

// Equal compares terminated strings; bytes after the terminator are ignored.
func (l Location) Equal(other Location) bool {
	return l.String() == other.String()
}

func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// CurrentWeather is a decoded current weather record. Temperatures are hundredths of a degree.
type CurrentWeather struct {
	Timestamp      uint64   `json:"timestamp"`
	Temperature    int16    `json:"temperature"`
	MinTemperature int16    `json:"minTemperature"`
	MaxTemperature int16    `json:"maxTemperature"`
	Icon           Icon     `json:"icon"`
	Location       Location `json:"location"`
}

// Equal reports field-wise equality.
func (c CurrentWeather) Equal(other CurrentWeather) bool {
	return c.Timestamp == other.Timestamp &&
		c.Temperature == other.Temperature &&
		c.MinTemperature == other.MinTemperature &&
		c.MaxTemperature == other.MaxTemperature &&
		c.Icon == other.Icon &&
		c.Location.Equal(other.Location)
}

// Day is one forecast day.
type Day struct {
	MinTemperature int16 `json:"minTemperature"`
	MaxTemperature int16 `json:"maxTemperature"`
	Icon           Icon  `json:"icon"`
}

func (d Day) Equal(other Day) bool {
	return d.MinTemperature == other.MinTemperature &&
		d.MaxTemperature == other.MaxTemperature &&
		d.Icon == other.Icon
}

// Forecast is a decoded multi-day forecast. Only Days[:NbDays] are meaningful.
type Forecast struct {
	Timestamp uint64
	NbDays    uint8
	Days      [MaxForecastDays]Day
}

// Populated returns a copy of the meaningful days.
func (f Forecast) Populated() []Day {
	n := int(f.NbDays)
	if n > MaxForecastDays {
		n = MaxForecastDays
	}
	out := make([]Day, n)
	copy(out, f.Days[:n])
	return out
}

// Equal requires matching timestamps and day counts before comparing populated days.
func (f Forecast) Equal(other Forecast) bool {
	if f.Timestamp != other.Timestamp || f.NbDays != other.NbDays {
		return false
	}
	a, b := f.Populated(), other.Populated()
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes only the populated days.
func (f Forecast) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Timestamp uint64 `json:"timestamp"`
		NbDays    uint8  `json:"nbDays"`
		Days      []Day  `json:"days"`
	}{f.Timestamp, f.NbDays, f.Populated()})
}
