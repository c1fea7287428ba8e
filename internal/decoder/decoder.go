package decoder

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kjstillabower/simple-weather-service/internal/models"
)

// Kind is the message kind carried in the first byte of a frame.
type Kind uint8

const (
	KindCurrentWeather Kind = iota
	KindForecast
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindCurrentWeather:
		return "current_weather"
	case KindForecast:
		return "forecast"
	default:
		return "unknown"
	}
}

// Version0 is the only wire layout currently understood.
const Version0 = 0

// Frame layout, little-endian. Offsets are from the start of the buffer.
const (
	offKind    = 0
	offVersion = 1
	HeaderSize = 2

	offTimestamp = 2

	offTemperature     = 10
	offMinTemperature  = 12
	offMaxTemperature  = 14
	offLocation        = 16
	offIcon            = offLocation + models.LocationSize
	CurrentWeatherSize = offIcon + 1

	offDayCount  = 10
	offDays      = 11
	daySize      = 5
	offDayMin    = 0
	offDayMax    = 2
	offDayIcon   = 4
	ForecastSize = offDays + daySize*models.MaxForecastDays
)

var (
	// ErrUnknownKind is returned when the kind byte is not a known message kind.
	ErrUnknownKind = errors.New("unknown message kind")

	// ErrUnsupportedVersion is returned when the version byte is not understood.
	ErrUnsupportedVersion = errors.New("unsupported message version")

	// ErrTruncated is returned when the buffer is shorter than its declared layout.
	ErrTruncated = errors.New("message truncated")
)

// IsIgnored reports whether err is an outcome that discards the message without changing state.
func IsIgnored(err error) bool {
	return errors.Is(err, ErrUnknownKind) ||
		errors.Is(err, ErrUnsupportedVersion) ||
		errors.Is(err, ErrTruncated)
}

// Message is the result of a successful decode. Exactly one of Current and Forecast is set.
type Message struct {
	Kind     Kind
	Version  uint8
	Current  *models.CurrentWeather
	Forecast *models.Forecast
}

// Decode parses buf into a typed record. buf is untrusted: every read is checked against
// len(buf) and the forecast day count is clamped to models.MaxForecastDays.
// On an ignore outcome the returned Message carries whatever header fields were readable.
func Decode(buf []byte) (Message, error) {
	if len(buf) < HeaderSize {
		return Message{Kind: KindUnknown}, fmt.Errorf("%w: %d bytes, header needs %d", ErrTruncated, len(buf), HeaderSize)
	}
	msg := Message{Kind: kindFromByte(buf[offKind]), Version: buf[offVersion]}
	if msg.Kind == KindUnknown {
		return msg, fmt.Errorf("%w: 0x%02X", ErrUnknownKind, buf[offKind])
	}
	if msg.Version != Version0 {
		return msg, fmt.Errorf("%w: %s v%d", ErrUnsupportedVersion, msg.Kind, msg.Version)
	}

	switch msg.Kind {
	case KindCurrentWeather:
		cw, err := decodeCurrentWeather(buf)
		if err != nil {
			return msg, err
		}
		msg.Current = &cw
	case KindForecast:
		f, err := decodeForecast(buf)
		if err != nil {
			return msg, err
		}
		msg.Forecast = &f
	}
	return msg, nil
}

func kindFromByte(b byte) Kind {
	if Kind(b) >= KindUnknown {
		return KindUnknown
	}
	return Kind(b)
}

func decodeCurrentWeather(buf []byte) (models.CurrentWeather, error) {
	if len(buf) < CurrentWeatherSize {
		return models.CurrentWeather{}, fmt.Errorf("%w: current weather is %d bytes, need %d", ErrTruncated, len(buf), CurrentWeatherSize)
	}
	return models.CurrentWeather{
		Timestamp:      binary.LittleEndian.Uint64(buf[offTimestamp : offTimestamp+8]),
		Temperature:    readInt16(buf, offTemperature),
		MinTemperature: readInt16(buf, offMinTemperature),
		MaxTemperature: readInt16(buf, offMaxTemperature),
		Location:       models.NewLocation(buf[offLocation : offLocation+models.LocationSize]),
		Icon:           models.IconFromByte(buf[offIcon]),
	}, nil
}

func decodeForecast(buf []byte) (models.Forecast, error) {
	if len(buf) < offDays {
		return models.Forecast{}, fmt.Errorf("%w: forecast header is %d bytes, need %d", ErrTruncated, len(buf), offDays)
	}
	nbDays := buf[offDayCount]
	if nbDays > models.MaxForecastDays {
		nbDays = models.MaxForecastDays
	}
	need := offDays + daySize*int(nbDays)
	if len(buf) < need {
		return models.Forecast{}, fmt.Errorf("%w: forecast with %d days is %d bytes, need %d", ErrTruncated, nbDays, len(buf), need)
	}

	f := models.Forecast{
		Timestamp: binary.LittleEndian.Uint64(buf[offTimestamp : offTimestamp+8]),
		NbDays:    nbDays,
	}
	for i := 0; i < int(nbDays); i++ {
		base := offDays + daySize*i
		f.Days[i] = models.Day{
			MinTemperature: readInt16(buf, base+offDayMin),
			MaxTemperature: readInt16(buf, base+offDayMax),
			Icon:           models.IconFromByte(buf[base+offDayIcon]),
		}
	}
	return f, nil
}

// readInt16 reads a little-endian uint16 at off and reinterprets it as two's complement.
func readInt16(buf []byte, off int) int16 {
	return int16(binary.LittleEndian.Uint16(buf[off : off+2]))
}
