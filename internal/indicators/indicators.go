// Package indicators computes technical indicators over an ascending price series.
// Every function is pure; too-short input yields ErrInsufficientData rather than a
// numeric placeholder.
package indicators

import (
	"errors"
	"fmt"
	"slices"

	"github.com/markcheno/go-talib"
)

// ErrInsufficientData is returned when the series is too short for the indicator.
var ErrInsufficientData = errors.New("insufficient data")

const (
	// DefaultRSIPeriod is the classic 14-sample RSI window.
	DefaultRSIPeriod = 14
	// DayWindow is the number of trailing samples treated as "24h".
	DayWindow = 24
)

// SMA returns the arithmetic mean of the last period values.
func SMA(series []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("sma period must be positive, got %d", period)
	}
	if len(series) < period {
		return 0, fmt.Errorf("sma(%d) over %d samples: %w", period, len(series), ErrInsufficientData)
	}
	out := talib.Sma(series[len(series)-period:], period)
	return out[len(out)-1], nil
}

// RSI returns the relative strength index over the last period deltas, using plain
// sums of gains and losses. A flat window yields exactly 50.
func RSI(series []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("rsi period must be positive, got %d", period)
	}
	if len(series) < period+1 {
		return 0, fmt.Errorf("rsi(%d) over %d samples: %w", period, len(series), ErrInsufficientData)
	}

	var gains, losses float64
	for i := len(series) - period; i < len(series); i++ {
		diff := series[i] - series[i-1]
		if diff > 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}

	if gains+losses == 0 {
		return 50, nil
	}
	if losses == 0 {
		return 100, nil
	}
	rs := gains / losses
	rsi := 100 - 100/(1+rs)
	// Guard against rounding just outside the band.
	return min(max(rsi, 0), 100), nil
}

// RangeStats summarises the trailing day and the full history.
type RangeStats struct {
	Last   float64
	Min24h float64
	Max24h float64
	MinAll float64
	MaxAll float64
}

// Range computes min/max over the trailing DayWindow samples (fewer when the series
// is shorter) and over the full series.
func Range(series []float64) (RangeStats, error) {
	if len(series) == 0 {
		return RangeStats{}, fmt.Errorf("range over empty series: %w", ErrInsufficientData)
	}
	day := series[max(0, len(series)-DayWindow):]
	return RangeStats{
		Last:   series[len(series)-1],
		Min24h: slices.Min(day),
		Max24h: slices.Max(day),
		MinAll: slices.Min(series),
		MaxAll: slices.Max(series),
	}, nil
}

// Variation24h returns the percentage change between the sample DayWindow positions
// back and the last sample.
func Variation24h(series []float64) (float64, error) {
	if len(series) < DayWindow {
		return 0, fmt.Errorf("24h variation over %d samples: %w", len(series), ErrInsufficientData)
	}
	base := series[len(series)-DayWindow]
	if base == 0 {
		return 0, fmt.Errorf("24h variation from a zero price: %w", ErrInsufficientData)
	}
	last := series[len(series)-1]
	return (last - base) / base * 100, nil
}
