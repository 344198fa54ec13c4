package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateEMA calculates the Exponential Moving Average
//
// EMA Formula:
//
//	EMA_today = (Value_today × multiplier) + (EMA_yesterday × (1 - multiplier))
//	where multiplier = 2 / (period + 1)
//
// Falls back to the mean of the series when there are fewer points than length.
// Returns nil for an empty series.
func CalculateEMA(values []float64, length int) *float64 {
	if len(values) == 0 || length <= 0 {
		return nil
	}

	if length == 1 {
		last := values[len(values)-1]
		return &last
	}
	if len(values) < length {
		sma := Mean(values)
		return &sma
	}

	ema := talib.Ema(values, length)
	if len(ema) > 0 && !isNaN(ema[len(ema)-1]) {
		result := ema[len(ema)-1]
		return &result
	}

	sma := Mean(values[len(values)-length:])
	return &sma
}

// Lag drops the most recent periods values so that the series ends periods steps in the past.
// Returns nil when the lag consumes the whole series.
func Lag(values []float64, periods int) []float64 {
	if periods <= 0 {
		return values
	}
	if periods >= len(values) {
		return nil
	}
	return values[:len(values)-periods]
}
