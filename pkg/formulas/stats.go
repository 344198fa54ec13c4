// Package formulas provides series math used by indicator plugins.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// ZScore returns how many standard deviations x lies from the mean of data.
// Returns 0 when the series has no dispersion.
func ZScore(x float64, data []float64) float64 {
	mean, std := stat.MeanStdDev(data, nil)
	if len(data) < 2 || std == 0 || math.IsNaN(std) {
		return 0
	}
	return (x - mean) / std
}

// MinMaxScale maps x into [0,1] relative to the range of data.
// Returns 0 when the series is flat.
func MinMaxScale(x float64, data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	lo, hi := floats.Min(data), floats.Max(data)
	if hi == lo {
		return 0
	}
	return (x - lo) / (hi - lo)
}

func isNaN(f float64) bool {
	return f != f
}
