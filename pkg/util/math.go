package util

import "math"

// RoundHalfUp rounds to the nearest integer with ties toward +Inf,
// so -2.5 becomes -2 where math.Round would give -3.
func RoundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

// RoundTo rounds half-up to the given number of decimal places.
func RoundTo(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return RoundHalfUp(x*p) / p
}

func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Finite reports whether x is neither NaN nor ±Inf.
func Finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
