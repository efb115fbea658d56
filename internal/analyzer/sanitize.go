package analyzer

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// finite maps NaN and ±Inf to 0.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// round sanitises v and rounds it half away from zero to places decimals.
func round(v float64, places int) float64 {
	v = finite(v)
	p := math.Pow(10, float64(places))
	return finite(math.Round(v*p) / p)
}

func round2(v float64) float64 { return round(v, 2) }

// mean is the arithmetic mean; 0 for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return finite(stat.Mean(xs, nil))
}

// stdDev is the sample standard deviation (n−1). Fewer than two samples
// have no defined deviation and report 0.
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return finite(stat.StdDev(xs, nil))
}

func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return finite(stat.Variance(xs, nil))
}

func sortedCopy(xs []float64) []float64 {
	s := make([]float64, len(xs))
	copy(s, xs)
	sort.Float64s(s)
	return s
}

// quantile returns the p-quantile of xs with linear interpolation between
// closest ranks (position (n−1)·p).
func quantile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := sortedCopy(xs)
	h := float64(len(s)-1) * p
	lo := int(math.Floor(h))
	if lo >= len(s)-1 {
		return s[len(s)-1]
	}
	return s[lo] + (h-float64(lo))*(s[lo+1]-s[lo])
}

func median(xs []float64) float64 { return quantile(xs, 0.5) }

func minutes(seconds float64) float64 { return seconds / 60 }

func scaleAll(xs []float64, f float64) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[i] = v * f
	}
	return out
}
