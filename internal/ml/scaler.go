// Package ml implements the small, seeded numerical models the analyzer
// composes: feature scaling, k-means clustering, linear and logistic
// regression, and a random-forest classifier.
//
// Every randomised routine takes an explicit seed so repeated calls on the
// same input return the same result.
package ml

import (
	"errors"
	"math"
	"math/rand/v2"
)

// ErrEmptyInput is returned when a model is fitted on zero samples.
var ErrEmptyInput = errors.New("ml: empty input")

// ErrShape is returned when rows have inconsistent widths or labels do not
// match the sample count.
var ErrShape = errors.New("ml: inconsistent input shape")

// Scaler standardises features to zero mean and unit variance. Features with
// zero variance keep a scale of 1 so they map to 0 instead of NaN.
type Scaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler computes per-column mean and population standard deviation.
func FitScaler(X [][]float64) (*Scaler, error) {
	p, err := width(X)
	if err != nil {
		return nil, err
	}
	n := float64(len(X))
	s := &Scaler{Mean: make([]float64, p), Scale: make([]float64, p)}
	for _, row := range X {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}
	for _, row := range X {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Scale[j] += d * d
		}
	}
	for j := range s.Scale {
		sd := math.Sqrt(s.Scale[j] / n)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		s.Scale[j] = sd
	}
	return s, nil
}

// Transform returns a standardised copy of X.
func (s *Scaler) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = r
	}
	return out
}

// Inverse maps a standardised row back to original units.
func (s *Scaler) Inverse(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v*s.Scale[j] + s.Mean[j]
	}
	return out
}

// width validates X and returns its column count.
func width(X [][]float64) (int, error) {
	if len(X) == 0 {
		return 0, ErrEmptyInput
	}
	p := len(X[0])
	if p == 0 {
		return 0, ErrShape
	}
	for _, row := range X[1:] {
		if len(row) != p {
			return 0, ErrShape
		}
	}
	return p, nil
}

// newRand returns the package's deterministic generator for seed.
func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func sqDist(a, b []float64) float64 {
	var d float64
	for j := range a {
		x := a[j] - b[j]
		d += x * x
	}
	return d
}
