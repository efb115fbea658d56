package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when a design matrix has no usable rank.
var ErrSingular = errors.New("ml: singular design matrix")

// LinearModel is an ordinary least squares fit y = Intercept + Coef·x.
type LinearModel struct {
	Intercept float64
	Coef      []float64
	R2        float64
}

// FitOLS solves the least squares problem with an intercept column using a
// thin SVD, which also handles rank-deficient designs (minimum-norm fit).
func FitOLS(X [][]float64, y []float64) (LinearModel, error) {
	p, err := width(X)
	if err != nil {
		return LinearModel{}, err
	}
	n := len(X)
	if len(y) != n {
		return LinearModel{}, ErrShape
	}

	design := mat.NewDense(n, p+1, nil)
	for i, row := range X {
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(design, mat.SVDThin) {
		return LinearModel{}, fmt.Errorf("%w: svd did not converge", ErrSingular)
	}
	rank := svd.Rank(1e-12)
	if rank == 0 {
		return LinearModel{}, ErrSingular
	}

	var beta mat.VecDense
	svd.SolveVecTo(&beta, mat.NewVecDense(n, y), rank)

	m := LinearModel{Intercept: beta.AtVec(0), Coef: make([]float64, p)}
	for j := range m.Coef {
		m.Coef[j] = beta.AtVec(j + 1)
	}
	m.R2 = m.score(X, y)
	return m, nil
}

// Predict evaluates the model at x.
func (m LinearModel) Predict(x []float64) float64 {
	v := m.Intercept
	for j, c := range m.Coef {
		v += c * x[j]
	}
	return v
}

// score is the coefficient of determination on (X, y). A constant target
// scores 1 when predicted exactly and 0 otherwise.
func (m LinearModel) score(X [][]float64, y []float64) float64 {
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	var ssRes, ssTot float64
	for i, row := range X {
		r := y[i] - m.Predict(row)
		ssRes += r * r
		d := y[i] - mean
		ssTot += d * d
	}
	if ssTot == 0 {
		if ssRes < 1e-18 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// LogisticConfig controls a logistic regression fit.
type LogisticConfig struct {
	C       float64 // inverse L2 strength; the intercept is not penalised
	MaxIter int
	Tol     float64
}

// LogisticModel is a binary logistic classifier over already-scaled features.
type LogisticModel struct {
	Intercept float64
	Coef      []float64
}

// FitLogistic fits L2-regularised logistic regression by Newton's method
// (iteratively reweighted least squares). Labels must be 0 or 1.
func FitLogistic(X [][]float64, y []int, cfg LogisticConfig) (LogisticModel, error) {
	p, err := width(X)
	if err != nil {
		return LogisticModel{}, err
	}
	if len(y) != len(X) {
		return LogisticModel{}, ErrShape
	}
	if cfg.C <= 0 {
		cfg.C = 1
	}
	if cfg.MaxIter < 1 {
		cfg.MaxIter = 100
	}
	if cfg.Tol <= 0 {
		cfg.Tol = 1e-8
	}
	lambda := 1 / cfg.C
	d := p + 1

	w := make([]float64, d) // w[0] is the intercept
	grad := mat.NewVecDense(d, nil)
	hess := mat.NewDense(d, d, nil)
	xi := make([]float64, d)
	xi[0] = 1

	for iter := 0; iter < cfg.MaxIter; iter++ {
		grad.Zero()
		hess.Zero()
		for i, row := range X {
			copy(xi[1:], row)
			z := 0.0
			for j, v := range xi {
				z += w[j] * v
			}
			prob := sigmoid(z)
			r := prob - float64(y[i])
			s := prob * (1 - prob)
			for a := 0; a < d; a++ {
				grad.SetVec(a, grad.AtVec(a)+r*xi[a])
				for b := 0; b < d; b++ {
					hess.Set(a, b, hess.At(a, b)+s*xi[a]*xi[b])
				}
			}
		}
		for a := 1; a < d; a++ {
			grad.SetVec(a, grad.AtVec(a)+lambda*w[a])
			hess.Set(a, a, hess.At(a, a)+lambda)
		}
		// Keeps the system solvable when one class is absent.
		hess.Set(0, 0, hess.At(0, 0)+1e-10)

		var step mat.VecDense
		if err := step.SolveVec(hess, grad); err != nil {
			return LogisticModel{}, fmt.Errorf("newton step: %w", err)
		}
		var maxStep float64
		for a := 0; a < d; a++ {
			delta := step.AtVec(a)
			w[a] -= delta
			maxStep = math.Max(maxStep, math.Abs(delta))
		}
		if maxStep < cfg.Tol {
			break
		}
	}

	return LogisticModel{Intercept: w[0], Coef: w[1:]}, nil
}

// Probability returns P(y=1 | x).
func (m LogisticModel) Probability(x []float64) float64 {
	z := m.Intercept
	for j, c := range m.Coef {
		z += c * x[j]
	}
	return sigmoid(z)
}

// Predict returns 1 when the decision function is positive.
func (m LogisticModel) Predict(x []float64) int {
	if m.Probability(x) > 0.5 {
		return 1
	}
	return 0
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
