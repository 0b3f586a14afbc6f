package cointegration

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MacKinnon (1994/2010) response-surface coefficients for a regression with
// a constant and a single series.
const (
	adfTauMax  = 2.74
	adfTauMin  = -18.83
	adfTauStar = -1.61
)

var (
	adfSmallP = []float64{2.1659, 1.4412, 0.038269}
	adfLargeP = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)

// ADFResult is the outcome of an augmented Dickey-Fuller test.
type ADFResult struct {
	Stat   float64
	PValue float64
	Lags   int
	NObs   int
}

// ADF runs the augmented Dickey-Fuller test with a constant and one lagged
// difference: Δy_t = α + γ·y_{t−1} + φ·Δy_{t−1}. The statistic is the
// t-ratio of γ.
func ADF(y []float64) (ADFResult, error) {
	const lags = 1
	n := len(y)
	// Rows start at t = lags+1 so that Δy_{t−1} exists.
	rows := n - lags - 1
	if rows <= 3 {
		return ADFResult{}, fmt.Errorf("adf: %w (%d observations)", ErrTooShort, n)
	}

	x := mat.NewDense(rows, 3, nil)
	dy := make([]float64, rows)
	for i := 0; i < rows; i++ {
		t := i + lags + 1
		dy[i] = y[t] - y[t-1]
		x.Set(i, 0, 1)
		x.Set(i, 1, y[t-1])
		x.Set(i, 2, y[t-1]-y[t-2])
	}

	fit, err := ols(x, dy)
	if err != nil {
		return ADFResult{}, fmt.Errorf("adf: %w", err)
	}
	if fit.stderr[1] == 0 {
		return ADFResult{}, fmt.Errorf("adf: %w: zero standard error", ErrSingular)
	}
	stat := fit.coef[1] / fit.stderr[1]
	return ADFResult{
		Stat:   stat,
		PValue: MacKinnonP(stat),
		Lags:   lags,
		NObs:   rows,
	}, nil
}

// MacKinnonP returns the approximate asymptotic p-value of an ADF
// statistic for the constant-only case.
func MacKinnonP(stat float64) float64 {
	switch {
	case stat > adfTauMax:
		return 1
	case stat < adfTauMin:
		return 0
	}
	coef := adfLargeP
	if stat <= adfTauStar {
		coef = adfSmallP
	}
	// Horner evaluation of c0 + c1·x + c2·x² + ...
	v := 0.0
	for i := len(coef) - 1; i >= 0; i-- {
		v = v*stat + coef[i]
	}
	return distuv.UnitNormal.CDF(v)
}
