package cointegration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when a regression or moment matrix cannot be
// factorized.
var ErrSingular = errors.New("singular matrix")

// ErrTooShort is returned when a series has too few observations for the
// requested test.
var ErrTooShort = errors.New("series too short")

type olsFit struct {
	coef   []float64
	stderr []float64
	resid  []float64
}

// ols fits y = X b by least squares through the normal equations and
// returns coefficients, their standard errors and the residuals.
func ols(x *mat.Dense, y []float64) (olsFit, error) {
	n, k := x.Dims()
	if n != len(y) {
		return olsFit{}, fmt.Errorf("ols: %d rows but %d observations", n, len(y))
	}
	if n <= k {
		return olsFit{}, fmt.Errorf("ols: %w (%d observations, %d regressors)", ErrTooShort, n, k)
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return olsFit{}, fmt.Errorf("ols: %w", ErrSingular)
	}

	yv := mat.NewVecDense(n, y)
	var xty mat.VecDense
	xty.MulVec(x.T(), yv)

	var b mat.VecDense
	if err := chol.SolveVecTo(&b, &xty); err != nil {
		return olsFit{}, fmt.Errorf("ols: %w", err)
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &b)
	resid := make([]float64, n)
	rss := 0.0
	for i := 0; i < n; i++ {
		resid[i] = y[i] - fitted.AtVec(i)
		rss += resid[i] * resid[i]
	}
	sigma2 := rss / float64(n-k)

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return olsFit{}, fmt.Errorf("ols: %w", err)
	}

	fit := olsFit{
		coef:   make([]float64, k),
		stderr: make([]float64, k),
		resid:  resid,
	}
	for j := 0; j < k; j++ {
		fit.coef[j] = b.AtVec(j)
		fit.stderr[j] = math.Sqrt(sigma2 * inv.At(j, j))
	}
	return fit, nil
}

// residuals returns Y - Z (ZᵀZ)⁻¹ ZᵀY for every column of Y.
func residuals(y, z *mat.Dense) (*mat.Dense, error) {
	var ztz mat.SymDense
	ztz.SymOuterK(1, z.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&ztz); !ok {
		return nil, ErrSingular
	}
	var zty mat.Dense
	zty.Mul(z.T(), y)
	var coef mat.Dense
	if err := chol.SolveTo(&coef, &zty); err != nil {
		return nil, err
	}
	var fitted mat.Dense
	fitted.Mul(z, &coef)
	var resid mat.Dense
	resid.Sub(y, &fitted)
	return &resid, nil
}

// HalfLife estimates the mean-reversion half-life of spread (in
// observations) from the AR(1) fit Δs_t = c + θ·s_{t−1}. A non-negative θ
// means the series does not revert and yields +Inf.
func HalfLife(spread []float64) (float64, error) {
	if len(spread) < 3 {
		return 0, fmt.Errorf("half-life: %w", ErrTooShort)
	}
	n := len(spread) - 1
	x := mat.NewDense(n, 2, nil)
	dy := make([]float64, n)
	for t := 0; t < n; t++ {
		x.Set(t, 0, 1)
		x.Set(t, 1, spread[t])
		dy[t] = spread[t+1] - spread[t]
	}
	fit, err := ols(x, dy)
	if err != nil {
		return 0, fmt.Errorf("half-life: %w", err)
	}
	theta := fit.coef[1]
	if theta >= 0 || math.IsNaN(theta) {
		return math.Inf(1), nil
	}
	return -math.Ln2 / theta, nil
}

// Spread returns a − β·b element-wise.
func Spread(a, b []float64, beta float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - beta*b[i]
	}
	return out
}
