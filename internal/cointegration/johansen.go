package cointegration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Trace critical values (90%, 95%, 99%) for a model with an unrestricted
// constant, indexed by the number of common trends n-r (1 or 2).
var traceCritical = [][3]float64{
	{2.7055, 3.8415, 6.6349},
	{13.4294, 15.4943, 19.9349},
}

// ErrDegenerate is returned when the eigen problem produces values outside
// the valid [0, 1) range or an unusable eigenvector.
var ErrDegenerate = errors.New("degenerate eigen decomposition")

// JohansenResult holds the outcome of a bivariate Johansen trace test.
type JohansenResult struct {
	// Eigenvalues in descending order.
	Eigenvalues []float64
	// TraceStats[r] tests H0: rank <= r.
	TraceStats []float64
	// Critical95[r] is the 5% critical value for TraceStats[r].
	Critical95 []float64
	// Vector is the cointegrating vector for the largest eigenvalue.
	Vector []float64
}

// HedgeRatio returns β such that a − β·b is the stationary combination.
func (r JohansenResult) HedgeRatio() float64 {
	return -r.Vector[1] / r.Vector[0]
}

// Johansen runs the trace test on the two level series a and b with a
// constant term and one lagged difference.
func Johansen(a, b []float64) (JohansenResult, error) {
	const k = 2 // variables
	n := len(a)
	if len(b) != n {
		return JohansenResult{}, fmt.Errorf("johansen: length mismatch %d vs %d", n, len(b))
	}
	// one lag: usable sample is n-2 and each regression has k columns.
	if n-2 <= 2*k {
		return JohansenResult{}, fmt.Errorf("johansen: %w (%d observations)", ErrTooShort, n)
	}

	levels := mat.NewDense(n, k, nil)
	for t := 0; t < n; t++ {
		levels.Set(t, 0, a[t])
		levels.Set(t, 1, b[t])
	}
	demean(levels)

	T := n - 2
	dx := mat.NewDense(T, k, nil)  // Δx_t
	lag := mat.NewDense(T, k, nil) // Δx_{t-1}
	lx := mat.NewDense(T, k, nil)  // x_{t-1}
	for t := 0; t < T; t++ {
		for j := 0; j < k; j++ {
			dx.Set(t, j, levels.At(t+2, j)-levels.At(t+1, j))
			lag.Set(t, j, levels.At(t+1, j)-levels.At(t, j))
			lx.Set(t, j, levels.At(t+1, j))
		}
	}
	demean(dx)
	demean(lag)
	demean(lx)

	r0, err := residuals(dx, lag)
	if err != nil {
		return JohansenResult{}, fmt.Errorf("johansen: r0: %w", err)
	}
	r1, err := residuals(lx, lag)
	if err != nil {
		return JohansenResult{}, fmt.Errorf("johansen: r1: %w", err)
	}

	scale := 1 / float64(T)
	var s00, s01, s11 mat.Dense
	s00.Mul(r0.T(), r0)
	s00.Scale(scale, &s00)
	s01.Mul(r0.T(), r1)
	s01.Scale(scale, &s01)
	s11.Mul(r1.T(), r1)
	s11.Scale(scale, &s11)

	// Solve |λ S11 − S10 S00⁻¹ S01| = 0 as a symmetric problem via S11 = L Lᵀ.
	var s00inv mat.Dense
	if err := s00inv.Inverse(&s00); err != nil {
		return JohansenResult{}, fmt.Errorf("johansen: s00: %w", ErrSingular)
	}
	var tmp, inner mat.Dense
	tmp.Mul(s01.T(), &s00inv)
	inner.Mul(&tmp, &s01)

	var chol mat.Cholesky
	if ok := chol.Factorize(symmetrize(&s11)); !ok {
		return JohansenResult{}, fmt.Errorf("johansen: s11: %w", ErrSingular)
	}
	var l mat.TriDense
	chol.LTo(&l)
	var linv mat.TriDense
	if err := linv.InverseTri(&l); err != nil {
		return JohansenResult{}, fmt.Errorf("johansen: %w", ErrSingular)
	}

	var m mat.Dense
	tmp.Reset()
	tmp.Mul(&linv, &inner)
	m.Mul(&tmp, linv.T())

	var eig mat.EigenSym
	if ok := eig.Factorize(symmetrize(&m), true); !ok {
		return JohansenResult{}, fmt.Errorf("johansen: %w", ErrDegenerate)
	}
	values := eig.Values(nil) // ascending
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	res := JohansenResult{
		Eigenvalues: make([]float64, k),
		TraceStats:  make([]float64, k),
		Critical95:  make([]float64, k),
	}
	for i := 0; i < k; i++ {
		lambda := values[k-1-i]
		if lambda < 0 && lambda > -1e-12 {
			lambda = 0
		}
		if lambda < 0 || lambda >= 1 || math.IsNaN(lambda) {
			return JohansenResult{}, fmt.Errorf("johansen: %w: eigenvalue %v", ErrDegenerate, lambda)
		}
		res.Eigenvalues[i] = lambda
	}
	for r := 0; r < k; r++ {
		sum := 0.0
		for i := r; i < k; i++ {
			sum += math.Log(1 - res.Eigenvalues[i])
		}
		res.TraceStats[r] = -float64(T) * sum
		res.Critical95[r] = traceCritical[k-r-1][1]
	}

	var v mat.VecDense
	v.MulVec(linv.T(), vecs.ColView(k-1))
	res.Vector = []float64{v.AtVec(0), v.AtVec(1)}
	if math.Abs(res.Vector[0]) < 1e-12 || math.IsNaN(res.Vector[0]) || math.IsNaN(res.Vector[1]) {
		return JohansenResult{}, fmt.Errorf("johansen: %w: eigenvector %v", ErrDegenerate, res.Vector)
	}
	return res, nil
}

// demean subtracts each column's mean in place.
func demean(m *mat.Dense) {
	r, c := m.Dims()
	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += m.At(i, j)
		}
		mean := sum / float64(r)
		for i := 0; i < r; i++ {
			m.Set(i, j, m.At(i, j)-mean)
		}
	}
}

// symmetrize returns (M + Mᵀ)/2 as a SymDense.
func symmetrize(m mat.Matrix) *mat.SymDense {
	r, _ := m.Dims()
	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return s
}
