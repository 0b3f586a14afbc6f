package marketdata

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/your-org/statarb-pairs/pkg/logger"
)

// PairParams describes one synthetic cointegrated pair.
type PairParams struct {
	Days       int
	SpreadMean float64
	SpreadStd  float64
	HalfLife   float64
	Beta       float64
	BaseA      float64
	BaseB      float64
	NoiseStd   float64
	Seed       int64
}

// DefaultPairParams returns the stock parameter set for a single pair.
func DefaultPairParams() PairParams {
	return PairParams{
		Days:      756,
		SpreadStd: 1.0,
		HalfLife:  20,
		Beta:      1.2,
		BaseA:     100,
		BaseB:     120,
		NoiseStd:  0.5,
		Seed:      42,
	}
}

// TruePair is the ground truth of a generated cointegrated pair.
type TruePair struct {
	SymbolA  string
	SymbolB  string
	Beta     float64
	HalfLife float64
}

// PairID matches the id the scanner assigns to the same pair.
func (p TruePair) PairID() string {
	return p.SymbolA + "_" + p.SymbolB
}

var startDate = time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)

// BusinessDays returns n weekday dates starting at start (inclusive when it
// is itself a weekday).
func BusinessDays(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := start
	for len(out) < n {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

// GeneratePair produces price series a and b where the spread b - beta*a
// follows an Ornstein-Uhlenbeck process with the requested half-life.
// b is floored at 1 and rescaled so that it starts at BaseB.
func GeneratePair(p PairParams) (a, b []float64) {
	rng := rand.New(rand.NewSource(p.Seed))
	n := p.Days
	if n <= 0 {
		return nil, nil
	}

	theta := math.Ln2 / p.HalfLife
	spread := make([]float64, n)
	spread[0] = p.SpreadMean
	for t := 1; t < n; t++ {
		dW := rng.NormFloat64() * p.SpreadStd
		spread[t] = spread[t-1] + theta*(p.SpreadMean-spread[t-1]) + dW
	}

	a = make([]float64, n)
	cum := 0.0
	for t := 0; t < n; t++ {
		cum += rng.NormFloat64()*0.015 + 0.0002
		a[t] = p.BaseA * math.Exp(cum)
	}

	b = make([]float64, n)
	for t := 0; t < n; t++ {
		b[t] = math.Max(p.Beta*a[t]+spread[t]+rng.NormFloat64()*p.NoiseStd, 1.0)
	}
	scale := p.BaseB / b[0]
	for t := range b {
		b[t] *= scale
	}
	return a, b
}

// PairMatrix wraps GeneratePair into a two-column matrix named symA, symB.
func PairMatrix(p PairParams, symA, symB string) (*PriceMatrix, error) {
	a, b := GeneratePair(p)
	values := make([][]float64, len(a))
	for i := range a {
		values[i] = []float64{a[i], b[i]}
	}
	return NewPriceMatrix(BusinessDays(startDate, len(a)), []string{symA, symB}, values)
}

// UniverseParams describes a synthetic universe.
type UniverseParams struct {
	Pairs int
	Noise int
	Days  int
	Seed  int64
}

// GenerateUniverse builds a matrix with Pairs cointegrated pairs named
// CI_Axx/CI_Bxx followed by Noise independent random walks named RW_xx.
// It also returns the ground-truth pair registry.
func GenerateUniverse(p UniverseParams) (*PriceMatrix, []TruePair, error) {
	if p.Days <= 0 {
		return nil, nil, fmt.Errorf("universe needs a positive day count, got %d", p.Days)
	}
	rng := rand.New(rand.NewSource(p.Seed))

	symbols := make([]string, 0, 2*p.Pairs+p.Noise)
	columns := make([][]float64, 0, 2*p.Pairs+p.Noise)
	registry := make([]TruePair, 0, p.Pairs)

	for i := 0; i < p.Pairs; i++ {
		symA := fmt.Sprintf("CI_A%02d", i)
		symB := fmt.Sprintf("CI_B%02d", i)

		halfLife := 8 + rng.Float64()*(45-8)
		beta := 0.6 + rng.Float64()*(1.8-0.6)
		baseA := 30 + rng.Float64()*(300-30)
		baseB := 30 + rng.Float64()*(300-30)

		pp := DefaultPairParams()
		pp.Days = p.Days
		pp.HalfLife = halfLife
		pp.Beta = beta
		pp.BaseA = baseA
		pp.BaseB = baseB
		pp.Seed = p.Seed + int64(i)*100
		a, b := GeneratePair(pp)

		symbols = append(symbols, symA, symB)
		columns = append(columns, a, b)
		registry = append(registry, TruePair{SymbolA: symA, SymbolB: symB, Beta: beta, HalfLife: halfLife})
	}

	for i := 0; i < p.Noise; i++ {
		base := 20 + rng.Float64()*(400-20)
		prices := make([]float64, p.Days)
		cum := 0.0
		for t := range prices {
			cum += rng.NormFloat64()*0.02 + 0.0001
			prices[t] = base * math.Exp(cum)
		}
		symbols = append(symbols, fmt.Sprintf("RW_%02d", i))
		columns = append(columns, prices)
	}

	values := make([][]float64, p.Days)
	for t := range values {
		row := make([]float64, len(columns))
		for j, col := range columns {
			row[j] = col[t]
		}
		values[t] = row
	}

	m, err := NewPriceMatrix(BusinessDays(startDate, p.Days), symbols, values)
	if err != nil {
		return nil, nil, err
	}
	logger.Infow("universe_generated",
		"n_pairs", p.Pairs,
		"n_noise", p.Noise,
		"total_symbols", len(symbols),
		"n_days", p.Days,
	)
	return m, registry, nil
}
