package cointegration

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/statarb-pairs/internal/config"
	"github.com/your-org/statarb-pairs/internal/marketdata"
)

func testCointConfig() config.CointConfig {
	return config.CointConfig{
		MinHistoryDays:    100,
		MaxPairs:          50,
		SignificanceLevel: 0.05,
		HalfLifeMin:       3,
		HalfLifeMax:       60,
		MinCorrelation:    0.3,
	}
}

func ouSeries(n int, halfLife, sigma float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	theta := math.Ln2 / halfLife
	s := make([]float64, n)
	for t := 1; t < n; t++ {
		s[t] = s[t-1] - theta*s[t-1] + rng.NormFloat64()*sigma
	}
	return s
}

func TestHalfLife_RecoversOU(t *testing.T) {
	est, err := HalfLife(ouSeries(2000, 20, 0.5, 42))
	require.NoError(t, err)
	assert.Greater(t, est, 10.0)
	assert.Less(t, est, 40.0)
}

func TestHalfLife_NonRevertingIsInf(t *testing.T) {
	s := make([]float64, 50)
	s[0] = 1
	for i := 1; i < len(s); i++ {
		s[i] = s[i-1] * 1.05
	}
	est, err := HalfLife(s)
	require.NoError(t, err)
	assert.True(t, math.IsInf(est, 1))
}

func TestHalfLife_TooShort(t *testing.T) {
	_, err := HalfLife([]float64{1, 2})
	assert.True(t, errors.Is(err, ErrTooShort))
}

func TestMacKinnonP(t *testing.T) {
	assert.InDelta(t, 0.05, MacKinnonP(-2.86), 0.002)
	assert.Equal(t, 1.0, MacKinnonP(3))
	assert.Equal(t, 0.0, MacKinnonP(-20))

	prev := 0.0
	for _, stat := range []float64{-10, -5, -3, -2, -1.61, -1, 0, 1, 2} {
		p := MacKinnonP(stat)
		assert.GreaterOrEqual(t, p, prev, "p-value must not decrease with the statistic (stat=%v)", stat)
		prev = p
	}
}

func TestADF_StationarySeries(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	y := make([]float64, 500)
	for i := 1; i < len(y); i++ {
		y[i] = 0.5*y[i-1] + rng.NormFloat64()
	}
	res, err := ADF(y)
	require.NoError(t, err)
	assert.Less(t, res.Stat, -5.0)
	assert.Less(t, res.PValue, 0.01)
	assert.Equal(t, 1, res.Lags)
	assert.Equal(t, 498, res.NObs)
}

func TestJohansen_SyntheticPair(t *testing.T) {
	p := marketdata.DefaultPairParams()
	p.Days = 1000
	a, b := marketdata.GeneratePair(p)

	res, err := Johansen(a, b)
	require.NoError(t, err)
	assert.Greater(t, res.TraceStats[0], res.Critical95[0])
	assert.Equal(t, 15.4943, res.Critical95[0])
	assert.Equal(t, 3.8415, res.Critical95[1])
	assert.GreaterOrEqual(t, res.Eigenvalues[0], res.Eigenvalues[1])
	// b ≈ 1.2·a + OU, so a ≈ b/1.2 up to the stationary part.
	assert.InDelta(t, 1/1.2, res.HedgeRatio(), 0.1)
}

func TestJohansen_ConstantSeriesIsSingular(t *testing.T) {
	p := marketdata.DefaultPairParams()
	p.Days = 200
	a, _ := marketdata.GeneratePair(p)
	b := make([]float64, len(a))
	for i := range b {
		b[i] = 50
	}
	_, err := Johansen(a, b)
	assert.Error(t, err)
}

func TestScanner_FindsSyntheticPair(t *testing.T) {
	p := marketdata.DefaultPairParams()
	p.Days = 1000
	m, err := marketdata.PairMatrix(p, "A", "B")
	require.NoError(t, err)

	pairs, err := NewScanner(testCointConfig()).Scan(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, pairs, 1)

	got := pairs[0]
	assert.Equal(t, "A_B", got.PairID())
	assert.Less(t, got.ADFPValue, 0.05)
	assert.GreaterOrEqual(t, got.HalfLife, 3.0)
	assert.LessOrEqual(t, got.HalfLife, 60.0)
	assert.Greater(t, got.TraceStat, got.CriticalValue)
	assert.Greater(t, got.Score, 0.0)
	assert.Greater(t, got.SpreadStd, 0.0)
}

func TestScanner_UniverseSortedAndBounded(t *testing.T) {
	m, truth, err := marketdata.GenerateUniverse(marketdata.UniverseParams{Pairs: 5, Noise: 3, Days: 1000, Seed: 42})
	require.NoError(t, err)

	pairs, err := NewScanner(testCointConfig()).Scan(context.Background(), m)
	require.NoError(t, err)
	require.NotEmpty(t, pairs)

	for i, p := range pairs {
		assert.Greater(t, math.Abs(p.HedgeRatio), 0.01)
		assert.Less(t, math.Abs(p.HedgeRatio), 100.0)
		assert.GreaterOrEqual(t, p.HalfLife, 3.0)
		assert.LessOrEqual(t, p.HalfLife, 60.0)
		assert.LessOrEqual(t, p.ADFPValue, 0.05)
		if i > 0 {
			assert.GreaterOrEqual(t, pairs[i-1].Score, p.Score)
		}
	}

	trueIDs := make(map[string]bool, len(truth))
	for _, tp := range truth {
		trueIDs[tp.PairID()] = true
	}
	found := 0
	for _, p := range pairs {
		if trueIDs[p.PairID()] {
			found++
		}
	}
	assert.Positive(t, found)
}

func TestScanner_Deterministic(t *testing.T) {
	m, _, err := marketdata.GenerateUniverse(marketdata.UniverseParams{Pairs: 3, Noise: 2, Days: 600, Seed: 9})
	require.NoError(t, err)

	s := NewScanner(testCointConfig())
	first, err := s.Scan(context.Background(), m)
	require.NoError(t, err)
	second, err := s.Scan(context.Background(), m)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("scan not reproducible (-first +second):\n%s", diff)
	}
}

func TestScanner_MaxPairsTruncates(t *testing.T) {
	m, _, err := marketdata.GenerateUniverse(marketdata.UniverseParams{Pairs: 5, Noise: 0, Days: 1000, Seed: 42})
	require.NoError(t, err)

	cfg := testCointConfig()
	cfg.MaxPairs = 1
	pairs, err := NewScanner(cfg).Scan(context.Background(), m)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(pairs), 1)
}

func TestScanner_CancelledContext(t *testing.T) {
	m, _, err := marketdata.GenerateUniverse(marketdata.UniverseParams{Pairs: 2, Noise: 1, Days: 300, Seed: 3})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pairs, err := NewScanner(testCointConfig()).Scan(ctx, m)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, pairs)
}

func TestScanner_ShortHistoryRejected(t *testing.T) {
	p := marketdata.DefaultPairParams()
	p.Days = 80
	m, err := marketdata.PairMatrix(p, "A", "B")
	require.NoError(t, err)

	pairs, err := NewScanner(testCointConfig()).Scan(context.Background(), m)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestTestPair_NumericalFailureIsError(t *testing.T) {
	p := marketdata.DefaultPairParams()
	p.Days = 200
	a, _ := marketdata.GeneratePair(p)
	flat := make([]float64, len(a))
	for i := range flat {
		flat[i] = 10
	}

	s := NewScanner(testCointConfig())
	pair, err := s.TestPair(a, flat, "A", "FLAT", 1)
	assert.Nil(t, pair)
	assert.Error(t, err)
}

func TestSortPairs_TieBreakByID(t *testing.T) {
	pairs := []CointegratedPair{
		{SymbolA: "C", SymbolB: "D", Score: 1},
		{SymbolA: "A", SymbolB: "B", Score: 1},
		{SymbolA: "E", SymbolB: "F", Score: 2},
	}
	SortPairs(pairs)
	assert.Equal(t, []string{"E_F", "A_B", "C_D"}, []string{pairs[0].PairID(), pairs[1].PairID(), pairs[2].PairID()})
}
