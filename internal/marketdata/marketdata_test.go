package marketdata

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusinessDays_SkipsWeekends(t *testing.T) {
	// 2020-01-02 is a Thursday.
	days := BusinessDays(startDate, 4)
	require.Len(t, days, 4)
	assert.Equal(t, "2020-01-02", days[0].Format("2006-01-02"))
	assert.Equal(t, "2020-01-03", days[1].Format("2006-01-02"))
	assert.Equal(t, "2020-01-06", days[2].Format("2006-01-02"))
	assert.Equal(t, "2020-01-07", days[3].Format("2006-01-02"))
}

func TestGeneratePair_Deterministic(t *testing.T) {
	p := DefaultPairParams()
	p.Days = 300
	a1, b1 := GeneratePair(p)
	a2, b2 := GeneratePair(p)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)

	assert.InDelta(t, p.BaseB, b1[0], 1e-9)
	for i := range a1 {
		assert.Greater(t, a1[i], 0.0)
		assert.Greater(t, b1[i], 0.0)
	}
}

func TestGenerateUniverse_Layout(t *testing.T) {
	m, registry, err := GenerateUniverse(UniverseParams{Pairs: 3, Noise: 2, Days: 100, Seed: 7})
	require.NoError(t, err)

	assert.Equal(t, []string{"CI_A00", "CI_B00", "CI_A01", "CI_B01", "CI_A02", "CI_B02", "RW_00", "RW_01"}, m.Symbols)
	assert.Equal(t, 100, m.Len())
	require.Len(t, registry, 3)
	assert.Equal(t, "CI_A01_CI_B01", registry[1].PairID())
	for _, tp := range registry {
		assert.GreaterOrEqual(t, tp.HalfLife, 8.0)
		assert.LessOrEqual(t, tp.HalfLife, 45.0)
		assert.GreaterOrEqual(t, tp.Beta, 0.6)
		assert.LessOrEqual(t, tp.Beta, 1.8)
	}
	require.NoError(t, m.Validate())
}

func TestNewPriceMatrix_ShapeErrors(t *testing.T) {
	ts := BusinessDays(startDate, 2)

	_, err := NewPriceMatrix(ts, []string{"A"}, [][]float64{{1}})
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	_, err = NewPriceMatrix(ts, []string{"A", "B"}, [][]float64{{1, 2}, {3}})
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	_, err = NewPriceMatrix(ts, []string{"A", "A"}, [][]float64{{1, 2}, {3, 4}})
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestPriceMatrix_ColumnRowSlice(t *testing.T) {
	ts := BusinessDays(startDate, 3)
	m, err := NewPriceMatrix(ts, []string{"A", "B"}, [][]float64{{1, 10}, {2, 20}, {3, 30}})
	require.NoError(t, err)

	col, ok := m.Column("B")
	require.True(t, ok)
	assert.Equal(t, []float64{10, 20, 30}, col)
	_, ok = m.Column("C")
	assert.False(t, ok)

	assert.Equal(t, Row{"A": 2, "B": 20}, m.Row(1))

	s := m.Slice(1, 10)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("A"))
	col, _ = s.Column("A")
	assert.Equal(t, []float64{2, 3}, col)
}

func TestPriceMatrix_Validate(t *testing.T) {
	ts := BusinessDays(startDate, 2)
	m, err := NewPriceMatrix(ts, []string{"A"}, [][]float64{{1}, {math.NaN()}})
	require.NoError(t, err)
	assert.True(t, errors.Is(m.Validate(), ErrNonPositivePrice))
}

func TestRow_Price(t *testing.T) {
	r := Row{"A": 10, "B": 0, "C": math.Inf(1)}

	p, err := r.Price("A")
	require.NoError(t, err)
	assert.Equal(t, 10.0, p)

	_, err = r.Price("missing")
	assert.True(t, errors.Is(err, ErrMissingPrice))
	_, err = r.Price("B")
	assert.True(t, errors.Is(err, ErrNonPositivePrice))
	_, err = r.Price("C")
	assert.True(t, errors.Is(err, ErrNonPositivePrice))
}

func TestPairMatrix(t *testing.T) {
	p := DefaultPairParams()
	p.Days = 10
	m, err := PairMatrix(p, "X", "Y")
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y"}, m.Symbols)
	assert.Equal(t, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), m.Timestamps[0])
}
