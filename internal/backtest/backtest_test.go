package backtest

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/statarb-pairs/internal/alert"
	"github.com/your-org/statarb-pairs/internal/cointegration"
	"github.com/your-org/statarb-pairs/internal/config"
	"github.com/your-org/statarb-pairs/internal/marketdata"
)

func e2eConfig() *config.Config {
	cfg := config.Default()
	cfg.Trading.InitialCapital = 1_000_000
	cfg.Trading.EntryZ = 2.0
	cfg.Trading.ExitZ = 0.5
	cfg.Trading.StopZ = 4.0
	return cfg
}

func syntheticPair(t *testing.T) *marketdata.PriceMatrix {
	t.Helper()
	p := marketdata.DefaultPairParams()
	p.Days = 750
	p.Beta = 1.2
	p.HalfLife = 20
	m, err := marketdata.PairMatrix(p, "A", "B")
	require.NoError(t, err)
	return m
}

func TestSimulate_EndToEndSyntheticPair(t *testing.T) {
	m := syntheticPair(t)
	cfg := e2eConfig()
	truth := []marketdata.TruePair{{SymbolA: "A", SymbolB: "B", Beta: 1.2, HalfLife: 20}}

	res, err := NewPipeline(cfg, alert.NewNoOpNotifier()).
		Simulate(context.Background(), m, Window{ScanFrom: 0, ScanTo: 375, TradeFrom: 375}, truth)
	require.NoError(t, err)

	require.Len(t, res.Pairs, 1)
	pair := res.Pairs[0]
	assert.Equal(t, "A_B", pair.PairID())
	assert.Less(t, pair.ADFPValue, 0.05)
	assert.GreaterOrEqual(t, pair.HalfLife, 3.0)
	assert.LessOrEqual(t, pair.HalfLife, 60.0)
	assert.Equal(t, 1, res.DetectedTrue)
	assert.Equal(t, 1.0, res.Precision)

	require.NotEmpty(t, res.Trades)
	withHolding := 0
	for _, tr := range res.Trades {
		if tr.HoldingDays >= 1 {
			withHolding++
		}
	}
	assert.GreaterOrEqual(t, withHolding, 1)

	assert.Equal(t, 375, res.TrainDays)
	assert.Equal(t, 375, res.TestDays)
	require.Len(t, res.Snapshots, 375)
	assert.True(t, res.Snapshots[0].Timestamp.Equal(m.Timestamps[375]), "trading starts after the scan window")
	for _, s := range res.Snapshots {
		assert.False(t, math.IsNaN(s.Equity) || math.IsInf(s.Equity, 0), "equity must stay finite")
		assert.GreaterOrEqual(t, s.Drawdown, 0.0)
		assert.LessOrEqual(t, s.NPositions, cfg.Trading.MaxPairsActive)
	}
	require.Len(t, res.Benchmark, 375)
	assert.InDelta(t, cfg.Trading.InitialCapital, res.Benchmark[0].Equity, 1e-6)
	assert.False(t, math.IsNaN(res.BenchmarkReturn))
	assert.Equal(t, len(res.Trades), res.Metrics.TotalTrades)
	assert.Equal(t, 375, res.Monitoring.TicksProcessed)
}

func TestSimulate_Deterministic(t *testing.T) {
	m := syntheticPair(t)
	w := Window{ScanFrom: 0, ScanTo: 375, TradeFrom: 375}

	run := func() *Result {
		res, err := NewPipeline(e2eConfig(), alert.NewNoOpNotifier()).Simulate(context.Background(), m, w, nil)
		require.NoError(t, err)
		return res
	}
	first, second := run(), run()

	if diff := cmp.Diff(first.Trades, second.Trades); diff != "" {
		t.Errorf("trades differ between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Snapshots, second.Snapshots); diff != "" {
		t.Errorf("snapshots differ between runs (-first +second):\n%s", diff)
	}
}

func TestRun_UniverseWithRescans(t *testing.T) {
	m, truth, err := marketdata.GenerateUniverse(marketdata.UniverseParams{Pairs: 4, Noise: 2, Days: 600, Seed: 7})
	require.NoError(t, err)

	cfg := e2eConfig()
	cfg.Coint.MinHistoryDays = 100
	cfg.Coint.RescanEnabled = true
	cfg.Coint.RescanIntervalDays = 50
	cfg.Trading.MaxPairsActive = 2
	cfg.Trading.Parallel = true

	res, err := NewPipeline(cfg, alert.NewNoOpNotifier()).Run(context.Background(), m, truth)
	require.NoError(t, err)

	assert.Equal(t, 198, res.TrainDays)
	assert.Equal(t, 402, res.TestDays)
	assert.Equal(t, 8, res.Rescans)
	require.Len(t, res.Snapshots, 402)
	for _, s := range res.Snapshots {
		assert.LessOrEqual(t, s.NPositions, 2)
		assert.False(t, math.IsNaN(s.Equity))
	}
	assert.LessOrEqual(t, res.DetectedTrue, len(res.Pairs))
	assert.GreaterOrEqual(t, res.Precision, 0.0)
	assert.LessOrEqual(t, res.Precision, 1.0)
}

func TestSimulate_NoPairsIsValid(t *testing.T) {
	m := syntheticPair(t)
	cfg := e2eConfig()
	cfg.Coint.MinCorrelation = 1

	res, err := NewPipeline(cfg, alert.NewNoOpNotifier()).Run(context.Background(), m, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Pairs)
	assert.Empty(t, res.Trades)
	require.NotEmpty(t, res.Snapshots)
	for _, s := range res.Snapshots {
		assert.Equal(t, cfg.Trading.InitialCapital, s.Equity)
	}
	assert.Equal(t, 0.0, res.Metrics.TotalReturn)
}

func TestSimulate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPipeline(e2eConfig(), alert.NewNoOpNotifier()).Run(ctx, syntheticPair(t), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulate_InvalidWindow(t *testing.T) {
	m := syntheticPair(t)
	p := NewPipeline(e2eConfig(), alert.NewNoOpNotifier())

	_, err := p.Simulate(context.Background(), m, Window{ScanFrom: 0, ScanTo: 800, TradeFrom: 10}, nil)
	assert.Error(t, err)
	_, err = p.Simulate(context.Background(), m, Window{ScanFrom: 0, ScanTo: 100, TradeFrom: 750}, nil)
	assert.Error(t, err)
	_, err = p.Simulate(context.Background(), m, Window{ScanFrom: 0, ScanTo: 750, TradeFrom: 500}, nil)
	assert.ErrorContains(t, err, "overlaps scan window")
}

func TestSplitWindow(t *testing.T) {
	assert.Equal(t, Window{ScanFrom: 0, ScanTo: 249, TradeFrom: 249}, SplitWindow(756, 0.33))
}

func TestDetectionPrecision(t *testing.T) {
	truth := []marketdata.TruePair{{SymbolA: "CI_A00", SymbolB: "CI_B00"}, {SymbolA: "CI_A01", SymbolB: "CI_B01"}}
	pairs := []cointegration.CointegratedPair{
		{SymbolA: "CI_B00", SymbolB: "CI_A00"},
		{SymbolA: "CI_A01", SymbolB: "CI_B01"},
		{SymbolA: "CI_A00", SymbolB: "RW_00"},
		{SymbolA: "RW_00", SymbolB: "RW_01"},
	}
	hits, precision := detectionPrecision(pairs, truth)
	assert.Equal(t, 2, hits)
	assert.Equal(t, 0.5, precision)

	hits, precision = detectionPrecision(nil, truth)
	assert.Equal(t, 0, hits)
	assert.Equal(t, 0.0, precision)
}
