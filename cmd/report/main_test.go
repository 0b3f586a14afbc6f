package main

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/statarb-pairs/internal/engine"
)

type fakeRuns struct {
	snapshots []engine.PortfolioSnapshot
	trades    []engine.TradeRecord
	err       error
}

func (f fakeRuns) FetchSnapshots(ctx context.Context, runID string) ([]engine.PortfolioSnapshot, error) {
	return f.snapshots, f.err
}

func (f fakeRuns) FetchTrades(ctx context.Context, runID string) ([]engine.TradeRecord, error) {
	return f.trades, nil
}

func TestBuildReport(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	src := fakeRuns{
		snapshots: []engine.PortfolioSnapshot{
			{Timestamp: start, Equity: 1000},
			{Timestamp: start.AddDate(0, 0, 1), Equity: 1100},
		},
		trades: []engine.TradeRecord{
			{PairID: "A_B", PnL: 150, HoldingDays: 3},
			{PairID: "A_B", PnL: -50, HoldingDays: 1, ExitReason: engine.StopLossExit},
		},
	}

	m, err := buildReport(context.Background(), src, "run-1", 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, m.TotalReturn, 1e-12)
	assert.Equal(t, 2, m.TotalTrades)
	assert.True(t, m.TotalPnL.Equal(decimal.NewFromInt(100)))
	assert.InDelta(t, 3.0, m.ProfitFactor, 1e-12)
	assert.Equal(t, 0.0, m.TicksPerSecond)
}

func TestBuildReport_SourceError(t *testing.T) {
	_, err := buildReport(context.Background(), fakeRuns{err: assert.AnError}, "run-1", 0)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestBuildReport_EmptyRun(t *testing.T) {
	m, err := buildReport(context.Background(), fakeRuns{}, "missing", 0.04)
	require.NoError(t, err)
	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 0.0, m.TotalReturn)
}
