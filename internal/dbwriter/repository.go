package dbwriter

import (
	"context"
	"time"

	"github.com/your-org/statarb-pairs/internal/cointegration"
	"github.com/your-org/statarb-pairs/internal/engine"
)

// Repository defines the interface for persisting a run's results.
// Every row written is tagged with the run id.
type Repository interface {
	// SaveSnapshots writes the equity curve.
	SaveSnapshots(ctx context.Context, runID string, snapshots []engine.PortfolioSnapshot) error

	// SaveTrades writes closed round-trip trades.
	SaveTrades(ctx context.Context, runID string, trades []engine.TradeRecord) error

	// SavePairs writes the pair set found by a scan at the given time.
	SavePairs(ctx context.Context, runID string, scannedAt time.Time, pairs []cointegration.CointegratedPair) error

	// Close flushes any buffered data and releases the sink.
	Close() error
}

var (
	priceColumns    = []string{"time", "symbol", "price"}
	snapshotColumns = []string{
		"time", "run_id", "equity", "cash", "positions_value",
		"daily_return", "drawdown", "n_positions", "n_trades_today",
	}
	tradeColumns = []string{
		"trade_id", "run_id", "pair_id", "symbol_a", "symbol_b", "direction",
		"entry_time", "exit_time", "entry_spread", "exit_spread",
		"entry_zscore", "exit_zscore", "pnl", "return_pct", "holding_days", "exit_reason",
	}
	pairColumns = []string{
		"time", "run_id", "symbol_a", "symbol_b", "hedge_ratio", "half_life",
		"correlation", "trace_stat", "critical_value", "adf_pvalue", "score",
	}
)

func toSnapshotInterfaces(runID string, snapshots []engine.PortfolioSnapshot) [][]interface{} {
	rows := make([][]interface{}, len(snapshots))
	for i, s := range snapshots {
		rows[i] = []interface{}{
			s.Timestamp, runID, s.Equity, s.Cash, s.PositionsValue,
			s.DailyReturn, s.Drawdown, s.NPositions, s.NTradesToday,
		}
	}
	return rows
}

func toTradeInterfaces(runID string, trades []engine.TradeRecord) [][]interface{} {
	rows := make([][]interface{}, len(trades))
	for i, t := range trades {
		rows[i] = []interface{}{
			t.TradeID, runID, t.PairID, t.SymbolA, t.SymbolB, t.Direction.String(),
			t.EntryTime, t.ExitTime, t.EntrySpread, t.ExitSpread,
			t.EntryZScore, t.ExitZScore, t.PnL, t.ReturnPct, t.HoldingDays, t.ExitReason.String(),
		}
	}
	return rows
}

func toPairInterfaces(runID string, scannedAt time.Time, pairs []cointegration.CointegratedPair) [][]interface{} {
	rows := make([][]interface{}, len(pairs))
	for i, p := range pairs {
		rows[i] = []interface{}{
			scannedAt, runID, p.SymbolA, p.SymbolB, p.HedgeRatio, p.HalfLife,
			p.Correlation, p.TraceStat, p.CriticalValue, p.ADFPValue, p.Score,
		}
	}
	return rows
}
