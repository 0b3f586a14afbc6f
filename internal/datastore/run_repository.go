package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/your-org/statarb-pairs/internal/engine"
	"github.com/your-org/statarb-pairs/internal/position"
)

const (
	snapshotsQuery = `
        SELECT time, equity, cash, positions_value, daily_return, drawdown, n_positions, n_trades_today
        FROM portfolio_snapshots
        WHERE run_id = $1
        ORDER BY time ASC;
    `

	tradesQuery = `
        SELECT trade_id, pair_id, symbol_a, symbol_b, direction, entry_time, exit_time,
               entry_spread, exit_spread, entry_zscore, exit_zscore, pnl, return_pct,
               holding_days, exit_reason
        FROM trade_records
        WHERE run_id = $1
        ORDER BY exit_time ASC, trade_id ASC;
    `
)

// RunRepository reads back the results of an exported run.
type RunRepository struct {
	db PgxPoolIface
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db PgxPoolIface) *RunRepository {
	return &RunRepository{db: db}
}

// FetchSnapshots returns the run's equity curve in time order.
func (r *RunRepository) FetchSnapshots(ctx context.Context, runID string) ([]engine.PortfolioSnapshot, error) {
	rows, err := r.db.Query(ctx, snapshotsQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for run %s: %w", runID, err)
	}
	defer rows.Close()

	var snapshots []engine.PortfolioSnapshot
	for rows.Next() {
		var s engine.PortfolioSnapshot
		if err := rows.Scan(&s.Timestamp, &s.Equity, &s.Cash, &s.PositionsValue,
			&s.DailyReturn, &s.Drawdown, &s.NPositions, &s.NTradesToday); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		s.Timestamp = s.Timestamp.UTC()
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}
	return snapshots, nil
}

// FetchTrades returns the run's closed trades ordered by exit time.
func (r *RunRepository) FetchTrades(ctx context.Context, runID string) ([]engine.TradeRecord, error) {
	rows, err := r.db.Query(ctx, tradesQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for run %s: %w", runID, err)
	}
	defer rows.Close()

	var trades []engine.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

func scanTrade(rows pgx.Rows) (engine.TradeRecord, error) {
	var (
		t                 engine.TradeRecord
		direction, reason string
		entry, exit       time.Time
	)
	if err := rows.Scan(&t.TradeID, &t.PairID, &t.SymbolA, &t.SymbolB, &direction, &entry, &exit,
		&t.EntrySpread, &t.ExitSpread, &t.EntryZScore, &t.ExitZScore, &t.PnL, &t.ReturnPct,
		&t.HoldingDays, &reason); err != nil {
		return t, fmt.Errorf("failed to scan trade row: %w", err)
	}
	t.EntryTime, t.ExitTime = entry.UTC(), exit.UTC()

	switch direction {
	case position.LongSpread.String():
		t.Direction = position.LongSpread
	case position.ShortSpread.String():
		t.Direction = position.ShortSpread
	default:
		return t, fmt.Errorf("trade %s: unknown direction %q", t.TradeID, direction)
	}
	switch reason {
	case engine.MeanReversion.String():
		t.ExitReason = engine.MeanReversion
	case engine.StopLossExit.String():
		t.ExitReason = engine.StopLossExit
	default:
		return t, fmt.Errorf("trade %s: unknown exit reason %q", t.TradeID, reason)
	}
	return t, nil
}
