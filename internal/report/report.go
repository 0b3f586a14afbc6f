// Package report computes strategy performance metrics from a simulation's
// equity curve and closed trades.
package report

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/your-org/statarb-pairs/internal/engine"
)

const (
	tradingDaysPerYear = 252
	// profitFactorCap stands in for an infinite profit factor (no losers).
	profitFactorCap = 999
)

// Metrics holds the strategy results. Money fields are decimals; ratios and
// percentages are fractions (0.05 = 5%).
type Metrics struct {
	StartDate            time.Time       `json:"start_date"`
	EndDate              time.Time       `json:"end_date"`
	InitialEquity        decimal.Decimal `json:"initial_equity"`
	FinalEquity          decimal.Decimal `json:"final_equity"`
	TotalReturn          float64         `json:"total_return"`
	AnnualizedReturn     float64         `json:"annualized_return"`
	AnnualizedVolatility float64         `json:"annualized_volatility"`
	SharpeRatio          float64         `json:"sharpe_ratio"`
	SortinoRatio         float64         `json:"sortino_ratio"`
	MaxDrawdown          float64         `json:"max_drawdown"`
	CalmarRatio          float64         `json:"calmar_ratio"`
	TotalTrades          int             `json:"total_trades"`
	WinningTrades        int             `json:"winning_trades"`
	LosingTrades         int             `json:"losing_trades"`
	WinRate              float64         `json:"win_rate"`
	TotalPnL             decimal.Decimal `json:"total_pnl"`
	GrossProfit          decimal.Decimal `json:"gross_profit"`
	GrossLoss            decimal.Decimal `json:"gross_loss"`
	ProfitFactor         float64         `json:"profit_factor"`
	AverageTradePnL      decimal.Decimal `json:"average_trade_pnl"`
	AverageWinner        decimal.Decimal `json:"average_winner"`
	AverageLoser         decimal.Decimal `json:"average_loser"`
	AverageHoldingDays   float64         `json:"average_holding_days"`
	StopLossRate         float64         `json:"stop_loss_rate"`
	MaxConsecutiveLosses int             `json:"max_consecutive_losses"`
	TicksPerSecond       float64         `json:"ticks_per_second"`
}

// Options carries the run context that is not in the snapshots.
type Options struct {
	TicksProcessed int
	Elapsed        time.Duration
	RiskFreeRate   float64 // annual
}

// Compute derives Metrics from an equity curve and its closed trades.
// Equity-based fields stay zero when there are fewer than two snapshots.
// Trades with non-positive P&L count as losers.
func Compute(snapshots []engine.PortfolioSnapshot, trades []engine.TradeRecord, opts Options) Metrics {
	var m Metrics
	computeEquityMetrics(&m, snapshots, opts.RiskFreeRate)
	computeTradeMetrics(&m, trades)
	if secs := opts.Elapsed.Seconds(); secs > 0 {
		m.TicksPerSecond = float64(opts.TicksProcessed) / secs
	}
	return m
}

func computeEquityMetrics(m *Metrics, snapshots []engine.PortfolioSnapshot, riskFreeRate float64) {
	if len(snapshots) == 0 {
		return
	}
	m.StartDate = snapshots[0].Timestamp
	m.EndDate = snapshots[len(snapshots)-1].Timestamp
	m.InitialEquity = decimal.NewFromFloat(snapshots[0].Equity)
	m.FinalEquity = decimal.NewFromFloat(snapshots[len(snapshots)-1].Equity)

	for _, s := range snapshots {
		if s.Drawdown > m.MaxDrawdown {
			m.MaxDrawdown = s.Drawdown
		}
	}
	if len(snapshots) < 2 {
		return
	}

	returns := make([]float64, len(snapshots)-1)
	for i := 1; i < len(snapshots); i++ {
		returns[i-1] = snapshots[i].Equity/snapshots[i-1].Equity - 1
	}
	n := len(returns)
	years := float64(n) / tradingDaysPerYear
	annFactor := math.Sqrt(tradingDaysPerYear)

	m.TotalReturn = snapshots[len(snapshots)-1].Equity/snapshots[0].Equity - 1
	m.AnnualizedReturn = math.Pow(1+m.TotalReturn, 1/years) - 1
	if n > 1 {
		m.AnnualizedVolatility = popStdDev(returns) * annFactor
	}

	dailyRF := riskFreeRate / tradingDaysPerYear
	m.SharpeRatio = calculateSharpeRatio(returns, dailyRF) * annFactor

	downsideDev := calculateDownsideDeviation(returns, dailyRF) * annFactor
	if downsideDev > 0 {
		m.SortinoRatio = (m.AnnualizedReturn - riskFreeRate) / downsideDev
	}
	if m.MaxDrawdown > 0 {
		m.CalmarRatio = m.AnnualizedReturn / m.MaxDrawdown
	}
}

func computeTradeMetrics(m *Metrics, trades []engine.TradeRecord) {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var (
		holdingSum        int
		stops             int
		streak, maxStreak int
	)
	for _, t := range trades {
		pnl := decimal.NewFromFloat(t.PnL)
		m.TotalPnL = m.TotalPnL.Add(pnl)
		holdingSum += t.HoldingDays
		if t.ExitReason == engine.StopLossExit {
			stops++
		}

		if t.PnL > 0 {
			m.WinningTrades++
			m.GrossProfit = m.GrossProfit.Add(pnl)
			streak = 0
			continue
		}
		m.LosingTrades++
		m.GrossLoss = m.GrossLoss.Add(pnl.Abs())
		streak++
		if streak > maxStreak {
			maxStreak = streak
		}
	}

	total := decimal.NewFromInt(int64(len(trades)))
	m.WinRate = float64(m.WinningTrades) / float64(len(trades))
	m.AverageTradePnL = m.TotalPnL.Div(total)
	if m.WinningTrades > 0 {
		m.AverageWinner = m.GrossProfit.Div(decimal.NewFromInt(int64(m.WinningTrades)))
	}
	if m.LosingTrades > 0 {
		m.AverageLoser = m.GrossLoss.Div(decimal.NewFromInt(int64(m.LosingTrades)))
	}

	switch {
	case m.GrossLoss.IsPositive():
		m.ProfitFactor = m.GrossProfit.Div(m.GrossLoss).InexactFloat64()
	case m.GrossProfit.IsPositive():
		m.ProfitFactor = profitFactorCap
	}

	m.AverageHoldingDays = float64(holdingSum) / float64(len(trades))
	m.StopLossRate = float64(stops) / float64(len(trades))
	m.MaxConsecutiveLosses = maxStreak
}

// popStdDev is the population standard deviation.
func popStdDev(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(x, nil)
	return std
}

// calculateSharpeRatio returns the per-period Sharpe ratio of returns over rf.
func calculateSharpeRatio(returns []float64, rf float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - rf
	}
	mean, std := stat.PopMeanStdDev(excess, nil)
	if !(std > 0) {
		return 0
	}
	return mean / std
}

// calculateDownsideDeviation is the population std of the returns below
// target. It needs at least two such returns.
func calculateDownsideDeviation(returns []float64, target float64) float64 {
	var downside []float64
	for _, r := range returns {
		if r < target {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		return 0
	}
	return popStdDev(downside)
}

// Print writes a human-readable summary.
func Print(w io.Writer, m Metrics) {
	line := "============================================================"
	fmt.Fprintf(w, "\n%s\n  PAIRS TRADING STRATEGY RESULTS\n%s\n", line, line)
	fmt.Fprintf(w, "  Total Return:        %8.1f%%\n", m.TotalReturn*100)
	fmt.Fprintf(w, "  Annualized Return:   %8.1f%%\n", m.AnnualizedReturn*100)
	fmt.Fprintf(w, "  Annualized Vol:      %8.1f%%\n", m.AnnualizedVolatility*100)
	fmt.Fprintf(w, "  Sharpe Ratio:        %8.2f\n", m.SharpeRatio)
	fmt.Fprintf(w, "  Sortino Ratio:       %8.2f\n", m.SortinoRatio)
	fmt.Fprintf(w, "  Calmar Ratio:        %8.2f\n", m.CalmarRatio)
	fmt.Fprintf(w, "  Max Drawdown:        %8.1f%%\n", m.MaxDrawdown*100)
	fmt.Fprintf(w, "  Win Rate:            %8.1f%%\n", m.WinRate*100)
	fmt.Fprintf(w, "  Profit Factor:       %8.2f\n", m.ProfitFactor)
	fmt.Fprintf(w, "  Total P&L:           %12s\n", m.TotalPnL.StringFixed(2))
	fmt.Fprintf(w, "  Avg Trade P&L:       %12s\n", m.AverageTradePnL.StringFixed(2))
	fmt.Fprintf(w, "  Avg Winner:          %12s\n", m.AverageWinner.StringFixed(2))
	fmt.Fprintf(w, "  Avg Loser:           %12s\n", m.AverageLoser.StringFixed(2))
	fmt.Fprintf(w, "  Total Trades:        %8d\n", m.TotalTrades)
	fmt.Fprintf(w, "  Avg Holding (days):  %8.1f\n", m.AverageHoldingDays)
	fmt.Fprintf(w, "  Stop-Loss Rate:      %8.1f%%\n", m.StopLossRate*100)
	fmt.Fprintf(w, "  Max Consec Losses:   %8d\n", m.MaxConsecutiveLosses)
	fmt.Fprintf(w, "  Throughput:          %8.0f ticks/sec\n", m.TicksPerSecond)
	fmt.Fprintf(w, "%s\n", line)
}

// Execer is the subset of *pgxpool.Pool the service needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Service persists reports.
type Service struct {
	db Execer
}

// NewService creates a new report service.
func NewService(db Execer) *Service {
	return &Service{db: db}
}

// SaveReport inserts one row into backtest_reports.
func (s *Service) SaveReport(ctx context.Context, runID string, m Metrics) error {
	query := `
        INSERT INTO backtest_reports (
            time, run_id, start_date, end_date, total_return, annualized_return,
            annualized_volatility, sharpe_ratio, sortino_ratio, calmar_ratio,
            max_drawdown, win_rate, profit_factor, total_pnl, average_trade_pnl,
            total_trades, average_holding_days, stop_loss_rate, max_consecutive_losses
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
        );
    `
	_, err := s.db.Exec(ctx, query,
		time.Now().UTC(), runID, m.StartDate, m.EndDate, m.TotalReturn, m.AnnualizedReturn,
		m.AnnualizedVolatility, m.SharpeRatio, m.SortinoRatio, m.CalmarRatio,
		m.MaxDrawdown, m.WinRate, m.ProfitFactor, m.TotalPnL, m.AverageTradePnL,
		m.TotalTrades, m.AverageHoldingDays, m.StopLossRate, m.MaxConsecutiveLosses,
	)
	if err != nil {
		return fmt.Errorf("failed to save report for run %s: %w", runID, err)
	}
	return nil
}
