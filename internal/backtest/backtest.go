// Package backtest drives the scanner, signal generator, execution engine
// and monitor over a price matrix, one bar at a time.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/your-org/statarb-pairs/internal/alert"
	"github.com/your-org/statarb-pairs/internal/benchmark"
	"github.com/your-org/statarb-pairs/internal/cointegration"
	"github.com/your-org/statarb-pairs/internal/config"
	"github.com/your-org/statarb-pairs/internal/engine"
	"github.com/your-org/statarb-pairs/internal/kalman"
	"github.com/your-org/statarb-pairs/internal/marketdata"
	"github.com/your-org/statarb-pairs/internal/monitor"
	"github.com/your-org/statarb-pairs/internal/report"
	"github.com/your-org/statarb-pairs/internal/signal"
	"github.com/your-org/statarb-pairs/pkg/logger"
)

const progressEvery = 100

// Window selects the rows used for the initial scan and for trading.
// Scanning uses [ScanFrom, ScanTo); trading runs from TradeFrom to the last
// row. TradeFrom may not precede ScanTo, so every traded bar is out of sample.
type Window struct {
	ScanFrom  int
	ScanTo    int
	TradeFrom int
}

// SplitWindow returns the train/test window for trainPct of n rows.
func SplitWindow(n int, trainPct float64) Window {
	split := int(float64(n) * trainPct)
	return Window{ScanFrom: 0, ScanTo: split, TradeFrom: split}
}

// Result is everything a run produced.
type Result struct {
	Pairs           []cointegration.CointegratedPair
	Trades          []engine.TradeRecord
	Snapshots       []engine.PortfolioSnapshot
	Benchmark       []benchmark.Point
	BenchmarkReturn float64 // equal-weight buy-and-hold over the trade rows
	Metrics         report.Metrics
	Monitoring      monitor.Summary
	Alerts          []string
	Rescans         int
	Signals         int
	DetectedTrue    int
	Precision       float64
	TrainDays       int
	TestDays        int
}

// Pipeline owns one scanner, tracker, generator, engine and monitor per run.
type Pipeline struct {
	cfg      *config.Config
	notifier alert.Notifier
}

// NewPipeline creates a pipeline. A nil notifier logs alerts.
func NewPipeline(cfg *config.Config, notifier alert.Notifier) *Pipeline {
	return &Pipeline{cfg: cfg, notifier: notifier}
}

// Run splits prices by the configured train fraction and simulates.
func (p *Pipeline) Run(ctx context.Context, prices *marketdata.PriceMatrix, truth []marketdata.TruePair) (*Result, error) {
	return p.Simulate(ctx, prices, SplitWindow(prices.Len(), p.cfg.Backtest.TrainPct), truth)
}

// Simulate scans the window's scan rows, then steps through the trade rows:
// signals for every tracked pair, execution in pair-id order, one
// mark-to-market, then monitoring. With rescans enabled the pair set is
// refreshed every RescanIntervalDays from the trailing rows ending at the
// current bar. Finding no pairs is not an error.
func (p *Pipeline) Simulate(ctx context.Context, prices *marketdata.PriceMatrix, w Window, truth []marketdata.TruePair) (*Result, error) {
	if err := validateWindow(w, prices.Len()); err != nil {
		return nil, err
	}

	scanner := cointegration.NewScanner(p.cfg.Coint)
	pairs, err := scanner.Scan(ctx, prices.Slice(w.ScanFrom, w.ScanTo))
	if err != nil {
		return nil, err
	}

	res := &Result{
		Pairs:     pairs,
		TrainDays: w.ScanTo - w.ScanFrom,
		TestDays:  prices.Len() - w.TradeFrom,
	}
	res.DetectedTrue, res.Precision = detectionPrecision(pairs, truth)
	logger.Infow("backtest_started",
		"pairs", len(pairs),
		"train_days", res.TrainDays,
		"test_days", res.TestDays,
		"rescan", bool(p.cfg.Coint.RescanEnabled),
	)
	if len(pairs) == 0 {
		logger.Warn("No cointegrated pairs found in the scan window.")
	}

	tracker := kalman.NewTracker(p.cfg.Kalman)
	gen := signal.NewGenerator(pairs, p.cfg.Trading, tracker)
	eng := engine.NewExecutionEngine(p.cfg.Trading)
	mon := monitor.NewService(p.cfg.Monitoring, p.notifier)
	bench := benchmark.NewTracker(p.cfg.Trading.InitialCapital)

	lookback := w.ScanTo - w.ScanFrom
	if lookback < p.cfg.Coint.MinHistoryDays {
		lookback = p.cfg.Coint.MinHistoryDays
	}

	ticks := 0
	btStart := time.Now()
	for t := w.TradeFrom; t < prices.Len(); t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step := t - w.TradeFrom
		stepStart := time.Now()

		if p.rescanDue(step) && t >= lookback {
			rescanned, err := scanner.Scan(ctx, prices.Slice(t-lookback, t))
			if err != nil {
				return nil, err
			}
			gen.SetPairs(rescanned)
			res.Rescans++
		}

		row := prices.Row(t)
		ts := prices.Timestamps[t]
		signals, err := gen.ProcessBar(row, ts)
		if err != nil {
			return nil, fmt.Errorf("bar %d: %w", t, err)
		}
		for _, sig := range signals {
			if _, err := eng.ExecuteSignal(sig, row[sig.SymbolA], row[sig.SymbolB]); err != nil {
				return nil, fmt.Errorf("bar %d: %w", t, err)
			}
			mon.RecordSignal(sig.LatencyMs, sig.Type)
		}
		res.Signals += len(signals)

		snap, err := eng.MarkToMarket(row, ts)
		if err != nil {
			return nil, fmt.Errorf("bar %d: %w", t, err)
		}
		if err := bench.Tick(row, ts); err != nil {
			return nil, fmt.Errorf("bar %d: %w", t, err)
		}
		mon.CheckDrawdown(snap.Drawdown)
		mon.RecordTick(float64(time.Since(stepStart).Microseconds()) / 1000)
		ticks += len(prices.Symbols)

		if (step+1)%progressEvery == 0 {
			logger.Infof("Day %d/%d: equity=%.0f positions=%d trades=%d",
				step+1, res.TestDays, snap.Equity, snap.NPositions, len(eng.Trades()))
		}
	}
	elapsed := time.Since(btStart)
	if secs := elapsed.Seconds(); secs > 0 {
		mon.CheckThroughput(float64(ticks)/secs, 0)
	}

	res.Trades = eng.Trades()
	res.Snapshots = eng.Snapshots()
	res.Benchmark = bench.Points()
	res.BenchmarkReturn = bench.Return()
	res.Metrics = report.Compute(res.Snapshots, res.Trades, report.Options{
		TicksProcessed: ticks,
		Elapsed:        elapsed,
		RiskFreeRate:   p.cfg.Backtest.RiskFreeRate,
	})
	res.Monitoring = mon.Summary()
	res.Alerts = mon.Alerts()

	logger.Infow("backtest_complete",
		"trades", len(res.Trades),
		"signals", res.Signals,
		"rescans", res.Rescans,
		"final_equity", eng.Equity(),
		"total_pnl", eng.TotalPnL(),
	)
	return res, nil
}

func (p *Pipeline) rescanDue(step int) bool {
	c := p.cfg.Coint
	return bool(c.RescanEnabled) && c.RescanIntervalDays > 0 && step > 0 && step%c.RescanIntervalDays == 0
}

func validateWindow(w Window, n int) error {
	if w.ScanFrom < 0 || w.ScanFrom > w.ScanTo || w.ScanTo > n {
		return fmt.Errorf("scan window [%d, %d) out of range for %d rows", w.ScanFrom, w.ScanTo, n)
	}
	if w.TradeFrom < 0 || w.TradeFrom >= n {
		return fmt.Errorf("trade start %d out of range for %d rows", w.TradeFrom, n)
	}
	if w.TradeFrom < w.ScanTo {
		return fmt.Errorf("trade start %d overlaps scan window [%d, %d)", w.TradeFrom, w.ScanFrom, w.ScanTo)
	}
	return nil
}

// detectionPrecision counts detected pairs that match a ground-truth pair
// in either orientation.
func detectionPrecision(pairs []cointegration.CointegratedPair, truth []marketdata.TruePair) (int, float64) {
	if len(pairs) == 0 || len(truth) == 0 {
		return 0, 0
	}
	known := make(map[[2]string]struct{}, 2*len(truth))
	for _, tp := range truth {
		known[[2]string{tp.SymbolA, tp.SymbolB}] = struct{}{}
		known[[2]string{tp.SymbolB, tp.SymbolA}] = struct{}{}
	}
	hits := 0
	for _, p := range pairs {
		if _, ok := known[[2]string{p.SymbolA, p.SymbolB}]; ok {
			hits++
		}
	}
	return hits, float64(hits) / float64(len(pairs))
}
