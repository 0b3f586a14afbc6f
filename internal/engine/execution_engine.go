// Package engine simulates pair-trade execution with frictions and tracks
// the resulting portfolio.
package engine

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/your-org/statarb-pairs/internal/config"
	"github.com/your-org/statarb-pairs/internal/marketdata"
	"github.com/your-org/statarb-pairs/internal/pnl"
	"github.com/your-org/statarb-pairs/internal/position"
	"github.com/your-org/statarb-pairs/internal/signal"
	"github.com/your-org/statarb-pairs/pkg/logger"
)

// tradeNamespace seeds the name-based trade ids so that replays produce the
// same ids.
var tradeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("statarb-pairs/trades"))

// ExitReason records why a position was closed.
type ExitReason int

const (
	// MeanReversion is a close on an Exit signal.
	MeanReversion ExitReason = iota
	// StopLossExit is a close on a StopLoss signal.
	StopLossExit
)

// String returns the string representation of ExitReason.
func (r ExitReason) String() string {
	switch r {
	case MeanReversion:
		return "mean_reversion"
	case StopLossExit:
		return "stop_loss"
	default:
		return "unknown"
	}
}

// TradeRecord is written once when a position closes.
type TradeRecord struct {
	TradeID     string
	PairID      string
	SymbolA     string
	SymbolB     string
	Direction   position.Direction
	EntryTime   time.Time
	ExitTime    time.Time
	EntrySpread float64
	ExitSpread  float64
	EntryZScore float64
	ExitZScore  float64
	PnL         float64 // net of entry and exit frictions
	ReturnPct   float64 // PnL over entry notional
	HoldingDays int
	ExitReason  ExitReason
}

// PortfolioSnapshot is one mark-to-market result.
type PortfolioSnapshot struct {
	Timestamp      time.Time
	Equity         float64
	Cash           float64
	PositionsValue float64
	DailyReturn    float64
	Drawdown       float64
	NPositions     int
	NTradesToday   int
}

// ExecutionEngine owns cash, open positions and the trade log. All methods
// are safe for concurrent use; state changes are serialized.
type ExecutionEngine struct {
	maxPositionPct float64
	maxPairs       int
	commission     float64 // fraction of leg notional
	slippage       float64 // fraction of price

	mu             sync.Mutex
	initialCapital float64
	cash           float64
	positions      map[string]*position.PairPosition
	trades         []TradeRecord
	snapshots      []PortfolioSnapshot
	peakEquity     float64
	prevEquity     float64
	fillsSinceMark int
	pnlCalculator  *pnl.Calculator
}

// NewExecutionEngine creates an engine funded with cfg.InitialCapital.
func NewExecutionEngine(cfg config.TradingConfig) *ExecutionEngine {
	return &ExecutionEngine{
		maxPositionPct: cfg.MaxPositionPct,
		maxPairs:       cfg.MaxPairsActive,
		commission:     cfg.CommissionBps.Fraction(),
		slippage:       cfg.SlippageBps.Fraction(),
		initialCapital: cfg.InitialCapital,
		cash:           cfg.InitialCapital,
		positions:      make(map[string]*position.PairPosition),
		peakEquity:     cfg.InitialCapital,
		prevEquity:     cfg.InitialCapital,
		pnlCalculator:  pnl.NewCalculator(),
	}
}

// ExecuteSignal applies one signal at the given prices. It returns the
// trade record when a position is closed. Business-rule rejections
// (position already open, capacity reached, zero sizing, nothing to close)
// return (nil, nil). Invalid prices return an error.
func (e *ExecutionEngine) ExecuteSignal(sig signal.TradingSignal, priceA, priceB float64) (*TradeRecord, error) {
	if sig.Type == signal.Hold {
		return nil, nil
	}
	if err := checkPrice(sig.SymbolA, priceA); err != nil {
		return nil, fmt.Errorf("execute %s %s: %w", sig.Type, sig.PairID, err)
	}
	if err := checkPrice(sig.SymbolB, priceB); err != nil {
		return nil, fmt.Errorf("execute %s %s: %w", sig.Type, sig.PairID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch sig.Type {
	case signal.EnterLong:
		e.open(sig, position.LongSpread, priceA, priceB)
		return nil, nil
	case signal.EnterShort:
		e.open(sig, position.ShortSpread, priceA, priceB)
		return nil, nil
	case signal.Exit:
		return e.close(sig, MeanReversion, priceA, priceB), nil
	case signal.StopLoss:
		return e.close(sig, StopLossExit, priceA, priceB), nil
	case signal.Hold:
		return nil, nil
	default:
		panic(fmt.Sprintf("engine: unhandled signal type %d", int(sig.Type)))
	}
}

func (e *ExecutionEngine) open(sig signal.TradingSignal, dir position.Direction, priceA, priceB float64) {
	if _, ok := e.positions[sig.PairID]; ok {
		return
	}
	if len(e.positions) >= e.maxPairs {
		logger.Debugf("entry for %s rejected: %d/%d pairs active", sig.PairID, len(e.positions), e.maxPairs)
		return
	}

	notional := e.equityLocked() * e.maxPositionPct
	hedge := math.Abs(sig.HedgeRatio)
	qtyA := sizeLeg(notional, priceA, 1)
	qtyB := sizeLeg(notional, priceB, hedge)
	if qtyA <= 0 || qtyB <= 0 {
		logger.Debugf("entry for %s rejected: sized to zero (qtyA=%d, qtyB=%d)", sig.PairID, qtyA, qtyB)
		return
	}

	pos, err := position.New(sig.PairID, sig.SymbolA, sig.SymbolB, dir, qtyA, qtyB, priceA, priceB)
	if err != nil {
		return
	}
	pos.HedgeRatio = sig.HedgeRatio
	pos.EntrySpread = sig.Spread
	pos.EntryZScore = sig.ZScore
	pos.EntryTime = sig.Timestamp

	gross := pos.EntryNotional()
	pos.EntryCosts = gross*e.slippage + gross*e.commission
	e.cash -= pos.EntryCosts
	e.positions[sig.PairID] = pos
	e.fillsSinceMark++

	logger.Infow("position_opened",
		"pair", sig.PairID,
		"direction", dir.String(),
		"z", math.Round(sig.ZScore*100)/100,
		"qty_a", pos.QtyA,
		"qty_b", pos.QtyB,
	)
}

func (e *ExecutionEngine) close(sig signal.TradingSignal, reason ExitReason, priceA, priceB float64) *TradeRecord {
	pos, ok := e.positions[sig.PairID]
	if !ok {
		return nil
	}
	delete(e.positions, sig.PairID)

	fillA := e.exitFill(pos.QtyA, priceA)
	fillB := e.exitFill(pos.QtyB, priceB)
	exitCommission := pos.Notional(priceA, priceB) * e.commission
	realized := pnl.LegPnL(pos.QtyA, pos.EntryPriceA, fillA) + pnl.LegPnL(pos.QtyB, pos.EntryPriceB, fillB) - exitCommission
	e.cash += realized
	e.fillsSinceMark++

	net := realized - pos.EntryCosts
	e.pnlCalculator.UpdateRealizedPnL(net)

	trade := TradeRecord{
		PairID:      pos.PairID,
		SymbolA:     pos.SymbolA,
		SymbolB:     pos.SymbolB,
		Direction:   pos.Direction,
		EntryTime:   pos.EntryTime,
		ExitTime:    sig.Timestamp,
		EntrySpread: pos.EntrySpread,
		ExitSpread:  sig.Spread,
		EntryZScore: pos.EntryZScore,
		ExitZScore:  sig.ZScore,
		PnL:         net,
		HoldingDays: holdingDays(pos.EntryTime, sig.Timestamp),
		ExitReason:  reason,
	}
	if n := pos.EntryNotional(); n > 0 {
		trade.ReturnPct = net / n
	}
	trade.TradeID = uuid.NewSHA1(tradeNamespace, []byte(fmt.Sprintf("%s|%d|%d|%d",
		trade.PairID, trade.EntryTime.UnixNano(), trade.ExitTime.UnixNano(), len(e.trades)))).String()
	e.trades = append(e.trades, trade)

	logger.Infow("position_closed",
		"pair", pos.PairID,
		"pnl", math.Round(net),
		"exit", reason.String(),
		"holding_days", trade.HoldingDays,
	)
	return &trade
}

// exitFill returns the slipped price at which qty is unwound: longs sell
// below the mid, shorts buy back above it.
func (e *ExecutionEngine) exitFill(qty int64, price float64) float64 {
	if qty > 0 {
		return price * (1 - e.slippage)
	}
	return price * (1 + e.slippage)
}

// MarkToMarket re-values every open position at prices and records a
// snapshot. A missing or non-positive price for an open leg is an error
// and leaves the engine unchanged.
func (e *ExecutionEngine) MarkToMarket(prices marketdata.Row, ts time.Time) (PortfolioSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := e.sortedIDsLocked()
	marks := make([]float64, len(ids))
	for i, id := range ids {
		pos := e.positions[id]
		pa, err := prices.Price(pos.SymbolA)
		if err != nil {
			return PortfolioSnapshot{}, fmt.Errorf("mark %s at %s: %w", id, ts.Format(time.DateOnly), err)
		}
		pb, err := prices.Price(pos.SymbolB)
		if err != nil {
			return PortfolioSnapshot{}, fmt.Errorf("mark %s at %s: %w", id, ts.Format(time.DateOnly), err)
		}
		marks[i] = pos.Mark(pa, pb)
	}

	value := 0.0
	for i, id := range ids {
		e.positions[id].UnrealizedPnL = marks[i]
		value += marks[i]
	}

	equity := e.cash + value
	daily := 0.0
	if e.prevEquity > 0 {
		daily = equity/e.prevEquity - 1
	}
	e.peakEquity = math.Max(e.peakEquity, equity)
	drawdown := 0.0
	if e.peakEquity > 0 {
		drawdown = math.Max(1-equity/e.peakEquity, 0)
	}

	snap := PortfolioSnapshot{
		Timestamp:      ts,
		Equity:         equity,
		Cash:           e.cash,
		PositionsValue: value,
		DailyReturn:    daily,
		Drawdown:       drawdown,
		NPositions:     len(e.positions),
		NTradesToday:   e.fillsSinceMark,
	}
	e.snapshots = append(e.snapshots, snap)
	e.prevEquity = equity
	e.fillsSinceMark = 0
	return snap, nil
}

// Cash returns the current cash balance.
func (e *ExecutionEngine) Cash() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cash
}

// Equity returns cash plus the unrealized P&L as of the last mark.
func (e *ExecutionEngine) Equity() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.equityLocked()
}

// InitialCapital returns the starting cash.
func (e *ExecutionEngine) InitialCapital() float64 {
	return e.initialCapital
}

// PeakEquity returns the running equity peak.
func (e *ExecutionEngine) PeakEquity() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peakEquity
}

// Positions returns copies of the open positions ordered by pair id.
func (e *ExecutionEngine) Positions() []position.PairPosition {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := e.sortedIDsLocked()
	out := make([]position.PairPosition, len(ids))
	for i, id := range ids {
		out[i] = *e.positions[id]
	}
	return out
}

// Position returns a copy of the open position for pairID.
func (e *ExecutionEngine) Position(pairID string) (position.PairPosition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.positions[pairID]
	if !ok {
		return position.PairPosition{}, false
	}
	return *p, true
}

// Trades returns a copy of the trade log.
func (e *ExecutionEngine) Trades() []TradeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]TradeRecord(nil), e.trades...)
}

// Snapshots returns a copy of the snapshot series.
func (e *ExecutionEngine) Snapshots() []PortfolioSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]PortfolioSnapshot(nil), e.snapshots...)
}

// TotalPnL returns the summed net P&L of closed trades.
func (e *ExecutionEngine) TotalPnL() float64 {
	return e.pnlCalculator.GetRealizedPnL()
}

func (e *ExecutionEngine) equityLocked() float64 {
	eq := e.cash
	for _, p := range e.positions {
		eq += p.UnrealizedPnL
	}
	return eq
}

func (e *ExecutionEngine) sortedIDsLocked() []string {
	ids := make([]string, 0, len(e.positions))
	for id := range e.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sizeLeg returns floor(notional / (2·price·hedge)), or 0 when the
// denominator is unusable.
func sizeLeg(notional, price, hedge float64) int64 {
	denom := 2 * price * hedge
	if !(denom > 0) || math.IsInf(denom, 0) || !(notional > 0) {
		return 0
	}
	q := math.Floor(notional / denom)
	if q > math.MaxInt64/2 {
		return 0
	}
	return int64(q)
}

func holdingDays(entry, exit time.Time) int {
	if entry.IsZero() || exit.Before(entry) {
		return 0
	}
	return int(exit.Sub(entry).Hours() / 24)
}

func checkPrice(symbol string, p float64) error {
	if !(p > 0) || math.IsInf(p, 0) {
		return fmt.Errorf("%w: %s=%v", marketdata.ErrNonPositivePrice, symbol, p)
	}
	return nil
}
