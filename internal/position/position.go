// Package position holds the state of an open pair trade.
package position

import (
	"fmt"
	"math"
	"time"

	"github.com/your-org/statarb-pairs/internal/pnl"
)

// Direction is the side of a spread position.
type Direction int

const (
	// LongSpread is long A and short B.
	LongSpread Direction = iota
	// ShortSpread is short A and long B.
	ShortSpread
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	switch d {
	case LongSpread:
		return "long_spread"
	case ShortSpread:
		return "short_spread"
	default:
		return "unknown"
	}
}

// PairPosition is one open pair trade. QtyA and QtyB always carry opposite
// signs. Entry prices are mid prices; entry frictions are tracked in
// EntryCosts.
type PairPosition struct {
	PairID        string
	SymbolA       string
	SymbolB       string
	QtyA          int64
	QtyB          int64
	EntryPriceA   float64
	EntryPriceB   float64
	HedgeRatio    float64
	EntrySpread   float64
	EntryZScore   float64
	EntryTime     time.Time
	Direction     Direction
	EntryCosts    float64 // slippage + commission paid on entry
	UnrealizedPnL float64
}

// New builds a position of the given direction from unsigned leg sizes.
// It returns an error if a size is not positive.
func New(pairID, symA, symB string, dir Direction, qtyA, qtyB int64, priceA, priceB float64) (*PairPosition, error) {
	if qtyA <= 0 || qtyB <= 0 {
		return nil, fmt.Errorf("position %s: leg sizes must be positive (got %d, %d)", pairID, qtyA, qtyB)
	}
	p := &PairPosition{
		PairID:      pairID,
		SymbolA:     symA,
		SymbolB:     symB,
		EntryPriceA: priceA,
		EntryPriceB: priceB,
		Direction:   dir,
	}
	switch dir {
	case LongSpread:
		p.QtyA, p.QtyB = qtyA, -qtyB
	case ShortSpread:
		p.QtyA, p.QtyB = -qtyA, qtyB
	default:
		return nil, fmt.Errorf("position %s: unknown direction %d", pairID, dir)
	}
	return p, nil
}

// Mark returns the unrealized P&L at the given prices. It does not update
// UnrealizedPnL; the caller commits the mark.
func (p *PairPosition) Mark(priceA, priceB float64) float64 {
	return pnl.LegPnL(p.QtyA, p.EntryPriceA, priceA) + pnl.LegPnL(p.QtyB, p.EntryPriceB, priceB)
}

// EntryNotional is the gross dollar exposure at entry.
func (p *PairPosition) EntryNotional() float64 {
	return math.Abs(float64(p.QtyA))*p.EntryPriceA + math.Abs(float64(p.QtyB))*p.EntryPriceB
}

// Notional is the gross dollar exposure at the given prices.
func (p *PairPosition) Notional(priceA, priceB float64) float64 {
	return math.Abs(float64(p.QtyA))*priceA + math.Abs(float64(p.QtyB))*priceB
}

// String returns a string representation of the position.
func (p *PairPosition) String() string {
	return fmt.Sprintf("PairPosition{%s %s, QtyA: %d @ %.2f, QtyB: %d @ %.2f, uPnL: %.2f}",
		p.PairID, p.Direction, p.QtyA, p.EntryPriceA, p.QtyB, p.EntryPriceB, p.UnrealizedPnL)
}
