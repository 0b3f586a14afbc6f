// Package benchmark tracks an equal-weight buy-and-hold portfolio of the
// whole universe, for comparison against the strategy's equity curve.
package benchmark

import (
	"fmt"
	"sort"
	"time"

	"github.com/your-org/statarb-pairs/internal/marketdata"
)

// Point is one benchmark valuation.
type Point struct {
	Timestamp time.Time
	Equity    float64
}

// Tracker buys capital/n of every symbol on the first tick and holds.
type Tracker struct {
	capital float64
	symbols []string
	units   []float64
	points  []Point
}

// NewTracker creates a tracker that invests capital on its first tick.
func NewTracker(capital float64) *Tracker {
	return &Tracker{capital: capital}
}

// Tick values the portfolio at row. Symbols that appear after the first
// tick are ignored.
func (t *Tracker) Tick(row marketdata.Row, ts time.Time) error {
	if t.symbols == nil {
		if err := t.buy(row); err != nil {
			return err
		}
	}
	equity := 0.0
	for i, sym := range t.symbols {
		p, err := row.Price(sym)
		if err != nil {
			return fmt.Errorf("benchmark: %w", err)
		}
		equity += t.units[i] * p
	}
	t.points = append(t.points, Point{Timestamp: ts, Equity: equity})
	return nil
}

func (t *Tracker) buy(row marketdata.Row) error {
	if len(row) == 0 {
		return fmt.Errorf("benchmark: empty first row")
	}
	symbols := make([]string, 0, len(row))
	for sym := range row {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	alloc := t.capital / float64(len(symbols))
	units := make([]float64, len(symbols))
	for i, sym := range symbols {
		p, err := row.Price(sym)
		if err != nil {
			return fmt.Errorf("benchmark: %w", err)
		}
		units[i] = alloc / p
	}
	t.symbols, t.units = symbols, units
	return nil
}

// Points returns a copy of the valuations so far.
func (t *Tracker) Points() []Point {
	return append([]Point(nil), t.points...)
}

// Return is the total return from the first to the last valuation.
func (t *Tracker) Return() float64 {
	if len(t.points) < 2 || t.points[0].Equity <= 0 {
		return 0
	}
	return t.points[len(t.points)-1].Equity/t.points[0].Equity - 1
}
