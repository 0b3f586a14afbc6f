// Package pnl accumulates realized profit and computes leg-level P&L.
package pnl

import (
	"sync"
)

// Calculator handles PnL calculations.
type Calculator struct {
	RealizedPnL float64
	Trades      int
	Wins        int
	mutex       sync.RWMutex
}

// NewCalculator creates a new PnL Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// UpdateRealizedPnL books the net result of one closed trade.
func (c *Calculator) UpdateRealizedPnL(pnl float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.RealizedPnL += pnl
	c.Trades++
	if pnl > 0 {
		c.Wins++
	}
}

// GetRealizedPnL returns the current realized PnL.
func (c *Calculator) GetRealizedPnL() float64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.RealizedPnL
}

// WinRate returns the fraction of booked trades with positive P&L.
func (c *Calculator) WinRate() float64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if c.Trades == 0 {
		return 0
	}
	return float64(c.Wins) / float64(c.Trades)
}

// LegPnL returns qty·(price − entry) for a signed quantity.
func LegPnL(qty int64, entry, price float64) float64 {
	if qty == 0 {
		return 0
	}
	return float64(qty) * (price - entry)
}
