// Package marketdata holds the price table types shared by the scanner,
// the signal generator and the backtest driver, plus a synthetic universe
// generator for simulations and tests.
package marketdata

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrMissingPrice is returned when a symbol has no price in a row.
	ErrMissingPrice = errors.New("missing price")
	// ErrNonPositivePrice is returned when a price is zero, negative or not finite.
	ErrNonPositivePrice = errors.New("non-positive price")
	// ErrShapeMismatch is returned when matrix dimensions disagree.
	ErrShapeMismatch = errors.New("price matrix shape mismatch")
)

// Row is a total mapping symbol -> price for one timestamp.
type Row map[string]float64

// Price returns the price for symbol, or a wrapped ErrMissingPrice /
// ErrNonPositivePrice.
func (r Row) Price(symbol string) (float64, error) {
	p, ok := r[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingPrice, symbol)
	}
	if !(p > 0) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("%w: %s=%v", ErrNonPositivePrice, symbol, p)
	}
	return p, nil
}

// PriceMatrix is a dense timestamp x symbol table. Symbol order is the column
// order the data was loaded with and is what every consumer iterates in.
type PriceMatrix struct {
	Timestamps []time.Time
	Symbols    []string
	// Values[i][j] is the price of Symbols[j] at Timestamps[i].
	Values [][]float64

	index map[string]int
}

// NewPriceMatrix builds a matrix and checks its shape. It does not check
// price positivity; call Validate for that.
func NewPriceMatrix(timestamps []time.Time, symbols []string, values [][]float64) (*PriceMatrix, error) {
	if len(values) != len(timestamps) {
		return nil, fmt.Errorf("%w: %d timestamps, %d rows", ErrShapeMismatch, len(timestamps), len(values))
	}
	index := make(map[string]int, len(symbols))
	for j, s := range symbols {
		if _, dup := index[s]; dup {
			return nil, fmt.Errorf("%w: duplicate symbol %s", ErrShapeMismatch, s)
		}
		index[s] = j
	}
	for i, row := range values {
		if len(row) != len(symbols) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShapeMismatch, i, len(row), len(symbols))
		}
	}
	return &PriceMatrix{
		Timestamps: timestamps,
		Symbols:    symbols,
		Values:     values,
		index:      index,
	}, nil
}

// Len returns the number of timestamps.
func (m *PriceMatrix) Len() int {
	return len(m.Timestamps)
}

// Has reports whether the matrix carries a column for symbol.
func (m *PriceMatrix) Has(symbol string) bool {
	_, ok := m.index[symbol]
	return ok
}

// Column returns a copy of the price series for symbol.
func (m *PriceMatrix) Column(symbol string) ([]float64, bool) {
	j, ok := m.index[symbol]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(m.Values))
	for i, row := range m.Values {
		out[i] = row[j]
	}
	return out, true
}

// Row returns the prices at index i as a Row.
func (m *PriceMatrix) Row(i int) Row {
	row := make(Row, len(m.Symbols))
	for j, s := range m.Symbols {
		row[s] = m.Values[i][j]
	}
	return row
}

// Slice returns the rows in [from, to). The returned matrix shares the
// underlying price rows.
func (m *PriceMatrix) Slice(from, to int) *PriceMatrix {
	if from < 0 {
		from = 0
	}
	if to > len(m.Timestamps) {
		to = len(m.Timestamps)
	}
	if from > to {
		from = to
	}
	return &PriceMatrix{
		Timestamps: m.Timestamps[from:to],
		Symbols:    m.Symbols,
		Values:     m.Values[from:to],
		index:      m.index,
	}
}

// Validate checks that every entry is a finite positive price.
func (m *PriceMatrix) Validate() error {
	for i, row := range m.Values {
		for j, p := range row {
			if !(p > 0) || math.IsInf(p, 0) {
				return fmt.Errorf("%w: %s at %s = %v", ErrNonPositivePrice, m.Symbols[j], m.Timestamps[i].Format("2006-01-02"), p)
			}
		}
	}
	return nil
}
