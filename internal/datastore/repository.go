// Package datastore loads historical price tables for the scanner and the
// backtest driver, from CSV files or from the daily_prices hypertable.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/your-org/statarb-pairs/internal/marketdata"
)

// ErrDuplicatePrice is returned when a symbol has two prices at one timestamp.
var ErrDuplicatePrice = errors.New("duplicate price")

// PriceRecord is one (time, symbol, price) observation.
type PriceRecord struct {
	Time   time.Time
	Symbol string
	Price  float64
}

// Repository fetches dense price matrices.
type Repository interface {
	// FetchSymbols lists every symbol with at least one price.
	FetchSymbols(ctx context.Context) ([]string, error)
	// FetchPriceMatrix returns prices in [start, end) for the given symbols,
	// or for every symbol when symbols is empty.
	FetchPriceMatrix(ctx context.Context, symbols []string, start, end time.Time) (*marketdata.PriceMatrix, error)
}

// PgxPoolIface is the subset of *pgxpool.Pool the repository needs.
type PgxPoolIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TimescaleRepository reads prices from TimescaleDB.
type TimescaleRepository struct {
	db PgxPoolIface
}

// NewTimescaleRepository creates a new TimescaleRepository.
func NewTimescaleRepository(db PgxPoolIface) *TimescaleRepository {
	return &TimescaleRepository{db: db}
}

const (
	symbolsQuery = `SELECT DISTINCT symbol FROM daily_prices ORDER BY symbol ASC;`

	pricesQuery = `
        SELECT time, symbol, price
        FROM daily_prices
        WHERE time >= $1 AND time < $2
        ORDER BY time ASC, symbol ASC;
    `

	pricesForSymbolsQuery = `
        SELECT time, symbol, price
        FROM daily_prices
        WHERE symbol = ANY($1) AND time >= $2 AND time < $3
        ORDER BY time ASC, symbol ASC;
    `
)

// FetchSymbols lists the distinct symbols in daily_prices.
func (r *TimescaleRepository) FetchSymbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, symbolsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// FetchPriceMatrix loads and pivots prices. A gap for any requested symbol
// is an error.
func (r *TimescaleRepository) FetchPriceMatrix(ctx context.Context, symbols []string, start, end time.Time) (*marketdata.PriceMatrix, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(symbols) == 0 {
		rows, err = r.db.Query(ctx, pricesQuery, start, end)
	} else {
		rows, err = r.db.Query(ctx, pricesForSymbolsQuery, symbols, start, end)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer rows.Close()

	var records []PriceRecord
	for rows.Next() {
		var rec PriceRecord
		if err := rows.Scan(&rec.Time, &rec.Symbol, &rec.Price); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return PivotPrices(records, symbols)
}

// PivotPrices turns long records into a dense matrix. Timestamps are sorted
// ascending. Columns follow symbols when given, otherwise the sorted set of
// symbols present in records.
func PivotPrices(records []PriceRecord, symbols []string) (*marketdata.PriceMatrix, error) {
	if len(symbols) == 0 {
		seen := make(map[string]struct{})
		for _, rec := range records {
			if _, ok := seen[rec.Symbol]; !ok {
				seen[rec.Symbol] = struct{}{}
				symbols = append(symbols, rec.Symbol)
			}
		}
		sort.Strings(symbols)
	}
	col := make(map[string]int, len(symbols))
	for j, s := range symbols {
		col[s] = j
	}

	byTime := make(map[time.Time][]float64)
	filled := make(map[time.Time][]bool)
	var timestamps []time.Time
	for _, rec := range records {
		j, ok := col[rec.Symbol]
		if !ok {
			continue
		}
		ts := rec.Time.UTC()
		row, ok := byTime[ts]
		if !ok {
			row = make([]float64, len(symbols))
			byTime[ts] = row
			filled[ts] = make([]bool, len(symbols))
			timestamps = append(timestamps, ts)
		}
		if filled[ts][j] {
			return nil, fmt.Errorf("%w: %s at %s", ErrDuplicatePrice, rec.Symbol, ts.Format(time.RFC3339))
		}
		row[j] = rec.Price
		filled[ts][j] = true
	}

	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })
	values := make([][]float64, len(timestamps))
	for i, ts := range timestamps {
		for j, ok := range filled[ts] {
			if !ok {
				return nil, fmt.Errorf("%w: %s at %s", marketdata.ErrMissingPrice, symbols[j], ts.Format("2006-01-02"))
			}
		}
		values[i] = byTime[ts]
	}

	m, err := marketdata.NewPriceMatrix(timestamps, symbols, values)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
