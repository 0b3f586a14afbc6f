package datastore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/your-org/statarb-pairs/internal/marketdata"
)

// InMemRepository is an in-memory implementation of the Repository interface for testing.
type InMemRepository struct {
	mu      sync.RWMutex
	records []PriceRecord
}

// NewInMemRepository creates a new InMemRepository.
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{}
}

// SeedRecords allows adding prices for test setup.
func (r *InMemRepository) SeedRecords(records []PriceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
}

// SeedMatrix adds every cell of m.
func (r *InMemRepository) SeedMatrix(m *marketdata.PriceMatrix) {
	records := make([]PriceRecord, 0, m.Len()*len(m.Symbols))
	for i, ts := range m.Timestamps {
		for j, sym := range m.Symbols {
			records = append(records, PriceRecord{Time: ts, Symbol: sym, Price: m.Values[i][j]})
		}
	}
	r.SeedRecords(records)
}

// FetchSymbols returns the sorted distinct symbols.
func (r *InMemRepository) FetchSymbols(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var symbols []string
	for _, rec := range r.records {
		if _, ok := seen[rec.Symbol]; !ok {
			seen[rec.Symbol] = struct{}{}
			symbols = append(symbols, rec.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// FetchPriceMatrix filters the stored records and pivots them.
func (r *InMemRepository) FetchPriceMatrix(ctx context.Context, symbols []string, start, end time.Time) (*marketdata.PriceMatrix, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []PriceRecord
	for _, rec := range r.records {
		if rec.Time.Before(start) || !rec.Time.Before(end) {
			continue
		}
		result = append(result, rec)
	}
	return PivotPrices(result, symbols)
}

// Clear clears all data from the in-memory repository.
func (r *InMemRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}
