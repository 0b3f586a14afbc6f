package dbwriter

import (
	"context"
	"sync"
	"time"

	"github.com/your-org/statarb-pairs/internal/cointegration"
	"github.com/your-org/statarb-pairs/internal/engine"
)

// PairScan is one SavePairs call recorded by InMemWriter.
type PairScan struct {
	RunID     string
	ScannedAt time.Time
	Pairs     []cointegration.CointegratedPair
}

// InMemWriter is an in-memory implementation of the Repository interface for testing.
type InMemWriter struct {
	mu        sync.RWMutex
	Snapshots map[string][]engine.PortfolioSnapshot
	Trades    map[string][]engine.TradeRecord
	Scans     []PairScan
	IsClosed  bool
}

// NewInMemWriter creates a new InMemWriter.
func NewInMemWriter() *InMemWriter {
	return &InMemWriter{
		Snapshots: make(map[string][]engine.PortfolioSnapshot),
		Trades:    make(map[string][]engine.TradeRecord),
	}
}

// SaveSnapshots appends snapshots under runID.
func (w *InMemWriter) SaveSnapshots(ctx context.Context, runID string, snapshots []engine.PortfolioSnapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Snapshots[runID] = append(w.Snapshots[runID], snapshots...)
	return nil
}

// SaveTrades appends trades under runID.
func (w *InMemWriter) SaveTrades(ctx context.Context, runID string, trades []engine.TradeRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Trades[runID] = append(w.Trades[runID], trades...)
	return nil
}

// SavePairs records the scan.
func (w *InMemWriter) SavePairs(ctx context.Context, runID string, scannedAt time.Time, pairs []cointegration.CointegratedPair) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Scans = append(w.Scans, PairScan{
		RunID:     runID,
		ScannedAt: scannedAt,
		Pairs:     append([]cointegration.CointegratedPair(nil), pairs...),
	})
	return nil
}

// Close marks the writer as closed.
func (w *InMemWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.IsClosed = true
	return nil
}

// Clear resets all the in-memory state.
func (w *InMemWriter) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Snapshots = make(map[string][]engine.PortfolioSnapshot)
	w.Trades = make(map[string][]engine.TradeRecord)
	w.Scans = nil
	w.IsClosed = false
}
