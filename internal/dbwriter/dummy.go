package dbwriter

import (
	"context"
	"time"

	"github.com/your-org/statarb-pairs/internal/cointegration"
	"github.com/your-org/statarb-pairs/internal/engine"
	"github.com/your-org/statarb-pairs/pkg/logger"
)

// dummyWriter is a no-op implementation of the Repository interface.
// It is used when the database export is disabled.
type dummyWriter struct {
	logger logger.Logger
}

// NewDummyWriter creates a new dummy writer.
func NewDummyWriter(l logger.Logger) Repository {
	l.Info("Creating dummy DB writer because database export is disabled.")
	return &dummyWriter{logger: l}
}

func (d *dummyWriter) SaveSnapshots(ctx context.Context, runID string, snapshots []engine.PortfolioSnapshot) error {
	d.logger.Debugw("Dummy writer: SaveSnapshots called", "run_id", runID, "count", len(snapshots))
	return nil
}

func (d *dummyWriter) SaveTrades(ctx context.Context, runID string, trades []engine.TradeRecord) error {
	d.logger.Debugw("Dummy writer: SaveTrades called", "run_id", runID, "count", len(trades))
	return nil
}

func (d *dummyWriter) SavePairs(ctx context.Context, runID string, scannedAt time.Time, pairs []cointegration.CointegratedPair) error {
	d.logger.Debugw("Dummy writer: SavePairs called", "run_id", runID, "count", len(pairs))
	return nil
}

func (d *dummyWriter) Close() error {
	d.logger.Debug("Dummy writer: Close called")
	return nil
}
