// Package dbwriter exports backtest results to TimescaleDB, CSV files or
// memory.
package dbwriter

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/your-org/statarb-pairs/internal/cointegration"
	"github.com/your-org/statarb-pairs/internal/config"
	"github.com/your-org/statarb-pairs/internal/engine"
	"github.com/your-org/statarb-pairs/internal/marketdata"
)

const defaultBatchSize = 500

// Pool is an interface that abstracts the pgxpool.Pool for testability.
type Pool interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close()
}

// TimescaleWriter copies result rows into TimescaleDB hypertables in
// batches of BatchSize.
type TimescaleWriter struct {
	pool      Pool
	logger    *zap.Logger
	batchSize int
}

// NewTimescaleWriter creates a writer on an existing pool.
func NewTimescaleWriter(pool Pool, writerConfig config.DBWriterConfig, logger *zap.Logger) *TimescaleWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := writerConfig.BatchSize
	if batchSize <= 0 {
		logger.Warn("BatchSize is zero or negative, using default.",
			zap.Int("originalValue", batchSize), zap.Int("default", defaultBatchSize))
		batchSize = defaultBatchSize
	}
	return &TimescaleWriter{pool: pool, logger: logger, batchSize: batchSize}
}

// SaveSnapshots copies the equity curve into portfolio_snapshots.
func (w *TimescaleWriter) SaveSnapshots(ctx context.Context, runID string, snapshots []engine.PortfolioSnapshot) error {
	return w.copyRows(ctx, "portfolio_snapshots", snapshotColumns, toSnapshotInterfaces(runID, snapshots))
}

// SaveTrades copies closed trades into trade_records.
func (w *TimescaleWriter) SaveTrades(ctx context.Context, runID string, trades []engine.TradeRecord) error {
	return w.copyRows(ctx, "trade_records", tradeColumns, toTradeInterfaces(runID, trades))
}

// SavePairs copies a scan result into cointegrated_pairs.
func (w *TimescaleWriter) SavePairs(ctx context.Context, runID string, scannedAt time.Time, pairs []cointegration.CointegratedPair) error {
	return w.copyRows(ctx, "cointegrated_pairs", pairColumns, toPairInterfaces(runID, scannedAt, pairs))
}

// SavePrices copies a price matrix into daily_prices in long form.
func (w *TimescaleWriter) SavePrices(ctx context.Context, m *marketdata.PriceMatrix) error {
	rows := make([][]interface{}, 0, m.Len()*len(m.Symbols))
	for i, ts := range m.Timestamps {
		for j, sym := range m.Symbols {
			rows = append(rows, []interface{}{ts, sym, m.Values[i][j]})
		}
	}
	return w.copyRows(ctx, "daily_prices", priceColumns, rows)
}

// Close closes the connection pool.
func (w *TimescaleWriter) Close() error {
	w.logger.Info("Closing TimescaleDB writer...")
	w.pool.Close()
	return nil
}

func (w *TimescaleWriter) copyRows(ctx context.Context, table string, columns []string, rows [][]interface{}) error {
	var copied int64
	for start := 0; start < len(rows); start += w.batchSize {
		end := min(start+w.batchSize, len(rows))
		n, err := w.pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows[start:end]))
		if err != nil {
			w.logger.Error("Failed to batch insert", zap.String("table", table), zap.Int("offset", start), zap.Error(err))
			return fmt.Errorf("failed to copy into %s: %w", table, err)
		}
		copied += n
	}
	w.logger.Debug("Flushed rows", zap.String("table", table), zap.Int64("count", copied))
	return nil
}
