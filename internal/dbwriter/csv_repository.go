package dbwriter

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/your-org/statarb-pairs/internal/cointegration"
	"github.com/your-org/statarb-pairs/internal/csvwriter"
	"github.com/your-org/statarb-pairs/internal/engine"
)

// File names written by CSVRepository under its directory.
const (
	EquityCurveFile = "equity_curve.csv"
	TradesFile      = "trades.csv"
	PairsFile       = "pairs.csv"
)

// CSVRepository writes results as CSV files with the same columns as the
// database tables. Files are created on first use.
type CSVRepository struct {
	dir     string
	logger  *zap.Logger
	mu      sync.Mutex
	writers map[string]*csvwriter.Writer
}

// NewCSVRepository creates a repository rooted at dir.
func NewCSVRepository(dir string, logger *zap.Logger) *CSVRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVRepository{dir: dir, logger: logger, writers: make(map[string]*csvwriter.Writer)}
}

// SaveSnapshots appends the equity curve to equity_curve.csv.
func (r *CSVRepository) SaveSnapshots(ctx context.Context, runID string, snapshots []engine.PortfolioSnapshot) error {
	return r.writeRows(EquityCurveFile, snapshotColumns, toSnapshotInterfaces(runID, snapshots))
}

// SaveTrades appends trades to trades.csv.
func (r *CSVRepository) SaveTrades(ctx context.Context, runID string, trades []engine.TradeRecord) error {
	return r.writeRows(TradesFile, tradeColumns, toTradeInterfaces(runID, trades))
}

// SavePairs appends a scan result to pairs.csv.
func (r *CSVRepository) SavePairs(ctx context.Context, runID string, scannedAt time.Time, pairs []cointegration.CointegratedPair) error {
	return r.writeRows(PairsFile, pairColumns, toPairInterfaces(runID, scannedAt, pairs))
}

// Close flushes and closes every file, reporting all failures.
func (r *CSVRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for name, w := range r.writers {
		err = multierr.Append(err, w.Close())
		delete(r.writers, name)
	}
	return err
}

func (r *CSVRepository) writeRows(name string, header []string, rows [][]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.writers[name]
	if !ok {
		var err error
		w, err = csvwriter.NewWriter(filepath.Join(r.dir, name), header, r.logger)
		if err != nil {
			return err
		}
		r.writers[name] = w
	}
	for _, row := range rows {
		if err := w.Write(formatRecord(row)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	r.logger.Debug("Wrote CSV rows", zap.String("file", name), zap.Int("count", len(rows)))
	return nil
}

func formatRecord(row []interface{}) []string {
	record := make([]string, len(row))
	for i, v := range row {
		switch x := v.(type) {
		case string:
			record[i] = x
		case float64:
			record[i] = strconv.FormatFloat(x, 'f', -1, 64)
		case int:
			record[i] = strconv.Itoa(x)
		case time.Time:
			record[i] = x.UTC().Format(time.RFC3339)
		default:
			record[i] = fmt.Sprint(x)
		}
	}
	return record
}
