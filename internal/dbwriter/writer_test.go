package dbwriter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/statarb-pairs/internal/cointegration"
	"github.com/your-org/statarb-pairs/internal/config"
	"github.com/your-org/statarb-pairs/internal/engine"
	"github.com/your-org/statarb-pairs/internal/marketdata"
	"github.com/your-org/statarb-pairs/internal/position"
	"github.com/your-org/statarb-pairs/pkg/logger"
)

var t0 = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

func testSnapshots(n int) []engine.PortfolioSnapshot {
	out := make([]engine.PortfolioSnapshot, n)
	for i := range out {
		out[i] = engine.PortfolioSnapshot{
			Timestamp:  t0.AddDate(0, 0, i),
			Equity:     1_000_000 + float64(i),
			Cash:       1_000_000,
			NPositions: i % 3,
		}
	}
	return out
}

func testTrade() engine.TradeRecord {
	return engine.TradeRecord{
		TradeID:     "6f1c1a3e-0000-5000-8000-000000000001",
		PairID:      "A_B",
		SymbolA:     "A",
		SymbolB:     "B",
		Direction:   position.ShortSpread,
		EntryTime:   t0,
		ExitTime:    t0.AddDate(0, 0, 4),
		EntryZScore: 2.1,
		ExitZScore:  0.4,
		PnL:         1250.5,
		HoldingDays: 4,
		ExitReason:  engine.MeanReversion,
	}
}

// TestRepositoriesImplementInterface は各実装が Repository を満たすことを確認します。
func TestRepositoriesImplementInterface(t *testing.T) {
	assert.Implements(t, (*Repository)(nil), new(TimescaleWriter))
	assert.Implements(t, (*Repository)(nil), new(InMemWriter))
	assert.Implements(t, (*Repository)(nil), new(CSVRepository))
}

func TestTimescaleWriter_SaveSnapshotsBatches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	writer := NewTimescaleWriter(mock, config.DBWriterConfig{BatchSize: 2}, zap.NewNop())

	for _, n := range []int64{2, 2, 1} {
		mock.ExpectCopyFrom(pgx.Identifier{"portfolio_snapshots"}, snapshotColumns).WillReturnResult(n)
	}
	require.NoError(t, writer.SaveSnapshots(context.Background(), "run-1", testSnapshots(5)))

	mock.ExpectClose()
	require.NoError(t, writer.Close())
	require.NoError(t, mock.ExpectationsWereMet(), "there were unfulfilled expectations")
}

func TestTimescaleWriter_SaveTradesAndPairs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	writer := NewTimescaleWriter(mock, config.DBWriterConfig{BatchSize: 100}, nil)
	ctx := context.Background()

	mock.ExpectCopyFrom(pgx.Identifier{"trade_records"}, tradeColumns).WillReturnResult(1)
	require.NoError(t, writer.SaveTrades(ctx, "run-1", []engine.TradeRecord{testTrade()}))

	mock.ExpectCopyFrom(pgx.Identifier{"cointegrated_pairs"}, pairColumns).WillReturnResult(1)
	pairs := []cointegration.CointegratedPair{{SymbolA: "A", SymbolB: "B", HedgeRatio: 1.2, HalfLife: 20}}
	require.NoError(t, writer.SavePairs(ctx, "run-1", t0, pairs))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleWriter_SavePrices(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	m, err := marketdata.NewPriceMatrix(
		[]time.Time{t0, t0.AddDate(0, 0, 1)},
		[]string{"A", "B"},
		[][]float64{{10, 20}, {11, 21}},
	)
	require.NoError(t, err)

	writer := NewTimescaleWriter(mock, config.DBWriterConfig{BatchSize: 3}, nil)
	mock.ExpectCopyFrom(pgx.Identifier{"daily_prices"}, priceColumns).WillReturnResult(3)
	mock.ExpectCopyFrom(pgx.Identifier{"daily_prices"}, priceColumns).WillReturnResult(1)
	require.NoError(t, writer.SavePrices(context.Background(), m))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleWriter_EmptyInputCopiesNothing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	writer := NewTimescaleWriter(mock, config.DBWriterConfig{BatchSize: 10}, nil)
	require.NoError(t, writer.SaveTrades(context.Background(), "run-1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleWriter_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	writer := NewTimescaleWriter(mock, config.DBWriterConfig{}, nil)
	assert.Equal(t, defaultBatchSize, writer.batchSize)

	mock.ExpectCopyFrom(pgx.Identifier{"portfolio_snapshots"}, snapshotColumns).WillReturnError(assert.AnError)
	err = writer.SaveSnapshots(context.Background(), "run-1", testSnapshots(3))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "portfolio_snapshots")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInMemWriter(t *testing.T) {
	w := NewInMemWriter()
	ctx := context.Background()

	require.NoError(t, w.SaveSnapshots(ctx, "r1", testSnapshots(2)))
	require.NoError(t, w.SaveSnapshots(ctx, "r1", testSnapshots(1)))
	require.NoError(t, w.SaveTrades(ctx, "r2", []engine.TradeRecord{testTrade()}))
	require.NoError(t, w.SavePairs(ctx, "r1", t0, []cointegration.CointegratedPair{{SymbolA: "A", SymbolB: "B"}}))

	assert.Len(t, w.Snapshots["r1"], 3)
	assert.Len(t, w.Trades["r2"], 1)
	require.Len(t, w.Scans, 1)
	assert.Equal(t, "A_B", w.Scans[0].Pairs[0].PairID())

	require.NoError(t, w.Close())
	assert.True(t, w.IsClosed)

	w.Clear()
	assert.Empty(t, w.Snapshots)
	assert.Empty(t, w.Scans)
	assert.False(t, w.IsClosed)
}

func TestDummyWriter(t *testing.T) {
	w := NewDummyWriter(logger.NewLogger("error"))
	ctx := context.Background()
	assert.NoError(t, w.SaveSnapshots(ctx, "r", testSnapshots(1)))
	assert.NoError(t, w.SaveTrades(ctx, "r", nil))
	assert.NoError(t, w.SavePairs(ctx, "r", t0, nil))
	assert.NoError(t, w.Close())
}

func TestCSVRepository(t *testing.T) {
	dir := t.TempDir()
	repo := NewCSVRepository(dir, nil)
	ctx := context.Background()

	require.NoError(t, repo.SaveSnapshots(ctx, "run-1", testSnapshots(2)))
	require.NoError(t, repo.SaveTrades(ctx, "run-1", []engine.TradeRecord{testTrade()}))
	require.NoError(t, repo.Close())

	equity, err := os.ReadFile(filepath.Join(dir, EquityCurveFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(equity)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(snapshotColumns, ","), lines[0])
	assert.Equal(t, "2023-05-01T00:00:00Z,run-1,1000000,1000000,0,0,0,0,0", lines[1])

	trades, err := os.ReadFile(filepath.Join(dir, TradesFile))
	require.NoError(t, err)
	assert.Contains(t, string(trades), "short_spread")
	assert.Contains(t, string(trades), "mean_reversion")
	assert.Contains(t, string(trades), "1250.5")

	_, err = os.Stat(filepath.Join(dir, PairsFile))
	assert.True(t, os.IsNotExist(err), "pairs.csv is only created on first write")
}

func TestMigrationURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", migrationURL("postgres://u:p@h:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://h/db", migrationURL("postgresql://h/db"))
	assert.Equal(t, "pgx5://h/db", migrationURL("pgx5://h/db"))
}
