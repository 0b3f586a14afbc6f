package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/statarb-pairs/internal/config"
	"github.com/your-org/statarb-pairs/internal/datastore"
	"github.com/your-org/statarb-pairs/internal/engine"
	"github.com/your-org/statarb-pairs/internal/report"
	"github.com/your-org/statarb-pairs/pkg/logger"
)

// runSource is the subset of datastore.RunRepository the report needs.
type runSource interface {
	FetchSnapshots(ctx context.Context, runID string) ([]engine.PortfolioSnapshot, error)
	FetchTrades(ctx context.Context, runID string) ([]engine.TradeRecord, error)
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the YAML config file")
	runID := flag.String("run", "", "Run id to rebuild the report for")
	save := flag.Bool("save", false, "Insert the rebuilt report into backtest_reports")
	flag.Parse()

	// --- Load Configuration ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// --- Logger Setup ---
	l := logger.NewLogger(cfg.LogLevel)
	if *runID == "" {
		l.Fatal("--run is required.")
	}

	// --- Database Connection ---
	ctx := context.Background()
	dbpool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		l.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbpool.Close()

	metrics, err := buildReport(ctx, datastore.NewRunRepository(dbpool), *runID, cfg.Backtest.RiskFreeRate)
	if err != nil {
		l.Fatalf("Failed to build report: %v", err)
	}
	report.Print(os.Stdout, metrics)

	if *save {
		if err := report.NewService(dbpool).SaveReport(ctx, *runID, metrics); err != nil {
			l.Fatalf("Failed to save report: %v", err)
		}
		l.Infof("Saved report for run %s.", *runID)
	}
}

// buildReport recomputes the metrics of a stored run. Throughput is not
// stored and stays zero.
func buildReport(ctx context.Context, src runSource, runID string, riskFreeRate float64) (report.Metrics, error) {
	snapshots, err := src.FetchSnapshots(ctx, runID)
	if err != nil {
		return report.Metrics{}, err
	}
	trades, err := src.FetchTrades(ctx, runID)
	if err != nil {
		return report.Metrics{}, err
	}
	if len(snapshots) == 0 && len(trades) == 0 {
		logger.Warnf("Run %s has no stored snapshots or trades.", runID)
	}
	return report.Compute(snapshots, trades, report.Options{RiskFreeRate: riskFreeRate}), nil
}
