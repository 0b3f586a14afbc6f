package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/multierr"

	"github.com/your-org/statarb-pairs/internal/alert"
	"github.com/your-org/statarb-pairs/internal/backtest"
	"github.com/your-org/statarb-pairs/internal/config"
	"github.com/your-org/statarb-pairs/internal/datastore"
	"github.com/your-org/statarb-pairs/internal/dbwriter"
	"github.com/your-org/statarb-pairs/internal/marketdata"
	"github.com/your-org/statarb-pairs/internal/report"
	"github.com/your-org/statarb-pairs/pkg/logger"
)

const alertFlushInterval = 30 * time.Second

type options struct {
	configPath string
	source     string
	dataPath   string
	start      string
	end        string
	outDir     string
	useDB      bool
	pairs      int
	noise      int
	days       int
	seed       int64
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "config/config.yaml", "Path to the YAML config file")
	flag.StringVar(&o.source, "source", "synthetic", "Price source: synthetic, csv or db")
	flag.StringVar(&o.dataPath, "data", "", "Price CSV file (with -source=csv)")
	flag.StringVar(&o.start, "start", "", "Start date YYYY-MM-DD (with -source=db)")
	flag.StringVar(&o.end, "end", "", "End date YYYY-MM-DD, exclusive (with -source=db)")
	flag.StringVar(&o.outDir, "out", "results", "Directory for CSV results; empty disables CSV export")
	flag.BoolVar(&o.useDB, "db", false, "Export results to TimescaleDB (overrides db_writer.enabled)")
	flag.IntVar(&o.pairs, "pairs", 10, "Synthetic cointegrated pairs")
	flag.IntVar(&o.noise, "noise", 20, "Synthetic random-walk symbols")
	flag.IntVar(&o.days, "days", 756, "Synthetic trading days")
	flag.Int64Var(&o.seed, "seed", 42, "Synthetic generator seed")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()

	// --- Load Configuration ---
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if opts.useDB {
		cfg.DBWriter.Enabled = true
	}

	// --- Logger Setup ---
	logger.SetGlobalLogLevel(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts); err != nil {
		logger.Fatalf("Backtest failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) (err error) {
	// --- Database Connection ---
	var dbpool *pgxpool.Pool
	if opts.source == "db" || bool(cfg.DBWriter.Enabled) {
		if bool(cfg.DBWriter.Enabled) {
			if err := dbwriter.Migrate(cfg.Database.URL(), logger.Zap()); err != nil {
				return err
			}
		}
		dbpool, err = pgxpool.New(ctx, cfg.Database.URL())
		if err != nil {
			return fmt.Errorf("unable to connect to database: %w", err)
		}
		defer dbpool.Close()
	}

	// --- Prices ---
	prices, truth, err := loadPrices(ctx, opts, dbpool)
	if err != nil {
		return err
	}
	logger.Infof("Universe: %d symbols x %d days", len(prices.Symbols), prices.Len())

	// --- Alerting ---
	notifier := alert.NewBufferedNotifier(alert.NewLogNotifier(logger.Zap()), alertFlushInterval, logger.Zap())
	defer func() {
		err = multierr.Append(err, notifier.Close())
	}()

	// --- Backtest ---
	res, err := backtest.NewPipeline(cfg, notifier).Run(ctx, prices, truth)
	if err != nil {
		return err
	}

	report.Print(os.Stdout, res.Metrics)
	printRunSummary(res, len(truth) > 0)

	// --- Export ---
	runID := uuid.NewString()
	scannedAt := prices.Timestamps[0]
	if res.TrainDays > 0 {
		scannedAt = prices.Timestamps[res.TrainDays-1]
	}

	var sinks []dbwriter.Repository
	if opts.outDir != "" {
		sinks = append(sinks, dbwriter.NewCSVRepository(opts.outDir, logger.Zap()))
	}
	if bool(cfg.DBWriter.Enabled) {
		// Closing the writer closes writerPool; dbpool stays open for SaveReport.
		writerPool, err := pgxpool.New(ctx, cfg.Database.URL())
		if err != nil {
			return fmt.Errorf("unable to connect to database: %w", err)
		}
		sinks = append(sinks, dbwriter.NewTimescaleWriter(writerPool, cfg.DBWriter, logger.Zap()))
	} else {
		sinks = append(sinks, dbwriter.NewDummyWriter(logger.NewLogger(cfg.LogLevel)))
	}
	for _, sink := range sinks {
		err = multierr.Append(err, export(ctx, sink, runID, scannedAt, res))
	}
	if err != nil {
		return err
	}

	if bool(cfg.DBWriter.Enabled) {
		if err := report.NewService(dbpool).SaveReport(ctx, runID, res.Metrics); err != nil {
			return err
		}
	}
	logger.Infow("run_exported", "run_id", runID, "out", opts.outDir, "db", bool(cfg.DBWriter.Enabled))
	return nil
}

func loadPrices(ctx context.Context, opts options, dbpool *pgxpool.Pool) (*marketdata.PriceMatrix, []marketdata.TruePair, error) {
	switch opts.source {
	case "synthetic":
		logger.Infof("Generating synthetic universe: %d pairs + %d noise over %d days (seed %d)",
			opts.pairs, opts.noise, opts.days, opts.seed)
		return marketdata.GenerateUniverse(marketdata.UniverseParams{
			Pairs: opts.pairs,
			Noise: opts.noise,
			Days:  opts.days,
			Seed:  opts.seed,
		})
	case "csv":
		if opts.dataPath == "" {
			return nil, nil, fmt.Errorf("-data is required with -source=csv")
		}
		m, err := datastore.LoadPriceMatrixCSV(opts.dataPath)
		return m, nil, err
	case "db":
		start, err := time.Parse("2006-01-02", opts.start)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid -start: %w", err)
		}
		end, err := time.Parse("2006-01-02", opts.end)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid -end: %w", err)
		}
		m, err := datastore.NewTimescaleRepository(dbpool).FetchPriceMatrix(ctx, nil, start, end)
		return m, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown -source %q", opts.source)
	}
}

func export(ctx context.Context, repo dbwriter.Repository, runID string, scannedAt time.Time, res *backtest.Result) error {
	return multierr.Combine(
		repo.SavePairs(ctx, runID, scannedAt, res.Pairs),
		repo.SaveSnapshots(ctx, runID, res.Snapshots),
		repo.SaveTrades(ctx, runID, res.Trades),
		repo.Close(),
	)
}

func printRunSummary(res *backtest.Result, withTruth bool) {
	fmt.Printf("  Pairs found:         %8d\n", len(res.Pairs))
	if withTruth {
		fmt.Printf("  True pairs detected: %8d (precision %.1f%%)\n", res.DetectedTrue, res.Precision*100)
	}
	fmt.Printf("  Benchmark Return:    %8.1f%%\n", res.BenchmarkReturn*100)
	fmt.Printf("  Signals:             %8d\n", res.Signals)
	fmt.Printf("  Rescans:             %8d\n", res.Rescans)
	fmt.Printf("  Train/Test days:     %4d / %d\n", res.TrainDays, res.TestDays)

	summary, err := json.MarshalIndent(res.Monitoring, "  ", "  ")
	if err != nil {
		logger.Warnf("Failed to encode monitoring summary: %v", err)
		return
	}
	fmt.Printf("  Monitoring:\n  %s\n", summary)
}
