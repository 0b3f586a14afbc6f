package main

import (
	"context"
	"flag"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/statarb-pairs/internal/config"
	"github.com/your-org/statarb-pairs/internal/datastore"
	"github.com/your-org/statarb-pairs/internal/dbwriter"
	"github.com/your-org/statarb-pairs/pkg/logger"
)

func main() {
	// --- Argument Parsing ---
	configPath := flag.String("config", "config/config.yaml", "Path to the YAML config file")
	importPath := flag.String("import", "", "Load this price CSV into daily_prices instead of exporting")
	startStr := flag.String("start", "", "Start date for the export window (YYYY-MM-DD)")
	endStr := flag.String("end", "", "End date for the export window, exclusive (YYYY-MM-DD)")
	symbolsStr := flag.String("symbols", "", "Comma-separated symbols to export (default: all)")
	outPath := flag.String("out", "", "Output CSV file (default: stdout)")
	flag.Parse()

	if *importPath == "" && (*startStr == "" || *endStr == "") {
		logger.Fatal("Both --start and --end flags are required for export.")
	}

	// --- Config and Logger Setup ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration to get DB settings: %v", err)
	}
	logger.SetGlobalLogLevel(cfg.LogLevel)

	// --- Database Connection ---
	ctx := context.Background()
	if *importPath != "" {
		if err := dbwriter.Migrate(cfg.Database.URL(), logger.Zap()); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
	}
	dbpool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		logger.Fatalf("Unable to connect to database: %v", err)
	}

	if *importPath != "" {
		importPrices(ctx, dbpool, cfg.DBWriter, *importPath)
		return
	}
	defer dbpool.Close()
	exportPrices(ctx, dbpool, *startStr, *endStr, *symbolsStr, *outPath)
}

func importPrices(ctx context.Context, dbpool *pgxpool.Pool, writerConfig config.DBWriterConfig, path string) {
	m, err := datastore.LoadPriceMatrixCSV(path)
	if err != nil {
		logger.Fatalf("Failed to load prices: %v", err)
	}
	writer := dbwriter.NewTimescaleWriter(dbpool, writerConfig, logger.Zap())
	defer writer.Close()

	if err := writer.SavePrices(ctx, m); err != nil {
		logger.Errorf("Failed to import prices: %v", err)
		return
	}
	logger.Infof("Successfully imported %d rows.", m.Len()*len(m.Symbols))
}

func exportPrices(ctx context.Context, dbpool *pgxpool.Pool, startStr, endStr, symbolsStr, outPath string) {
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		logger.Fatalf("Invalid --start: %v", err)
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		logger.Fatalf("Invalid --end: %v", err)
	}
	var symbols []string
	if symbolsStr != "" {
		symbols = strings.Split(symbolsStr, ",")
	}

	logger.Infof("Exporting daily prices from %s to %s...", startStr, endStr)
	m, err := datastore.NewTimescaleRepository(dbpool).FetchPriceMatrix(ctx, symbols, start, end)
	if err != nil {
		logger.Fatalf("Failed to query daily prices: %v", err)
	}

	var out io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			logger.Fatalf("Failed to create %s: %v", outPath, err)
		}
		defer f.Close()
		out = f
	}
	if err := datastore.WritePriceMatrix(out, m); err != nil {
		logger.Fatalf("Failed to write CSV: %v", err)
	}
	logger.Infof("Successfully exported %d bars x %d symbols.", m.Len(), len(m.Symbols))
}
