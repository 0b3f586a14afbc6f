// Package cointegration discovers mean-reverting instrument pairs from
// historical prices: a correlation pre-filter, the Johansen trace test, a
// half-life window and an ADF check on the resulting spread.
package cointegration

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/your-org/statarb-pairs/internal/config"
	"github.com/your-org/statarb-pairs/internal/marketdata"
	"github.com/your-org/statarb-pairs/pkg/logger"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// CointegratedPair is one accepted pair. Values are immutable once produced.
type CointegratedPair struct {
	SymbolA       string  `json:"symbol_a"`
	SymbolB       string  `json:"symbol_b"`
	HedgeRatio    float64 `json:"hedge_ratio"` // units of B per unit of A
	HalfLife      float64 `json:"half_life"`   // days
	Correlation   float64 `json:"correlation"`
	TraceStat     float64 `json:"trace_stat"`
	CriticalValue float64 `json:"critical_value"`
	SpreadMean    float64 `json:"spread_mean"`
	SpreadStd     float64 `json:"spread_std"`
	ADFPValue     float64 `json:"adf_pvalue"`
	Score         float64 `json:"score"`
}

// PairID returns "<A>_<B>".
func (p CointegratedPair) PairID() string {
	return p.SymbolA + "_" + p.SymbolB
}

// Scanner runs the pair-discovery pipeline.
type Scanner struct {
	cfg     config.CointConfig
	workers int
}

// NewScanner creates a Scanner for the given settings.
func NewScanner(cfg config.CointConfig) *Scanner {
	return &Scanner{cfg: cfg, workers: runtime.NumCPU()}
}

type candidate struct {
	i, j int
	corr float64
}

// Scan tests every symbol pair in column order and returns the accepted
// pairs sorted by score (ties by pair id), truncated to MaxPairs. Rejected
// and numerically failing candidates are skipped; the only error is a
// cancelled context.
func (s *Scanner) Scan(ctx context.Context, prices *marketdata.PriceMatrix) ([]CointegratedPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(prices.Symbols)
	logger.Infow("scan_started", "n_symbols", n, "n_candidate_pairs", n*(n-1)/2)
	if prices.Len() < 3 {
		logger.Infow("scan_complete", "cointegrated_pairs", 0)
		return nil, nil
	}

	columns := make([][]float64, n)
	returns := make([][]float64, n)
	for j, sym := range prices.Symbols {
		columns[j], _ = prices.Column(sym)
		returns[j] = simpleReturns(columns[j])
	}

	var candidates []candidate
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			corr := math.Abs(stat.Correlation(returns[i], returns[j], nil))
			if corr >= s.cfg.MinCorrelation {
				candidates = append(candidates, candidate{i: i, j: j, corr: corr})
			}
		}
	}
	logger.Infow("correlation_filter", "candidates", len(candidates), "threshold", s.cfg.MinCorrelation)

	results := make([]*CointegratedPair, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for idx, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			symA, symB := prices.Symbols[c.i], prices.Symbols[c.j]
			pair, err := s.safeTestPair(columns[c.i], columns[c.j], symA, symB, c.corr)
			if err != nil {
				logger.Debugw("pair_test_failed", "sym_a", symA, "sym_b", symB, "error", err.Error())
				return nil
			}
			results[idx] = pair
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan aborted: %w", err)
	}

	pairs := make([]CointegratedPair, 0, len(results))
	for _, p := range results {
		if p != nil {
			pairs = append(pairs, *p)
		}
	}
	SortPairs(pairs)
	if len(pairs) > s.cfg.MaxPairs {
		pairs = pairs[:s.cfg.MaxPairs]
	}

	logger.Infow("scan_complete", "cointegrated_pairs", len(pairs))
	return pairs, nil
}

// SortPairs orders pairs by score descending with pair id as tie-break.
func SortPairs(pairs []CointegratedPair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].Score != pairs[j].Score {
			return pairs[i].Score > pairs[j].Score
		}
		return pairs[i].PairID() < pairs[j].PairID()
	})
}

// safeTestPair turns a panic from the linear algebra routines into an error
// so that one bad candidate cannot abort the scan.
func (s *Scanner) safeTestPair(a, b []float64, symA, symB string, corr float64) (pair *CointegratedPair, err error) {
	defer func() {
		if r := recover(); r != nil {
			pair, err = nil, fmt.Errorf("numerical failure: %v", r)
		}
	}()
	return s.TestPair(a, b, symA, symB, corr)
}

// TestPair runs the Johansen, half-life and ADF stages on one pair.
// A statistical rejection returns (nil, nil); a numerical failure returns
// an error.
func (s *Scanner) TestPair(a, b []float64, symA, symB string, corr float64) (*CointegratedPair, error) {
	if len(a) < s.cfg.MinHistoryDays {
		return nil, nil
	}

	jr, err := Johansen(a, b)
	if err != nil {
		return nil, err
	}
	trace, crit := jr.TraceStats[0], jr.Critical95[0]
	if trace < crit {
		return nil, nil
	}

	beta := jr.HedgeRatio()
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return nil, fmt.Errorf("non-finite hedge ratio")
	}
	spread := Spread(a, b, beta)

	halfLife, err := HalfLife(spread)
	if err != nil {
		return nil, err
	}
	if halfLife < s.cfg.HalfLifeMin || halfLife > s.cfg.HalfLifeMax {
		return nil, nil
	}

	adf, err := ADF(spread)
	if err != nil {
		return nil, err
	}
	if adf.PValue > s.cfg.SignificanceLevel {
		return nil, nil
	}

	mean, std := stat.PopMeanStdDev(spread, nil)
	score := (trace / crit) * (1 / halfLife) * (1 - adf.PValue)
	return &CointegratedPair{
		SymbolA:       symA,
		SymbolB:       symB,
		HedgeRatio:    beta,
		HalfLife:      halfLife,
		Correlation:   corr,
		TraceStat:     trace,
		CriticalValue: crit,
		SpreadMean:    mean,
		SpreadStd:     std,
		ADFPValue:     adf.PValue,
		Score:         score,
	}, nil
}

func simpleReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = prices[i]/prices[i-1] - 1
	}
	return out
}
