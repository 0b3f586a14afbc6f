package signal

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/your-org/statarb-pairs/internal/cointegration"
	"github.com/your-org/statarb-pairs/internal/config"
	"github.com/your-org/statarb-pairs/internal/kalman"
	"github.com/your-org/statarb-pairs/internal/marketdata"
	"github.com/your-org/statarb-pairs/pkg/logger"
	"golang.org/x/sync/errgroup"
)

type pairState struct {
	mu   sync.Mutex
	pair cointegration.CointegratedPair
	pos  PositionState
}

// Generator evaluates tracked pairs and keeps their position state. The
// Kalman tracker is only reached through its Update/State methods.
type Generator struct {
	thresholds Thresholds
	parallel   bool
	tracker    *kalman.Tracker

	mu    sync.RWMutex
	pairs map[string]*pairState
}

// NewGenerator creates a Generator tracking pairs. Each pair's filter is
// seeded with the scanner's static hedge ratio.
func NewGenerator(pairs []cointegration.CointegratedPair, cfg config.TradingConfig, tracker *kalman.Tracker) *Generator {
	g := &Generator{
		thresholds: ThresholdsFrom(cfg),
		parallel:   bool(cfg.Parallel),
		tracker:    tracker,
		pairs:      make(map[string]*pairState, len(pairs)),
	}
	for _, p := range pairs {
		id := p.PairID()
		g.pairs[id] = &pairState{pair: p}
		tracker.AddPair(id, p.HedgeRatio)
	}
	return g
}

// SetPairs replaces the tracked universe after a rescan. Surviving pairs
// keep their filter and state. Dropped pairs that are flat lose their
// filter; dropped pairs with an open position stay tracked until they
// close.
func (g *Generator) SetPairs(pairs []cointegration.CointegratedPair) {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := make(map[string]*pairState, len(pairs))
	for _, p := range pairs {
		id := p.PairID()
		if ps, ok := g.pairs[id]; ok {
			ps.mu.Lock()
			ps.pair = p
			ps.mu.Unlock()
			next[id] = ps
			continue
		}
		next[id] = &pairState{pair: p}
		g.tracker.AddPair(id, p.HedgeRatio)
	}

	kept, dropped := 0, 0
	for id, ps := range g.pairs {
		if _, ok := next[id]; ok {
			continue
		}
		ps.mu.Lock()
		open := ps.pos != Flat
		ps.mu.Unlock()
		if open {
			next[id] = ps
			kept++
			continue
		}
		g.tracker.RemovePair(id)
		dropped++
	}
	g.pairs = next
	logger.Infow("pairs_updated", "tracked", len(next), "kept_open", kept, "dropped", dropped)
}

// Process updates the pair's filter with one observation and evaluates the
// state machine. Unknown pairs and unusable prices produce an immediate
// Hold with zero z-score and leave the filter untouched.
func (g *Generator) Process(pairID string, priceA, priceB float64, ts time.Time) TradingSignal {
	sig, err := g.process(pairID, priceA, priceB, ts)
	if err != nil {
		logger.Warnf("pair %s: holding after rejected update: %v", pairID, err)
	}
	return sig
}

func (g *Generator) process(pairID string, priceA, priceB float64, ts time.Time) (TradingSignal, error) {
	start := time.Now()

	g.mu.RLock()
	ps := g.pairs[pairID]
	g.mu.RUnlock()
	if ps == nil {
		return TradingSignal{PairID: pairID, Type: Hold, Timestamp: ts, LatencyMs: elapsedMs(start)}, nil
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	hold := TradingSignal{
		PairID:    pairID,
		SymbolA:   ps.pair.SymbolA,
		SymbolB:   ps.pair.SymbolB,
		Type:      Hold,
		Timestamp: ts,
	}
	if !validPrice(priceA) || !validPrice(priceB) {
		hold.LatencyMs = elapsedMs(start)
		return hold, nil
	}

	state, err := g.tracker.Update(pairID, priceA, priceB)
	if err != nil {
		hold.LatencyMs = elapsedMs(start)
		return hold, err
	}
	z := state.ZScore()

	sigType, next, confidence := Transition(ps.pos, z, g.thresholds)
	if next != ps.pos {
		logger.Debugf("pair %s: %s -> %s on %s (z=%.3f)", pairID, ps.pos, next, sigType, z)
	}
	ps.pos = next

	return TradingSignal{
		PairID:     pairID,
		SymbolA:    ps.pair.SymbolA,
		SymbolB:    ps.pair.SymbolB,
		Type:       sigType,
		ZScore:     z,
		HedgeRatio: state.Beta,
		Spread:     state.Spread,
		Timestamp:  ts,
		LatencyMs:  elapsedMs(start),
		Confidence: confidence,
	}, nil
}

// ProcessBar runs Process for every tracked pair on one row of prices and
// returns the non-Hold signals ordered by pair id. Prices are checked for
// every pair before any filter is touched, so a data error leaves all
// state unchanged.
func (g *Generator) ProcessBar(row marketdata.Row, ts time.Time) ([]TradingSignal, error) {
	type job struct {
		id     string
		pa, pb float64
	}

	g.mu.RLock()
	ids := make([]string, 0, len(g.pairs))
	for id := range g.pairs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	jobs := make([]job, 0, len(ids))
	for _, id := range ids {
		ps := g.pairs[id]
		ps.mu.Lock()
		symA, symB := ps.pair.SymbolA, ps.pair.SymbolB
		ps.mu.Unlock()

		pa, err := row.Price(symA)
		if err != nil {
			g.mu.RUnlock()
			return nil, fmt.Errorf("pair %s at %s: %w", id, ts.Format(time.DateOnly), err)
		}
		pb, err := row.Price(symB)
		if err != nil {
			g.mu.RUnlock()
			return nil, fmt.Errorf("pair %s at %s: %w", id, ts.Format(time.DateOnly), err)
		}
		jobs = append(jobs, job{id: id, pa: pa, pb: pb})
	}
	g.mu.RUnlock()

	results := make([]TradingSignal, len(jobs))
	if g.parallel && len(jobs) > 1 {
		var eg errgroup.Group
		for i, j := range jobs {
			eg.Go(func() error {
				sig, err := g.process(j.id, j.pa, j.pb, ts)
				results[i] = sig
				return err
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, fmt.Errorf("bar at %s: %w", ts.Format(time.DateOnly), err)
		}
	} else {
		for i, j := range jobs {
			sig, err := g.process(j.id, j.pa, j.pb, ts)
			if err != nil {
				return nil, fmt.Errorf("bar at %s: %w", ts.Format(time.DateOnly), err)
			}
			results[i] = sig
		}
	}

	out := results[:0]
	for _, sig := range results {
		if sig.Type != Hold {
			out = append(out, sig)
		}
	}
	return out, nil
}

// PositionState returns the state machine position for pairID. Unknown
// pairs are Flat.
func (g *Generator) PositionState(pairID string) PositionState {
	g.mu.RLock()
	ps := g.pairs[pairID]
	g.mu.RUnlock()
	if ps == nil {
		return Flat
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.pos
}

// ActivePositions returns the number of pairs not in the Flat state.
func (g *Generator) ActivePositions() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, ps := range g.pairs {
		ps.mu.Lock()
		if ps.pos != Flat {
			n++
		}
		ps.mu.Unlock()
	}
	return n
}

// Pairs returns the tracked pairs ordered by pair id.
func (g *Generator) Pairs() []cointegration.CointegratedPair {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]cointegration.CointegratedPair, 0, len(g.pairs))
	for _, ps := range g.pairs {
		ps.mu.Lock()
		out = append(out, ps.pair)
		ps.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PairID() < out[j].PairID() })
	return out
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0)
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / 1e6
}
