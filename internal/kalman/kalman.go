// Package kalman maintains one adaptive linear filter per pair, estimating
// a time-varying intercept and hedge ratio from the observation model
// price_a = intercept + beta*price_b + noise.
package kalman

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/your-org/statarb-pairs/internal/config"
)

const minObservationNoise = 1e-6

// ErrNonFiniteObservation is returned by Update for a NaN or infinite price.
var ErrNonFiniteObservation = errors.New("non-finite observation")

// KalmanState is the estimator state of one pair. Copies returned by the
// Tracker are snapshots; the tracker owns the live value.
type KalmanState struct {
	Intercept float64
	Beta      float64
	P         [2][2]float64 // state covariance
	R         float64       // adaptive observation noise variance
	Q         [2][2]float64 // process noise, fixed
	Spread    float64       // last innovation
	SpreadVar float64       // last innovation variance
	NUpdates  uint64
}

// ZScore returns Spread/sqrt(SpreadVar), or 0 when the variance is unusable.
func (s KalmanState) ZScore() float64 {
	if !(s.SpreadVar > 0) || math.IsInf(s.SpreadVar, 0) {
		return 0
	}
	z := s.Spread / math.Sqrt(s.SpreadVar)
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 0
	}
	return z
}

func newState(cfg config.KalmanConfig, beta float64) KalmanState {
	return KalmanState{
		Beta:      beta,
		P:         [2][2]float64{{cfg.InitialStateCov, 0}, {0, cfg.InitialStateCov}},
		R:         cfg.ObservationNoise,
		Q:         [2][2]float64{{cfg.Delta, 0}, {0, cfg.Delta}},
		SpreadVar: 1,
	}
}

// update applies one observation in place.
func (s *KalmanState) update(a, b float64) {
	// Predict: identity transition, so only the covariance grows.
	var pp [2][2]float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			pp[i][j] = s.P[i][j] + s.Q[i][j]
		}
	}

	h := [2]float64{1, b}
	nu := a - (s.Intercept + s.Beta*b)

	// P_pred·Hᵀ
	ph := [2]float64{
		pp[0][0]*h[0] + pp[0][1]*h[1],
		pp[1][0]*h[0] + pp[1][1]*h[1],
	}
	S := h[0]*ph[0] + h[1]*ph[1] + s.R

	k := [2]float64{ph[0] / S, ph[1] / S}
	s.Intercept += k[0] * nu
	s.Beta += k[1] * nu

	// P = (I − K·H)·P_pred
	var p [2][2]float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			p[i][j] = pp[i][j] - k[i]*(h[0]*pp[0][j]+h[1]*pp[1][j])
		}
	}
	off := 0.5 * (p[0][1] + p[1][0])
	p[0][1], p[1][0] = off, off
	s.P = p

	s.R = math.Max(0.5*s.R+0.5*nu*nu, minObservationNoise)
	s.Spread = nu
	s.SpreadVar = S
	s.NUpdates++
}

type filter struct {
	mu    sync.Mutex
	state KalmanState
}

// Tracker owns the per-pair filters. Distinct pairs may be updated
// concurrently; updates to the same pair are serialized.
type Tracker struct {
	cfg config.KalmanConfig

	mu      sync.RWMutex
	filters map[string]*filter
}

// NewTracker creates an empty tracker.
func NewTracker(cfg config.KalmanConfig) *Tracker {
	return &Tracker{
		cfg:     cfg,
		filters: make(map[string]*filter),
	}
}

// AddPair (re)initializes the filter for pairID with the given hedge ratio.
func (t *Tracker) AddPair(pairID string, initialBeta float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filters[pairID] = &filter{state: newState(t.cfg, initialBeta)}
}

// RemovePair drops the filter for pairID. Unknown ids are ignored.
func (t *Tracker) RemovePair(pairID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.filters, pairID)
}

// Has reports whether pairID is tracked.
func (t *Tracker) Has(pairID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.filters[pairID]
	return ok
}

func (t *Tracker) get(pairID string) *filter {
	t.mu.RLock()
	f := t.filters[pairID]
	t.mu.RUnlock()
	return f
}

// Update feeds one (a, b) observation to the pair's filter and returns the
// resulting state. An unknown pair is registered on the fly with beta 1.
// A non-finite observation is rejected before any state is touched.
func (t *Tracker) Update(pairID string, a, b float64) (KalmanState, error) {
	if !finite(a) || !finite(b) {
		return KalmanState{}, fmt.Errorf("pair %s: %w (a=%v, b=%v)", pairID, ErrNonFiniteObservation, a, b)
	}
	f := t.get(pairID)
	if f == nil {
		t.mu.Lock()
		if f = t.filters[pairID]; f == nil {
			f = &filter{state: newState(t.cfg, 1.0)}
			t.filters[pairID] = f
		}
		t.mu.Unlock()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.update(a, b)
	return f.state, nil
}

// State returns a copy of the pair's current state.
func (t *Tracker) State(pairID string) (KalmanState, bool) {
	f := t.get(pairID)
	if f == nil {
		return KalmanState{}, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, true
}

// ZScore returns the z-score of the last innovation, 0 for unknown pairs.
func (t *Tracker) ZScore(pairID string) float64 {
	s, ok := t.State(pairID)
	if !ok {
		return 0
	}
	return s.ZScore()
}

// Spread evaluates a − intercept − beta·b with the current estimate.
func (t *Tracker) Spread(pairID string, a, b float64) float64 {
	s, ok := t.State(pairID)
	if !ok {
		return 0
	}
	return a - s.Intercept - s.Beta*b
}

// HedgeRatio returns the current beta, 1 for unknown pairs.
func (t *Tracker) HedgeRatio(pairID string) float64 {
	s, ok := t.State(pairID)
	if !ok {
		return 1.0
	}
	return s.Beta
}

// ActivePairs returns the tracked pair ids in sorted order.
func (t *Tracker) ActivePairs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.filters))
	for id := range t.filters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reset drops every filter.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filters = make(map[string]*filter)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
