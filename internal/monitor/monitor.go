// Package monitor tracks per-signal and per-tick latency and raises
// threshold alerts during a simulation.
package monitor

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/your-org/statarb-pairs/internal/alert"
	"github.com/your-org/statarb-pairs/internal/config"
	"github.com/your-org/statarb-pairs/internal/signal"
	"github.com/your-org/statarb-pairs/pkg/logger"
)

const (
	reservoirCap  = 10000
	reservoirKeep = 5000
	recentAlerts  = 5
)

// LatencyStats keeps running aggregates for one latency stream plus a
// bounded reservoir for approximate percentiles. Once the reservoir grows
// past its cap only the most recent samples are kept, so percentiles lean
// toward recent observations.
type LatencyStats struct {
	count     int
	totalMs   float64
	minMs     float64
	maxMs     float64
	reservoir []float64
}

// Record adds one observation.
func (s *LatencyStats) Record(ms float64) {
	if s.count == 0 || ms < s.minMs {
		s.minMs = ms
	}
	if s.count == 0 || ms > s.maxMs {
		s.maxMs = ms
	}
	s.count++
	s.totalMs += ms

	s.reservoir = append(s.reservoir, ms)
	if len(s.reservoir) > reservoirCap {
		kept := make([]float64, reservoirKeep)
		copy(kept, s.reservoir[len(s.reservoir)-reservoirKeep:])
		s.reservoir = kept
	}
}

// Count returns the number of recorded observations.
func (s *LatencyStats) Count() int { return s.count }

// Avg returns the mean latency, 0 when empty.
func (s *LatencyStats) Avg() float64 {
	if s.count == 0 {
		return 0
	}
	return s.totalMs / float64(s.count)
}

// Min returns the smallest latency seen, 0 when empty.
func (s *LatencyStats) Min() float64 { return s.minMs }

// Max returns the largest latency seen, 0 when empty.
func (s *LatencyStats) Max() float64 { return s.maxMs }

// Percentile returns the sample at index floor(len·q) of the sorted
// reservoir. q is clamped to [0, 1].
func (s *LatencyStats) Percentile(q float64) float64 {
	if len(s.reservoir) == 0 {
		return 0
	}
	q = math.Max(0, math.Min(1, q))
	sorted := make([]float64, len(s.reservoir))
	copy(sorted, s.reservoir)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * q)
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// P50 is the approximate median.
func (s *LatencyStats) P50() float64 { return s.Percentile(0.50) }

// P95 is the approximate 95th percentile.
func (s *LatencyStats) P95() float64 { return s.Percentile(0.95) }

// ReservoirLen returns the number of samples currently held for percentiles.
func (s *LatencyStats) ReservoirLen() int { return len(s.reservoir) }

// Summary is a point-in-time view of the service, rounded to 3 decimals.
type Summary struct {
	TicksProcessed     int            `json:"ticks_processed"`
	SignalsGenerated   int            `json:"signals_generated"`
	SignalsByType      map[string]int `json:"signals_by_type"`
	SignalLatencyAvgMs float64        `json:"signal_latency_avg_ms"`
	SignalLatencyP50Ms float64        `json:"signal_latency_p50_ms"`
	SignalLatencyP95Ms float64        `json:"signal_latency_p95_ms"`
	SignalLatencyMaxMs float64        `json:"signal_latency_max_ms"`
	TickLatencyAvgMs   float64        `json:"tick_latency_avg_ms"`
	TickLatencyP95Ms   float64        `json:"tick_latency_p95_ms"`
	Alerts             int            `json:"alerts"`
	RecentAlerts       []string       `json:"recent_alerts"`
}

// Service is the monitoring sink for one simulation. Alerts are kept in
// memory and forwarded to the notifier; a failing notifier is logged and
// otherwise ignored.
type Service struct {
	cfg      config.MonitoringConfig
	notifier alert.Notifier

	mu            sync.Mutex
	signalLatency LatencyStats
	tickLatency   LatencyStats
	signalsByType map[signal.SignalType]int
	alerts        []string
}

// NewService creates a monitoring service. A nil notifier logs alerts
// through the global logger.
func NewService(cfg config.MonitoringConfig, notifier alert.Notifier) *Service {
	if notifier == nil {
		notifier = alert.NewLogNotifier(logger.Zap())
	}
	return &Service{
		cfg:           cfg,
		notifier:      notifier,
		signalsByType: make(map[signal.SignalType]int),
	}
}

// RecordSignal records the processing latency of one emitted signal.
func (s *Service) RecordSignal(latencyMs float64, typ signal.SignalType) {
	s.mu.Lock()
	s.signalLatency.Record(latencyMs)
	s.signalsByType[typ]++
	s.mu.Unlock()

	if s.cfg.AlertLatencyMs > 0 && latencyMs > s.cfg.AlertLatencyMs {
		s.raise(fmt.Sprintf("SIGNAL_LATENCY: %.1fms > %gms (%s)", latencyMs, s.cfg.AlertLatencyMs, typ))
	}
}

// RecordTick records the latency of one full simulation step.
func (s *Service) RecordTick(latencyMs float64) {
	s.mu.Lock()
	s.tickLatency.Record(latencyMs)
	s.mu.Unlock()

	if s.cfg.AlertLatencyMs > 0 && latencyMs > s.cfg.AlertLatencyMs {
		s.raise(fmt.Sprintf("TICK_LATENCY: %.1fms > %gms", latencyMs, s.cfg.AlertLatencyMs))
	}
}

// CheckDrawdown raises an alert when drawdown exceeds the configured limit.
func (s *Service) CheckDrawdown(drawdown float64) {
	if s.cfg.AlertDrawdownPct > 0 && drawdown > s.cfg.AlertDrawdownPct {
		s.raise(fmt.Sprintf("DRAWDOWN: %.1f%% > %.0f%%", drawdown*100, s.cfg.AlertDrawdownPct*100))
	}
}

// CheckThroughput raises an alert when ticksPerSec falls below minTPS. A
// non-positive minTPS uses the configured minimum.
func (s *Service) CheckThroughput(ticksPerSec, minTPS float64) {
	if minTPS <= 0 {
		minTPS = s.cfg.MinThroughputTPS
	}
	if minTPS > 0 && ticksPerSec < minTPS {
		s.raise(fmt.Sprintf("THROUGHPUT: %.0f tps < %.0f tps min", ticksPerSec, minTPS))
	}
}

func (s *Service) raise(msg string) {
	s.mu.Lock()
	s.alerts = append(s.alerts, msg)
	s.mu.Unlock()

	if err := s.notifier.Send(msg); err != nil {
		logger.Warnf("failed to forward alert %q: %v", msg, err)
	}
}

// Alerts returns a copy of every alert raised so far.
func (s *Service) Alerts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.alerts...)
}

// Summary returns the current aggregates.
func (s *Service) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	byType := make(map[string]int, len(s.signalsByType))
	for typ, n := range s.signalsByType {
		byType[typ.String()] = n
	}
	recent := []string{}
	if n := len(s.alerts); n > 0 {
		from := n - recentAlerts
		if from < 0 {
			from = 0
		}
		recent = append(recent, s.alerts[from:]...)
	}

	return Summary{
		TicksProcessed:     s.tickLatency.Count(),
		SignalsGenerated:   s.signalLatency.Count(),
		SignalsByType:      byType,
		SignalLatencyAvgMs: round3(s.signalLatency.Avg()),
		SignalLatencyP50Ms: round3(s.signalLatency.P50()),
		SignalLatencyP95Ms: round3(s.signalLatency.P95()),
		SignalLatencyMaxMs: round3(s.signalLatency.Max()),
		TickLatencyAvgMs:   round3(s.tickLatency.Avg()),
		TickLatencyP95Ms:   round3(s.tickLatency.P95()),
		Alerts:             len(s.alerts),
		RecentAlerts:       recent,
	}
}

// Close releases the notifier.
func (s *Service) Close() error {
	return s.notifier.Close()
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
