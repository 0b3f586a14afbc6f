package monitor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/statarb-pairs/internal/config"
	"github.com/your-org/statarb-pairs/internal/signal"
)

type captureNotifier struct {
	sent    []string
	sendErr error
	closed  bool
}

func (c *captureNotifier) Send(message string) error {
	c.sent = append(c.sent, message)
	return c.sendErr
}

func (c *captureNotifier) Close() error {
	c.closed = true
	return nil
}

func testConfig() config.MonitoringConfig {
	return config.MonitoringConfig{AlertLatencyMs: 100, AlertDrawdownPct: 0.10, MinThroughputTPS: 1000}
}

func TestLatencyStats_Empty(t *testing.T) {
	var s LatencyStats
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, 0.0, s.Avg())
	assert.Equal(t, 0.0, s.Min())
	assert.Equal(t, 0.0, s.Max())
	assert.Equal(t, 0.0, s.P50())
	assert.Equal(t, 0.0, s.P95())
}

func TestLatencyStats_Aggregates(t *testing.T) {
	var s LatencyStats
	for i := 1; i <= 100; i++ {
		s.Record(float64(i))
	}
	assert.Equal(t, 100, s.Count())
	assert.InDelta(t, 50.5, s.Avg(), 1e-12)
	assert.Equal(t, 1.0, s.Min())
	assert.Equal(t, 100.0, s.Max())
	// sorted[int(100·0.5)] = 51, sorted[int(100·0.95)] = 96
	assert.Equal(t, 51.0, s.P50())
	assert.Equal(t, 96.0, s.P95())
	assert.Equal(t, 100.0, s.Percentile(1))
	assert.Equal(t, 1.0, s.Percentile(-1))
}

func TestLatencyStats_ReservoirTrimKeepsRecent(t *testing.T) {
	var s LatencyStats
	for i := 0; i < reservoirCap; i++ {
		s.Record(1)
	}
	assert.Equal(t, reservoirCap, s.ReservoirLen())

	s.Record(1000)
	assert.Equal(t, reservoirKeep, s.ReservoirLen())
	assert.Equal(t, reservoirCap+1, s.Count())
	assert.Equal(t, 1000.0, s.Max())

	for i := 0; i < reservoirKeep; i++ {
		s.Record(7)
	}
	assert.Equal(t, reservoirCap, s.ReservoirLen())
	// Only recent samples are left after the next trim.
	s.Record(7)
	assert.Equal(t, reservoirKeep, s.ReservoirLen())
	assert.Equal(t, 7.0, s.P50())
	assert.Equal(t, 7.0, s.P95())
	assert.Equal(t, 1.0, s.Min())
}

func TestService_RecordSignalAndTick(t *testing.T) {
	n := &captureNotifier{}
	svc := NewService(testConfig(), n)

	svc.RecordSignal(0.5, signal.EnterLong)
	svc.RecordSignal(1.5, signal.Exit)
	svc.RecordSignal(1.0, signal.Exit)
	svc.RecordTick(2)
	svc.RecordTick(4)

	sum := svc.Summary()
	assert.Equal(t, 2, sum.TicksProcessed)
	assert.Equal(t, 3, sum.SignalsGenerated)
	assert.Equal(t, map[string]int{"enter_long": 1, "exit": 2}, sum.SignalsByType)
	assert.Equal(t, 1.0, sum.SignalLatencyAvgMs)
	assert.Equal(t, 1.5, sum.SignalLatencyMaxMs)
	assert.Equal(t, 3.0, sum.TickLatencyAvgMs)
	assert.Equal(t, 0, sum.Alerts)
	assert.Empty(t, sum.RecentAlerts)
	assert.NotNil(t, sum.RecentAlerts)
	assert.Empty(t, n.sent)
}

func TestService_LatencyAlerts(t *testing.T) {
	n := &captureNotifier{}
	svc := NewService(testConfig(), n)

	svc.RecordTick(150)
	svc.RecordSignal(120, signal.StopLoss)
	svc.RecordTick(100) // not strictly above

	require.Equal(t, []string{
		"TICK_LATENCY: 150.0ms > 100ms",
		"SIGNAL_LATENCY: 120.0ms > 100ms (stop_loss)",
	}, svc.Alerts())
	assert.Equal(t, svc.Alerts(), n.sent)
}

func TestService_DrawdownAndThroughput(t *testing.T) {
	svc := NewService(testConfig(), &captureNotifier{})

	svc.CheckDrawdown(0.05)
	svc.CheckDrawdown(0.125)
	svc.CheckThroughput(5000, 0)
	svc.CheckThroughput(400, 0)
	svc.CheckThroughput(400, 300)

	assert.Equal(t, []string{
		"DRAWDOWN: 12.5% > 10%",
		"THROUGHPUT: 400 tps < 1000 tps min",
	}, svc.Alerts())
}

func TestService_SummaryKeepsFiveRecentAlerts(t *testing.T) {
	svc := NewService(testConfig(), &captureNotifier{})
	for i := 1; i <= 8; i++ {
		svc.CheckDrawdown(0.1 + float64(i)/100)
	}
	sum := svc.Summary()
	assert.Equal(t, 8, sum.Alerts)
	require.Len(t, sum.RecentAlerts, 5)
	assert.Equal(t, fmt.Sprintf("DRAWDOWN: %.1f%% > 10%%", 14.0), sum.RecentAlerts[0])
	assert.Equal(t, fmt.Sprintf("DRAWDOWN: %.1f%% > 10%%", 18.0), sum.RecentAlerts[4])
}

func TestService_RoundsToThreeDecimals(t *testing.T) {
	svc := NewService(testConfig(), &captureNotifier{})
	svc.RecordSignal(0.123456, signal.EnterShort)
	sum := svc.Summary()
	assert.Equal(t, 0.123, sum.SignalLatencyAvgMs)
	assert.Equal(t, 0.123, sum.SignalLatencyP95Ms)
}

func TestService_NotifierFailureDoesNotInterrupt(t *testing.T) {
	n := &captureNotifier{sendErr: errors.New("down")}
	svc := NewService(testConfig(), n)

	svc.CheckDrawdown(0.5)
	svc.CheckDrawdown(0.6)
	assert.Len(t, svc.Alerts(), 2)

	require.NoError(t, svc.Close())
	assert.True(t, n.closed)
}

func TestService_DisabledThresholds(t *testing.T) {
	svc := NewService(config.MonitoringConfig{}, &captureNotifier{})
	svc.RecordTick(1e6)
	svc.CheckDrawdown(0.99)
	svc.CheckThroughput(0, 0)
	assert.Empty(t, svc.Alerts())
}
