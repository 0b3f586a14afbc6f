// Package signal turns Kalman spread z-scores into trading actions through
// a per-pair threshold state machine.
package signal

import (
	"math"
	"time"

	"github.com/your-org/statarb-pairs/internal/config"
)

// SignalType represents the type of trading signal.
type SignalType int

const (
	// Hold indicates no action.
	Hold SignalType = iota
	// EnterLong opens a long-spread position: buy A, sell B.
	EnterLong
	// EnterShort opens a short-spread position: sell A, buy B.
	EnterShort
	// Exit closes a position after mean reversion.
	Exit
	// StopLoss closes a position because the spread kept diverging.
	StopLoss
)

// String returns the string representation of SignalType.
func (s SignalType) String() string {
	switch s {
	case Hold:
		return "hold"
	case EnterLong:
		return "enter_long"
	case EnterShort:
		return "enter_short"
	case Exit:
		return "exit"
	case StopLoss:
		return "stop_loss"
	default:
		return "unknown"
	}
}

// IsEntry reports whether s opens a position.
func (s SignalType) IsEntry() bool {
	return s == EnterLong || s == EnterShort
}

// IsClose reports whether s closes a position.
func (s SignalType) IsClose() bool {
	return s == Exit || s == StopLoss
}

// PositionState is the per-pair state of the signal state machine.
type PositionState int

const (
	// Flat means no position is open for the pair.
	Flat PositionState = iota
	// InLongSpread means a long-spread position is open.
	InLongSpread
	// InShortSpread means a short-spread position is open.
	InShortSpread
)

// String returns the string representation of PositionState.
func (p PositionState) String() string {
	switch p {
	case Flat:
		return "flat"
	case InLongSpread:
		return "long_spread"
	case InShortSpread:
		return "short_spread"
	default:
		return "unknown"
	}
}

// TradingSignal is the outcome of one pair evaluation. It is a value and
// lives for a single step.
type TradingSignal struct {
	PairID     string
	SymbolA    string
	SymbolB    string
	Type       SignalType
	ZScore     float64
	HedgeRatio float64
	Spread     float64
	Timestamp  time.Time
	LatencyMs  float64
	Confidence float64 // 0-1, informational only
}

// Thresholds holds the z-score levels that drive the state machine.
// Valid values satisfy 0 <= ExitZ < EntryZ < StopZ.
type Thresholds struct {
	EntryZ float64
	ExitZ  float64
	StopZ  float64
}

// ThresholdsFrom extracts the state machine levels from the trading config.
func ThresholdsFrom(cfg config.TradingConfig) Thresholds {
	return Thresholds{EntryZ: cfg.EntryZ, ExitZ: cfg.ExitZ, StopZ: cfg.StopZ}
}

// Transition evaluates one z-score against the current state and returns
// the emitted signal, the next state and the signal confidence. A
// non-finite z always yields Hold and leaves the state unchanged.
func Transition(state PositionState, z float64, th Thresholds) (SignalType, PositionState, float64) {
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return Hold, state, 0
	}
	absZ := math.Abs(z)

	switch state {
	case InLongSpread, InShortSpread:
		// Stop-loss wins over exit when both conditions hold.
		if absZ > th.StopZ {
			return StopLoss, Flat, 1
		}
		if absZ < th.ExitZ {
			return Exit, Flat, math.Max(1-absZ/th.ExitZ, 0)
		}
		return Hold, state, 0
	default:
		if z < -th.EntryZ {
			return EnterLong, InLongSpread, math.Min(absZ/th.StopZ, 1)
		}
		if z > th.EntryZ {
			return EnterShort, InShortSpread, math.Min(absZ/th.StopZ, 1)
		}
		return Hold, Flat, 0
	}
}
