// internal/keyer/timing.go
package keyer

import "time"

// Threshold defaults and clamping bounds
const (
	DefaultMaxDot       = 200 * time.Millisecond
	DefaultMaxDash      = 1000 * time.Millisecond
	DefaultMaxSymbolGap = 500 * time.Millisecond
	DefaultMaxLetterGap = 2000 * time.Millisecond

	// DefaultTickInterval is the watchdog period used by Watch callers that have no preference
	DefaultTickInterval = 100 * time.Millisecond

	MinThreshold    = 1 * time.Millisecond
	MaxDotLimit     = 5000 * time.Millisecond
	MaxDashLimit    = 15000 * time.Millisecond
	MaxSymbolLimit  = 5000 * time.Millisecond
	MaxLetterLimit  = 15000 * time.Millisecond
	DashToDotFactor = 2
)

// Timing holds the press and silence thresholds used to classify key events.
type Timing struct {
	// MaxDot is the longest press that still counts as a dot
	MaxDot time.Duration
	// MaxDash bounds dashes from above; presses at or beyond it are discarded
	MaxDash time.Duration
	// MaxSymbolGap is the longest silence between symbols of one letter
	MaxSymbolGap time.Duration
	// MaxLetterGap is the longest silence between letters of one word
	MaxLetterGap time.Duration
}

// DefaultTiming returns the stock thresholds.
func DefaultTiming() Timing {
	return Timing{
		MaxDot:       DefaultMaxDot,
		MaxDash:      DefaultMaxDash,
		MaxSymbolGap: DefaultMaxSymbolGap,
		MaxLetterGap: DefaultMaxLetterGap,
	}
}

// Clamp returns t with every field forced into range:
// MaxDot in [1ms, 5s], MaxDash in [2*MaxDot, 15s],
// MaxSymbolGap in [1ms, 5s], MaxLetterGap in [MaxSymbolGap, 15s].
func (t Timing) Clamp() Timing {
	t.MaxDot = clamp(t.MaxDot, MinThreshold, MaxDotLimit)
	t.MaxDash = clamp(t.MaxDash, DashToDotFactor*t.MaxDot, MaxDashLimit)
	t.MaxSymbolGap = clamp(t.MaxSymbolGap, MinThreshold, MaxSymbolLimit)
	t.MaxLetterGap = clamp(t.MaxLetterGap, t.MaxSymbolGap, MaxLetterLimit)
	return t
}

func clamp(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
