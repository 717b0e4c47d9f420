// Package keysource produces key-down/key-up events for a keyer from a
// physical key, an audio sidetone, a recorded script or a FLAC recording.
package keysource

import (
	"context"
	"time"
)

// Sink receives key transitions. *keyer.Keyer satisfies it.
type Sink interface {
	KeyDown(at time.Time)
	KeyUp(at time.Time)
}

// Ticker is implemented by sinks that run a watchdog. Sources replaying
// synthetic time drive it themselves.
type Ticker interface {
	Tick(at time.Time)
}

// Source feeds a sink until the context is done or the input is exhausted.
type Source interface {
	Run(ctx context.Context, sink Sink) error
}

// syntheticClock drives a Ticker sink at a fixed period while a source
// replays events faster than real time.
type syntheticClock struct {
	ticker Ticker
	every  time.Duration
	next   time.Time
}

func newSyntheticClock(sink Sink, start time.Time, every time.Duration) *syntheticClock {
	ticker, _ := sink.(Ticker)
	return &syntheticClock{ticker: ticker, every: every, next: start.Add(every)}
}

// advance emits every tick due at or before t.
func (c *syntheticClock) advance(t time.Time) {
	if c.ticker == nil || c.every <= 0 {
		return
	}
	for !c.next.After(t) {
		c.ticker.Tick(c.next)
		c.next = c.next.Add(c.every)
	}
}
