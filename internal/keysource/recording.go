package keysource

import (
	"context"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/dsp"
)

// Recording replays recorded sidetone through a tone detector as fast as it
// decodes. Events carry stream time from Start, and a Ticker sink gets
// watchdog ticks every TickEvery of stream time.
type Recording struct {
	Samples   []float32
	Detector  *dsp.Detector
	Start     time.Time     // stream origin, time.Now() when zero
	Chunk     int           // samples per Process call
	TickEvery time.Duration // synthetic tick period
	Drain     time.Duration // quiet time after the last sample
}

// Run feeds the recording through the detector into sink.
func (r *Recording) Run(ctx context.Context, sink Sink) error {
	if len(r.Samples) == 0 {
		return ErrEmptyRecording
	}
	start := r.Start
	if start.IsZero() {
		start = time.Now()
	}
	chunk := r.Chunk
	if chunk <= 0 {
		chunk = defaultChunk
	}

	var pending []dsp.ToneEvent
	r.Detector.SetCallback(func(ev dsp.ToneEvent) {
		pending = append(pending, ev)
	})
	defer r.Detector.SetCallback(nil)
	r.Detector.Start(start)

	clock := newSyntheticClock(sink, start, r.TickEvery)
	for off := 0; off < len(r.Samples); off += chunk {
		if ctx.Err() != nil {
			return nil
		}
		end := min(off+chunk, len(r.Samples))
		r.Detector.Process(r.Samples[off:end])

		for _, ev := range pending {
			clock.advance(ev.Timestamp)
			deliver(sink, ev.ToneOn, ev.Timestamp)
		}
		pending = pending[:0]
		clock.advance(r.Detector.Position())
	}

	clock.advance(r.Detector.Position().Add(r.Drain))
	return nil
}
