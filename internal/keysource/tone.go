package keysource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/audio"
	"github.com/ColonelBlimp/cwkeyer/internal/dsp"
	"github.com/ColonelBlimp/cwkeyer/internal/log"
)

// Sampler delivers audio to a callback between Start and Stop.
// *audio.Capture satisfies it.
type Sampler interface {
	SetCallback(cb audio.SampleCallback)
	Start(ctx context.Context) error
	Stop() error
}

// Tone keys from a sidetone: tone on is key down, tone off is key up.
// Events carry the detector's stream timestamps.
type Tone struct {
	sampler  Sampler
	detector *dsp.Detector
	backlog  int
}

// NewTone wires a sampler to a detector.
func NewTone(s Sampler, d *dsp.Detector) *Tone {
	return &Tone{sampler: s, detector: d, backlog: 64}
}

// Run captures audio until ctx is done. Sink calls happen on the Run
// goroutine, never on the audio thread.
func (t *Tone) Run(ctx context.Context, sink Sink) error {
	logger := log.Component("tone")
	events := make(chan dsp.ToneEvent, t.backlog)

	t.detector.SetCallback(func(e dsp.ToneEvent) {
		select {
		case events <- e:
		default:
			logger.Warn().Bool("tone_on", e.ToneOn).Msg("tone event dropped")
		}
	})
	defer t.detector.SetCallback(nil)

	t.sampler.SetCallback(t.detector.Process)
	defer t.sampler.SetCallback(nil)

	t.detector.Start(time.Now())
	if err := t.sampler.Start(ctx); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	defer func() {
		if err := t.sampler.Stop(); err != nil && !errors.Is(err, audio.ErrNotRunning) {
			logger.Warn().Err(err).Msg("stop capture")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			logger.Debug().
				Bool("tone_on", e.ToneOn).
				Dur("previous", e.Duration).
				Float64("magnitude", e.Magnitude).
				Msg("tone edge")
			deliver(sink, e.ToneOn, e.Timestamp)
		}
	}
}
