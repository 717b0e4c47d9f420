package keysource

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/audio"
	"github.com/ColonelBlimp/cwkeyer/internal/dsp"
)

const toneSampleRate = 48000.0

type fakeSampler struct {
	mu       sync.Mutex
	cb       audio.SampleCallback
	audio    []float32
	startErr error
	stopped  bool
}

func (f *fakeSampler) SetCallback(cb audio.SampleCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
}

func (f *fakeSampler) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	go func() {
		for rest := f.audio; len(rest) > 0 && ctx.Err() == nil; {
			n := min(480, len(rest))
			f.mu.Lock()
			cb := f.cb
			f.mu.Unlock()
			if cb != nil {
				cb(rest[:n])
			}
			rest = rest[n:]
		}
	}()
	return nil
}

func (f *fakeSampler) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

// sidetone is silence, tone, silence with the given millisecond lengths
func sidetone(silence, tone, tail int) []float32 {
	n := func(ms int) int { return ms * int(toneSampleRate) / 1000 }
	out := make([]float32, n(silence), n(silence)+n(tone)+n(tail))
	for i := 0; i < n(tone); i++ {
		out = append(out, float32(math.Sin(2*math.Pi*600*float64(i)/toneSampleRate)))
	}
	return append(out, make([]float32, n(tail))...)
}

func newToneDetector(t *testing.T) *dsp.Detector {
	t.Helper()
	g, err := dsp.NewGoertzel(dsp.GoertzelConfig{TargetFrequency: 600, SampleRate: toneSampleRate, BlockSize: 256})
	if err != nil {
		t.Fatalf("NewGoertzel() error = %v", err)
	}
	d, err := dsp.NewDetector(dsp.DetectorConfig{Threshold: 0.4, Hysteresis: 1, AGCDecay: 0.9995, AGCAttack: 0.1}, g)
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	return d
}

func TestTone_KeysFromSidetone(t *testing.T) {
	s := &fakeSampler{audio: sidetone(100, 300, 100)}
	src := NewTone(s, newToneDetector(t))
	var r recorder

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, &r) }()

	waitFor(t, "key down and up", func() bool { return len(r.snapshot()) == 2 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := r.snapshot()
	if got[0].kind != "down" || got[1].kind != "up" {
		t.Fatalf("calls = %+v, want down then up", got)
	}
	press := got[1].at.Sub(got[0].at)
	if press < 290*time.Millisecond || press > 310*time.Millisecond {
		t.Errorf("press length = %v, want about 300ms from the sample clock", press)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		t.Error("sampler was not stopped")
	}
	if s.cb != nil {
		t.Error("sampler callback still set after Run")
	}
}

func TestTone_StartError(t *testing.T) {
	s := &fakeSampler{startErr: audio.ErrNotInitialized}
	src := NewTone(s, newToneDetector(t))

	err := src.Run(context.Background(), &recorder{})
	if !errors.Is(err, audio.ErrNotInitialized) {
		t.Errorf("Run() error = %v, want %v", err, audio.ErrNotInitialized)
	}
}
