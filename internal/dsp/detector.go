// internal/dsp/detector.go
package dsp

import (
	"errors"
	"math"
	"sync/atomic"
	"time"
)

var (
	// ErrInvalidThreshold indicates threshold must be between 0 and 1
	ErrInvalidThreshold = errors.New("threshold must be between 0.0 and 1.0")
	// ErrInvalidHysteresis indicates hysteresis must be non-negative
	ErrInvalidHysteresis = errors.New("hysteresis must be non-negative")
	// ErrInvalidOverlap indicates overlap percentage must be 0-99
	ErrInvalidOverlap = errors.New("overlap percentage must be between 0 and 99")
	// ErrInvalidAGCDecay indicates AGC decay must be between 0 and 1
	ErrInvalidAGCDecay = errors.New("agc decay must be between 0.0 and 1.0")
	// ErrInvalidAGCAttack indicates AGC attack must be between 0 and 1
	ErrInvalidAGCAttack = errors.New("agc attack must be between 0.0 and 1.0")
	// ErrInvalidAGCWarmup indicates AGC warmup blocks must be non-negative
	ErrInvalidAGCWarmup = errors.New("agc warmup blocks must be non-negative")
	// ErrGoertzelRequired indicates Goertzel instance is required
	ErrGoertzelRequired = errors.New("goertzel instance is required")
)

// ToneEvent is a confirmed key transition heard on the sidetone.
type ToneEvent struct {
	// ToneOn is true when the key goes down, false when it comes back up
	ToneOn bool
	// Timestamp is the stream position of the transition, anchored at the
	// detector's start time
	Timestamp time.Time
	// Duration is how long the previous state lasted, zero for the first event
	Duration time.Duration
	// Magnitude is the tone magnitude of the confirming block (0.0-1.0 with AGC)
	Magnitude float64
}

// ToneCallback receives tone events on the audio path and must return quickly.
type ToneCallback func(event ToneEvent)

// DetectorConfig holds the detection knobs, all taken from the config file.
type DetectorConfig struct {
	Threshold       float64 // threshold
	Hysteresis      int     // hysteresis, blocks needed to confirm a change
	OverlapPct      int     // overlap_pct
	AGCEnabled      bool    // agc_enabled
	AGCDecay        float64 // agc_decay
	AGCAttack       float64 // agc_attack
	AGCWarmupBlocks int     // agc_warmup_blocks, blocks spent calibrating before detection
}

// Detector turns a sidetone into key-down/key-up events. Timestamps come from
// the number of samples consumed, not the wall clock, so jitter in audio
// delivery does not leak into the dot/dash classification.
//
// Process is not safe for concurrent use; SetCallback is.
type Detector struct {
	config     DetectorConfig
	goertzel   *Goertzel
	blockSize  int
	sampleRate float64

	buffer  []float32
	hopSize int

	// stream clock
	start    time.Time
	consumed int64 // samples that have slid out of the window

	agcPeak       float64
	warmupCounter int

	toneState       bool
	pendingState    bool
	hysteresisCount int
	lastTransition  time.Time

	callbackPtr atomic.Pointer[ToneCallback]
}

// NewDetector creates a tone detector on top of g.
func NewDetector(cfg DetectorConfig, g *Goertzel) (*Detector, error) {
	if g == nil {
		return nil, ErrGoertzelRequired
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, ErrInvalidThreshold
	}
	if cfg.Hysteresis < 0 {
		return nil, ErrInvalidHysteresis
	}
	if cfg.OverlapPct < 0 || cfg.OverlapPct >= 100 {
		return nil, ErrInvalidOverlap
	}
	if cfg.AGCDecay < 0 || cfg.AGCDecay > 1 {
		return nil, ErrInvalidAGCDecay
	}
	if cfg.AGCAttack < 0 || cfg.AGCAttack > 1 {
		return nil, ErrInvalidAGCAttack
	}
	if cfg.AGCWarmupBlocks < 0 {
		return nil, ErrInvalidAGCWarmup
	}

	blockSize := g.BlockSize()
	overlap := (blockSize * cfg.OverlapPct) / 100

	return &Detector{
		config:     cfg,
		goertzel:   g,
		blockSize:  blockSize,
		sampleRate: g.Config().SampleRate,
		buffer:     make([]float32, 0, blockSize),
		hopSize:    blockSize - overlap,
		agcPeak:    1.0, // high until warmup measures the real level
	}, nil
}

// SetCallback sets the callback for tone events. nil removes it.
func (d *Detector) SetCallback(cb ToneCallback) {
	if cb == nil {
		d.callbackPtr.Store(nil)
		return
	}
	d.callbackPtr.Store(&cb)
}

// Start anchors the stream clock: sample zero is at t. Without it the first
// call to Process anchors the clock at time.Now().
func (d *Detector) Start(t time.Time) {
	d.start = t
	d.consumed = 0
}

// Process consumes samples (float32, -1.0 to 1.0) and emits events for
// every confirmed transition.
func (d *Detector) Process(samples []float32) {
	if d.start.IsZero() {
		d.start = time.Now()
	}
	d.buffer = append(d.buffer, samples...)

	for len(d.buffer) >= d.blockSize {
		end := d.consumed + int64(d.blockSize)
		d.processBlock(d.buffer[:d.blockSize], d.at(end))

		if d.hopSize < len(d.buffer) {
			copy(d.buffer, d.buffer[d.hopSize:])
			d.buffer = d.buffer[:len(d.buffer)-d.hopSize]
			d.consumed += int64(d.hopSize)
		} else {
			d.consumed += int64(len(d.buffer))
			d.buffer = d.buffer[:0]
		}
	}
}

// Position returns the stream time of the last sample handed to Process.
func (d *Detector) Position() time.Time {
	return d.at(d.consumed + int64(len(d.buffer)))
}

func (d *Detector) at(sample int64) time.Time {
	return d.start.Add(samplesToDuration(sample, d.sampleRate))
}

func (d *Detector) processBlock(block []float32, at time.Time) {
	magnitude := d.goertzel.magnitude(block)

	// Warmup tracks the loudest block without detecting anything
	if d.warmupCounter < d.config.AGCWarmupBlocks {
		d.warmupCounter++
		if d.config.AGCEnabled && magnitude > 0.001 {
			if magnitude > d.agcPeak || d.warmupCounter == 1 {
				d.agcPeak = magnitude
			}
		}
		return
	}

	if d.config.AGCEnabled {
		magnitude = d.applyAGC(magnitude)
	}

	d.updateHysteresis(magnitude > d.config.Threshold, magnitude, at)
}

func (d *Detector) applyAGC(magnitude float64) float64 {
	if magnitude > d.agcPeak {
		d.agcPeak += d.config.AGCAttack * (magnitude - d.agcPeak)
	} else {
		d.agcPeak *= d.config.AGCDecay
	}
	if d.agcPeak < 0.001 {
		d.agcPeak = 0.001
	}
	return min(magnitude/d.agcPeak, 1.0)
}

func (d *Detector) updateHysteresis(tonePresent bool, magnitude float64, at time.Time) {
	if tonePresent == d.toneState {
		d.pendingState = d.toneState
		d.hysteresisCount = 0
		return
	}

	if tonePresent == d.pendingState {
		d.hysteresisCount++
	} else {
		d.pendingState = tonePresent
		d.hysteresisCount = 1
	}

	if d.hysteresisCount < d.config.Hysteresis {
		return
	}

	var duration time.Duration
	if !d.lastTransition.IsZero() {
		duration = at.Sub(d.lastTransition)
	}

	d.toneState = d.pendingState
	d.lastTransition = at
	d.hysteresisCount = 0

	if cb := d.callbackPtr.Load(); cb != nil {
		(*cb)(ToneEvent{
			ToneOn:    d.toneState,
			Timestamp: at,
			Duration:  duration,
			Magnitude: magnitude,
		})
	}
}

// ToneState returns the current confirmed tone state
func (d *Detector) ToneState() bool {
	return d.toneState
}

// AGCPeak returns the current AGC peak value
func (d *Detector) AGCPeak() float64 {
	return d.agcPeak
}

// Reset returns the detector to key-up and restarts the stream clock on the
// next Process call.
func (d *Detector) Reset() {
	d.buffer = d.buffer[:0]
	d.agcPeak = 1.0
	d.warmupCounter = 0
	d.toneState = false
	d.pendingState = false
	d.hysteresisCount = 0
	d.lastTransition = time.Time{}
	d.start = time.Time{}
	d.consumed = 0
}

// Config returns the current configuration
func (d *Detector) Config() DetectorConfig {
	return d.config
}

func samplesToDuration(n int64, sampleRate float64) time.Duration {
	return time.Duration(math.Round(float64(n) * float64(time.Second) / sampleRate))
}
