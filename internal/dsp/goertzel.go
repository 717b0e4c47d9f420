// internal/dsp/goertzel.go
package dsp

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrInvalidBlockSize indicates block size must be positive
	ErrInvalidBlockSize = errors.New("block size must be positive")
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidFrequency indicates frequency must be positive and below Nyquist
	ErrInvalidFrequency = errors.New("target frequency must be positive and less than Nyquist frequency")
	// ErrInsufficientSamples indicates not enough samples for the configured block size
	ErrInsufficientSamples = errors.New("insufficient samples for block size")
)

// GoertzelConfig describes the sidetone being listened for.
type GoertzelConfig struct {
	TargetFrequency float64 // Hz, config: tone_frequency
	SampleRate      float64 // Hz, config: sample_rate
	BlockSize       int     // samples per window, config: block_size
}

// Goertzel measures the energy of a single frequency bin. A key feeding a
// sidetone into the sound card only needs that one bin, so a full FFT is wasted.
type Goertzel struct {
	config      GoertzelConfig
	coefficient float64 // 2 * cos(omega)
	normalizer  float64 // 2 / N, so a full-scale sine reads about 1.0
}

// NewGoertzel validates cfg and precomputes the filter coefficient.
func NewGoertzel(cfg GoertzelConfig) (*Goertzel, error) {
	if cfg.BlockSize <= 0 {
		return nil, ErrInvalidBlockSize
	}
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if cfg.TargetFrequency <= 0 || cfg.TargetFrequency >= cfg.SampleRate/2 {
		return nil, ErrInvalidFrequency
	}

	omega := 2.0 * math.Pi * cfg.TargetFrequency / cfg.SampleRate

	return &Goertzel{
		config:      cfg,
		coefficient: 2.0 * math.Cos(omega),
		normalizer:  2.0 / float64(cfg.BlockSize),
	}, nil
}

// Magnitude returns the normalized magnitude of the target frequency over the
// first BlockSize samples.
func (g *Goertzel) Magnitude(samples []float32) (float64, error) {
	if len(samples) < g.config.BlockSize {
		return 0, ErrInsufficientSamples
	}
	return g.magnitude(samples), nil
}

func (g *Goertzel) magnitude(samples []float32) float64 {
	var s1, s2 float64
	coeff := g.coefficient

	for _, x := range samples[:g.config.BlockSize] {
		s0 := float64(x) + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}

	power := s1*s1 + s2*s2 - coeff*s1*s2
	if power < 0 {
		// rounding
		power = 0
	}
	return math.Sqrt(power) * g.normalizer
}

// Config returns the configuration the filter was built with
func (g *Goertzel) Config() GoertzelConfig {
	return g.config
}

// BlockSize returns the configured block size
func (g *Goertzel) BlockSize() int {
	return g.config.BlockSize
}

// BlockDuration is the stretch of audio covered by one block.
func (g *Goertzel) BlockDuration() time.Duration {
	return samplesToDuration(int64(g.config.BlockSize), g.config.SampleRate)
}
