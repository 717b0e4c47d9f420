// internal/audio/capture.go
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ColonelBlimp/cwkeyer/internal/log"
	"github.com/gen2brain/malgo"
)

var (
	ErrNotInitialized = errors.New("audio capture not initialized")
	ErrAlreadyRunning = errors.New("audio capture already running")
	ErrNotRunning     = errors.New("audio capture not running")
	ErrClosed         = errors.New("audio capture closed")
)

// Config holds audio capture configuration
type Config struct {
	DeviceIndex int    // -1 for default device
	SampleRate  uint32 // e.g., 48000
	Channels    uint32 // 1 for mono, 2 for stereo
	BufferSize  uint32 // frames per callback
}

// DefaultConfig returns the settings used for a sidetone key
func DefaultConfig() Config {
	return Config{
		DeviceIndex: -1,
		SampleRate:  48000,
		Channels:    1,
		BufferSize:  512,
	}
}

// SampleCallback receives mono samples (-1.0 to 1.0) on the audio thread.
// It must not block.
type SampleCallback func(samples []float32)

// Capture reads a sound card input and hands mono samples to a callback.
type Capture struct {
	config   Config
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	running  bool
	closed   bool
	stop     chan struct{}
	mu       sync.RWMutex
	callback SampleCallback
}

// New creates a new audio capture instance
func New(cfg Config) *Capture {
	return &Capture{config: cfg}
}

// SetCallback sets the sample callback. Set before calling Start().
func (c *Capture) SetCallback(cb SampleCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
}

// Config returns the capture configuration
func (c *Capture) Config() Config {
	return c.config
}

// Init initializes the audio backend
func (c *Capture) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Component("audio").Debug().Msg(message)
	})
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	c.ctx = ctx

	return nil
}

// ListDevices returns available capture devices
func (c *Capture) ListDevices() ([]malgo.DeviceInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ctx == nil {
		return nil, ErrNotInitialized
	}

	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	return infos, nil
}

// Start begins audio capture. Capture stops when ctx is done or Stop is called.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.RLock()
	running, initialized := c.running, c.ctx != nil
	c.mu.RUnlock()
	if running {
		return ErrAlreadyRunning
	}
	if !initialized {
		return ErrNotInitialized
	}

	logger := log.Component("audio")

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.SampleRate = c.config.SampleRate
	deviceConfig.PeriodSizeInFrames = c.config.BufferSize
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = c.config.Channels

	if c.config.DeviceIndex >= 0 {
		devices, err := c.ListDevices()
		if err != nil {
			return err
		}
		if c.config.DeviceIndex >= len(devices) {
			return fmt.Errorf("device index %d out of range (have %d devices)",
				c.config.DeviceIndex, len(devices))
		}
		deviceConfig.Capture.DeviceID = devices[c.config.DeviceIndex].ID.Pointer()
		logger.Info().Str("device", devices[c.config.DeviceIndex].Name()).Msg("using capture device")
	}

	channels := int(c.config.Channels)
	onRecvFrames := func(_, input []byte, _ uint32) {
		if len(input) == 0 {
			return
		}
		c.mu.RLock()
		cb := c.callback
		c.mu.RUnlock()
		if cb != nil {
			cb(downmix(bytesToFloat32(input), channels))
		}
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		return fmt.Errorf("init device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start device: %w", err)
	}

	stop := make(chan struct{})
	c.mu.Lock()
	c.device = device
	c.running = true
	c.stop = stop
	c.mu.Unlock()

	logger.Debug().
		Uint32("sample_rate", c.config.SampleRate).
		Uint32("channels", c.config.Channels).
		Uint32("buffer", c.config.BufferSize).
		Msg("capture started")

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Stop()
		case <-stop:
		}
	}()

	return nil
}

// Stop stops audio capture
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrNotRunning
	}
	c.stopLocked()
	return nil
}

func (c *Capture) stopLocked() {
	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.running = false
}

// Close releases all audio resources. Calling it again is a no-op.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.running {
		c.stopLocked()
	}

	if c.ctx != nil {
		if err := c.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninit context: %w", err)
		}
		c.ctx.Free()
		c.ctx = nil
	}
	return nil
}

// IsRunning returns true if capture is active
func (c *Capture) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// bytesToFloat32 decodes little-endian float32 samples; a trailing partial
// sample is dropped.
func bytesToFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}

// downmix averages interleaved frames into mono, in place.
func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	for f := 0; f < frames; f++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[f*channels+ch]
		}
		samples[f] = sum / float32(channels)
	}
	return samples[:frames]
}
