// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"math"
	"path/filepath"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/keyer"
	"github.com/ColonelBlimp/cwkeyer/internal/log"
	"github.com/spf13/viper"
)

// Key sources
const (
	SourceHotkey    = "hotkey"
	SourceAudio     = "audio"
	SourceScript    = "script"
	SourceRecording = "recording"
)

const (
	AppName       = "cwkeyer"
	ConfigType    = "yaml"
	DefaultConfig = `# CW Keyer Configuration

# Key timing (milliseconds)
# Out-of-range values are clamped, not rejected
max_dot_ms: 200         # Presses up to this long are dots (1-5000)
max_dash_ms: 1000       # Presses shorter than this are dashes, longer ones are discarded
                        # 2 * max_dot_ms to 15000
max_symbol_gap_ms: 500  # Silence longer than this ends a letter (1-5000)
max_letter_gap_ms: 2000 # Silence longer than this ends a word (max_symbol_gap_ms-15000)
tick_interval_ms: 100   # Watchdog period for flushing letters after the key goes quiet

# Key source: hotkey, audio, script or recording
source: "hotkey"
hotkey: "space"         # Key held with Ctrl+Shift: space, return or tab
script_file: ""         # Event script for the script source
script_paced: true      # Replay the script in real time
recording_file: ""      # FLAC sidetone recording for the recording source

# Audio key (tone keyed into a sound card, or recorded)
device_index: -1        # -1 for default device
sample_rate: 48000      # Audio sample rate in Hz
channels: 1             # Number of channels (1=mono)
buffer_size: 512        # Audio buffer size in frames
tone_frequency: 600     # Sidetone frequency in Hz
block_size: 256         # Goertzel block size (samples per detection window)
overlap_pct: 50         # Block overlap percentage (0-99)
threshold: 0.4          # Detection threshold (0.0-1.0)
hysteresis: 2           # Consecutive blocks required to confirm a key change
agc_enabled: true       # Enable automatic gain control
agc_decay: 0.9995       # AGC peak decay rate per block (0.99-0.99999)
agc_attack: 0.1         # AGC attack rate (0.0-1.0)
agc_warmup_blocks: 10   # Blocks used to calibrate AGC before detection starts

# Output
tui: false              # Show the live view instead of plain text
copy_on_exit: false     # Copy the decoded text to the clipboard when done
log_level: "warn"       # debug, info, warn or error
debug: false            # Shortcut for log_level: debug
`
)

// Settings holds all application configuration
type Settings struct {
	// Key timing
	MaxDotMs       int `mapstructure:"max_dot_ms"`
	MaxDashMs      int `mapstructure:"max_dash_ms"`
	MaxSymbolGapMs int `mapstructure:"max_symbol_gap_ms"`
	MaxLetterGapMs int `mapstructure:"max_letter_gap_ms"`
	TickIntervalMs int `mapstructure:"tick_interval_ms"`

	// Key source
	Source        string `mapstructure:"source"`
	Hotkey        string `mapstructure:"hotkey"`
	ScriptFile    string `mapstructure:"script_file"`
	ScriptPaced   bool   `mapstructure:"script_paced"`
	RecordingFile string `mapstructure:"recording_file"`

	// Audio key
	DeviceIndex     int     `mapstructure:"device_index"`
	SampleRate      float64 `mapstructure:"sample_rate"`
	Channels        int     `mapstructure:"channels"`
	BufferSize      int     `mapstructure:"buffer_size"`
	ToneFrequency   float64 `mapstructure:"tone_frequency"`
	BlockSize       int     `mapstructure:"block_size"`
	OverlapPct      int     `mapstructure:"overlap_pct"`
	Threshold       float64 `mapstructure:"threshold"`
	Hysteresis      int     `mapstructure:"hysteresis"`
	AGCEnabled      bool    `mapstructure:"agc_enabled"`
	AGCDecay        float64 `mapstructure:"agc_decay"`
	AGCAttack       float64 `mapstructure:"agc_attack"`
	AGCWarmupBlocks int     `mapstructure:"agc_warmup_blocks"`

	// Output
	TUI        bool   `mapstructure:"tui"`
	CopyOnExit bool   `mapstructure:"copy_on_exit"`
	LogLevel   string `mapstructure:"log_level"`
	Debug      bool   `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/cwkeyer/
func Init() error {
	viper.SetDefault("max_dot_ms", 200)
	viper.SetDefault("max_dash_ms", 1000)
	viper.SetDefault("max_symbol_gap_ms", 500)
	viper.SetDefault("max_letter_gap_ms", 2000)
	viper.SetDefault("tick_interval_ms", 100)
	viper.SetDefault("source", SourceHotkey)
	viper.SetDefault("hotkey", "space")
	viper.SetDefault("script_file", "")
	viper.SetDefault("script_paced", true)
	viper.SetDefault("recording_file", "")
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 48000)
	viper.SetDefault("channels", 1)
	viper.SetDefault("buffer_size", 512)
	viper.SetDefault("tone_frequency", 600)
	viper.SetDefault("block_size", 256)
	viper.SetDefault("overlap_pct", 50)
	viper.SetDefault("threshold", 0.4)
	viper.SetDefault("hysteresis", 2)
	viper.SetDefault("agc_enabled", true)
	viper.SetDefault("agc_decay", 0.9995)
	viper.SetDefault("agc_attack", 0.1)
	viper.SetDefault("agc_warmup_blocks", 10)
	viper.SetDefault("tui", false)
	viper.SetDefault("copy_on_exit", false)
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("debug", false)

	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("read config: %w", err)
		}
		// No config found - create default in ~/.config/cwkeyer/
		if err = ensureConfigExists(filepath.Join(configDir, AppName)); err != nil {
			return err
		}
		if err = viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	log.L().Debug().Str("file", viper.ConfigFileUsed()).Msg("config loaded")
	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if raw, clamped := s.rawTiming(), s.Timing(); raw != clamped {
		log.L().Warn().
			Dur("max_dot", clamped.MaxDot).
			Dur("max_dash", clamped.MaxDash).
			Dur("max_symbol_gap", clamped.MaxSymbolGap).
			Dur("max_letter_gap", clamped.MaxLetterGap).
			Msg("key timing out of range, clamped")
	}
	return &s, nil
}

// Timing returns the keyer thresholds described by the settings, clamped to
// the ranges the keyer accepts.
func (s *Settings) Timing() keyer.Timing {
	return s.rawTiming().Clamp()
}

func (s *Settings) rawTiming() keyer.Timing {
	return keyer.Timing{
		MaxDot:       msDuration(s.MaxDotMs),
		MaxDash:      msDuration(s.MaxDashMs),
		MaxSymbolGap: msDuration(s.MaxSymbolGapMs),
		MaxLetterGap: msDuration(s.MaxLetterGapMs),
	}
}

// msDuration converts milliseconds, saturating instead of overflowing.
func msDuration(ms int) time.Duration {
	const limit = int64(math.MaxInt64 / int64(time.Millisecond))
	switch v := int64(ms); {
	case v > limit:
		return math.MaxInt64
	case v < -limit:
		return math.MinInt64
	default:
		return time.Duration(v) * time.Millisecond
	}
}

// TickInterval returns the watchdog period.
func (s *Settings) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalMs) * time.Millisecond
}

// EffectiveLogLevel returns the log level, forced to debug when Debug is set.
func (s *Settings) EffectiveLogLevel() string {
	if s.Debug {
		return "debug"
	}
	return s.LogLevel
}

// Validate checks that all settings are within acceptable ranges.
// Key timing thresholds are not checked; Timing clamps them.
func (s *Settings) Validate() error {
	var errs []error

	if s.TickIntervalMs < 10 || s.TickIntervalMs > 1000 {
		errs = append(errs, fmt.Errorf("tick_interval_ms must be between 10 and 1000, got %d", s.TickIntervalMs))
	}

	// Key source
	switch s.Source {
	case SourceHotkey:
		if !validHotkeys[s.Hotkey] {
			errs = append(errs, fmt.Errorf("hotkey must be one of space, return, tab, got %q", s.Hotkey))
		}
	case SourceAudio:
		errs = append(errs, s.validateAudio()...)
	case SourceScript:
		if s.ScriptFile == "" {
			errs = append(errs, errors.New("script_file is required when source is script"))
		}
	case SourceRecording:
		if s.RecordingFile == "" {
			errs = append(errs, errors.New("recording_file is required when source is recording"))
		}
		errs = append(errs, s.validateDetector()...)
	default:
		errs = append(errs, fmt.Errorf("source must be one of hotkey, audio, script, recording, got %q", s.Source))
	}

	// Output
	if _, err := log.ParseLevel(s.EffectiveLogLevel()); err != nil {
		errs = append(errs, fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", s.LogLevel))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

var validHotkeys = map[string]bool{
	"space":  true,
	"return": true,
	"tab":    true,
}

func (s *Settings) validateAudio() []error {
	var errs []error

	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %v", s.SampleRate))
	}
	if s.Channels < 1 || s.Channels > 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", s.Channels))
	}
	if s.BufferSize < 64 || s.BufferSize > 8192 {
		errs = append(errs, fmt.Errorf("buffer_size must be between 64 and 8192, got %d", s.BufferSize))
	}
	errs = append(errs, s.validateDetector()...)

	// Nyquist check: tone frequency must be less than half the sample rate
	if s.ToneFrequency >= s.SampleRate/2 {
		errs = append(errs, fmt.Errorf("tone_frequency (%v Hz) must be less than Nyquist frequency (%v Hz)", s.ToneFrequency, s.SampleRate/2))
	}

	return errs
}

// validateDetector checks the tone detector settings shared by the audio
// and recording sources.
func (s *Settings) validateDetector() []error {
	var errs []error

	if s.ToneFrequency < 100 || s.ToneFrequency > 3000 {
		errs = append(errs, fmt.Errorf("tone_frequency must be between 100 and 3000 Hz, got %v", s.ToneFrequency))
	}
	if s.BlockSize < 32 || s.BlockSize > 4096 {
		errs = append(errs, fmt.Errorf("block_size must be between 32 and 4096, got %d", s.BlockSize))
	}
	if s.BlockSize&(s.BlockSize-1) != 0 {
		errs = append(errs, fmt.Errorf("block_size should be a power of 2, got %d", s.BlockSize))
	}
	if s.OverlapPct < 0 || s.OverlapPct > 99 {
		errs = append(errs, fmt.Errorf("overlap_pct must be between 0 and 99, got %d", s.OverlapPct))
	}
	if s.Threshold < 0.0 || s.Threshold > 1.0 {
		errs = append(errs, fmt.Errorf("threshold must be between 0.0 and 1.0, got %v", s.Threshold))
	}
	if s.Hysteresis < 1 || s.Hysteresis > 50 {
		errs = append(errs, fmt.Errorf("hysteresis must be between 1 and 50, got %d", s.Hysteresis))
	}
	if s.AGCDecay < 0.99 || s.AGCDecay > 0.99999 {
		errs = append(errs, fmt.Errorf("agc_decay must be between 0.99 and 0.99999, got %v", s.AGCDecay))
	}
	if s.AGCAttack < 0.0 || s.AGCAttack > 1.0 {
		errs = append(errs, fmt.Errorf("agc_attack must be between 0.0 and 1.0, got %v", s.AGCAttack))
	}
	if s.AGCWarmupBlocks < 0 {
		errs = append(errs, fmt.Errorf("agc_warmup_blocks must be non-negative, got %d", s.AGCWarmupBlocks))
	}

	return errs
}
