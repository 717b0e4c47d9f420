// cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/ColonelBlimp/cwkeyer/internal/config"
	"github.com/ColonelBlimp/cwkeyer/internal/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "cwkeyer",
	Short: "Morse code keyer, encoder and decoder",
	Long: `Decodes Morse code keyed on a hotkey, a sidetone, a recorded script or a
FLAC recording, and converts text to and from dot/dash notation.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	flags := rootCmd.PersistentFlags()
	flags.Int("dot", 200, "longest press counted as a dot (ms)")
	flags.Int("dash", 1000, "presses at or beyond this are discarded (ms)")
	flags.Int("symbol-gap", 500, "silence that ends a letter (ms)")
	flags.Int("letter-gap", 2000, "silence that ends a word (ms)")
	flags.Int("tick", 100, "watchdog period (ms)")
	flags.IntP("device", "d", -1, "audio device index (-1 for default)")
	flags.Float64P("frequency", "f", 600, "sidetone frequency in Hz")
	flags.String("log-level", "warn", "log level: debug, info, warn, error")
	flags.BoolP("debug", "D", false, "enable debug output")

	bindFlags()
}

// flagKeys maps persistent and key command flags to config keys
var flagKeys = map[string]string{
	"dot":        "max_dot_ms",
	"dash":       "max_dash_ms",
	"symbol-gap": "max_symbol_gap_ms",
	"letter-gap": "max_letter_gap_ms",
	"tick":       "tick_interval_ms",
	"device":     "device_index",
	"frequency":  "tone_frequency",
	"log-level":  "log_level",
	"debug":      "debug",
	"source":     "source",
	"script":     "script_file",
	"paced":      "script_paced",
	"hotkey":     "hotkey",
	"recording":  "recording_file",
	"tui":        "tui",
	"copy":       "copy_on_exit",
}

// bindFlags binds flags to viper; viper.Reset drops the bindings.
func bindFlags() {
	for name, key := range flagKeys {
		flag := rootCmd.PersistentFlags().Lookup(name)
		if flag == nil {
			flag = keyCmd.Flags().Lookup(name)
		}
		if flag != nil {
			_ = viper.BindPFlag(key, flag)
		}
	}
}

func initConfig() {
	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	level := viper.GetString("log_level")
	if viper.GetBool("debug") {
		level = "debug"
	}
	return log.Init(os.Stderr, level)
}
