package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/config"
	"github.com/ColonelBlimp/cwkeyer/internal/keysource"
	"github.com/ColonelBlimp/cwkeyer/internal/log"
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render [text...]",
	Short: "Key text into an event script or a FLAC sidetone",
	Long: `Keys text with timing the current thresholds decode back to the same text.
Writes an event script for "key --source script", or a FLAC sidetone at
--frequency for "key --source recording" when --output ends in .flac.
Reads standard input when no text is given.`,
	Example: `  cwkeyer render CQ CQ DE K1ABC
  cwkeyer render -o cq.flac -f 700 "CQ TEST"`,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringP("output", "o", "", "output file, standard output when empty")
	rootCmd.AddCommand(renderCmd)
}

const (
	renderAmplitude = 0.8
	renderLead      = 200 * time.Millisecond
	renderTail      = 500 * time.Millisecond
)

func runRender(cmd *cobra.Command, args []string) error {
	settings, err := config.Get()
	if err != nil {
		return err
	}

	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		text = string(data)
	}
	events := keysource.Render(text, settings.Timing())
	if len(events) == 0 {
		return fmt.Errorf("nothing to key in %q", text)
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		return keysource.WriteScript(cmd.OutOrStdout(), events)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(output), ".flac") {
		tone := keysource.Sidetone{
			Frequency:  settings.ToneFrequency,
			SampleRate: settings.SampleRate,
			Amplitude:  renderAmplitude,
			Lead:       renderLead,
			Tail:       renderTail,
		}
		err = keysource.WriteFLAC(f, tone.Synthesize(events), int(settings.SampleRate))
	} else {
		err = keysource.WriteScript(f, events)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	log.Component("render").Info().
		Str("file", output).
		Int("events", len(events)).
		Dur("length", events[len(events)-1].Offset).
		Msg("rendered")
	return f.Close()
}
