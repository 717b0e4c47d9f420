package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/audio"
	"github.com/ColonelBlimp/cwkeyer/internal/config"
	"github.com/ColonelBlimp/cwkeyer/internal/dsp"
	"github.com/ColonelBlimp/cwkeyer/internal/keyer"
	"github.com/ColonelBlimp/cwkeyer/internal/keysource"
	"github.com/ColonelBlimp/cwkeyer/internal/log"
	"github.com/ColonelBlimp/cwkeyer/internal/recovery"
	"github.com/ColonelBlimp/cwkeyer/internal/ui"
	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Decode Morse keyed on a hotkey, a sidetone, a script or a recording",
	Long: `Runs the keyer against a key source and prints each letter as it is
decoded. Sources:

  hotkey     hold Ctrl+Shift+<hotkey> as a straight key
  audio      listen for a sidetone on a capture device
  script     replay "<offset_ms> down|up" lines from --script
  recording  decode the sidetone in the FLAC file --recording`,
	Example: `  cwkeyer key
  cwkeyer key --source audio -f 700 --tui
  cwkeyer key --source script --script sos.txt --paced=false
  cwkeyer key --source recording --recording qso.flac --copy`,
	RunE: runKey,
}

func init() {
	flags := keyCmd.Flags()
	flags.String("source", config.SourceHotkey, "key source: hotkey, audio, script or recording")
	flags.String("script", "", "event script for the script source")
	flags.Bool("paced", true, "replay the script in real time")
	flags.String("recording", "", "FLAC sidetone recording for the recording source")
	flags.String("hotkey", "space", "key held with Ctrl+Shift: space, return or tab")
	flags.Bool("tui", false, "show the live view")
	flags.Bool("copy", false, "copy the decoded text to the clipboard when done")

	rootCmd.AddCommand(keyCmd)
	bindFlags()
}

// copyText is swapped out in tests.
var copyText = clipboard.WriteAll

// session is one keyer wired to one source.
type session struct {
	id      string
	keyer   *keyer.Keyer
	source  keysource.Source
	sink    keysource.Sink
	tick    time.Duration
	watch   bool // run the wall-clock watchdog
	copy    bool
	cleanup func()
}

func runKey(cmd *cobra.Command, _ []string) error {
	settings, err := config.Get()
	if err != nil {
		return err
	}

	s, err := newSession(settings)
	if err != nil {
		return err
	}
	defer s.cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if settings.TUI {
		if isTerminal(out) {
			return s.runTUI(ctx, settings.Source)
		}
		log.Component("key").Warn().Msg("output is not a terminal, live view disabled")
	}
	return s.runPlain(ctx, out)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newSession(settings *config.Settings) (*session, error) {
	id := uuid.NewString()
	logger := log.Component("keyer").With().Str("session", id).Logger()

	k := keyer.New(settings.Timing(), keyer.WithLogger(logger))
	s := &session{
		id:      id,
		keyer:   k,
		sink:    k,
		tick:    settings.TickInterval(),
		watch:   true,
		copy:    settings.CopyOnExit,
		cleanup: func() {},
	}

	switch settings.Source {
	case config.SourceHotkey:
		src, err := keysource.NewHotkey(settings.Hotkey)
		if err != nil {
			return nil, err
		}
		s.source = src

	case config.SourceAudio:
		src, closer, err := newToneSource(settings)
		if err != nil {
			return nil, err
		}
		s.source = src
		s.cleanup = closer

	case config.SourceScript:
		f, err := os.Open(settings.ScriptFile)
		if err != nil {
			return nil, fmt.Errorf("open script: %w", err)
		}
		events, err := keysource.ParseScript(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", settings.ScriptFile, err)
		}
		s.source = &keysource.Script{
			Events:    events,
			Paced:     settings.ScriptPaced,
			TickEvery: s.tick,
			Drain:     k.MaxLetterGap() + 2*s.tick,
		}
		// instant replay brings its own clock
		s.watch = settings.ScriptPaced

	case config.SourceRecording:
		src, err := newRecordingSource(settings)
		if err != nil {
			return nil, err
		}
		src.TickEvery = s.tick
		src.Drain = k.MaxLetterGap() + 2*s.tick
		s.source = src
		s.watch = false

	default:
		return nil, fmt.Errorf("unknown source %q", settings.Source)
	}

	log.Component("key").Info().
		Str("session", id).
		Str("source", settings.Source).
		Dur("max_dot", k.MaxDotTime()).
		Dur("max_dash", k.MaxDashTime()).
		Dur("max_symbol_gap", k.MaxSymbolGap()).
		Dur("max_letter_gap", k.MaxLetterGap()).
		Msg("keyer ready")
	return s, nil
}

func newDetector(settings *config.Settings, sampleRate float64) (*dsp.Detector, error) {
	g, err := dsp.NewGoertzel(dsp.GoertzelConfig{
		TargetFrequency: settings.ToneFrequency,
		SampleRate:      sampleRate,
		BlockSize:       settings.BlockSize,
	})
	if err != nil {
		return nil, fmt.Errorf("tone filter: %w", err)
	}
	d, err := dsp.NewDetector(dsp.DetectorConfig{
		Threshold:       settings.Threshold,
		Hysteresis:      settings.Hysteresis,
		OverlapPct:      settings.OverlapPct,
		AGCEnabled:      settings.AGCEnabled,
		AGCDecay:        settings.AGCDecay,
		AGCAttack:       settings.AGCAttack,
		AGCWarmupBlocks: settings.AGCWarmupBlocks,
	}, g)
	if err != nil {
		return nil, fmt.Errorf("tone detector: %w", err)
	}
	return d, nil
}

func newToneSource(settings *config.Settings) (keysource.Source, func(), error) {
	d, err := newDetector(settings, settings.SampleRate)
	if err != nil {
		return nil, nil, err
	}

	capture := audio.New(audio.Config{
		DeviceIndex: settings.DeviceIndex,
		SampleRate:  uint32(settings.SampleRate),
		Channels:    uint32(settings.Channels),
		BufferSize:  uint32(settings.BufferSize),
	})
	if err := capture.Init(); err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := capture.Close(); err != nil {
			log.Component("audio").Warn().Err(err).Msg("close capture")
		}
	}
	return keysource.NewTone(capture, d), closer, nil
}

// newRecordingSource decodes the recording and builds a detector for its
// sample rate.
func newRecordingSource(settings *config.Settings) (*keysource.Recording, error) {
	f, err := os.Open(settings.RecordingFile)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	samples, rate, err := keysource.ReadFLAC(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", settings.RecordingFile, err)
	}
	d, err := newDetector(settings, rate)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", settings.RecordingFile, err)
	}
	return &keysource.Recording{
		Samples:  samples,
		Detector: d,
		Chunk:    settings.BufferSize,
	}, nil
}

// run drives the source and, when needed, the watchdog until the source
// finishes or ctx is done. A letter still pending at the end is flushed.
func (s *session) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if s.watch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer recovery.HandlePanicFunc(cancel)
			if err := s.keyer.Watch(ctx, s.tick); err != nil {
				log.Component("key").Error().Err(err).Msg("watchdog stopped")
				cancel()
			}
		}()
	}

	err := s.source.Run(ctx, s.sink)
	cancel()
	wg.Wait()

	if s.keyer.PeekSequence() != "" {
		s.keyer.Silence(keyer.SilenceInterLetter)
	}
	return err
}

func (s *session) runPlain(ctx context.Context, w io.Writer) error {
	p := &printer{w: w}
	s.keyer.OnCode(p.code)
	err := s.run(ctx)
	p.finish()
	s.copyOut(p.text())
	return err
}

func (s *session) runTUI(ctx context.Context, source string) error {
	program := ui.NewProgram(ui.New(s.keyer.Timing(), source))
	ui.Bind(s.keyer, program.Send)
	s.sink = &keyStateSink{keyer: s.keyer, send: program.Send}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer recovery.HandlePanicFunc(program.Kill)
		err := s.run(ctx)
		status := "source finished, q to quit"
		if err != nil {
			status = "source stopped: " + err.Error()
		}
		program.Send(ui.StatusMsg{Text: status})
		done <- err
	}()

	final, err := program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("live view: %w", err)
	}
	cancel()
	err = <-done
	if m, ok := final.(ui.Model); ok {
		s.copyOut(m.Text())
	}
	return err
}

// copyOut puts the decoded text on the clipboard when asked to.
func (s *session) copyOut(text string) {
	if !s.copy || text == "" {
		return
	}
	l := log.Component("key")
	if err := copyText(text); err != nil {
		l.Warn().Err(err).Msg("copy to clipboard")
		return
	}
	l.Info().Int("chars", len(text)).Msg("copied to clipboard")
}

// printer writes decoded letters as a running line of text.
type printer struct {
	mu  sync.Mutex
	w   io.Writer
	buf strings.Builder
}

func (p *printer) code(letter, sequence string) {
	if sequence == "" && letter != " " {
		// idle flush
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if letter == " " && p.buf.Len() == 0 {
		return
	}
	fmt.Fprint(p.w, letter)
	p.buf.WriteString(letter)
}

func (p *printer) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf.Len() > 0 {
		fmt.Fprintln(p.w)
	}
}

// text returns what was printed, without the trailing word gap.
func (p *printer) text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.TrimRight(p.buf.String(), " ")
}

// keyStateSink mirrors key transitions into the live view.
type keyStateSink struct {
	keyer *keyer.Keyer
	send  func(tea.Msg)
}

func (k *keyStateSink) KeyDown(at time.Time) {
	k.keyer.KeyDown(at)
	k.send(ui.KeyStateMsg{Down: true})
}

func (k *keyStateSink) KeyUp(at time.Time) {
	k.keyer.KeyUp(at)
	k.send(ui.KeyStateMsg{Down: false})
}

func (k *keyStateSink) Tick(at time.Time) {
	k.keyer.Tick(at)
}
