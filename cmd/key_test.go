package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/config"
	"github.com/ColonelBlimp/cwkeyer/internal/keyer"
	"github.com/ColonelBlimp/cwkeyer/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
)

// keyScript renders press lengths (ms) with 100ms element gaps and 700ms
// letter gaps; 0 ends a letter.
func keyScript(presses ...int) string {
	var b strings.Builder
	b.WriteString("# generated\n")
	offset := 0
	for _, p := range presses {
		if p == 0 {
			offset += 600
			continue
		}
		fmt.Fprintf(&b, "%d down\n%d up\n", offset, offset+p)
		offset += p + 100
	}
	return b.String()
}

func writeScript(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "keys.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestKeyCmd_InstantScript(t *testing.T) {
	dir := setupTest(t)
	sos := keyScript(100, 100, 100, 0, 400, 400, 400, 0, 100, 100, 100)
	path := writeScript(t, dir, sos)

	out, err := execute(t, "", "key", "--source", "script", "--script", path, "--paced=false")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "SOS" {
		t.Errorf("output = %q, want %q", got, "SOS")
	}
}

func TestKeyCmd_CopyOnExit(t *testing.T) {
	dir := setupTest(t)
	path := writeScript(t, dir, keyScript(100, 100, 100, 0, 400, 400, 400, 0, 100, 100, 100))

	var copied []string
	orig := copyText
	copyText = func(text string) error {
		copied = append(copied, text)
		return nil
	}
	t.Cleanup(func() { copyText = orig })

	if _, err := execute(t, "", "key", "--source", "script", "--script", path, "--paced=false", "--copy"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(copied) != 1 || copied[0] != "SOS" {
		t.Errorf("copied = %q, want [SOS]", copied)
	}
}

func TestKeyCmd_CopyFailureIsNotFatal(t *testing.T) {
	dir := setupTest(t)
	path := writeScript(t, dir, keyScript(100))

	orig := copyText
	copyText = func(string) error { return errors.New("no clipboard") }
	t.Cleanup(func() { copyText = orig })

	out, err := execute(t, "", "key", "--source", "script", "--script", path, "--paced=false", "--copy")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "E" {
		t.Errorf("output = %q, want %q", got, "E")
	}
}

func TestKeyCmd_TUIWithoutTerminal(t *testing.T) {
	dir := setupTest(t)
	path := writeScript(t, dir, keyScript(400, 100, 400, 0, 400, 400, 100, 400))

	out, err := execute(t, "", "key", "--source", "script", "--script", path, "--paced=false", "--tui")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "CQ" {
		t.Errorf("output = %q, want plain %q", got, "CQ")
	}
}

func TestKeyCmd_ThresholdFlags(t *testing.T) {
	dir := setupTest(t)
	// 300ms presses are dashes by default, dots with --dot 350
	path := writeScript(t, dir, keyScript(300, 300))

	out, err := execute(t, "", "key", "--source", "script", "--script", path, "--paced=false", "--dot", "350")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "I" {
		t.Errorf("output = %q, want %q", got, "I")
	}
}

func TestKeyCmd_OutOfRangeTimingIsClamped(t *testing.T) {
	dir := setupTest(t)
	// --dot 20000 is clamped to 5s, so 400ms presses are dots
	path := writeScript(t, dir, keyScript(400, 400))

	out, err := execute(t, "", "key", "--source", "script", "--script", path, "--paced=false", "--dot", "20000")
	if err != nil {
		t.Fatalf("Execute() error = %v, want timing clamped", err)
	}
	if got := strings.TrimSpace(out); got != "I" {
		t.Errorf("output = %q, want %q", got, "I")
	}
}

func TestKeyCmd_PacedScript(t *testing.T) {
	dir := setupTest(t)
	path := writeScript(t, dir, "0 down\n40 up\n")

	start := time.Now()
	out, err := execute(t, "", "key", "--source", "script", "--script", path,
		"--symbol-gap", "50", "--letter-gap", "80", "--tick", "10")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "E" {
		t.Errorf("output = %q, want %q", got, "E")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("paced replay took %v, want at least 40ms", elapsed)
	}
}

func TestKeyCmd_Errors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		args   []string
		want   string
	}{
		{"bad script line", "0 down\nlater up\n", nil, "bad script line"},
		{"script out of order", "100 down\n50 up\n", nil, "must not decrease"},
		{"missing script", "", []string{"--script", "nope.txt"}, "open script"},
		{"invalid tick", "0 down\n", []string{"--tick", "0"}, "tick_interval_ms"},
		{"unknown source", "", []string{"--source", "pigeon"}, "source"},
		{"missing recording", "", []string{"--source", "recording", "--recording", "nope.flac"}, "open recording"},
		{"recording not flac", "0 down\n", []string{"--source", "recording", "--recording", "keys.txt"}, "open flac"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupTest(t)
			args := []string{"key", "--source", "script", "--paced=false"}
			if tt.script != "" {
				args = append(args, "--script", writeScript(t, dir, tt.script))
			}
			args = append(args, tt.args...)

			_, err := execute(t, "", args...)
			if err == nil {
				t.Fatal("Execute() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Execute() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{w: &buf}

	p.code(" ", "") // word gap before anything
	p.code("?", "") // idle flush
	p.code("C", "-.-.")
	p.code("Q", "--.-")
	p.code(" ", "")
	p.code("?", "........")
	p.finish()

	if got, want := buf.String(), "CQ ?\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if got, want := p.text(), "CQ ?"; got != want {
		t.Errorf("text() = %q, want %q", got, want)
	}
}

func TestPrinter_NothingDecoded(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{w: &buf}
	p.code("?", "")
	p.finish()

	if buf.Len() != 0 {
		t.Errorf("output = %q, want nothing", buf.String())
	}
}

func TestKeyStateSink(t *testing.T) {
	k := keyer.New(keyer.DefaultTiming())
	var msgs []tea.Msg
	s := &keyStateSink{keyer: k, send: func(m tea.Msg) { msgs = append(msgs, m) }}

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.KeyDown(at)
	s.KeyUp(at.Add(50 * time.Millisecond))

	if k.PeekSequence() != "." {
		t.Errorf("PeekSequence() = %q, want %q", k.PeekSequence(), ".")
	}
	want := []tea.Msg{ui.KeyStateMsg{Down: true}, ui.KeyStateMsg{Down: false}}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("message %d = %#v, want %#v", i, msgs[i], want[i])
		}
	}

	s.Tick(at.Add(time.Second))
	if k.PeekSequence() != "" {
		t.Error("Tick() did not reach the keyer")
	}
}

func TestNewSession_ScriptWatchdog(t *testing.T) {
	dir := setupTest(t)
	path := writeScript(t, dir, "0 down\n100 up\n")

	for _, paced := range []bool{true, false} {
		settings := &config.Settings{
			MaxDotMs: 200, MaxDashMs: 1000, MaxSymbolGapMs: 500, MaxLetterGapMs: 2000,
			TickIntervalMs: 100, Source: config.SourceScript, ScriptFile: path, ScriptPaced: paced,
		}
		s, err := newSession(settings)
		if err != nil {
			t.Fatalf("newSession() error = %v", err)
		}
		if s.watch != paced {
			t.Errorf("paced=%v: watch = %v, want %v", paced, s.watch, paced)
		}
		if s.keyer.MaxLetterGap() != 2*time.Second {
			t.Errorf("MaxLetterGap() = %v, want 2s", s.keyer.MaxLetterGap())
		}
	}
}
