package keysource

import (
	"bytes"
	"context"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/keyer"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Event
	}{
		{"empty", "", nil},
		{"dot", "e", []Event{{0, true}, {ms(100), false}}},
		{"symbol gap", "i", []Event{{0, true}, {ms(100), false}, {ms(350), true}, {ms(450), false}}},
		{"letter gap", "ET", []Event{{0, true}, {ms(100), false}, {ms(1350), true}, {ms(1950), false}}},
		{"word gap", "E T", []Event{{0, true}, {ms(100), false}, {ms(2600), true}, {ms(3200), false}}},
		{"unknown skipped", "%E%", []Event{{0, true}, {ms(100), false}}},
		{"spaces collapse", "  E  ", []Event{{0, true}, {ms(100), false}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.text, keyer.DefaultTiming())
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Render(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestRender_DecodesBack(t *testing.T) {
	timings := map[string]keyer.Timing{
		"default": keyer.DefaultTiming(),
		"fast":    {MaxDot: 80 * time.Millisecond, MaxDash: 300 * time.Millisecond, MaxSymbolGap: 120 * time.Millisecond, MaxLetterGap: 400 * time.Millisecond},
	}

	for name, timing := range timings {
		t.Run(name, func(t *testing.T) {
			k := keyer.New(timing)
			var (
				mu   sync.Mutex
				text strings.Builder
			)
			k.OnCode(func(letter, sequence string) {
				mu.Lock()
				defer mu.Unlock()
				text.WriteString(letter)
			})

			s := &Script{
				Events:    Render("CQ DE K1ABC", timing),
				Start:     epoch,
				TickEvery: 10 * time.Millisecond,
				Drain:     timing.MaxLetterGap + 50*time.Millisecond,
			}
			if err := s.Run(context.Background(), k); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			mu.Lock()
			defer mu.Unlock()
			if got := strings.TrimSpace(text.String()); got != "CQ DE K1ABC" {
				t.Errorf("decoded %q, want %q", got, "CQ DE K1ABC")
			}
		})
	}
}

func TestWriteScript(t *testing.T) {
	events := Render("N", keyer.DefaultTiming())
	var buf bytes.Buffer
	if err := WriteScript(&buf, events); err != nil {
		t.Fatalf("WriteScript() error = %v", err)
	}
	if want := "0 down\n600 up\n850 down\n950 up\n"; buf.String() != want {
		t.Errorf("script = %q, want %q", buf.String(), want)
	}

	parsed, err := ParseScript(&buf)
	if err != nil {
		t.Fatalf("ParseScript() error = %v", err)
	}
	if !reflect.DeepEqual(parsed, events) {
		t.Errorf("ParseScript() = %v, want %v", parsed, events)
	}
}

func TestSidetone_Synthesize(t *testing.T) {
	s := Sidetone{Frequency: 500, SampleRate: 8000, Amplitude: 0.5, Lead: ms(10), Tail: ms(20)}
	out := s.Synthesize([]Event{{0, true}, {ms(50), false}})

	if len(out) != 640 {
		t.Fatalf("got %d samples, want 640 for 80ms at 8kHz", len(out))
	}

	peak := func(from, to int) float64 {
		var p float64
		for _, v := range out[from:to] {
			p = math.Max(p, math.Abs(float64(v)))
		}
		return p
	}
	if p := peak(0, 80); p != 0 {
		t.Errorf("lead peak = %v, want silence", p)
	}
	if p := peak(80, 480); math.Abs(p-0.5) > 0.01 {
		t.Errorf("tone peak = %v, want 0.5", p)
	}
	if p := peak(480, 640); p != 0 {
		t.Errorf("tail peak = %v, want silence", p)
	}
}

func TestSidetone_DecodesThroughDetector(t *testing.T) {
	timing := keyer.DefaultTiming()
	tone := Sidetone{Frequency: 600, SampleRate: toneSampleRate, Amplitude: 0.8, Lead: ms(100), Tail: ms(200)}
	samples, _, err := ReadFLAC(encodeFLAC(t, tone.Synthesize(Render("73", timing))))
	if err != nil {
		t.Fatalf("ReadFLAC() error = %v", err)
	}

	k := keyer.New(timing)
	var (
		mu   sync.Mutex
		text strings.Builder
	)
	k.OnCode(func(letter, sequence string) {
		mu.Lock()
		defer mu.Unlock()
		text.WriteString(letter)
	})

	r := &Recording{
		Samples:   samples,
		Detector:  newToneDetector(t),
		Start:     epoch,
		TickEvery: keyer.DefaultTickInterval,
		Drain:     timing.MaxLetterGap + 500*time.Millisecond,
	}
	if err := r.Run(context.Background(), k); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got := strings.TrimSpace(text.String()); got != "73" {
		t.Errorf("decoded %q, want %q", got, "73")
	}
}
