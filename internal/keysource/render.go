package keysource

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/keyer"
	"github.com/ColonelBlimp/cwkeyer/internal/morse"
)

// Render keys text as events a keyer with timing t decodes back to the same
// text. Each element sits in the middle of its band: dots at half MaxDot,
// dashes between MaxDot and MaxDash, letter gaps between the two silence
// thresholds and word gaps past MaxLetterGap. Characters without a code are
// skipped.
func Render(text string, t keyer.Timing) []Event {
	t = t.Clamp()
	var (
		dot       = t.MaxDot / 2
		dash      = (t.MaxDot + t.MaxDash) / 2
		symbolGap = t.MaxSymbolGap / 2
		letterGap = (t.MaxSymbolGap + t.MaxLetterGap) / 2
		wordGap   = t.MaxLetterGap + t.MaxSymbolGap
	)

	var (
		events []Event
		offset time.Duration
		gap    time.Duration // silence owed before the next press
	)
	for _, word := range strings.Fields(text) {
		if len(events) > 0 {
			gap = wordGap
		}
		for _, r := range word {
			code := morse.EncodeChar(r)
			if code == string(morse.Unknown) {
				continue
			}
			if len(events) > 0 && gap < letterGap {
				gap = letterGap
			}
			for _, s := range code {
				press := dot
				if morse.Symbol(s) == morse.Dash {
					press = dash
				}
				offset += gap
				events = append(events, Event{offset, true}, Event{offset + press, false})
				offset += press
				gap = symbolGap
			}
		}
	}
	return events
}

// WriteScript writes events in the format ParseScript reads.
func WriteScript(w io.Writer, events []Event) error {
	bw := bufio.NewWriter(w)
	for _, ev := range events {
		action := "up"
		if ev.Down {
			action = "down"
		}
		fmt.Fprintf(bw, "%d %s\n", ev.Offset.Milliseconds(), action)
	}
	return bw.Flush()
}

// Sidetone turns key events into audio.
type Sidetone struct {
	Frequency  float64 // Hz
	SampleRate float64 // Hz
	Amplitude  float64 // 0..1
	Lead       time.Duration
	Tail       time.Duration
}

// Synthesize renders events as a sine keyed on and off, with Lead silence
// before the first event and Tail after the last.
func (s Sidetone) Synthesize(events []Event) []float32 {
	var end time.Duration
	if len(events) > 0 {
		end = events[len(events)-1].Offset
	}
	sample := func(d time.Duration) int {
		return int(math.Round(d.Seconds() * s.SampleRate))
	}

	out := make([]float32, sample(s.Lead+end+s.Tail))
	step := 2 * math.Pi * s.Frequency / s.SampleRate
	for i := 0; i+1 < len(events); i++ {
		if !events[i].Down {
			continue
		}
		from := sample(s.Lead + events[i].Offset)
		to := sample(s.Lead + events[i+1].Offset)
		for n := from; n < to && n < len(out); n++ {
			out[n] = float32(s.Amplitude * math.Sin(step*float64(n)))
		}
	}
	return out
}
