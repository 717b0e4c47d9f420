package keysource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrBadScriptLine is returned for a line that is not "<offset_ms> down|up"
	ErrBadScriptLine = errors.New("bad script line")
	// ErrScriptOrder is returned when offsets go backwards
	ErrScriptOrder = errors.New("script offsets must not decrease")
)

// Event is one scripted key transition.
type Event struct {
	Offset time.Duration // from the start of the script
	Down   bool
}

// ParseScript reads one event per line:
//
//	# comment
//	0    down
//	100  up
//
// Offsets are milliseconds from the start and must not decrease.
func ParseScript(r io.Reader) ([]Event, error) {
	var events []Event
	var last time.Duration

	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: line %d: %q", ErrBadScriptLine, n, scanner.Text())
		}

		ms, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("%w: line %d: offset %q", ErrBadScriptLine, n, fields[0])
		}

		var down bool
		switch strings.ToLower(fields[1]) {
		case "down":
			down = true
		case "up":
		default:
			return nil, fmt.Errorf("%w: line %d: action %q", ErrBadScriptLine, n, fields[1])
		}

		offset := time.Duration(ms) * time.Millisecond
		if offset < last {
			return nil, fmt.Errorf("%w: line %d: %v after %v", ErrScriptOrder, n, offset, last)
		}
		last = offset
		events = append(events, Event{Offset: offset, Down: down})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return events, nil
}

// Script replays recorded events.
//
// Paced replay sleeps between events and stamps them with the wall clock, so
// the sink's own watchdog does the flushing. Instant replay stamps events with
// synthetic times starting at Start and, when the sink is a Ticker, emits
// watchdog ticks every TickEvery along the way.
type Script struct {
	Events    []Event
	Paced     bool
	Start     time.Time     // instant replay origin, time.Now() when zero
	TickEvery time.Duration // instant replay tick period
	Drain     time.Duration // quiet time after the last event
}

// Run replays the script into sink.
func (s *Script) Run(ctx context.Context, sink Sink) error {
	if s.Paced {
		return s.runPaced(ctx, sink)
	}
	return s.runInstant(ctx, sink)
}

func (s *Script) runPaced(ctx context.Context, sink Sink) error {
	start := time.Now()
	for _, ev := range s.Events {
		if !sleep(ctx, time.Until(start.Add(ev.Offset))) {
			return nil
		}
		deliver(sink, ev.Down, time.Now())
	}
	sleep(ctx, s.Drain)
	return nil
}

func (s *Script) runInstant(ctx context.Context, sink Sink) error {
	start := s.Start
	if start.IsZero() {
		start = time.Now()
	}

	clock := newSyntheticClock(sink, start, s.TickEvery)

	var end time.Time
	for _, ev := range s.Events {
		if ctx.Err() != nil {
			return nil
		}
		at := start.Add(ev.Offset)
		clock.advance(at)
		deliver(sink, ev.Down, at)
		end = at
	}
	if end.IsZero() {
		end = start
	}
	clock.advance(end.Add(s.Drain))
	return nil
}

func deliver(sink Sink, down bool, at time.Time) {
	if down {
		sink.KeyDown(at)
		return
	}
	sink.KeyUp(at)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
