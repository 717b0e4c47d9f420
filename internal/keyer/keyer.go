// internal/keyer/keyer.go
// Package keyer decodes Morse from the press and release times of a single key.
//
// Press durations become dots and dashes that walk the morse.Tree. Silences
// flush the walk into a letter or a word boundary. A silence is noticed either
// when the key goes down again or, if the operator stops keying, by the
// periodic Tick watchdog.
package keyer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/morse"
	"github.com/rs/zerolog"
)

// ErrInvalidTickInterval indicates the watchdog period must be positive
var ErrInvalidTickInterval = errors.New("tick interval must be positive")

// Silence is the kind of pause that ends a symbol run.
type Silence int

const (
	// SilenceSmall is the gap between symbols of one letter; flushing on it is a no-op
	SilenceSmall Silence = 0
	// SilenceInterLetter ends a letter
	SilenceInterLetter Silence = 3
	// SilenceInterWord ends a word
	SilenceInterWord Silence = 7
)

// SilenceNone is an alias of SilenceSmall for callers with nothing to report
const SilenceNone = SilenceSmall

func (s Silence) String() string {
	switch s {
	case SilenceSmall:
		return "small"
	case SilenceInterLetter:
		return "inter-letter"
	case SilenceInterWord:
		return "inter-word"
	default:
		return "unknown"
	}
}

// SymbolFunc receives "." or "-" for each keyed symbol, "" at a letter
// boundary and " " at a word boundary.
type SymbolFunc func(symbol string)

// CodeFunc receives each flushed letter with the sequence that produced it.
// A word boundary is reported as (" ", ""). Flushing with nothing keyed
// reports ("?", ""), which is not a decoded letter.
type CodeFunc func(letter, sequence string)

// Option configures a Keyer.
type Option func(*Keyer)

// WithLogger sets the logger used for debug tracing of classification and flushes.
func WithLogger(l zerolog.Logger) Option {
	return func(k *Keyer) {
		k.log = l
	}
}

// Keyer is the timing classifier and decode state machine.
// All methods are safe for concurrent use. Observers run after the internal
// lock is released, in the order the events happened, so they may call back
// into the Keyer.
type Keyer struct {
	mu     sync.Mutex
	timing Timing
	log    zerolog.Logger

	// Decode state
	state    int
	sequence []byte

	// Key timing; the zero time means unset
	keyDownAt   time.Time
	keyUpAt     time.Time
	lastKeyUpAt time.Time

	onSymbol SymbolFunc
	onCode   CodeFunc

	// notifications queued under lock, delivered by unlock
	pending []func()
}

// New creates a Keyer with the given thresholds, clamped into range.
func New(t Timing, opts ...Option) *Keyer {
	k := &Keyer{
		timing:   t.Clamp(),
		log:      zerolog.Nop(),
		state:    morse.Root,
		sequence: make([]byte, 0, morse.MaxSequenceLength),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// lock acquires the mutex; pair with defer k.unlock().
func (k *Keyer) lock() {
	k.mu.Lock()
}

// unlock releases the mutex and then delivers queued notifications.
func (k *Keyer) unlock() {
	pending := k.pending
	k.pending = nil
	k.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// OnSymbol registers the symbol observer, replacing any previous one. nil unregisters.
func (k *Keyer) OnSymbol(fn SymbolFunc) {
	k.lock()
	defer k.unlock()
	k.onSymbol = fn
}

// OnCode registers the code observer, replacing any previous one. nil unregisters.
func (k *Keyer) OnCode(fn CodeFunc) {
	k.lock()
	defer k.unlock()
	k.onCode = fn
}

// SetTimingThresholds sets the dot and dash limits. Out-of-range values are
// clamped and dash is raised to at least twice dot.
func (k *Keyer) SetTimingThresholds(dot, dash time.Duration) {
	k.lock()
	defer k.unlock()
	t := k.timing
	t.MaxDot, t.MaxDash = dot, dash
	k.timing = t.Clamp()
	k.log.Debug().Dur("max_dot", k.timing.MaxDot).Dur("max_dash", k.timing.MaxDash).Msg("timing thresholds")
}

// SetSilenceThresholds sets the symbol and letter gap limits. Out-of-range
// values are clamped and the letter gap is raised to at least the symbol gap.
func (k *Keyer) SetSilenceThresholds(symbol, letter time.Duration) {
	k.lock()
	defer k.unlock()
	t := k.timing
	t.MaxSymbolGap, t.MaxLetterGap = symbol, letter
	k.timing = t.Clamp()
	k.log.Debug().Dur("max_symbol_gap", k.timing.MaxSymbolGap).Dur("max_letter_gap", k.timing.MaxLetterGap).Msg("silence thresholds")
}

// Timing returns the current thresholds.
func (k *Keyer) Timing() Timing {
	k.lock()
	defer k.unlock()
	return k.timing
}

// MaxDotTime returns the longest press classified as a dot.
func (k *Keyer) MaxDotTime() time.Duration { return k.Timing().MaxDot }

// MaxDashTime returns the press length at which a press is discarded.
func (k *Keyer) MaxDashTime() time.Duration { return k.Timing().MaxDash }

// MaxSymbolGap returns the longest insignificant silence.
func (k *Keyer) MaxSymbolGap() time.Duration { return k.Timing().MaxSymbolGap }

// MaxLetterGap returns the silence after which a word boundary is flushed.
func (k *Keyer) MaxLetterGap() time.Duration { return k.Timing().MaxLetterGap }

// KeyDown records a key press at the given time. A release older than the
// symbol gap means the previous letter is over, so it is flushed first.
func (k *Keyer) KeyDown(at time.Time) {
	k.lock()
	defer k.unlock()

	if !k.keyUpAt.IsZero() && at.Sub(k.keyUpAt) > k.timing.MaxSymbolGap {
		k.silence(SilenceInterLetter)
	}
	k.keyUpAt = time.Time{}
	k.lastKeyUpAt = time.Time{}
	k.keyDownAt = at
}

// KeyUp records a key release and classifies the press. Presses reaching the
// dash limit discard the letter in progress. Without a recorded press this
// is a no-op.
func (k *Keyer) KeyUp(at time.Time) {
	k.lock()
	defer k.unlock()

	if k.keyDownAt.IsZero() {
		return
	}

	duration := at.Sub(k.keyDownAt)
	switch {
	case duration <= k.timing.MaxDot:
		k.advance(morse.Dot)
	case duration < k.timing.MaxDash:
		k.advance(morse.Dash)
	default:
		k.log.Debug().Dur("duration", duration).Msg("press too long, discarding letter")
		k.resetDecoding()
		k.resetTiming()
	}

	// The release is recorded even after a discard so the watchdog still
	// closes the word.
	k.keyDownAt = time.Time{}
	k.keyUpAt = at
	k.lastKeyUpAt = at
}

// Tick is the watchdog. It flushes a pending letter once the key has been
// up longer than the symbol gap, and a word once it has been up longer than
// the letter gap.
func (k *Keyer) Tick(at time.Time) {
	k.lock()
	defer k.unlock()

	if !k.keyUpAt.IsZero() && k.state != morse.Root && at.Sub(k.keyUpAt) > k.timing.MaxSymbolGap {
		k.silence(SilenceInterLetter)
		k.keyUpAt = time.Time{}
	}
	if !k.lastKeyUpAt.IsZero() && at.Sub(k.lastKeyUpAt) > k.timing.MaxLetterGap {
		k.silence(SilenceInterWord)
		k.lastKeyUpAt = time.Time{}
	}
}

// Watch calls Tick every interval until ctx is done.
func (k *Keyer) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidTickInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			k.Tick(now)
		}
	}
}

// Dot keys a dot directly, bypassing timing.
func (k *Keyer) Dot() {
	k.lock()
	defer k.unlock()
	k.advance(morse.Dot)
}

// Dash keys a dash directly, bypassing timing.
func (k *Keyer) Dash() {
	k.lock()
	defer k.unlock()
	k.advance(morse.Dash)
}

// Silence flushes the decode state for the given kind of pause. Kinds other
// than SilenceSmall and SilenceInterWord are treated as SilenceInterLetter.
func (k *Keyer) Silence(kind Silence) {
	k.lock()
	defer k.unlock()
	k.silence(kind)
}

// ResetDecoding drops the letter in progress without reporting it.
func (k *Keyer) ResetDecoding() {
	k.lock()
	defer k.unlock()
	k.resetDecoding()
}

// ResetTiming forgets all recorded press and release times.
func (k *Keyer) ResetTiming() {
	k.lock()
	defer k.unlock()
	k.resetTiming()
}

// PeekCode returns the letter at the current tree position.
func (k *Keyer) PeekCode() string {
	k.lock()
	defer k.unlock()
	return string(morse.LetterAt(k.state))
}

// PeekSequence returns the symbols keyed since the last flush.
func (k *Keyer) PeekSequence() string {
	k.lock()
	defer k.unlock()
	return string(k.sequence)
}

// advance walks the tree one symbol. Symbols past MaxSequenceLength still
// move the tree position but are not kept in the sequence.
func (k *Keyer) advance(s morse.Symbol) {
	k.state = morse.Advance(k.state, s)
	if len(k.sequence) < morse.MaxSequenceLength {
		k.sequence = append(k.sequence, byte(s))
	}
	symbol := string(rune(s))
	k.log.Debug().Str("symbol", symbol).Int("state", k.state).Msg("symbol")
	k.notifySymbol(symbol)
}

func (k *Keyer) silence(kind Silence) {
	var letter, sequence string
	switch kind {
	case SilenceSmall:
		return
	case SilenceInterWord:
		letter, sequence = " ", ""
		k.notifySymbol(" ")
	default:
		// any other kind ends the letter
		letter, sequence = string(morse.LetterAt(k.state)), string(k.sequence)
		k.notifySymbol("")
	}

	k.log.Debug().Stringer("kind", kind).Str("letter", letter).Str("sequence", sequence).Msg("flush")
	if fn := k.onCode; fn != nil {
		k.pending = append(k.pending, func() { fn(letter, sequence) })
	}
	k.resetDecoding()
}

func (k *Keyer) notifySymbol(symbol string) {
	if fn := k.onSymbol; fn != nil {
		k.pending = append(k.pending, func() { fn(symbol) })
	}
}

func (k *Keyer) resetDecoding() {
	k.state = morse.Root
	k.sequence = k.sequence[:0]
}

func (k *Keyer) resetTiming() {
	k.keyDownAt = time.Time{}
	k.keyUpAt = time.Time{}
	k.lastKeyUpAt = time.Time{}
}
