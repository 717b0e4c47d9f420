package keysource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/log"
	"golang.design/x/hotkey"
)

// ErrUnknownKey is returned for a hotkey name without a mapping.
var ErrUnknownKey = errors.New("unknown hotkey")

// Switch is a momentary key: Keydown fires on press, Keyup on release.
type Switch interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Hotkey turns a global keyboard shortcut into a straight key.
type Hotkey struct {
	sw  Switch
	now func() time.Time
}

// NewHotkey builds a source keyed by Ctrl+Shift+name, where name is space,
// return or tab.
func NewHotkey(name string) (*Hotkey, error) {
	key, err := ParseKey(name)
	if err != nil {
		return nil, err
	}
	return NewHotkeyFrom(newGlobalSwitch(key), time.Now), nil
}

// NewHotkeyFrom builds a source on any switch, reading event times from now.
func NewHotkeyFrom(sw Switch, now func() time.Time) *Hotkey {
	return &Hotkey{sw: sw, now: now}
}

// ParseKey maps a config name to a hotkey key.
func ParseKey(name string) (hotkey.Key, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "space":
		return hotkey.KeySpace, nil
	case "return", "enter":
		return hotkey.KeyReturn, nil
	case "tab":
		return hotkey.KeyTab, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKey, name)
}

// Run registers the shortcut and forwards presses until ctx is done.
func (h *Hotkey) Run(ctx context.Context, sink Sink) error {
	if err := h.sw.Register(); err != nil {
		return fmt.Errorf("register hotkey: %w", err)
	}
	defer h.sw.Unregister()

	logger := log.Component("hotkey")
	logger.Info().Msg("hotkey registered, hold Ctrl+Shift+key to send")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.sw.Keydown():
			at := h.now()
			logger.Debug().Time("at", at).Msg("key down")
			sink.KeyDown(at)
		case <-h.sw.Keyup():
			at := h.now()
			logger.Debug().Time("at", at).Msg("key up")
			sink.KeyUp(at)
		}
	}
}

// globalSwitch adapts golang.design/x/hotkey to Switch.
type globalSwitch struct {
	hk      *hotkey.Hotkey
	keydown chan struct{}
	keyup   chan struct{}
	stop    chan struct{}
	once    sync.Once
}

func newGlobalSwitch(key hotkey.Key) *globalSwitch {
	return &globalSwitch{
		hk:      hotkey.New([]hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift}, key),
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

func (g *globalSwitch) Register() error {
	if err := g.hk.Register(); err != nil {
		return err
	}
	go forward(g.hk.Keydown(), g.keydown, g.stop)
	go forward(g.hk.Keyup(), g.keyup, g.stop)
	return nil
}

func (g *globalSwitch) Unregister() {
	g.once.Do(func() {
		close(g.stop)
		g.hk.Unregister()
	})
}

func (g *globalSwitch) Keydown() <-chan struct{} { return g.keydown }
func (g *globalSwitch) Keyup() <-chan struct{}   { return g.keyup }

func forward(in <-chan hotkey.Event, out chan<- struct{}, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-in:
			select {
			case out <- struct{}{}:
			case <-stop:
				return
			}
		}
	}
}
