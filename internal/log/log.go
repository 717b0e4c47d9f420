// internal/log/log.go
// Package log owns the process-wide zerolog logger.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultLevel is used until Init is called
const DefaultLevel = zerolog.WarnLevel

var (
	logMu  sync.RWMutex
	logger = newLogger(os.Stderr, DefaultLevel)
)

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05.000",
		NoColor:    true,
	}
	return zerolog.New(consoleWriter).Level(level).With().Timestamp().Logger()
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") to a zerolog level.
func ParseLevel(name string) (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parse log level: %w", err)
	}
	if level == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("parse log level: empty level name")
	}
	return level, nil
}

// Init replaces the process logger with one writing to w at the named level.
func Init(w io.Writer, levelName string) error {
	level, err := ParseLevel(levelName)
	if err != nil {
		return err
	}

	logMu.Lock()
	defer logMu.Unlock()
	logger = newLogger(w, level)
	return nil
}

// L returns a copy of the process logger. Later Init calls do not affect it.
func L() *zerolog.Logger {
	logMu.RLock()
	l := logger
	logMu.RUnlock()
	return &l
}

// Component returns the process logger tagged with a component name.
func Component(name string) *zerolog.Logger {
	l := L().With().Str("component", name).Logger()
	return &l
}
