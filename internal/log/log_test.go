package log

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func restoreDefault(t *testing.T) {
	t.Cleanup(func() {
		if err := Init(os.Stderr, DefaultLevel.String()); err != nil {
			t.Errorf("restore logger: %v", err)
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{" warn ", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"", zerolog.NoLevel, true},
		{"loud", zerolog.NoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestInit_FiltersByLevel(t *testing.T) {
	restoreDefault(t)

	var buf bytes.Buffer
	if err := Init(&buf, "info"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	L().Debug().Msg("hidden")
	L().Info().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message written at info level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("info message missing: %q", out)
	}
}

func TestInit_InvalidLevelKeepsLogger(t *testing.T) {
	restoreDefault(t)

	var buf bytes.Buffer
	if err := Init(&buf, "warn"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := Init(os.Stdout, "nope"); err == nil {
		t.Fatal("Init() with bad level should fail")
	}

	L().Warn().Msg("still here")
	if !strings.Contains(buf.String(), "still here") {
		t.Errorf("logger was replaced by a failed Init: %q", buf.String())
	}
}

func TestComponent_TagsOutput(t *testing.T) {
	restoreDefault(t)

	var buf bytes.Buffer
	if err := Init(&buf, "debug"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	Component("keyer").Debug().Msg("flush")
	if !strings.Contains(buf.String(), "component=keyer") {
		t.Errorf("output missing component field: %q", buf.String())
	}
}

func TestL_CopyOutlivesInit(t *testing.T) {
	restoreDefault(t)

	var first, second bytes.Buffer
	if err := Init(&first, "info"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	held := L()
	if err := Init(&second, "info"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	held.Info().Msg("old")
	L().Info().Str("k", "v").Msg("new")
	if !strings.Contains(first.String(), "old") || strings.Contains(second.String(), "old") {
		t.Errorf("held logger wrote to the wrong sink: first=%q second=%q", first.String(), second.String())
	}
	if !strings.Contains(second.String(), "new") {
		t.Errorf("current logger missing message: %q", second.String())
	}
}
