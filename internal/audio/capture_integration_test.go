//go:build integration

package audio

import (
	"context"
	"testing"
	"time"
)

// These tests need a real capture device.
// Run with: go test -tags=integration ./internal/audio

func initCapture(t *testing.T) *Capture {
	t.Helper()
	c := New(DefaultConfig())
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return c
}

func TestCapture_ListDevices_Integration(t *testing.T) {
	c := initCapture(t)

	devices, err := c.ListDevices()
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	for i, d := range devices {
		t.Logf("  [%d] %s", i, d.Name())
	}
}

func TestCapture_DeliversSamples_Integration(t *testing.T) {
	c := initCapture(t)

	got := make(chan int, 1)
	c.SetCallback(func(samples []float32) {
		select {
		case got <- len(samples):
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case n := <-got:
		if n == 0 {
			t.Error("callback received an empty buffer")
		}
	case <-ctx.Done():
		t.Error("timeout waiting for samples")
	}
}

func TestCapture_StopOnContextCancel_Integration(t *testing.T) {
	c := initCapture(t)

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !c.IsRunning() {
		t.Fatal("IsRunning() = false after Start()")
	}

	cancel()
	time.Sleep(100 * time.Millisecond)

	if c.IsRunning() {
		t.Error("IsRunning() = true after context cancellation")
	}
}

func TestCapture_CloseWhileRunning_Integration(t *testing.T) {
	c := initCapture(t)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if c.IsRunning() {
		t.Error("IsRunning() = true after Close()")
	}
}
