package jam

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDetector_EngagesAfterHoldDuration(t *testing.T) {
	d := New(Config{HoldDuration: 10 * time.Second}, discardLogger())
	t0 := time.Now()

	if d.Observe(t0, true) {
		t.Error("engaged immediately, want not yet")
	}
	if d.Observe(t0.Add(9*time.Second), true) {
		t.Error("engaged before hold elapsed")
	}
	if !d.Observe(t0.Add(10*time.Second), true) {
		t.Error("not engaged at exactly hold duration")
	}
}

func TestDetector_DisengagesAfterHoldDuration(t *testing.T) {
	d := New(Config{HoldDuration: 10 * time.Second}, discardLogger())
	t0 := time.Now()
	d.Observe(t0, true)
	d.Observe(t0.Add(10*time.Second), true)
	if !d.Engaged() {
		t.Fatal("setup: expected engaged")
	}

	if !d.Observe(t0.Add(15*time.Second), false) {
		t.Error("disengaged before hold elapsed")
	}
	if !d.Observe(t0.Add(20*time.Second), false) {
		t.Error("disengaged before hold elapsed")
	}
	if d.Observe(t0.Add(25*time.Second), false) {
		t.Error("still engaged after 10s of false readings")
	}
}

func TestDetector_IntermittentReadingResetsRun(t *testing.T) {
	d := New(Config{HoldDuration: 10 * time.Second}, discardLogger())
	t0 := time.Now()
	d.Observe(t0, true)
	d.Observe(t0.Add(5*time.Second), false) // breaks the run
	if d.Observe(t0.Add(14*time.Second), true) {
		t.Error("engaged before a fresh 10s run completed")
	}
}

func TestDetector_Blocks(t *testing.T) {
	d := New(Config{HoldDuration: time.Second, BlockedDirections: []int{8, 12, 4}}, discardLogger())
	if d.Blocks(8) {
		t.Error("Blocks(8) = true before jam engaged")
	}
	t0 := time.Now()
	d.Observe(t0, true)
	d.Observe(t0.Add(2*time.Second), true)
	if !d.Blocks(8) || !d.Blocks(12) || !d.Blocks(4) {
		t.Error("Blocks should be true for configured directions once engaged")
	}
	if d.Blocks(1) {
		t.Error("Blocks(1) = true, want false (not in blocked set)")
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	if c.HoldDuration != DefaultHoldDuration {
		t.Errorf("HoldDuration = %v, want %v", c.HoldDuration, DefaultHoldDuration)
	}
	if len(c.BlockedDirections) != 3 {
		t.Errorf("BlockedDirections = %v, want 3 entries", c.BlockedDirections)
	}
}
