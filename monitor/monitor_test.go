package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSamplerPublishesAndCallsBack(t *testing.T) {
	var calls int
	s, err := New(Config{
		LoopDelay: 3 * time.Millisecond,
		Read:      func() (float64, error) { calls++; return 21.5, nil },
		Callback:  func(Sample) { calls++ },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.After(time.Second)
	for {
		if sample, ok := s.Sample(); ok {
			if sample.Value != 21.5 {
				t.Errorf("got %v want 21.5", sample.Value)
			}
			if len(sample.History) == 0 {
				t.Error("expected non-empty history")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a sample")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestSamplerInvalidOnReadError(t *testing.T) {
	s, err := New(Config{
		LoopDelay: 3 * time.Millisecond,
		Read:      func() (float64, error) { return 0, fmt.Errorf("boom") },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	defer s.Stop()

	time.Sleep(15 * time.Millisecond)
	if _, ok := s.Sample(); ok {
		t.Error("expected no valid sample when Read always errors")
	}
}

func TestThermalMonitorReadsSysfsStyleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "temp")
	if err := os.WriteFile(path, []byte("45231\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := NewThermalMonitor(path, Config{LoopDelay: 3 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewThermalMonitor: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.After(time.Second)
	for {
		if sample, ok := s.Sample(); ok {
			if sample.Value != 45.231 {
				t.Errorf("got %v want 45.231", sample.Value)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a thermal sample")
		case <-time.After(2 * time.Millisecond):
		}
	}
}
