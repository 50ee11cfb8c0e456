package motor

import (
	"testing"
	"time"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/gpioif"
)

func newTestDriver(t *testing.T, bus gpioif.Device, hasFault bool) *Driver {
	t.Helper()
	pins := Pins{
		PWM:    gpioif.Pin(12),
		Dir:    gpioif.Pin(16),
		Enable: gpioif.Pin(20),

		HasDir:    true,
		HasEnable: true,
	}
	if hasFault {
		pins.Fault = gpioif.Pin(21)
		pins.HasFault = true
		bus.SetPinLevel(gpioif.Pin(21), gpioif.High) // not asserted
	}
	d, err := New(Config{
		Bus:           bus,
		Pins:          pins,
		RampPerSecond: 10,
		LoopDelay:     2 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !d.IsInitialized() {
		t.Fatal("expected driver to be initialized")
	}
	return d
}

func TestDriverUninitializedWithBothDirStyles(t *testing.T) {
	bus := gpioif.NewMockBus()
	d, err := New(Config{
		Bus: bus,
		Pins: Pins{
			HasDir:   true,
			HasDirAB: true,
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.IsInitialized() {
		t.Fatal("expected driver with both Dir and DirA/DirB configured to be uninitialized")
	}
	d.SetTarget(0.5)
	if got := d.State().Target; got != 0 {
		t.Errorf("SetTarget on uninitialized driver should be ignored, got Target=%v", got)
	}
}

func TestDriverRampsTowardTarget(t *testing.T) {
	bus := gpioif.NewMockBus()
	d := newTestDriver(t, bus, false)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	d.SetTarget(1.0)
	time.Sleep(5 * time.Millisecond)
	mid := d.State().Current
	if mid <= 0 || mid >= 1.0 {
		t.Fatalf("expected partial ramp progress, got Current=%v", mid)
	}

	deadline := time.After(time.Second)
	for {
		st := d.State()
		if st.Current == 1.0 {
			if st.Direction != 1 {
				t.Errorf("expected Direction=1 at full forward duty, got %d", st.Direction)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for ramp to reach target")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestDriverFaultTriggersEmergencyStop(t *testing.T) {
	bus := gpioif.NewMockBus()
	d := newTestDriver(t, bus, true)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	d.SetTarget(1.0)
	time.Sleep(6 * time.Millisecond)

	bus.SetPinLevel(gpioif.Pin(21), gpioif.Low) // fault is active-low

	deadline := time.After(time.Second)
	for {
		if d.IsFault() {
			st := d.State()
			if st.Current != 0 || st.Target != 0 {
				t.Errorf("expected target/current reset to 0 on fault, got Target=%v Current=%v", st.Target, st.Current)
			}
			lvl, _ := bus.ReadPinLevel(gpioif.Pin(20))
			if lvl != gpioif.Low {
				t.Errorf("expected enable line de-asserted on fault, got %v", lvl)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for fault to latch")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

// TestDirectionPinLevels pins down the Dir line polarity: with
// Inverted=false a forward duty drives Dir low and a reverse duty
// drives it high; Inverted swaps both.
func TestDirectionPinLevels(t *testing.T) {
	cases := []struct {
		name     string
		inverted bool
		target   float64
		want     gpioif.Level
	}{
		{"forward", false, 0.5, gpioif.Low},
		{"reverse", false, -0.5, gpioif.High},
		{"forward inverted", true, 0.5, gpioif.High},
		{"reverse inverted", true, -0.5, gpioif.Low},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			bus := gpioif.NewMockBus()
			d, err := New(Config{
				Bus:           bus,
				Pins:          Pins{PWM: gpioif.Pin(12), Dir: gpioif.Pin(16), HasDir: true},
				Inverted:      c.inverted,
				RampPerSecond: 10,
				LoopDelay:     2 * time.Millisecond,
			})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if err := d.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}
			defer d.Stop()

			d.SetTarget(c.target)
			deadline := time.After(time.Second)
			for {
				if d.State().Current != 0 {
					break
				}
				select {
				case <-deadline:
					t.Fatal("timed out waiting for the ramp to move")
				case <-time.After(2 * time.Millisecond):
				}
			}
			if lvl, _ := bus.ReadPinLevel(gpioif.Pin(16)); lvl != c.want {
				t.Errorf("Dir level = %v, want %v", lvl, c.want)
			}
		})
	}
}

func TestFaultClearsWhenLineDeasserted(t *testing.T) {
	bus := gpioif.NewMockBus()
	d := newTestDriver(t, bus, true)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	bus.SetPinLevel(gpioif.Pin(21), gpioif.Low) // assert fault
	deadline := time.After(time.Second)
	for !d.IsFault() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for fault to latch")
		case <-time.After(2 * time.Millisecond):
		}
	}

	bus.SetPinLevel(gpioif.Pin(21), gpioif.High) // clear the line
	deadline = time.After(time.Second)
	for d.IsFault() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for fault status to clear")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestSetTargetClampsToUnitRange(t *testing.T) {
	bus := gpioif.NewMockBus()
	d := newTestDriver(t, bus, false)

	d.SetTarget(2.5)
	if got := d.State().Target; got != 1.0 {
		t.Errorf("SetTarget(2.5): Target = %v, want 1.0", got)
	}
	d.SetTarget(-7)
	if got := d.State().Target; got != -1.0 {
		t.Errorf("SetTarget(-7): Target = %v, want -1.0", got)
	}
}

func TestEmergencyStopZeroesTarget(t *testing.T) {
	bus := gpioif.NewMockBus()
	d := newTestDriver(t, bus, false)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	d.SetTarget(0.5)
	d.EmergencyStop()
	if got := d.State().Target; got != 0 {
		t.Errorf("expected Target=0 after EmergencyStop, got %v", got)
	}
}
