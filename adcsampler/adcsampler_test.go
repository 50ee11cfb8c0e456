package adcsampler

import (
	"testing"
	"time"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/gpioif"
)

func setRegisterCounts(bus *gpioif.MockBus, addr byte, ch Channel, counts int16) {
	reg := byte(ch) << 1
	bus.SetI2CRegister(addr, reg, byte(uint16(counts)>>8))
	bus.SetI2CRegister(addr, reg+1, byte(uint16(counts)))
}

func TestSamplerPublishesVolts(t *testing.T) {
	bus := gpioif.NewMockBus()
	bus.OpenI2C(0x48)
	setRegisterCounts(bus, 0x48, Channel0, 16384) // half full scale

	s, err := New(Config{Bus: bus, Addr: 0x48, Channel: Channel0, LoopDelay: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.After(time.Second)
	for {
		if sample, ok := s.Sample(); ok {
			want := 16384.0 / 32768.0 * 6.144
			if sample.Volts != want {
				t.Errorf("got %v want %v", sample.Volts, want)
			}
			if sample.HaveMean {
				t.Error("HaveMean should be false when WindowSize is unset")
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

func TestSamplerWindowedMean(t *testing.T) {
	bus := gpioif.NewMockBus()
	bus.OpenI2C(0x48)
	setRegisterCounts(bus, 0x48, Channel1, 0)

	s, err := New(Config{Bus: bus, Addr: 0x48, Channel: Channel1, WindowSize: 4, LoopDelay: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.After(time.Second)
	for {
		if sample, ok := s.Sample(); ok && sample.HaveMean {
			if sample.Mean != 0 {
				t.Errorf("expected mean 0, got %v", sample.Mean)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a windowed sample")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestSamplerStartFailsOnDisconnectedBus(t *testing.T) {
	bus := gpioif.NewMockBus()
	bus.SetConnected(false)
	s, err := New(Config{Bus: bus, Addr: 0x48, Channel: Channel0, LoopDelay: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Fatal("expected Start to fail opening the I2C device on a disconnected bus")
	}
}

func TestSamplerMarksInvalidOnReadFailure(t *testing.T) {
	bus := gpioif.NewMockBus()
	bus.OpenI2C(0x48)
	s, err := New(Config{Bus: bus, Addr: 0x48, Channel: Channel0, LoopDelay: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.After(time.Second)
	for {
		if _, ok := s.Sample(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a sample")
		case <-time.After(2 * time.Millisecond):
		}
	}

	bus.SetConnected(false)
	time.Sleep(20 * time.Millisecond)
	if _, ok := s.Sample(); ok {
		t.Error("expected sample to be marked invalid after the bus disconnects")
	}
}
