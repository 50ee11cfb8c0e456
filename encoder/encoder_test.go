package encoder

import (
	"testing"
	"time"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/gpioif"
)

func frameBytes(st uint32, turns int64) []byte {
	raw := encodeFrame(st, turns, 12, 12)
	return []byte{byte(raw >> 24), byte(raw >> 16), byte(raw >> 8), byte(raw)}
}

func newTestReader(t *testing.T, bus gpioif.Device) *Reader {
	t.Helper()
	r, err := New(Config{
		Bus:       bus,
		Channel:   gpioif.ChannelMain,
		LoopDelay: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestReaderPublishesFirstGoodFrame(t *testing.T) {
	bus := gpioif.NewMockBus()
	bus.PushShiftFrame(gpioif.ChannelMain, frameBytes(1024, 0))
	r := newTestReader(t, bus)
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	deadline := time.After(time.Second)
	for {
		st := r.State()
		if st.LastGood {
			if st.SingleTurn != 1024 || st.Turns != 0 {
				t.Errorf("got SingleTurn=%d Turns=%d, want 1024/0", st.SingleTurn, st.Turns)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for first good frame")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestReaderCountsShortReadAsBitError(t *testing.T) {
	bus := gpioif.NewMockBus()
	r := newTestReader(t, bus)
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	deadline := time.After(time.Second)
	for {
		st := r.State()
		if st.BitErrors > 0 {
			if st.LastGood {
				t.Error("LastGood should be false after a short read")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a bit error to be recorded")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestReaderConnErrorsCountDownToZero(t *testing.T) {
	bus := gpioif.NewMockBus()
	r := newTestReader(t, bus)
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	deadline := time.After(2 * time.Second)
	for {
		if !r.IsOK() {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for ConnErrors to exhaust")
		case <-time.After(2 * time.Millisecond):
		}
	}
	st := r.State()
	if st.ConnErrors != 0 {
		t.Errorf("expected ConnErrors=0, got %d", st.ConnErrors)
	}
}

func TestReaderRejectsImplausibleJump(t *testing.T) {
	bus := gpioif.NewMockBus()
	bus.PushShiftFrame(gpioif.ChannelMain, frameBytes(0, 0))
	bus.PushShiftFrame(gpioif.ChannelMain, frameBytes(0, 2000))
	r := newTestReader(t, bus)
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	time.Sleep(40 * time.Millisecond)
	st := r.State()
	if st.Turns != 0 {
		t.Errorf("implausible jump should not have been published, got Turns=%d", st.Turns)
	}
	if st.BitErrors == 0 {
		t.Error("expected the rejected jump to be counted as a bit error")
	}
}

func TestReaderAcceptsNewBaselineAfterFramingError(t *testing.T) {
	bus := gpioif.NewMockBus()
	bus.PushShiftFrame(gpioif.ChannelMain, frameBytes(0, 0))
	bus.PushShiftFrame(gpioif.ChannelMain, []byte{0, 0, 0, 0}) // framing error: sanity bit clear
	bus.PushShiftFrame(gpioif.ChannelMain, frameBytes(0, 2000))
	r := newTestReader(t, bus)
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	deadline := time.After(time.Second)
	for {
		st := r.State()
		if st.Turns == 2000 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the post-framing-error frame to publish")
		case <-time.After(2 * time.Millisecond):
		}
	}
}
