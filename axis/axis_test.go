package axis_test

import (
	"math"
	"testing"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/axis"
)

const twoPi = 2 * math.Pi

func TestNewRejectsBadBounds(t *testing.T) {
	if _, err := axis.New(twoPi, 1, 1); err == nil {
		t.Error("expected error when min == max")
	}
	if _, err := axis.New(twoPi, 2, 1); err == nil {
		t.Error("expected error when min > max")
	}
	if _, err := axis.New(0, -1, 1); err == nil {
		t.Error("expected error when period == 0")
	}
}

func TestAssignInRangeStoresAsIs(t *testing.T) {
	a, err := axis.New(twoPi, -math.Pi, math.Pi)
	if err != nil {
		t.Fatal(err)
	}
	a.Assign(math.Pi / 4)
	got := a.Current()
	if math.Abs(got-math.Pi/4) > 1e-12 {
		t.Errorf("expected %v got %v", math.Pi/4, got)
	}
}

func TestAssignStaysInBounds(t *testing.T) {
	a, err := axis.New(twoPi, -math.Pi/2, math.Pi/2)
	if err != nil {
		t.Fatal(err)
	}
	for _, in := range []float64{-10, -1, 0, 0.1, 1, 3, 10, 100} {
		a.Assign(in)
		v := a.Current()
		if v < a.Min() || v > a.Max() {
			t.Errorf("Assign(%v) produced out of range value %v", in, v)
		}
	}
}

func TestAssignMaxPlusEpsilonReflectsOnce(t *testing.T) {
	a, err := axis.New(twoPi, -math.Pi/2, math.Pi/2)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	a.OnFlip(func() { count++ })
	eps := 1e-6
	a.Assign(a.Max() + eps)
	if count != 1 {
		t.Errorf("expected exactly 1 flip, got %d", count)
	}
	want := a.Max() - eps
	if math.Abs(a.Current()-want) > 1e-9 {
		t.Errorf("expected reflected value %v got %v", want, a.Current())
	}
}

func TestAssignMinMinusEpsilonReflectsOnce(t *testing.T) {
	a, err := axis.New(twoPi, -math.Pi/2, math.Pi/2)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	a.OnFlip(func() { count++ })
	eps := 1e-6
	a.Assign(a.Min() - eps)
	if count != 1 {
		t.Errorf("expected exactly 1 flip, got %d", count)
	}
}

func TestAssignBoundaryStoresAsIs(t *testing.T) {
	a, err := axis.New(twoPi, -math.Pi/2, math.Pi/2)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	a.OnFlip(func() { count++ })
	a.Assign(a.Max())
	if count != 0 {
		t.Errorf("expected no flip assigning exactly max, got %d", count)
	}
	a.Assign(a.Min())
	if count != 0 {
		t.Errorf("expected no flip assigning exactly min, got %d", count)
	}
}

func TestFlipCallbackFiresForEachReflection(t *testing.T) {
	a, err := axis.New(twoPi, -0.1, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	a.OnFlip(func() { count++ })
	a.Assign(1.5) // far outside, needs multiple reflections to settle
	if count == 0 {
		t.Error("expected at least one flip for a far out-of-range assignment")
	}
	if a.Current() < a.Min() || a.Current() > a.Max() {
		t.Errorf("value %v out of bounds after %d flips", a.Current(), count)
	}
}

func TestFlipMethodAddsHalfPeriod(t *testing.T) {
	a, err := axis.New(twoPi, -math.Pi, math.Pi)
	if err != nil {
		t.Fatal(err)
	}
	a.Assign(0)
	a.Flip()
	if math.Abs(math.Abs(a.Current())-math.Pi) > 1e-9 {
		t.Errorf("expected value near +/-pi after Flip, got %v", a.Current())
	}
}
