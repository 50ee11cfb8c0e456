/*Package axis implements a value on a periodic (cyclic) numeric axis,
bounded by a [min, max] window, used for the mount's azimuth and
altitude positions.

Assignment folds the incoming value into the configured period and then
reflects it back into [min, max] at most a handful of times, firing a
registered callback on each reflection so a paired axis (e.g. altitude
flips azimuth by 180 degrees) can mirror the event.
*/
package axis

import (
	"fmt"
	"math"
)

// maxReflections bounds the fold loop; divergence beyond this is a
// construction error (min >= max or period == 0), not a runtime one.
const maxReflections = 10

// Value is a bounded, periodic axis value.
type Value struct {
	period   float64
	min, max float64
	current  float64

	onFlip func()
}

// New constructs a Value with the given period and [min, max] bounds.
// It returns an error if min >= max or period == 0, in which case the
// caller must not use the returned Value - mirrors the teacher's
// "fMax < fMin" constructor guard (see DESIGN.md, Open Questions).
func New(period, min, max float64) (*Value, error) {
	if period == 0 {
		return nil, fmt.Errorf("axis: period must be non-zero")
	}
	if min >= max {
		return nil, fmt.Errorf("axis: min (%v) must be less than max (%v)", min, max)
	}
	return &Value{period: period, min: min, max: max}, nil
}

// OnFlip registers a callback invoked once per reflection performed
// during Assign. It is typically wired post-construction to a peer axis,
// e.g. altitude.OnFlip(func() { azimuth.Flip() }).
func (v *Value) OnFlip(cb func()) {
	v.onFlip = cb
}

// Min returns the lower bound.
func (v *Value) Min() float64 { return v.min }

// Max returns the upper bound.
func (v *Value) Max() float64 { return v.max }

// Current returns the stored value, always within [min, max].
func (v *Value) Current() float64 { return v.current }

// Degrees returns the stored value converted from the axis's native unit
// (radians, by convention, when period is 2*pi) to degrees.
func (v *Value) Degrees() float64 { return v.current * 180 / math.Pi }

// Hours returns the stored value converted to hour-angle (period/24).
func (v *Value) Hours() float64 { return v.current / v.period * 24 }

// Radians returns the stored value as-is, assuming the axis was
// constructed with period = 2*pi.
func (v *Value) Radians() float64 { return v.current }

// Assign folds input into the configured period and reflects it into
// [min, max], invoking the flip callback once per reflection. The
// algorithm is:
//
//  1. reduce input/period into [0, 1) ("v"),
//  2. if min < 0 and v > 0.5, shift v into [-0.5, 0.5) by subtracting 1,
//  3. repeat up to maxReflections times: if v > max reflect around max
//     (v = 2*max - v); if v < min reflect around min (v = 2*min - v);
//     each reflection fires the flip callback,
//  4. store the final v (in the caller's native unit, i.e. multiplied
//     back by period).
func (v *Value) Assign(input float64) {
	frac := reduceMod(input/v.period, 1.0)
	if v.min < 0 && frac > 0.5 {
		frac -= 1.0
	}
	x := frac * v.period
	for i := 0; i < maxReflections; i++ {
		if x > v.max {
			x = 2*v.max - x
			v.flip()
			continue
		}
		if x < v.min {
			x = 2*v.min - x
			v.flip()
			continue
		}
		break
	}
	v.current = x
}

// Flip explicitly reflects the axis by half a period (adds period/2) and
// reassigns, e.g. for the azimuth half-turn that accompanies an
// altitude reflection over the pole (the gimbal flip).
func (v *Value) Flip() {
	v.Assign(v.current + v.period/2)
}

func (v *Value) flip() {
	if v.onFlip != nil {
		v.onFlip()
	}
}

// reduceMod reduces x into [0, m) for m > 0, unlike math.Mod which can
// return a negative result for negative x.
func reduceMod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	return r
}
