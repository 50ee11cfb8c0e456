package pointing

import (
	"math"
	"time"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/coord"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/motor"
)

func (c *Controller) loop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.LoopDelay)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick implements one poll-cycle iteration per spec.md section 4.5.
func (c *Controller) tick() {
	encAzState := c.cfg.EncAz.State()
	encAltState := c.cfg.EncAlt.State()

	absTurnsAz := encAzState.Position/c.cfg.RatioAz + c.cfg.OffsetAz/360.0
	absTurnsAlt := encAltState.Position/c.cfg.RatioAlt + c.cfg.OffsetAlt/360.0

	faultAz := c.cfg.MotorAz.IsFault()
	faultAlt := c.cfg.MotorAlt.IsFault()

	c.mu.Lock()
	c.az.Assign(360.0 * absTurnsAz)
	c.alt.Assign(360.0 * absTurnsAlt)
	c.absTurnsAz = absTurnsAz
	c.absTurnsAlt = absTurnsAlt
	c.faultAz = faultAz
	c.faultAlt = faultAlt
	state := c.state
	targetIsEqu := c.targetIsEqu || state == Tracking
	targetEqu := c.targetEqu
	targetHor := c.targetHor
	current := coord.Horizontal{AzDeg: c.az.Current(), AltDeg: c.alt.Current()}
	c.mu.Unlock()

	if state != Slewing && state != Tracking && state != Parking {
		return
	}

	if targetIsEqu {
		targetHor = coord.EquToHor(targetEqu, time.Now(), c.cfg.Location)
	}
	dx := fold180(targetHor.AzDeg - current.AzDeg)
	dy := fold180(targetHor.AltDeg - current.AltDeg)

	dx = c.guardAzDelta(dx, absTurnsAz)

	c.driveAxis(c.cfg.MotorAz, dx, c.cfg.MinThrottleAz)
	c.driveAxis(c.cfg.MotorAlt, dy, c.cfg.MinThrottleAlt)

	if math.Abs(dx) <= c.cfg.TrackDeg && math.Abs(dy) <= c.cfg.TrackDeg {
		c.mu.Lock()
		switch c.state {
		case Slewing:
			if c.tracking {
				if !c.targetIsEqu {
					c.targetEqu = coord.HorToEqu(current, time.Now(), c.cfg.Location)
					c.targetIsEqu = true
				}
				c.state = Tracking
			} else {
				c.state = Idle
			}
		case Parking:
			c.state = Parked
			c.parked = true
		}
		c.mu.Unlock()
	}
}

// guardAzDelta implements the axis-range guard: if applying dx would
// push abs_turns_az outside its allowed band, the complementary
// direction (dx offset by a full turn) is tried, and whichever result
// lands closer to the allowed band is used.
func (c *Controller) guardAzDelta(dx, absTurnsAz float64) float64 {
	limit := 0.5 + c.cfg.MaxAzOverturn
	result := absTurnsAz + dx/360.0
	if math.Abs(result) <= limit {
		return dx
	}
	var alt float64
	if dx >= 0 {
		alt = dx - 360.0
	} else {
		alt = dx + 360.0
	}
	altResult := absTurnsAz + alt/360.0
	if violation(altResult, limit) < violation(result, limit) {
		return alt
	}
	return dx
}

func violation(v, limit float64) float64 {
	d := math.Abs(v) - limit
	if d < 0 {
		return 0
	}
	return d
}

// driveAxis issues a duty-cycle command on one axis motor for an angular
// error err (degrees), per spec.md section 4.5 step 3.d.
func (c *Controller) driveAxis(m *motor.Driver, err, minThrottle float64) {
	abs := math.Abs(err)
	var duty float64
	switch {
	case abs > c.cfg.CoarseDeg:
		duty = 1.0
	case abs > c.cfg.FineDeg:
		duty = abs / c.cfg.CoarseDeg
		if duty < minThrottle {
			duty = minThrottle
		}
	case abs > c.cfg.TrackDeg:
		duty = minThrottle
	default:
		duty = 0
	}
	if err < 0 {
		duty = -duty
	}
	m.SetTarget(duty)
}

// fold180 reduces a degree delta into [-180, 180].
func fold180(deg float64) float64 {
	deg = math.Mod(deg, 360.0)
	if deg > 180.0 {
		deg -= 360.0
	} else if deg < -180.0 {
		deg += 360.0
	}
	return deg
}
