/*Package pointing implements the mount's pointing state machine:
IDLE/SLEWING/TRACKING/PARKING/PARKED, driving the azimuth and altitude
motors toward a target expressed in either the horizontal or equatorial
frame, enforcing the axis-range guard and horizon checks.

Controller runs a single poll-cycle goroutine on a time.Ticker, the
same "one goroutine, one mutex, Lock/Update/Unlock" shape used
throughout this module for background control loops.
*/
package pointing

import (
	"fmt"
	"sync"
	"time"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/axis"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/coord"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/encoder"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/motor"
)

// DefaultLoopDelay is the poll-cycle cadence.
const DefaultLoopDelay = 200 * time.Millisecond

// Default motor-command thresholds, in degrees, and minimum throttle
// fractions, per axis.
const (
	DefaultCoarseDeg = 3.0
	DefaultFineDeg   = 0.1
	DefaultTrackDeg  = 0.017

	DefaultMinThrottleAz  = 0.06
	DefaultMinThrottleAlt = 0.14
)

// Default axis-range guard overturn allowances, in revolutions.
const (
	DefaultMaxAzOverturn  = 0.5
	DefaultMaxAltOverturn = 5.0 / 360.0
)

// State is a pointing-controller lifecycle state.
type State int

// Pointing-controller states.
const (
	Idle State = iota
	Slewing
	Tracking
	Parking
	Parked
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Slewing:
		return "SLEWING"
	case Tracking:
		return "TRACKING"
	case Parking:
		return "PARKING"
	case Parked:
		return "PARKED"
	default:
		return "UNKNOWN"
	}
}

// System selects the frame a TargetCoords is expressed in.
type System int

// Coordinate systems.
const (
	Equ System = iota
	Hor
)

// TargetCoords is a pointing target in either frame.
type TargetCoords struct {
	System System
	X, Y   float64 // (RA hours, Dec deg) for Equ; (Az deg, Alt deg) for Hor
}

// Config parametrises a Controller.
type Config struct {
	EncAz, EncAlt     *encoder.Reader
	MotorAz, MotorAlt *motor.Driver

	RatioAz, RatioAlt   float64 // encoder turns per axis turn
	OffsetAz, OffsetAlt float64 // degrees

	Location coord.Location

	ParkAz, ParkAlt float64 // degrees

	MaxAzOverturn  float64
	MaxAltOverturn float64

	CoarseDeg, FineDeg, TrackDeg  float64
	MinThrottleAz, MinThrottleAlt float64

	LoopDelay time.Duration
}

// Status is the published snapshot of the controller's state.
type Status struct {
	State       State
	Current     coord.Horizontal
	AbsTurnsAz  float64
	AbsTurnsAlt float64
	FaultAz     bool
	FaultAlt    bool
	Parked      bool
}

// Controller owns the pointing poll-cycle goroutine.
type Controller struct {
	cfg Config

	az, alt *axis.Value

	mu          sync.Mutex
	state       State
	targetEqu   coord.Equatorial
	targetHor   coord.Horizontal
	targetIsEqu bool
	tracking    bool
	parked      bool
	absTurnsAz  float64
	absTurnsAlt float64
	faultAz     bool
	faultAlt    bool

	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Controller. The azimuth and altitude axes are wired
// so that a reflection at one end of either axis flips the other by
// 180 degrees, the mount's gimbal-flip relation.
func New(cfg Config) (*Controller, error) {
	if cfg.EncAz == nil || cfg.EncAlt == nil || cfg.MotorAz == nil || cfg.MotorAlt == nil {
		return nil, fmt.Errorf("pointing: EncAz/EncAlt/MotorAz/MotorAlt must be set")
	}
	if cfg.RatioAz == 0 {
		cfg.RatioAz = 1
	}
	if cfg.RatioAlt == 0 {
		cfg.RatioAlt = 1
	}
	if cfg.MaxAzOverturn == 0 {
		cfg.MaxAzOverturn = DefaultMaxAzOverturn
	}
	if cfg.MaxAltOverturn == 0 {
		cfg.MaxAltOverturn = DefaultMaxAltOverturn
	}
	if cfg.CoarseDeg == 0 {
		cfg.CoarseDeg = DefaultCoarseDeg
	}
	if cfg.FineDeg == 0 {
		cfg.FineDeg = DefaultFineDeg
	}
	if cfg.TrackDeg == 0 {
		cfg.TrackDeg = DefaultTrackDeg
	}
	if cfg.MinThrottleAz == 0 {
		cfg.MinThrottleAz = DefaultMinThrottleAz
	}
	if cfg.MinThrottleAlt == 0 {
		cfg.MinThrottleAlt = DefaultMinThrottleAlt
	}
	if cfg.LoopDelay == 0 {
		cfg.LoopDelay = DefaultLoopDelay
	}

	az, err := axis.New(360, 0, 360)
	if err != nil {
		return nil, err
	}
	alt, err := axis.New(360, -90, 90)
	if err != nil {
		return nil, err
	}
	c := &Controller{cfg: cfg, az: az, alt: alt}
	az.OnFlip(func() { alt.Flip() })
	alt.OnFlip(func() { az.Flip() })
	return c, nil
}

// Start launches the poll-cycle goroutine.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.stop = make(chan struct{})
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.loop()
}

// Stop signals the poll-cycle goroutine to exit and waits for it.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	c.mu.Unlock()
	c.wg.Wait()
}

// Status returns a consistent snapshot of the controller's published
// state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:       c.state,
		Current:     coord.Horizontal{AzDeg: c.az.Current(), AltDeg: c.alt.Current()},
		AbsTurnsAz:  c.absTurnsAz,
		AbsTurnsAlt: c.absTurnsAlt,
		FaultAz:     c.faultAz,
		FaultAlt:    c.faultAlt,
		Parked:      c.parked,
	}
}

// Goto commands a slew to target. A target below the horizon is
// rejected with an error and the state does not change, as is any
// motion command while the mount is parked.
func (c *Controller) Goto(target TargetCoords) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Parked {
		return fmt.Errorf("pointing: mount is parked; unpark before issuing motion commands")
	}
	if target.System == Equ {
		equ := coord.Equatorial{RAHours: target.X, DecDeg: target.Y}
		hor := coord.EquToHor(equ, time.Now(), c.cfg.Location)
		if hor.AltDeg < 0 {
			return fmt.Errorf("pointing: target altitude %.3f is below the horizon", hor.AltDeg)
		}
		c.targetEqu = equ
		c.targetIsEqu = true
	} else {
		if target.Y < 0 {
			return fmt.Errorf("pointing: target altitude %.3f is below the horizon", target.Y)
		}
		c.targetHor = coord.Horizontal{AzDeg: target.X, AltDeg: target.Y}
		c.targetIsEqu = false
	}
	c.state = Slewing
	return nil
}

// SetTracking enables or disables tracking. Enabling while parked is
// refused; enabling while idle captures the current horizontal position
// as the equatorial tracking target, provided it is not below the
// horizon. Disabling while tracking stops motion.
func (c *Controller) SetTracking(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on && c.state == Parked {
		return fmt.Errorf("pointing: mount is parked; tracking is prohibited")
	}
	if !on {
		c.tracking = false
		if c.state == Tracking {
			c.state = Idle
			c.cfg.MotorAz.SetTarget(0)
			c.cfg.MotorAlt.SetTarget(0)
		}
		return nil
	}
	c.tracking = true
	if c.state == Idle {
		if c.alt.Current() < 0 {
			return fmt.Errorf("pointing: current altitude %.3f is below the horizon", c.alt.Current())
		}
		cur := coord.Horizontal{AzDeg: c.az.Current(), AltDeg: c.alt.Current()}
		c.targetEqu = coord.HorToEqu(cur, time.Now(), c.cfg.Location)
		c.targetIsEqu = true
		c.state = Tracking
	}
	return nil
}

// Abort stops any slew or park motion in progress and returns the
// controller to its prior tracking-or-idle state. Aborting while idle,
// tracking or parked is a no-op.
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Slewing && c.state != Parking {
		return
	}
	if c.tracking {
		c.state = Tracking
	} else {
		c.state = Idle
	}
	c.cfg.MotorAz.SetTarget(0)
	c.cfg.MotorAlt.SetTarget(0)
}

// Park commands a slew to the configured park position. Parking an
// already-parked mount is a no-op.
func (c *Controller) Park() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Parked {
		return
	}
	c.targetHor = coord.Horizontal{AzDeg: c.cfg.ParkAz, AltDeg: c.cfg.ParkAlt}
	c.targetIsEqu = false
	c.tracking = false
	c.state = Parking
}

// Unpark clears the parked flag and returns the controller to IDLE.
func (c *Controller) Unpark() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Parked {
		return
	}
	c.parked = false
	c.state = Idle
}
