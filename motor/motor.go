/*Package motor drives one DC gear motor through a PWM H-bridge: duty
cycle ramping, direction logic, fault supervision and optional
current-sense, on the same ticker-driven background-goroutine shape used
throughout this module by package encoder and package adcsampler.
*/
package motor

import (
	"fmt"
	"sync"
	"time"

	"github.com/brandondube/ringo"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/gpioif"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/mathx"
	"github.com/hangeza/indi-rpi-radiotelescope-sub000/util"
)

// DefaultLoopDelay is the ramp-loop cadence.
const DefaultLoopDelay = 10 * time.Millisecond

// DefaultRampPerSecond is the default ramp slope: ramping from 0 to full
// duty takes one second (a full -1..+1 sweep takes two).
const DefaultRampPerSecond = 1.0

// DefaultPWMFrequency is the hardware/software PWM frequency applied
// when Config.PWMFrequency is zero.
const DefaultPWMFrequency = 20000

// MotorCurrentFactor scales a zero-offset-corrected ADC sample into
// published current units.
const MotorCurrentFactor = 1.0

// CurrentOffsetDepth is the ring-buffer depth used to estimate the
// zero-current ADC offset.
const CurrentOffsetDepth = 10

// currentSamplePeriod is how many ramp-loop ticks elapse between motor
// current samples (spec: "once per 100 loop cycles").
const currentSamplePeriod = 100

// Pins describes the GPIO lines wired to one motor's H-bridge. Either
// Dir or the DirA/DirB pair must be configured; Fault and the ADC
// channel are optional.
type Pins struct {
	PWM    gpioif.Pin
	Dir    gpioif.Pin
	DirA   gpioif.Pin
	DirB   gpioif.Pin
	Enable gpioif.Pin
	Fault  gpioif.Pin

	HasDir    bool
	HasDirAB  bool
	HasEnable bool
	HasFault  bool
}

// Config parametrises a Driver.
type Config struct {
	Bus  gpioif.Device
	Pins Pins

	Inverted bool // swaps the sense of the direction output

	PWMFrequency int // Hz, default DefaultPWMFrequency
	PWMRange     int // software-PWM range, default gpioif.DefaultSoftPWMRange

	RampPerSecond float64 // duty-cycle units per second, default DefaultRampPerSecond
	LoopDelay     time.Duration

	HasADC     bool
	ADCAddr    byte
	ADCChannel byte
}

// State is the published snapshot of a Driver's current status.
type State struct {
	Target       float64
	Current      float64
	Direction    int // +1, -1 or 0
	Fault        bool
	MotorCurrent float64 // motor-current reading, offset-corrected
	HaveADC      bool
}

// Driver owns the background ramp-loop goroutine for one motor.
type Driver struct {
	cfg Config

	mu    sync.Mutex
	state State

	initialized bool
	running     bool
	stop        chan struct{}
	wg          sync.WaitGroup

	rampIncrement float64
	tickCount     uint64
	offsetBuf     ringo.CircleF64
}

// New validates cfg, filling in defaults, and returns a Driver. If the
// pin configuration is incomplete the returned Driver is permanently
// uninitialised: every subsequent command is silently ignored, matching
// the teacher's "missing mandatory pins disables the driver" contract.
func New(cfg Config) (*Driver, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("motor: Bus must not be nil")
	}
	if cfg.PWMFrequency == 0 {
		cfg.PWMFrequency = DefaultPWMFrequency
	}
	if cfg.PWMRange == 0 {
		cfg.PWMRange = gpioif.DefaultSoftPWMRange
	}
	if cfg.RampPerSecond == 0 {
		cfg.RampPerSecond = DefaultRampPerSecond
	}
	if cfg.LoopDelay == 0 {
		cfg.LoopDelay = DefaultLoopDelay
	}
	d := &Driver{cfg: cfg}
	// exactly one of Dir / DirA+DirB must be configured
	d.initialized = cfg.Pins.HasDir != cfg.Pins.HasDirAB
	d.rampIncrement = cfg.RampPerSecond * cfg.LoopDelay.Seconds()
	if cfg.HasADC {
		d.offsetBuf.Init(CurrentOffsetDepth)
	}
	return d, nil
}

// IsInitialized reports whether the driver has a usable pin
// configuration.
func (d *Driver) IsInitialized() bool {
	return d.initialized
}

// Start configures the hardware pins and launches the ramp loop. A
// permanently uninitialised driver returns nil and does nothing.
func (d *Driver) Start() error {
	if !d.initialized {
		return nil
	}
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	if err := d.configurePins(); err != nil {
		d.mu.Unlock()
		return err
	}
	d.stop = make(chan struct{})
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go d.loop()
	return nil
}

// Stop signals the ramp loop to exit and waits for it to finish.
func (d *Driver) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stop)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Driver) configurePins() error {
	p := d.cfg.Pins
	if err := d.cfg.Bus.SetPinDirection(p.PWM, gpioif.Output); err != nil {
		return fmt.Errorf("motor: configure PWM pin: %w", err)
	}
	if err := d.cfg.Bus.ConfigurePWM(p.PWM, d.cfg.PWMFrequency, d.cfg.PWMRange); err != nil {
		return fmt.Errorf("motor: configure PWM: %w", err)
	}
	if p.HasDir {
		d.cfg.Bus.SetPinDirection(p.Dir, gpioif.Output)
	}
	if p.HasDirAB {
		d.cfg.Bus.SetPinDirection(p.DirA, gpioif.Output)
		d.cfg.Bus.SetPinDirection(p.DirB, gpioif.Output)
	}
	if p.HasEnable {
		d.cfg.Bus.SetPinDirection(p.Enable, gpioif.Output)
		d.cfg.Bus.SetPinLevel(p.Enable, gpioif.High)
	}
	if p.HasFault {
		d.cfg.Bus.SetPinDirection(p.Fault, gpioif.Input)
		d.cfg.Bus.SetPull(p.Fault, gpioif.PullUp)
	}
	if d.cfg.HasADC {
		d.cfg.Bus.OpenI2C(d.cfg.ADCAddr)
	}
	return nil
}

// SetTarget sets the desired duty cycle, clamped to [-1, 1]. A call on a
// permanently uninitialised driver is silently ignored.
func (d *Driver) SetTarget(ratio float64) {
	if !d.initialized {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Target = util.Clamp(ratio, -1, 1)
}

// EmergencyStop zeroes the target and de-asserts the enable line.
func (d *Driver) EmergencyStop() {
	if !d.initialized {
		return
	}
	d.mu.Lock()
	d.state.Target = 0
	d.mu.Unlock()
	if d.cfg.Pins.HasEnable {
		d.cfg.Bus.SetPinLevel(d.cfg.Pins.Enable, gpioif.Low)
	}
}

// State returns a consistent snapshot of the driver's published state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// IsFault reports the last-observed, self-latching fault condition.
func (d *Driver) IsFault() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Fault
}

func (d *Driver) loop() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.LoopDelay)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

// tick implements one ramp-loop iteration per spec.md section 4.4.
func (d *Driver) tick() {
	if d.cfg.Pins.HasFault {
		lvl, err := d.cfg.Bus.ReadPinLevel(d.cfg.Pins.Fault)
		if err == nil && lvl == gpioif.Low {
			d.faultStop()
			return
		}
		// the latch holds only until the loop next runs: a cleared line
		// clears the reported status
		if err == nil {
			d.mu.Lock()
			d.state.Fault = false
			d.mu.Unlock()
		}
	}

	d.mu.Lock()
	target := d.state.Target
	current := d.state.Current
	if current != target {
		if current < target {
			current += d.rampIncrement
			if current > target {
				current = target
			}
		} else {
			current -= d.rampIncrement
			if current < target {
				current = target
			}
		}
		d.state.Current = current
	}
	if current > 0 {
		d.state.Direction = 1
	} else if current < 0 {
		d.state.Direction = -1
	} else {
		d.state.Direction = 0
	}
	d.mu.Unlock()

	d.applyHardware(current)

	d.tickCount++
	if d.cfg.HasADC && d.tickCount%currentSamplePeriod == 0 {
		d.sampleCurrent(target)
	}
}

// faultStop is the fault-line reaction of the ramp loop: zero out the
// duty cycle, latch the fault status and de-assert the enable line. It
// takes d.mu itself and must not be called with the lock held.
func (d *Driver) faultStop() {
	d.mu.Lock()
	d.state.Target = 0
	d.state.Current = 0
	d.state.Direction = 0
	d.state.Fault = true
	d.mu.Unlock()
	if d.cfg.Pins.HasEnable {
		d.cfg.Bus.SetPinLevel(d.cfg.Pins.Enable, gpioif.Low)
	}
}

// applyHardware writes the current duty cycle and direction to the bus.
func (d *Driver) applyHardware(ratio float64) {
	mag := ratio
	if mag < 0 {
		mag = -mag
	}
	hw := d.cfg.Pins.PWM == gpioif.HWPWM1 || d.cfg.Pins.PWM == gpioif.HWPWM2
	switch {
	case hw:
		d.cfg.Bus.SetHardwarePWM(d.cfg.Pins.PWM, d.cfg.PWMFrequency, int(mathx.Round(mag*1e6, 1)))
	case ratio == 0:
		d.cfg.Bus.SetPWMValue(d.cfg.Pins.PWM, 0)
	default:
		d.cfg.Bus.SetPWMValue(d.cfg.Pins.PWM, int(mathx.Round(mag*float64(d.cfg.PWMRange), 1)))
	}

	level := (ratio < 0) != d.cfg.Inverted
	if d.cfg.Pins.HasDir {
		d.cfg.Bus.SetPinLevel(d.cfg.Pins.Dir, gpioif.Level(level))
	}
	if d.cfg.Pins.HasDirAB {
		d.cfg.Bus.SetPinLevel(d.cfg.Pins.DirA, gpioif.Level(level))
		d.cfg.Bus.SetPinLevel(d.cfg.Pins.DirB, gpioif.Level(!level))
	}
}

// sampleCurrent reads the motor-current ADC channel. When the present
// target duty is within one ramp increment of zero, the sample is
// treated as a zero-current reading and folded into the offset ring
// buffer.
func (d *Driver) sampleCurrent(target float64) {
	raw, err := d.cfg.Bus.ReadRegisters(d.cfg.ADCAddr, d.cfg.ADCChannel<<1, 2)
	if err != nil {
		return
	}
	counts := int16(uint16(raw[0])<<8 | uint16(raw[1]))
	sample := float64(counts)

	if target < 0 {
		target = -target
	}
	if target < d.rampIncrement {
		d.offsetBuf.Append(sample)
	}
	offset := meanOf(d.offsetBuf.Contiguous())

	d.mu.Lock()
	d.state.MotorCurrent = (sample - offset) * MotorCurrentFactor
	d.state.HaveADC = true
	d.mu.Unlock()
}

func meanOf(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
