/*Package encoder reads and decodes one of the mount's two absolute
rotary position encoders over a shift-in bus (see package gpioif).

Each Reader owns a dedicated background goroutine, polling the bus on a
fixed cadence, Gray-decoding the 32-bit frame, applying a plausibility
gate, and publishing {position, turns, angular speed} behind a mutex -
the same "one goroutine, one lock, publish on success" shape used by
package motor and package monitor in this module.
*/
package encoder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hangeza/indi-rpi-radiotelescope-sub000/gpioif"
)

// MaxConnErrors caps the connection-error countdown; status reports OK
// while the countdown is above zero.
const MaxConnErrors = 10

// DefaultLoopDelay is the control-loop cadence.
const DefaultLoopDelay = 50 * time.Millisecond

// DefaultMaxPlausibleSpeed is the maximum angular speed, in turns/s,
// beyond which a frame-to-frame jump is rejected as implausible.
const DefaultMaxPlausibleSpeed = 10.0

var (
	errFraming   = errors.New("encoder: framing error (sanity bit clear)")
	errShortRead = errors.New("encoder: short or failed bus read")
)

// Config parametrises a Reader.
type Config struct {
	Bus     gpioif.Device
	Channel gpioif.ShiftChannel
	Mode    gpioif.ShiftMode // passed to OpenShift as given; New applies no default, so the zero value selects POL0PHA0
	BaudHz  int              // default 500kHz, bounds 80kHz..5MHz

	STBits uint // default 12
	MTBits uint // default 12

	MaxPlausibleSpeed float64 // turns/s, default DefaultMaxPlausibleSpeed
	LoopDelay         time.Duration
}

// State is the published, consistent snapshot of a Reader's last
// successful (or failed) readout.
type State struct {
	Position     float64 // absolute position in revolutions
	Turns        int64
	SingleTurn   uint32
	AngularSpeed float64 // degrees/second
	BitErrors    uint64
	ConnErrors   int // countdown; status is OK while > 0
	ReadDuration time.Duration
	LastGood     bool
}

// Reader continuously decodes one encoder's frames on a dedicated
// goroutine.
type Reader struct {
	cfg Config

	mu      sync.Mutex
	state   State
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	lastFrame     frame
	haveLastFrame bool
	lastFrameTime time.Time
	lastWasError  bool
}

// New validates cfg, filling in defaults, and returns a Reader that is
// not yet running.
func New(cfg Config) (*Reader, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("encoder: Bus must not be nil")
	}
	if cfg.STBits == 0 {
		cfg.STBits = 12
	}
	if cfg.MTBits == 0 {
		cfg.MTBits = 12
	}
	if cfg.BaudHz == 0 {
		cfg.BaudHz = 500_000
	}
	if cfg.BaudHz < 80_000 || cfg.BaudHz > 5_000_000 {
		return nil, fmt.Errorf("encoder: BaudHz %d out of range [80000, 5000000]", cfg.BaudHz)
	}
	if cfg.MaxPlausibleSpeed == 0 {
		cfg.MaxPlausibleSpeed = DefaultMaxPlausibleSpeed
	}
	if cfg.LoopDelay == 0 {
		cfg.LoopDelay = DefaultLoopDelay
	}
	r := &Reader{cfg: cfg}
	r.state.ConnErrors = MaxConnErrors
	return r, nil
}

// Start connects the shift-in channel and launches the background
// polling goroutine. Calling Start twice is a no-op.
func (r *Reader) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	err := r.cfg.Bus.OpenShift(gpioif.ShiftConfig{
		Channel:  r.cfg.Channel,
		Mode:     r.cfg.Mode,
		BaudHz:   r.cfg.BaudHz,
		LSBFirst: false,
	})
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("encoder: open shift channel: %w", err)
	}
	r.stop = make(chan struct{})
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop()
	return nil
}

// Stop signals the background goroutine to exit and waits for it to do
// so, then closes the shift-in channel.
func (r *Reader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	r.mu.Unlock()

	r.wg.Wait()
	r.cfg.Bus.CloseShift(r.cfg.Channel)
}

// State returns a consistent snapshot of the reader's last published
// readout.
func (r *Reader) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsOK reports whether the reader is initialised and its connection-error
// countdown has not been exhausted.
func (r *Reader) IsOK() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running && r.state.ConnErrors > 0
}

func (r *Reader) loop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.LoopDelay)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

// tick performs one control-loop iteration: read, decode, plausibility
// gate, publish. Grounded on spec.md section 4.3's numbered steps.
func (r *Reader) tick() {
	t0 := time.Now()
	raw, err := r.readFrame()
	dt := time.Since(t0)
	if err != nil {
		r.recordFailure()
		return
	}

	f, err := decodeFrame(raw, r.cfg.STBits, r.cfg.MTBits)
	if err != nil {
		r.recordFailure()
		return
	}

	// The speed gate runs over the time since the last frame, not the
	// readout duration of this one. A frame arriving after any failure
	// is accepted as a new baseline without the gate, so a real jump of
	// more than one turn cannot lock the reader out permanently.
	dtFrames := t0.Sub(r.lastFrameTime)
	if !r.lastWasError && r.haveLastFrame {
		if !r.plausible(f, dtFrames) {
			r.recordFailure()
			return
		}
	}

	speed := 0.0
	if r.haveLastFrame && !r.lastWasError && dtFrames > 0 {
		dSt := wrappedDelta(int64(f.st)-int64(r.lastFrame.st), int64(uint32(1)<<r.cfg.STBits))
		speed = float64(dSt) / float64(uint32(1)<<r.cfg.STBits) * 360 / dtFrames.Seconds()
	}

	r.mu.Lock()
	r.state.Position = absolutePosition(f, r.cfg.STBits)
	r.state.Turns = f.turns
	r.state.SingleTurn = f.st
	r.state.AngularSpeed = speed
	r.state.ReadDuration = dt
	r.state.LastGood = true
	if r.state.ConnErrors < MaxConnErrors {
		r.state.ConnErrors++
	}
	r.mu.Unlock()

	r.lastFrame = f
	r.haveLastFrame = true
	r.lastFrameTime = t0
	r.lastWasError = false
}

func (r *Reader) readFrame() (uint32, error) {
	buf, err := r.cfg.Bus.ReadShift(r.cfg.Channel, 4)
	if err != nil {
		return 0, errShortRead
	}
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
}

// plausible implements the gate of spec.md step 7: |delta turns| <= 1,
// and the implied angular speed from the single-turn delta must not
// exceed the configured maximum.
func (r *Reader) plausible(f frame, dt time.Duration) bool {
	dTurns := f.turns - r.lastFrame.turns
	if dTurns < -1 || dTurns > 1 {
		return false
	}
	if dt <= 0 {
		return true
	}
	period := int64(uint32(1) << r.cfg.STBits)
	dSt := wrappedDelta(int64(f.st)-int64(r.lastFrame.st), period)
	turnsPerSec := float64(dSt) / float64(period) / dt.Seconds()
	if turnsPerSec < 0 {
		turnsPerSec = -turnsPerSec
	}
	return turnsPerSec <= r.cfg.MaxPlausibleSpeed
}

func (r *Reader) recordFailure() {
	r.mu.Lock()
	r.state.BitErrors++
	if r.state.ConnErrors > 0 {
		r.state.ConnErrors--
	}
	r.state.LastGood = false
	r.mu.Unlock()
	r.lastWasError = true
}

// wrappedDelta folds d into (-period/2, period/2], the minimal signed
// delta on a cyclic range of the given period.
func wrappedDelta(d, period int64) int64 {
	d %= period
	if d > period/2 {
		d -= period
	} else if d < -period/2 {
		d += period
	}
	return d
}
