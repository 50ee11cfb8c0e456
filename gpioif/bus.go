/*Package gpioif provides a uniform, mutex-guarded facade over the GPIO,
software/hardware PWM, shift-in (SPI-like) and I2C resources of a
Raspberry Pi, as exposed by a pigpiod-style daemon.

The facade serialises every bus transfer behind a single lock, following
a "one connection, one mutex" shape: callers never see partial transfers
interleaved with others on the same underlying connection.

A minimal usage is:

	bus, err := gpioif.Dial("localhost:8888")
	if err != nil {
		log.Fatal(err)
	}
	defer bus.Close()
	bus.SetPinDirection(PinOut, gpioif.Output)
	bus.SetPinLevel(PinOut, gpioif.High)
*/
package gpioif

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// Pin identifies a GPIO line by its BCM number.
type Pin int

// HWPWM1 and HWPWM2 are the two pins with dedicated hardware PWM channels
// on a Raspberry Pi. Any other pin configured for PWM falls back to the
// software path.
const (
	HWPWM1 Pin = 18
	HWPWM2 Pin = 13
)

// Direction is the electrical direction of a GPIO pin.
type Direction uint8

// Pin directions.
const (
	Input Direction = iota
	Output
)

// Level is the logical level of a GPIO pin.
type Level bool

// Pin levels.
const (
	Low  Level = false
	High Level = true
)

// Pull configures the internal pull resistor of an input pin.
type Pull uint8

// Pull settings.
const (
	PullNone Pull = iota
	PullDown
	PullUp
)

// ShiftMode selects the clock polarity/phase of a shift-in channel, as
// used by the absolute rotary encoders (see package encoder).
type ShiftMode uint8

// Clock polarity/phase combinations for a shift-in channel.
const (
	POL0PHA0 ShiftMode = iota
	POL0PHA1
	POL1PHA0
	POL1PHA1
)

// ShiftChannel selects which of the two shift-in buses to use.
type ShiftChannel uint8

// Shift-in channels.
const (
	ChannelMain ShiftChannel = iota
	ChannelAux
)

// DefaultSoftPWMRange is the duty-cycle divisor used for software PWM when
// the caller does not configure one explicitly.
const DefaultSoftPWMRange = 255

// DefaultSoftPWMFrequency is the frequency, in Hz, used for software PWM
// when the caller does not configure one explicitly.
const DefaultSoftPWMFrequency = 20000

var (
	// ErrNotConnected is returned by every operation on a Bus that failed
	// to connect, or has since been closed.
	ErrNotConnected = errors.New("gpioif: bus not connected")

	// ErrShortRead is returned when fewer bytes than requested were
	// returned by the daemon; callers must treat this as failure, not as
	// a partial success.
	ErrShortRead = errors.New("gpioif: short read")

	// ErrChannelNotOpen is returned when a shift-in or I2C operation is
	// attempted before the corresponding Open call succeeded.
	ErrChannelNotOpen = errors.New("gpioif: channel not open")
)

// ShiftConfig describes how a shift-in channel should be opened.
type ShiftConfig struct {
	Channel  ShiftChannel
	Mode     ShiftMode
	BaudHz   int
	LSBFirst bool
}

// pwmPin holds the configured software-PWM parameters for one pin.
type pwmPin struct {
	frequency int
	rangeMax  int
	value     int
}

// Bus is a mutex-guarded facade over a single pigpiod-style daemon
// connection. Every exported method acquires the bus-wide lock for the
// duration of its transfer (see transfer and readN).
type Bus struct {
	mu   sync.Mutex
	conn net.Conn
	ok   bool

	pwm    map[Pin]*pwmPin
	shiftN [2]bool // open flags per ShiftChannel
	i2cOK  map[byte]bool
}

// Dial connects to a pigpiod-style daemon at addr, retrying with an
// exponential backoff capped at 3s, the same policy RemoteDevice.Open
// uses for flaky instrument connections. On failure it returns a Bus
// in the permanent failed state: ok is false and every subsequent
// operation returns ErrNotConnected, so callers need not special-case a
// nil Bus.
func Dial(addr string) (*Bus, error) {
	b := &Bus{
		pwm:   make(map[Pin]*pwmPin),
		i2cOK: make(map[byte]bool),
	}
	var conn net.Conn
	op := func() error {
		var err error
		conn, err = net.DialTimeout("tcp", addr, time.Second)
		return err
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock,
	})
	if err != nil {
		return b, fmt.Errorf("gpioif: connect to %s: %w", addr, err)
	}
	b.conn = conn
	b.ok = true
	return b, nil
}

// IsConnected reports whether the bus successfully connected and has not
// since been closed.
func (b *Bus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ok
}

// Close releases the underlying daemon connection. After Close, every
// operation returns ErrNotConnected.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ok = false
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

// SetPinDirection configures a pin as input or output.
func (b *Bus) SetPinDirection(p Pin, dir Direction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ok {
		return ErrNotConnected
	}
	return b.transfer(encodeSetDirection(p, dir))
}

// SetPull configures the internal pull resistor of an input pin.
func (b *Bus) SetPull(p Pin, pull Pull) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ok {
		return ErrNotConnected
	}
	return b.transfer(encodeSetPull(p, pull))
}

// SetPinLevel drives an output pin high or low.
func (b *Bus) SetPinLevel(p Pin, lvl Level) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ok {
		return ErrNotConnected
	}
	return b.transfer(encodeSetLevel(p, lvl))
}

// ReadPinLevel reads the current level of a pin.
func (b *Bus) ReadPinLevel(p Pin) (Level, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ok {
		return Low, ErrNotConnected
	}
	if err := b.transfer(encodeReadLevel(p)); err != nil {
		return Low, err
	}
	return b.readLevelReply()
}

// ConfigurePWM sets the software-PWM frequency and range for a pin that is
// not one of HWPWM1/HWPWM2. rangeMax defaults to DefaultSoftPWMRange and
// frequency to DefaultSoftPWMFrequency when zero.
func (b *Bus) ConfigurePWM(p Pin, frequency, rangeMax int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ok {
		return ErrNotConnected
	}
	if frequency == 0 {
		frequency = DefaultSoftPWMFrequency
	}
	if rangeMax == 0 {
		rangeMax = DefaultSoftPWMRange
	}
	b.pwm[p] = &pwmPin{frequency: frequency, rangeMax: rangeMax}
	return b.transfer(encodeConfigurePWM(p, frequency, rangeMax))
}

// SetPWMValue sets the software-PWM duty cycle on pin p, interpreted on
// the pin's configured range (see ConfigurePWM). The two dedicated
// hardware-PWM pins are driven through SetHardwarePWM instead.
func (b *Bus) SetPWMValue(p Pin, value int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ok {
		return ErrNotConnected
	}
	if pp, ok := b.pwm[p]; ok {
		pp.value = value
	}
	return b.transfer(encodeSoftwarePWM(p, value))
}

// SetHardwarePWM drives one of the dedicated hardware-PWM pins (HWPWM1
// or HWPWM2) at the given frequency, with value interpreted on a 0..1e6
// duty scale. The frequency travels with every update, matching the
// daemon's hw_pwm_set_value(pin, frequency, duty) call.
func (b *Bus) SetHardwarePWM(p Pin, frequency, value int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ok {
		return ErrNotConnected
	}
	if frequency == 0 {
		frequency = DefaultSoftPWMFrequency
	}
	return b.transfer(encodeHardwarePWM(p, frequency, value))
}

// OpenShift opens a shift-in channel with the given configuration. It
// must be called before ReadShift.
func (b *Bus) OpenShift(cfg ShiftConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ok {
		return ErrNotConnected
	}
	if err := b.transfer(encodeOpenShift(cfg)); err != nil {
		return err
	}
	b.shiftN[cfg.Channel] = true
	return nil
}

// CloseShift closes a previously opened shift-in channel.
func (b *Bus) CloseShift(ch ShiftChannel) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ok {
		return ErrNotConnected
	}
	b.shiftN[ch] = false
	return b.transfer(encodeCloseShift(ch))
}

// ReadShift reads exactly n bytes from an opened shift-in channel. Fewer
// bytes than requested is reported as ErrShortRead, which callers must
// treat as a failed read (see encoder.Reader's bit-error accounting).
func (b *Bus) ReadShift(ch ShiftChannel, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ok {
		return nil, ErrNotConnected
	}
	if !b.shiftN[ch] {
		return nil, ErrChannelNotOpen
	}
	buf, err := b.readN(n)
	if err != nil {
		return nil, err
	}
	if len(buf) < n {
		return buf, ErrShortRead
	}
	return buf, nil
}

// WriteShift writes data to an opened shift-in channel.
func (b *Bus) WriteShift(ch ShiftChannel, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ok {
		return ErrNotConnected
	}
	if !b.shiftN[ch] {
		return ErrChannelNotOpen
	}
	return b.transfer(data)
}

// OpenI2C opens an I2C device at the given 7-bit address.
func (b *Bus) OpenI2C(addr byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ok {
		return ErrNotConnected
	}
	if err := b.transfer(encodeOpenI2C(addr)); err != nil {
		return err
	}
	b.i2cOK[addr] = true
	return nil
}

// CloseI2C closes a previously opened I2C device.
func (b *Bus) CloseI2C(addr byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ok {
		return ErrNotConnected
	}
	delete(b.i2cOK, addr)
	return b.transfer(encodeCloseI2C(addr))
}

// ReadRegister reads a single register from an opened I2C device.
func (b *Bus) ReadRegister(addr, reg byte) (byte, error) {
	bs, err := b.ReadRegisters(addr, reg, 1)
	if err != nil {
		return 0, err
	}
	return bs[0], nil
}

// ReadRegisters reads n consecutive registers starting at reg.
func (b *Bus) ReadRegisters(addr, reg byte, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ok {
		return nil, ErrNotConnected
	}
	if !b.i2cOK[addr] {
		return nil, ErrChannelNotOpen
	}
	if err := b.transfer(encodeReadRegisters(addr, reg, n)); err != nil {
		return nil, err
	}
	buf, err := b.readN(n)
	if err != nil {
		return nil, err
	}
	if len(buf) < n {
		return buf, ErrShortRead
	}
	return buf, nil
}

// WriteRegister writes a single byte to a register on an opened I2C
// device.
func (b *Bus) WriteRegister(addr, reg, value byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ok {
		return ErrNotConnected
	}
	if !b.i2cOK[addr] {
		return ErrChannelNotOpen
	}
	return b.transfer(encodeWriteRegister(addr, reg, value))
}

// transfer and readN are the only points that touch the network
// connection; every exported method above funnels through them while
// already holding mu, so concurrent callers never interleave writes and
// reads on the same connection.
func (b *Bus) transfer(payload []byte) error {
	if b.conn == nil {
		return ErrNotConnected
	}
	_, err := b.conn.Write(payload)
	return err
}

func (b *Bus) readN(n int) ([]byte, error) {
	if b.conn == nil {
		return nil, ErrNotConnected
	}
	buf := make([]byte, n)
	read := 0
	for read < n {
		m, err := b.conn.Read(buf[read:])
		read += m
		if err != nil {
			return buf[:read], err
		}
		if m == 0 {
			break
		}
	}
	return buf[:read], nil
}

func (b *Bus) readLevelReply() (Level, error) {
	buf, err := b.readN(1)
	if err != nil {
		return Low, err
	}
	return Level(buf[0] != 0), nil
}
