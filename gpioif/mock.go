package gpioif

import "sync"

// MockBus is an in-memory stand-in for Bus, used by the encoder, motor
// and adcsampler test suites. Tests script its behaviour by pushing
// shift-in frames or setting I2C register / pin-level values directly;
// production code never constructs one. Pin, PWM and register state
// is kept in plain per-pin / per-address maps.
type MockBus struct {
	mu sync.Mutex

	connected bool

	level map[Pin]Level
	pull  map[Pin]Pull
	dir   map[Pin]Direction
	pwm   map[Pin]int

	shiftOpen  [2]bool
	shiftQueue [2][][]byte

	i2cOpen map[byte]bool
	i2cRegs map[byte]map[byte]byte
}

// NewMockBus returns a connected MockBus ready for use in tests.
func NewMockBus() *MockBus {
	return &MockBus{
		connected: true,
		level:     make(map[Pin]Level),
		pull:      make(map[Pin]Pull),
		dir:       make(map[Pin]Direction),
		pwm:       make(map[Pin]int),
		i2cOpen:   make(map[byte]bool),
		i2cRegs:   make(map[byte]map[byte]byte),
	}
}

// SetConnected forces the connected state, to exercise ErrNotConnected
// paths in callers.
func (m *MockBus) SetConnected(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = v
}

// IsConnected implements Device.
func (m *MockBus) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SetPinDirection implements Device.
func (m *MockBus) SetPinDirection(p Pin, dir Direction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.dir[p] = dir
	return nil
}

// SetPull implements Device.
func (m *MockBus) SetPull(p Pin, pull Pull) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.pull[p] = pull
	return nil
}

// SetPinLevel implements Device. Tests also use it directly to simulate
// externally driven inputs, e.g. a motor fault line.
func (m *MockBus) SetPinLevel(p Pin, lvl Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.level[p] = lvl
	return nil
}

// ReadPinLevel implements Device.
func (m *MockBus) ReadPinLevel(p Pin) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return Low, ErrNotConnected
	}
	return m.level[p], nil
}

// ConfigurePWM implements Device.
func (m *MockBus) ConfigurePWM(p Pin, frequency, rangeMax int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	return nil
}

// SetPWMValue implements Device.
func (m *MockBus) SetPWMValue(p Pin, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.pwm[p] = value
	return nil
}

// SetHardwarePWM implements Device. The value lands in the same
// per-pin map as SetPWMValue so assertions need not care which path
// drove the pin.
func (m *MockBus) SetHardwarePWM(p Pin, frequency, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.pwm[p] = value
	return nil
}

// PWMValue returns the last value set by SetPWMValue or SetHardwarePWM,
// for assertions.
func (m *MockBus) PWMValue(p Pin) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pwm[p]
}

// OpenShift implements Device.
func (m *MockBus) OpenShift(cfg ShiftConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.shiftOpen[cfg.Channel] = true
	return nil
}

// CloseShift implements Device.
func (m *MockBus) CloseShift(ch ShiftChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shiftOpen[ch] = false
	return nil
}

// PushShiftFrame enqueues a frame to be returned by the next ReadShift
// call on channel ch.
func (m *MockBus) PushShiftFrame(ch ShiftChannel, frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shiftQueue[ch] = append(m.shiftQueue[ch], frame)
}

// ReadShift implements Device, popping the next queued frame. An empty
// queue yields ErrShortRead, simulating a bus timeout.
func (m *MockBus) ReadShift(ch ShiftChannel, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, ErrNotConnected
	}
	if !m.shiftOpen[ch] {
		return nil, ErrChannelNotOpen
	}
	if len(m.shiftQueue[ch]) == 0 {
		return nil, ErrShortRead
	}
	frame := m.shiftQueue[ch][0]
	m.shiftQueue[ch] = m.shiftQueue[ch][1:]
	if len(frame) < n {
		return frame, ErrShortRead
	}
	return frame[:n], nil
}

// WriteShift implements Device.
func (m *MockBus) WriteShift(ch ShiftChannel, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.shiftOpen[ch] {
		return ErrChannelNotOpen
	}
	return nil
}

// OpenI2C implements Device.
func (m *MockBus) OpenI2C(addr byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.i2cOpen[addr] = true
	if m.i2cRegs[addr] == nil {
		m.i2cRegs[addr] = make(map[byte]byte)
	}
	return nil
}

// CloseI2C implements Device.
func (m *MockBus) CloseI2C(addr byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.i2cOpen, addr)
	return nil
}

// SetI2CRegister seeds the value that will be returned by ReadRegister(s)
// for addr/reg.
func (m *MockBus) SetI2CRegister(addr, reg, value byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.i2cRegs[addr] == nil {
		m.i2cRegs[addr] = make(map[byte]byte)
	}
	m.i2cRegs[addr][reg] = value
}

// ReadRegister implements Device.
func (m *MockBus) ReadRegister(addr, reg byte) (byte, error) {
	bs, err := m.ReadRegisters(addr, reg, 1)
	if err != nil {
		return 0, err
	}
	return bs[0], nil
}

// ReadRegisters implements Device.
func (m *MockBus) ReadRegisters(addr, reg byte, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, ErrNotConnected
	}
	if !m.i2cOpen[addr] {
		return nil, ErrChannelNotOpen
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = m.i2cRegs[addr][reg+byte(i)]
	}
	return out, nil
}

// WriteRegister implements Device.
func (m *MockBus) WriteRegister(addr, reg, value byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.i2cOpen[addr] {
		return ErrChannelNotOpen
	}
	if m.i2cRegs[addr] == nil {
		m.i2cRegs[addr] = make(map[byte]byte)
	}
	m.i2cRegs[addr][reg] = value
	return nil
}
