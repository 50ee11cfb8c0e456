package gpioif

// Device is the subset of Bus's behaviour that consumers in this module
// (encoder, motor, adcsampler) depend on. It lets those packages run
// against gpioif.MockBus in tests without a real pigpiod-style daemon,
// the same way package pi separates its real Controller from
// MockController behind a shared interface.
type Device interface {
	IsConnected() bool

	SetPinDirection(p Pin, dir Direction) error
	SetPull(p Pin, pull Pull) error
	SetPinLevel(p Pin, lvl Level) error
	ReadPinLevel(p Pin) (Level, error)

	ConfigurePWM(p Pin, frequency, rangeMax int) error
	SetPWMValue(p Pin, value int) error
	SetHardwarePWM(p Pin, frequency, value int) error

	OpenShift(cfg ShiftConfig) error
	CloseShift(ch ShiftChannel) error
	ReadShift(ch ShiftChannel, n int) ([]byte, error)
	WriteShift(ch ShiftChannel, data []byte) error

	OpenI2C(addr byte) error
	CloseI2C(addr byte) error
	ReadRegister(addr, reg byte) (byte, error)
	ReadRegisters(addr, reg byte, n int) ([]byte, error)
	WriteRegister(addr, reg, value byte) error
}

var (
	_ Device = (*Bus)(nil)
	_ Device = (*MockBus)(nil)
)
