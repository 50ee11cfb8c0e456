package gpioif

// The daemon wire format is a minimal tagged-command protocol: one opcode
// byte followed by a small fixed-size argument block. The exact encoding
// is an implementation detail of the daemon side; Bus only needs to be
// internally consistent, since the daemon is out of scope for this
// module (see SPEC_FULL.md, ambient stack).
const (
	opSetDirection byte = iota
	opSetPull
	opSetLevel
	opReadLevel
	opConfigurePWM
	opHardwarePWM
	opSoftwarePWM
	opOpenShift
	opCloseShift
	opOpenI2C
	opCloseI2C
	opReadRegisters
	opWriteRegister
)

func encodeSetDirection(p Pin, dir Direction) []byte {
	return []byte{opSetDirection, byte(p), byte(dir)}
}

func encodeSetPull(p Pin, pull Pull) []byte {
	return []byte{opSetPull, byte(p), byte(pull)}
}

func encodeSetLevel(p Pin, lvl Level) []byte {
	v := byte(0)
	if lvl == High {
		v = 1
	}
	return []byte{opSetLevel, byte(p), v}
}

func encodeReadLevel(p Pin) []byte {
	return []byte{opReadLevel, byte(p)}
}

func encodeConfigurePWM(p Pin, frequency, rangeMax int) []byte {
	b := []byte{opConfigurePWM, byte(p)}
	b = append(b, be32(frequency)...)
	b = append(b, be32(rangeMax)...)
	return b
}

func encodeHardwarePWM(p Pin, frequency, value int) []byte {
	b := []byte{opHardwarePWM, byte(p)}
	b = append(b, be32(frequency)...)
	return append(b, be32(value)...)
}

func encodeSoftwarePWM(p Pin, value int) []byte {
	b := []byte{opSoftwarePWM, byte(p)}
	return append(b, be32(value)...)
}

func encodeOpenShift(cfg ShiftConfig) []byte {
	lsb := byte(0)
	if cfg.LSBFirst {
		lsb = 1
	}
	b := []byte{opOpenShift, byte(cfg.Channel), byte(cfg.Mode), lsb}
	return append(b, be32(cfg.BaudHz)...)
}

func encodeCloseShift(ch ShiftChannel) []byte {
	return []byte{opCloseShift, byte(ch)}
}

func encodeOpenI2C(addr byte) []byte {
	return []byte{opOpenI2C, addr}
}

func encodeCloseI2C(addr byte) []byte {
	return []byte{opCloseI2C, addr}
}

func encodeReadRegisters(addr, reg byte, n int) []byte {
	b := []byte{opReadRegisters, addr, reg}
	return append(b, be32(n)...)
}

func encodeWriteRegister(addr, reg, value byte) []byte {
	return []byte{opWriteRegister, addr, reg, value}
}

func be32(v int) []byte {
	u := uint32(v)
	return []byte{byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}
}
