package encoder

import "fmt"

// frame is a decoded 32-bit absolute-encoder readout (see spec.md section
// 3, "Encoder frame").
type frame struct {
	st    uint32 // single-turn position, 0..2^stBits-1
	turns int64  // signed multi-turn count
}

// decodeFrame parses a raw 32-bit, MSB-first frame using the configured
// single-turn/multi-turn bit widths. Bit 31 must be 1 (the sanity
// marker); a zero there is reported as errFraming so callers count it as
// a bit error without touching any published state.
func decodeFrame(raw uint32, stBits, mtBits uint) (frame, error) {
	if raw&(1<<31) == 0 {
		return frame{}, errFraming
	}
	width := stBits + mtBits
	if width > 31 {
		return frame{}, fmt.Errorf("encoder: stBits+mtBits (%d) must be <= 31", width)
	}
	shift := 31 - width

	// Bit 30, immediately below the sanity marker, is the multi-turn
	// sign flag and is transmitted raw, not Gray-coded: Gray decoding
	// back-propagates a set MSB through every lower bit via XOR, so
	// folding the sign bit into the cascade corrupts both the mt
	// magnitude and the st field on every negative reading. Mask it out
	// before the Gray decode and read it directly off raw, matching
	// SsiPosEncoder::readLoop.
	signBit := (raw >> 30) & 1

	mask := uint32(1)<<(width-1) - 1
	combined := (raw >> shift) & mask
	decoded := grayDecode(combined)

	stMask := uint32(1)<<stBits - 1
	mtMask := uint32(1)<<mtBits - 1

	st := decoded & stMask
	magnitude := (decoded >> stBits) & mtMask

	// Negative turns are offset by one (-magnitude-1) so the
	// magnitude-zero code point is only ever used on the positive/zero
	// side, distinguishing +0 from -0 rotations.
	var turns int64
	if signBit == 1 {
		turns = -int64(magnitude) - 1
	} else {
		turns = int64(magnitude)
	}
	return frame{st: st, turns: turns}, nil
}

// encodeFrame builds a raw 32-bit frame from a desired (st, turns) pair;
// it is decodeFrame's exact inverse and is used by tests to construct
// fixtures without hand-computing Gray codes.
func encodeFrame(st uint32, turns int64, stBits, mtBits uint) uint32 {
	var magnitude, signBit uint32
	if turns < 0 {
		magnitude = uint32(-turns - 1)
		signBit = 1
	} else {
		magnitude = uint32(turns)
	}
	width := stBits + mtBits
	combined := (magnitude << stBits) | (st & (uint32(1)<<stBits - 1))
	gray := grayEncode(combined)
	shift := 31 - width
	return (1 << 31) | (signBit << 30) | (gray << shift)
}

// absolutePosition returns turns + st/2^stBits revolutions, inverting the
// negative-turn offset applied in decodeFrame: for turns < 0 the
// fractional part is 1 - st/2^stBits rather than st/2^stBits, since the
// encoding counts down through the single-turn field on the negative
// side.
func absolutePosition(f frame, stBits uint) float64 {
	frac := float64(f.st) / float64(uint32(1)<<stBits)
	if f.turns < 0 {
		return float64(f.turns) + (1 - frac)
	}
	return float64(f.turns) + frac
}
