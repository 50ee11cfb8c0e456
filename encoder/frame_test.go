package encoder

import "testing"

func TestDecodeFrameZeroIsZero(t *testing.T) {
	f, err := decodeFrame(0x80000000, 12, 12)
	if err != nil {
		t.Fatal(err)
	}
	if f.st != 0 || f.turns != 0 {
		t.Errorf("expected st=0 turns=0, got st=%d turns=%d", f.st, f.turns)
	}
}

func TestDecodeFrameRejectsClearSanityBit(t *testing.T) {
	_, err := decodeFrame(0x00000000, 12, 12)
	if err != errFraming {
		t.Errorf("expected errFraming, got %v", err)
	}
}

// TestDecodeFrameSignBitNotGrayDecoded exercises a frame with the
// multi-turn sign bit (raw bit 30) set, derived from
// SsiPosEncoder::readLoop in the original SSI encoder driver: bit 31 is
// the sanity marker, bit 30 is the sign flag, and bit 19 is the lone set
// bit of the masked-and-shifted Gray field, i.e. bit 12 of the
// post-shift "temp" word (for stBits=mtBits=12, shift=31-24=7). Gray
// decoding that field (0b1_0000_0000_0000, 13 bits) yields
// 0b1_1111_1111_1111 = 8191: st = 8191&0xFFF = 4095, magnitude =
// (8191>>12)&0xFFF = 1, and turns = -magnitude-1 = -2 since the sign bit
// is set. A Gray decode that wrongly folds the sign bit into the
// cascade instead yields turns=-2047.
func TestDecodeFrameSignBitNotGrayDecoded(t *testing.T) {
	raw := uint32(0x80000000 | (1 << 30) | (1 << 19))
	f, err := decodeFrame(raw, 12, 12)
	if err != nil {
		t.Fatal(err)
	}
	if f.st != 4095 || f.turns != -2 {
		t.Errorf("expected st=4095 turns=-2, got st=%d turns=%d", f.st, f.turns)
	}
}

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	cases := []struct {
		st    uint32
		turns int64
	}{
		{0, 0},
		{1, 0},
		{4095, 0},
		{16, 0},
		{0, 1},
		{2000, 5},
		{0, -1},
		{100, -2},
		{4095, -1},
	}
	for _, c := range cases {
		raw := encodeFrame(c.st, c.turns, 12, 12)
		f, err := decodeFrame(raw, 12, 12)
		if err != nil {
			t.Fatalf("st=%d turns=%d: unexpected error %v", c.st, c.turns, err)
		}
		if f.st != c.st || f.turns != c.turns {
			t.Errorf("st=%d turns=%d: round trip gave st=%d turns=%d", c.st, c.turns, f.st, f.turns)
		}
	}
}

func TestAbsolutePositionPositiveTurns(t *testing.T) {
	f := frame{st: 1024, turns: 2}
	got := absolutePosition(f, 12)
	want := 2 + 1024.0/4096.0
	if got != want {
		t.Errorf("got %v want %v", got, want)
	}
}

func TestAbsolutePositionNegativeTurns(t *testing.T) {
	f := frame{st: 1024, turns: -1}
	got := absolutePosition(f, 12)
	want := -1 + (1 - 1024.0/4096.0)
	if got != want {
		t.Errorf("got %v want %v", got, want)
	}
}
