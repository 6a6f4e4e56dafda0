package variantf

import (
	"errors"
	"testing"

	"github.com/sergev/floppybridge/protocol"
)

func TestAckErrorMapsKnownCodes(t *testing.T) {
	cases := []struct {
		code byte
		want error
	}{
		{ackOkay, nil},
		{ackBadCommand, protocol.ErrBadCommand},
		{ackNoIndex, protocol.ErrNoDiskInDrive},
		{ackNoTrk0, protocol.ErrTrack0NotFound},
		{ackFluxOverflow, protocol.ErrSerialOverrun},
		{ackFluxUnderflow, protocol.ErrSerialUnderflow},
		{ackWrprot, protocol.ErrWriteProtected},
		{ackNoUnit, protocol.ErrSelectTrackError},
		{ackNoBus, protocol.ErrSelectTrackError},
		{ackBadUnit, protocol.ErrBadParameter},
		{ackBadPin, protocol.ErrBadParameter},
		{ackBadCylinder, protocol.ErrTrackRangeError},
	}
	for _, c := range cases {
		err := ackError(c.code)
		if c.want == nil {
			if err != nil {
				t.Errorf("ackError(%d) = %v, want nil", c.code, err)
			}
			continue
		}
		if !errors.Is(err, c.want) {
			t.Errorf("ackError(%d) = %v, want wrapping %v", c.code, err, c.want)
		}
	}
}

func TestAckErrorUnknownCode(t *testing.T) {
	err := ackError(0xFE)
	if !errors.Is(err, protocol.ErrStatusError) {
		t.Errorf("ackError(unknown) = %v, want wrapping ErrStatusError", err)
	}
}

func TestEncodeN28RoundTrip(t *testing.T) {
	decode := func(b []byte) uint32 {
		return ((uint32(b[0]) & 0xfe) >> 1) |
			((uint32(b[1]) & 0xfe) << 6) |
			((uint32(b[2]) & 0xfe) << 13) |
			((uint32(b[3]) & 0xfe) << 20)
	}

	for _, v := range []uint32{0, 1, 127, 128, 1 << 20, 0x0FFFFFFF} {
		enc := encodeN28(v)
		if len(enc) != 4 {
			t.Fatalf("encodeN28(%d) returned %d bytes, want 4", v, len(enc))
		}
		for _, b := range enc {
			if b&1 == 0 {
				t.Errorf("encodeN28(%d) byte %08b has clear low bit, want framing bit set", v, b)
			}
		}
		if got := decode(enc); got != v {
			t.Errorf("round-trip of %d produced %d", v, got)
		}
	}
}

func TestEncodeFluxStreamTerminatesAndEncodesShortTicks(t *testing.T) {
	c := &Client{firmware: FirmwareInfo{SampleFreqHz: 1_000_000}} // 1 tick == 1us == 1000ns
	out := c.encodeFluxStream([]int64{500, 2000})
	if len(out) == 0 || out[len(out)-1] != 0 {
		t.Fatalf("encodeFluxStream output must be zero-terminated, got %v", out)
	}
	if out[0] != 1 {
		t.Errorf("a sub-tick interval should round up to one tick, got %d", out[0])
	}
}

func TestEncodeFluxStreamLongInterval(t *testing.T) {
	c := &Client{firmware: FirmwareInfo{SampleFreqHz: 1_000_000}}
	out := c.encodeFluxStream([]int64{2_000_000}) // 2ms -> 2000 ticks, needs the N28 escape
	if len(out) < 2 || out[0] != 0xFF || out[1] != fluxopSpace {
		t.Errorf("long interval should use the 0xFF/fluxopSpace escape, got %v", out)
	}
}
