package codec

import "testing"

func TestClampSpeed(t *testing.T) {
	cases := []struct {
		in   int
		want uint16
	}{
		{in: 0, want: 700},
		{in: 699, want: 700},
		{in: 700, want: 700},
		{in: 1500, want: 1500},
		{in: 3000, want: 3000},
		{in: 4000, want: 3000},
	}
	for _, c := range cases {
		if got := ClampSpeed(c.in); got != c.want {
			t.Errorf("ClampSpeed(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestFluxDecoderAddTick(t *testing.T) {
	var d FluxDecoder

	if _, ok := d.AddTick(1000); ok {
		t.Fatalf("AddTick(1000) should not yet emit a symbol")
	}

	sym, ok := d.AddTick(1200)
	if !ok {
		t.Fatalf("AddTick should emit once accumulator exceeds NominalBitcellNs")
	}
	if sym.RunLength != 0 {
		t.Errorf("RunLength = %d, want 0 for a ~1-bitcell interval", sym.RunLength)
	}

	d.Reset()
	d.MarkIndex()
	sym, ok = d.AddTick(2 * NominalBitcellNs)
	if !ok {
		t.Fatalf("expected a symbol after feeding two bitcells")
	}
	if !sym.AtIndex {
		t.Errorf("expected AtIndex to be set after MarkIndex")
	}
	if sym.RunLength != 1 {
		t.Errorf("RunLength = %d, want 1 for a 2-bitcell interval", sym.RunLength)
	}
}

func TestFluxDecoderRunLengthClamped(t *testing.T) {
	var d FluxDecoder
	sym, ok := d.AddTick(10 * NominalBitcellNs)
	if !ok {
		t.Fatalf("expected a symbol")
	}
	if sym.RunLength != 3 {
		t.Errorf("RunLength = %d, want clamped to 3", sym.RunLength)
	}
}

func TestDecodeVariantVByte(t *testing.T) {
	// bit7=1 (index), bits5-6=01 (first run=1), bits3-4=10 (second run=2),
	// bits0-2=100 (speed code 4 -> 4*16=64, stored raw/unscaled).
	b := byte(0b1_01_10_100)
	first, second := DecodeVariantVByte(b)

	if !first.AtIndex {
		t.Errorf("expected first.AtIndex to be set")
	}
	if first.RunLength != 1 {
		t.Errorf("first.RunLength = %d, want 1", first.RunLength)
	}
	if second.RunLength != 2 {
		t.Errorf("second.RunLength = %d, want 2", second.RunLength)
	}
	if second.AtIndex {
		t.Errorf("second.AtIndex should never be set")
	}
	if first.Speed != second.Speed {
		t.Errorf("both halves should share the same speed code")
	}
	if first.Speed != 64 {
		t.Errorf("Speed = %d, want 64 (raw, unscaled by read_speed's clamp/scale)", first.Speed)
	}
}

func TestPackSample(t *testing.T) {
	bits := [8]bool{true, false, true, false, false, false, false, true}
	s := PackSample(bits, 900)
	if s.DataBits != 0b10100001 {
		t.Errorf("DataBits = %08b, want %08b", s.DataBits, byte(0b10100001))
	}
	if s.Speed != 900 {
		t.Errorf("Speed = %d, want 900", s.Speed)
	}
}

func TestEncodeProducesRunsCoveringAllOneBits(t *testing.T) {
	// 0x0F 0x06 = 0000 1111  0000 0110 -> ones at bit positions 4,5,6,7,13,14
	bits := []byte{0x0f, 0x06}
	runs := Encode(bits, 16, false, 0)
	if len(runs) == 0 {
		t.Fatalf("expected at least one run")
	}
	// One run per one bit: 6 data ones plus 4 in each 8-bit alternating pad.
	if len(runs) != 14 {
		t.Errorf("len(runs) = %d, want 14 (one run per one bit, padding included)", len(runs))
	}
	for _, r := range runs {
		if r.Cells < 2 || r.Cells > 5 {
			t.Errorf("run cell count %d out of clamped range [2,5]", r.Cells)
		}
		if r.Precomp != PrecompNone {
			t.Errorf("precomp disabled but run has direction %v", r.Precomp)
		}
	}
}

func TestEncodePrecompOnlyAboveStartCylinder(t *testing.T) {
	bits := []byte{0xff, 0xff}
	below := Encode(bits, 16, true, PrecompStartCylinder-1)
	above := Encode(bits, 16, true, PrecompStartCylinder)

	for _, r := range below {
		if r.Precomp != PrecompNone {
			t.Errorf("cylinder below threshold must not apply precomp, got %v", r.Precomp)
		}
	}

	sawPrecomp := false
	for _, r := range above {
		if r.Precomp != PrecompNone {
			sawPrecomp = true
		}
	}
	if !sawPrecomp {
		t.Errorf("expected at least one run with precomp applied at/above cylinder %d", PrecompStartCylinder)
	}
}

func TestRunTimesNsAppliesDeltaAndCarry(t *testing.T) {
	runs := []EncodedRun{
		{Cells: 3, Precomp: PrecompEarly},
		{Cells: 4, Precomp: PrecompNone},
	}
	times := RunTimesNs(runs)
	if len(times) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(times))
	}

	wantFirst := int64(3)*NominalBitcellNs - 140
	if times[0] != wantFirst {
		t.Errorf("times[0] = %d, want %d", times[0], wantFirst)
	}

	wantSecond := int64(4)*NominalBitcellNs + 140
	if times[1] != wantSecond {
		t.Errorf("times[1] = %d, want %d (carried compensation from previous run)", times[1], wantSecond)
	}
}

func TestPLLDecoderTracksNominalBitRate(t *testing.T) {
	const bitRateKhz = 500
	periodNs := uint64(1e6 / bitRateKhz / 2)

	// Alternate ones and zeros: a "1" every other cell, producing transitions
	// spaced two periods apart.
	var transitions []uint64
	var acc uint64
	for i := 0; i < 40; i++ {
		acc += 2 * periodNs
		transitions = append(transitions, acc)
	}

	d := NewDecoder(transitions, bitRateKhz)
	symbols := 0
	totalCells := 0
	for {
		sym, ok := d.NextSymbol()
		if !ok {
			break
		}
		symbols++
		totalCells += int(sym.RunLength) + 1
	}
	if symbols == 0 {
		t.Errorf("expected the PLL to decode at least one symbol")
	}
	if totalCells == 0 {
		t.Errorf("expected decoded symbols to cover a nonzero number of bitcells")
	}
}

func TestFluxIteratorIsDone(t *testing.T) {
	fi := NewFluxIterator([]uint64{1000, 3000, 6000})
	if fi.IsDone() {
		t.Fatalf("fresh iterator should not be done")
	}
	for i := 0; i < 3; i++ {
		if fi.NextFlux() == 0 {
			t.Errorf("unexpected zero interval at step %d", i)
		}
	}
	if !fi.IsDone() {
		t.Errorf("iterator should be done after consuming all transitions")
	}
	if fi.NextFlux() != 0 {
		t.Errorf("exhausted iterator should return 0")
	}
}
