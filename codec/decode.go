package codec

import "fmt"

// DebugFlag gates trace output for the bit-cell accounting below. Enable
// for debug.
const DebugFlag = false

// FluxDecoder is the real-time, fixed-threshold flux-to-symbol decoder
// used on the hot streaming path (Variant F). Unlike the adaptive PLL in
// pll.go, it never drifts the bitcell period: the hardware's own timing
// budget doesn't allow per-revolution phase tracking while also meeting
// the host's latency ceiling, so the accumulator simply measures how many
// nominal bitcells elapsed since the last transition.
type FluxDecoder struct {
	accumulatorNs int64
	indexPending  bool
}

// Reset clears accumulated time; called at the start of every read stream,
// never carried across streams.
func (d *FluxDecoder) Reset() {
	d.accumulatorNs = 0
	d.indexPending = false
}

// MarkIndex records that an index pulse was observed; it is attached to
// the next symbol this decoder emits.
func (d *FluxDecoder) MarkIndex() {
	d.indexPending = true
}

// AddTick feeds one flux interval (nanoseconds since the previous
// transition) into the accumulator. It returns a decoded Symbol and
// ok=true once enough time has accumulated for a bitcell; otherwise it
// keeps accumulating and returns ok=false.
func (d *FluxDecoder) AddTick(intervalNs int64) (sym Symbol, ok bool) {
	d.accumulatorNs += intervalNs
	if d.accumulatorNs <= NominalBitcellNs {
		return Symbol{}, false
	}

	run := (d.accumulatorNs - NominalBitcellNs/2) / NominalBitcellNs
	if run < 0 {
		run = 0
	}
	if run > 3 {
		run = 3
	}

	// Raw, unscaled percent-of-nominal (~100 = nominal bitcell period).
	// read_speed applies the *10/scale conversion and the 700..3000 clamp;
	// this layer just measures and stores.
	speed := uint16(d.accumulatorNs * 100 / ((run + 2) * NominalBitcellNs))

	sym = Symbol{
		RunLength: uint8(run),
		Speed:     speed,
		AtIndex:   d.indexPending,
	}
	if DebugFlag {
		fmt.Printf("flux %dns -> run=%d speed=%d index=%v\n", d.accumulatorNs, sym.RunLength, sym.Speed, sym.AtIndex)
	}
	d.indexPending = false
	d.accumulatorNs = 0
	return sym, true
}

// DecodeVariantVByte splits a Variant V wire byte into its two half-cell
// symbols, per the framing in the protocol/variantv package: bits 5-6 of
// the first half and bits 3-4 of the second half each carry a 2-bit
// run-length code, bit 7 flags an index marker on the first half, and
// bits 0-2 give a 3-bit coarse read speed common to both halves (scaled
// x16).
func DecodeVariantVByte(b byte) (first, second Symbol) {
	atIndex := b&0x80 != 0
	// Raw, unscaled percent-of-nominal; read_speed applies the scaling/clamp.
	speed := uint16(b&0x07) * 16

	first = Symbol{
		RunLength: (b >> 5) & 0x03,
		Speed:     speed,
		AtIndex:   atIndex,
	}
	second = Symbol{
		RunLength: (b >> 3) & 0x03,
		Speed:     speed,
	}
	return first, second
}

// PackSample folds eight MFM channel bits (MSB first) into a Sample, using
// the speed of the last bit written into that byte as the byte's speed
// measurement (matching how the hardware samples one speed value per
// readout byte).
func PackSample(bits [8]bool, speed uint16) Sample {
	var s Sample
	for i, b := range bits {
		if b {
			s.DataBits |= 1 << (7 - uint(i))
		}
	}
	s.Speed = speed
	return s
}
