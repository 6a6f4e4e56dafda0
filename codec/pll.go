package codec

// Software phase-locked loop used for one-shot rotation-speed/bit-rate
// detection from a sample revolution: a phase/period tracking loop
// distinct from the fixed-threshold decoder used on the real-time
// streaming path (see decode.go), which the hardware's own timing budget
// doesn't allow to drift per revolution. The loop itself follows the
// classic SCP flux-PLL shape (phase/period adjustment on every
// transition, re-centering after a run of clocked zeros); what's
// adapted here is the output: instead of handing callers one raw bit at
// a time, NextSymbol packages consecutive clocked zeros into the same
// RunLength-coded Symbol the rest of this package (and the splicer,
// cache, and writebuf downstream of it) already speaks.
const (
	pllMaxAdjPct   = 10 // +/- 10% adjustment range (90%-110% of ideal)
	pllPeriodAdj   = 5  // period adjustment percentage per transition
	pllPhaseAdjPct = 60 // phase adjustment percentage per transition
)

// FluxSource provides flux intervals for the PLL algorithm, in nanoseconds.
// Returns 0 when no more transitions are available.
type FluxSource interface {
	NextFlux() uint64
}

// FluxIterator adapts a slice of absolute transition times (in ns) into a
// FluxSource of intervals.
type FluxIterator struct {
	transitions []uint64
	index       int
	lastTime    uint64
}

// NewFluxIterator builds a FluxIterator over absolute transition times.
func NewFluxIterator(transitions []uint64) *FluxIterator {
	return &FluxIterator{transitions: transitions}
}

// NextFlux implements FluxSource.
func (fi *FluxIterator) NextFlux() uint64 {
	if fi.index >= len(fi.transitions) {
		return 0
	}
	next := fi.transitions[fi.index]
	interval := next - fi.lastTime
	fi.lastTime = next
	fi.index++
	return interval
}

// IsDone reports whether all transitions have been consumed.
func (fi *FluxIterator) IsDone() bool {
	return fi.index >= len(fi.transitions)
}

// pllLoop tracks the running clock period/phase of the software PLL
// between transitions.
type pllLoop struct {
	periodIdeal  float64
	period       float64
	flux         float64
	time         float64
	clockedZeros int
}

func newPLLLoop(bitRateKhz uint16) pllLoop {
	period := 1e6 / float64(bitRateKhz) / 2
	return pllLoop{periodIdeal: period, period: period}
}

// advance pulls flux from source until one bitcell's worth has
// accumulated, then reports whether that cell carried a transition
// ("1") or was a clocked zero ("0"), adjusting period and phase on a
// transition the way a hardware PLL chip re-locks to the data.
func (p *pllLoop) advance(source FluxSource) bool {
	for p.flux < p.period/2 {
		interval := source.NextFlux()
		if interval == 0 {
			p.clockedZeros++
			return false
		}
		p.flux += float64(interval)
	}

	p.time += p.period
	p.flux -= p.period

	if p.flux >= p.period/2 {
		p.clockedZeros++
		return false
	}

	if p.clockedZeros <= 3 {
		p.period += p.flux * pllPeriodAdj / 100
	} else {
		p.period += (p.periodIdeal - p.period) * pllPeriodAdj / 100
	}

	pMin := p.periodIdeal * (100 - pllMaxAdjPct) / 100
	if p.period < pMin {
		p.period = pMin
	}
	pMax := p.periodIdeal * (100 + pllMaxAdjPct) / 100
	if p.period > pMax {
		p.period = pMax
	}

	newFlux := p.flux * (100 - pllPhaseAdjPct) / 100
	p.time += p.flux - newFlux
	p.flux = newFlux

	p.clockedZeros = 0
	return true
}

// RevolutionDecoder decodes a whole sample revolution's absolute flux
// transitions into the same Symbol stream the real-time FluxDecoder
// produces, for one-shot bit-rate/rotation-speed measurement (see
// protocol/variantf.DetectRotation) rather than live streaming.
type RevolutionDecoder struct {
	pll    pllLoop
	source *FluxIterator
}

// NewDecoder builds a RevolutionDecoder over absolute transition times
// (ns) sampled around a nominal bit rate.
func NewDecoder(transitions []uint64, bitRateKhz uint16) *RevolutionDecoder {
	return &RevolutionDecoder{pll: newPLLLoop(bitRateKhz), source: NewFluxIterator(transitions)}
}

// NextSymbol decodes the next Symbol: zero or more clocked zeros
// (RunLength, capped at 3 like the real-time decoder) followed by the
// transition that ends the run. ok is false once the flux source is
// exhausted before a transition is found.
func (d *RevolutionDecoder) NextSymbol() (sym Symbol, ok bool) {
	var run uint8
	for {
		if d.source.IsDone() {
			return Symbol{}, false
		}
		if d.pll.advance(d.source) {
			return Symbol{RunLength: run}, true
		}
		if run < 3 {
			run++
		}
	}
}

// IsDone reports whether the underlying flux source is exhausted.
func (d *RevolutionDecoder) IsDone() bool {
	return d.source.IsDone()
}
