// Package cache holds the decoded track data the background reader
// produces and the host consumes: one double-buffered revolution per
// (cylinder, side), each entry promoted from "filling" to "ready" only
// once a full, spliced revolution is in hand.
package cache

import (
	"fmt"
	"sync"

	"github.com/sergev/floppybridge/codec"
	"github.com/sergev/floppybridge/protocol"
)

// MaxTrackBytes bounds a revolution slot; 0x3800 covers the worst-case DD
// revolution with headroom.
const MaxTrackBytes = 0x3800

// MaxTrackBits is the slot capacity in bits.
const MaxTrackBits = MaxTrackBytes * 8

// MinBitsFallback is reported by MaxBitPosition when neither slot is
// ready yet, standing in for "a full, not-yet-measured revolution".
const MinBitsFallback = 97072 // THEORETICAL_MIN * 8, approx.

// Slot is one revolution buffer: a dense run of decoded samples plus how
// many bits of it are valid.
type Slot struct {
	Samples    [MaxTrackBytes]codec.Sample
	BitsFilled int
	Ready      bool
}

func (s *Slot) reset() {
	s.BitsFilled = 0
	s.Ready = false
}

// appendBit appends one decoded MFM channel bit to the slot, packing 8 per
// sample byte (MSB first) and carrying the sample's speed on the byte
// that completes it.
func (s *Slot) appendBit(bit bool, speed uint16) bool {
	if s.BitsFilled >= MaxTrackBits {
		return false
	}
	byteIdx := s.BitsFilled / 8
	bitIdx := uint(7 - s.BitsFilled%8)
	if bit {
		s.Samples[byteIdx].DataBits |= 1 << bitIdx
	} else {
		s.Samples[byteIdx].DataBits &^= 1 << bitIdx
	}
	s.Samples[byteIdx].Speed = speed
	s.BitsFilled++
	return true
}

// Entry is the cache slot pair for one (cylinder, side): the slot the
// host reads from (Current) and the one the background worker is filling
// (Next), plus the fingerprint used to splice the next revolution read.
type Entry struct {
	mu      sync.Mutex
	current Slot
	next    Slot

	startFingerprint []uint8

	available chan struct{}
	lastErr   error
}

func newEntry() *Entry {
	return &Entry{available: make(chan struct{}, 1)}
}

// Cache holds one Entry per (cylinder, side), created lazily.
type Cache struct {
	mu      sync.Mutex
	entries map[key]*Entry
}

type key struct {
	cylinder int
	side     bool
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[key]*Entry)}
}

// Entry returns the entry for (cylinder, side), creating it on first use.
func (c *Cache) Entry(cylinder int, side bool) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{cylinder, side}
	e, ok := c.entries[k]
	if !ok {
		e = newEntry()
		c.entries[k] = e
	}
	return e
}

// Fingerprint returns the fingerprint captured after the last completed
// revolution for this entry, or nil if none has completed yet.
func (e *Entry) Fingerprint() []uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startFingerprint == nil {
		return nil
	}
	out := make([]uint8, len(e.startFingerprint))
	copy(out, e.startFingerprint)
	return out
}

// WriteSymbol appends a decoded symbol's MFM bits (RunLength zero bits
// then the terminating one) to the entry's next slot. It implements
// splicer.SymbolSink. Returns false once the slot overflows, at which
// point the overflow is discarded, the slot is force-marked full, and the
// caller should abort the stream.
func (e *Entry) WriteSymbol(sym codec.Symbol) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := uint8(0); i < sym.RunLength; i++ {
		if !e.next.appendBit(false, sym.Speed) {
			e.next.Ready = true
			e.promoteLocked()
			return false
		}
	}
	if !e.next.appendBit(true, sym.Speed) {
		e.next.Ready = true
		e.promoteLocked()
		return false
	}
	return true
}

// EndRevolution implements splicer.SymbolSink: it marks next ready and,
// if current is not already occupied, promotes it.
func (e *Entry) EndRevolution() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next.Ready = true
	e.promoteLocked()
}

// SwitchBuffer performs the host-driven unconditional promotion
// (mfmSwitchBuffer): if next is ready, it becomes current regardless of
// current's state.
func (e *Entry) SwitchBuffer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.next.Ready {
		return
	}
	e.current = e.next
	e.next.reset()
	e.signalLocked()
}

func (e *Entry) promoteLocked() {
	if e.current.Ready {
		// Both slots ready at once should never happen: the host is
		// expected to drain current (via SwitchBuffer or a fresh
		// InvalidateCurrent) before next fills again. Record it as a
		// diagnostic and proceed without promoting; the worker carries on.
		e.lastErr = fmt.Errorf("%w: promoteLocked called with current already ready", protocol.ErrInternalBug)
		return
	}
	e.current = e.next
	e.next.reset()
	e.signalLocked()
}

// LastError returns and clears the most recent diagnostic recorded by
// promoteLocked's invariant check, or nil if none is pending.
func (e *Entry) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.lastErr
	e.lastErr = nil
	return err
}

func (e *Entry) signalLocked() {
	select {
	case e.available <- struct{}{}:
	default:
	}
}

// Invalidate clears both slots and the buffer-available signal: called when
// the disk is found missing, by the disk-presence poll or by a read stream
// reporting no disk. Writes clear only current, via InvalidateCurrent.
func (e *Entry) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current.reset()
	e.next.reset()
	select {
	case <-e.available:
	default:
	}
}

// InvalidateCurrent clears only the current slot, used after a write to
// this track so the next read re-fetches fresh data.
func (e *Entry) InvalidateCurrent() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current.reset()
}

// NextReady reports whether the next slot already holds a complete
// revolution, the background reader's cue to skip re-reading.
func (e *Entry) NextReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.next.Ready
}

// SetFingerprint records the fingerprint captured while filling next, to
// seed the following read's splicer.
func (e *Entry) SetFingerprint(fp []uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startFingerprint = append(e.startFingerprint[:0], fp...)
}

// MaxBitPosition implements the host's max_mfm_bit_position(): the ready
// current slot's size, or a conservative estimate while only next is
// filling.
func (e *Entry) MaxBitPosition() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current.Ready {
		return e.current.BitsFilled
	}
	if e.next.BitsFilled > MinBitsFallback {
		return e.next.BitsFilled
	}
	return MinBitsFallback
}

// IsAtIndex implements is_mfm_position_at_index(p).
func (e *Entry) IsAtIndex(pos int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current.Ready {
		return pos == 0 || pos == e.current.BitsFilled
	}
	return pos == 0
}

// ReadBit extracts bit `7 - (p mod 8)` of sample byte p/8 from current if
// ready, else from next if it has reached p, else reports ok=false so the
// caller can apply its own wait policy.
func (e *Entry) ReadBit(pos int) (bit bool, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current.Ready {
		if pos < 0 || pos >= e.current.BitsFilled {
			return false, false
		}
		return e.current.Samples[pos/8].DataBits&(1<<uint(7-pos%8)) != 0, true
	}
	if pos < e.next.BitsFilled {
		return e.next.Samples[pos/8].DataBits&(1<<uint(7-pos%8)) != 0, true
	}
	return false, false
}

// ReadSpeed mirrors ReadBit but for the speed field: scale is the
// controller-variant divisor (read_speed's *10/scale), applied here along
// with the 700..3000 clamp; the cache itself stores only the raw sample.
func (e *Entry) ReadSpeed(pos int, scale uint16) (speed uint16, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current.Ready {
		if pos < 0 || pos >= e.current.BitsFilled {
			return 1000, false
		}
		return scaleSpeed(e.current.Samples[pos/8].Speed, scale), true
	}
	if pos < e.next.BitsFilled {
		return scaleSpeed(e.next.Samples[pos/8].Speed, scale), true
	}
	return 1000, false
}

func scaleSpeed(raw uint16, scale uint16) uint16 {
	if scale == 0 {
		scale = 1
	}
	return codec.ClampSpeed(int(raw) * 10 / int(scale))
}

// Available returns the buffer-available channel: receiving on it blocks
// until the next promotion for this entry, auto-clearing per receive.
func (e *Entry) Available() <-chan struct{} {
	return e.available
}
