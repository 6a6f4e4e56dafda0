// Package writebuf accumulates host-supplied MFM words for a single track
// until the host commits them, producing the job the bridge controller's
// write path consumes.
package writebuf

import (
	"sync"

	"github.com/sergev/floppybridge/cache"
)

// MaxBits mirrors the cache slot capacity: a write can't exceed what a
// read could ever hold, minus headroom for the last partial word.
const MaxBits = cache.MaxTrackBits - 16

// Job is a fully accumulated track ready for the controller: the raw MFM
// bytes, how many of their bits are valid, and whether the write should
// be cued to start at the index pulse.
type Job struct {
	Cylinder     int
	Side         bool
	MfmBytes     []byte
	BitCount     int
	AlignToIndex bool
}

// Buffer accumulates one track's worth of words. It is not safe to share
// across (side, cylinder) pairs; the bridge keeps one per side and lets
// WriteWord reset it on a track change.
type Buffer struct {
	mu sync.Mutex

	active           bool
	cylinder         int
	side             bool
	startBitPosition int
	bits             []byte
	bitCount         int
}

// WriteWord appends one 16-bit MFM word at bitPosition. A word addressed
// to a different (cylinder, side) than the buffer currently holds
// implicitly resets it first, snapshotting bitPosition as the track's
// start_bit_position. Returns false once the track is full; the host
// should stop writing and commit what it has.
func (b *Buffer) WriteWord(side bool, cylinder int, word uint16, bitPosition int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active || b.cylinder != cylinder || b.side != side {
		b.resetLocked()
		b.active = true
		b.cylinder = cylinder
		b.side = side
		b.startBitPosition = bitPosition
	}

	if b.bitCount >= MaxBits {
		return false
	}
	for i := 15; i >= 0 && b.bitCount < MaxBits; i-- {
		b.appendBitLocked(word&(1<<uint(i)) != 0)
	}
	return true
}

func (b *Buffer) appendBitLocked(bit bool) {
	byteIdx := b.bitCount / 8
	if byteIdx == len(b.bits) {
		b.bits = append(b.bits, 0)
	}
	if bit {
		b.bits[byteIdx] |= 1 << uint(7-b.bitCount%8)
	}
	b.bitCount++
}

// Commit closes out the buffer for (side, cylinder) and returns the job
// to enqueue, computing align_to_index from where the accumulation
// started relative to the track's current known length. maxBitPosition
// is the track's max_mfm_bit_position() at commit time. Returns ok=false
// if nothing was ever written for this track.
func (b *Buffer) Commit(side bool, cylinder int, maxBitPosition int) (Job, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active || b.cylinder != cylinder || b.side != side {
		return Job{}, false
	}

	align := b.startBitPosition <= 10 || b.startBitPosition >= maxBitPosition-10
	job := Job{
		Cylinder:     cylinder,
		Side:         side,
		MfmBytes:     append([]byte(nil), b.bits...),
		BitCount:     b.bitCount,
		AlignToIndex: align,
	}
	b.resetLocked()
	return job, true
}

// Len reports the number of bits accumulated so far; it drops to 0 once
// Commit resets the buffer (commit_write's new_len_bits is the committed
// Job's BitCount).
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bitCount
}

func (b *Buffer) resetLocked() {
	b.active = false
	b.bits = b.bits[:0]
	b.bitCount = 0
	b.startBitPosition = 0
}
