// Package bridge implements the single background worker that owns the
// hardware controller: it drains a host command queue, runs the
// background read pump, simulates motor spin-up, polls disk presence,
// flushes pending writes, and exposes the synchronous bit-level read API
// the host calls from its own goroutine.
package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/sergev/floppybridge/cache"
	"github.com/sergev/floppybridge/protocol"
	"github.com/sergev/floppybridge/writebuf"
)

// writeJob is the internal FIFO entry produced by a committed writebuf.Job.
type writeJob = writebuf.Job

// Bridge owns one hardware controller and the cache it fills.
type Bridge struct {
	ctrl  protocol.Controller
	cache *cache.Cache
	queue *commandQueue

	writeMu   sync.Mutex
	writeJobs []writeJob
	buffers   [2]writebuf.Buffer

	done chan struct{}

	mu sync.Mutex // guards everything below, worker-owned but host-readable

	comport          string
	firmwareVersion  string
	hasFastDiskCheck bool
	speedScale       uint16

	motor            motorState
	motorSpinStartTs time.Time

	diskPresent    bool
	writeProtected bool

	logicalCylinder  int
	logicalSide      bool
	physicalCylinder int
	physicalSide     bool

	lastStepTs         time.Time
	lastDiskCheckTs     time.Time
	streamingPausedUntil time.Time

	lastError error
}

// New creates a bridge over an unopened controller and a fresh cache.
func New(ctrl protocol.Controller) *Bridge {
	return &Bridge{
		ctrl:  ctrl,
		cache: cache.New(),
		queue: newCommandQueue(),
		done:  make(chan struct{}),
	}
}

// Initialise opens the port and starts the background worker.
func (b *Bridge) Initialise(port string) bool {
	info, err := b.ctrl.Open(port)
	if err != nil {
		b.setError(fmt.Errorf("initialise: %w", err))
		return false
	}

	scale := info.SpeedScale
	if scale == 0 {
		scale = 1
	}

	b.mu.Lock()
	b.comport = port
	b.firmwareVersion = info.FirmwareVersion
	b.hasFastDiskCheck = info.HasFastDiskCheck
	b.speedScale = scale
	b.mu.Unlock()

	go b.run()
	return true
}

// Terminate stops the worker and closes the port.
func (b *Bridge) Terminate() {
	b.queue.push(command{kind: cmdTerminate})
	<-b.done
}

// ResetDrive drops pending writes, turns the motor off, and records
// cylinder as the logical cylinder, for the host's reset_drive(cyl). Cached
// track data is left in place, and no seek is queued.
func (b *Bridge) ResetDrive(cylinder int) {
	b.writeMu.Lock()
	b.writeJobs = nil
	b.writeMu.Unlock()

	b.SetMotor(false)

	b.mu.Lock()
	b.logicalCylinder = cylinder
	b.mu.Unlock()
}

// IsAtCylinder0 reports whether the logical cylinder is 0.
func (b *Bridge) IsAtCylinder0() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logicalCylinder == 0
}

// CurrentCylinder returns the logical cylinder last requested.
func (b *Bridge) CurrentCylinder() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logicalCylinder
}

// MaxCylinder returns the cylinder limit reported to the host.
func (b *Bridge) MaxCylinder() int { return MaxCylinder }

// GotoCylinder requests a seek; non-blocking, coalesces with a pending
// GotoCylinder still at the tail of the queue (a different command queued
// after it prevents coalescing).
func (b *Bridge) GotoCylinder(cylinder int, side bool) {
	b.mu.Lock()
	b.logicalCylinder = cylinder
	b.logicalSide = side
	b.mu.Unlock()

	b.queue.push(command{kind: cmdGotoCylinder, cylinder: cylinder})
	b.queue.push(command{kind: cmdSelectSide, side: side})
}

// SetMotor turns the motor on or off.
func (b *Bridge) SetMotor(on bool) {
	if on {
		b.queue.push(command{kind: cmdMotorOn})
	} else {
		b.queue.push(command{kind: cmdMotorOff})
	}
}

// IsMotorRunning reports whether the motor has been commanded on.
func (b *Bridge) IsMotorRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.motor != motorOff
}

// IsReady reports whether the motor has completed its spin-up.
func (b *Bridge) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.motor == motorReady
}

// IsDiskInDrive reports the last-observed disk presence.
func (b *Bridge) IsDiskInDrive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.diskPresent
}

// IsWriteProtected reports the last-observed write-protect sense.
func (b *Bridge) IsWriteProtected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeProtected
}

// DriveTypeID reports the fixed drive type this bridge addresses.
func (b *Bridge) DriveTypeID() string { return "DD_3.5\"" }

// BitcellUs reports the nominal bitcell period in microseconds.
func (b *Bridge) BitcellUs() int { return 2 }

// Controller exposes the underlying protocol.Controller for callers that
// need variant-specific functionality the host API doesn't cover, e.g.
// hardware diagnostics.
func (b *Bridge) Controller() protocol.Controller {
	return b.ctrl
}

// LastError returns the most recent error surfaced by the worker, or nil.
func (b *Bridge) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastError
}

func (b *Bridge) setError(err error) {
	b.mu.Lock()
	b.lastError = err
	b.mu.Unlock()
}

func (b *Bridge) entry() *cache.Entry {
	b.mu.Lock()
	c, s := b.physicalCylinder, b.physicalSide
	b.mu.Unlock()
	return b.cache.Entry(c, s)
}

// MaxMfmBitPosition implements the host's max_mfm_bit_position().
func (b *Bridge) MaxMfmBitPosition() int {
	return b.entry().MaxBitPosition()
}

// IsMfmPositionAtIndex implements is_mfm_position_at_index(bit).
func (b *Bridge) IsMfmPositionAtIndex(pos int) bool {
	return b.entry().IsAtIndex(pos)
}

// SwitchBuffer implements the host-driven mfmSwitchBuffer(side).
func (b *Bridge) SwitchBuffer(side bool) {
	b.mu.Lock()
	cylinder := b.physicalCylinder
	b.mu.Unlock()
	b.cache.Entry(cylinder, side).SwitchBuffer()
}

// ReadBit implements read_bit(bit): returns 0 while the disk is absent,
// the motor isn't ready, or a seek just happened; otherwise serves from
// the cache, polling up to readBitPollTotal for the first revolution of a
// freshly seeked track.
func (b *Bridge) ReadBit(pos int) bool {
	if !b.readGateOpen() {
		return false
	}
	e := b.entry()

	if bit, ok := e.ReadBit(pos); ok {
		return bit
	}

	deadline := time.Now().Add(readBitPollTotal)
	for time.Now().Before(deadline) {
		select {
		case <-e.Available():
		case <-time.After(readBitPollStep):
		}
		if bit, ok := e.ReadBit(pos); ok {
			return bit
		}
	}
	return false
}

// ReadSpeed implements read_speed(bit), mirroring ReadBit's wait policy.
func (b *Bridge) ReadSpeed(pos int) uint16 {
	if !b.readGateOpen() {
		return 1000
	}
	e := b.entry()

	b.mu.Lock()
	scale := b.speedScale
	b.mu.Unlock()

	if speed, ok := e.ReadSpeed(pos, scale); ok {
		return speed
	}

	deadline := time.Now().Add(readBitPollTotal)
	for time.Now().Before(deadline) {
		select {
		case <-e.Available():
		case <-time.After(readBitPollStep):
		}
		if speed, ok := e.ReadSpeed(pos, scale); ok {
			return speed
		}
	}
	return 1000
}

func (b *Bridge) readGateOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.diskPresent || b.motor != motorReady {
		return false
	}
	return time.Since(b.lastStepTs) >= stepGraceWindow
}

// WriteWord implements write_word(side, cyl, word, bit_position).
func (b *Bridge) WriteWord(side bool, cylinder int, word uint16, bitPosition int) bool {
	return b.buffers[sideIndex(side)].WriteWord(side, cylinder, word, bitPosition)
}

// CommitWrite implements commit_write(side, cyl), returning the new
// length in bits.
func (b *Bridge) CommitWrite(side bool, cylinder int) int {
	e := b.cache.Entry(cylinder, side)
	maxBits := e.MaxBitPosition()

	job, ok := b.buffers[sideIndex(side)].Commit(side, cylinder, maxBits)
	if !ok {
		return 0
	}

	b.writeMu.Lock()
	b.writeJobs = append(b.writeJobs, job)
	b.writeMu.Unlock()

	e.InvalidateCurrent()
	b.queue.push(command{kind: cmdWriteTrack})
	return job.BitCount
}

func sideIndex(side bool) int {
	if side {
		return 1
	}
	return 0
}
