package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/sergev/floppybridge/codec"
	"github.com/sergev/floppybridge/protocol"
	"github.com/sergev/floppybridge/splicer"
)

// DebugFlag gates trace output for command dispatch. Enable for debug.
const DebugFlag = false

// run is the single background worker loop: wait for a command or a
// timeout, and on timeout drive the background read pump, disk-presence
// poll, and motor spin-up timer.
func (b *Bridge) run() {
	defer close(b.done)
	defer b.ctrl.Close()

	for {
		wait := b.idleTimeout()
		select {
		case <-b.queue.wake:
			cmds := b.queue.drain()
			terminated := false
			for _, c := range cmds {
				if c.kind == cmdTerminate {
					terminated = true
					break
				}
				b.dispatch(c)
			}
			if terminated {
				return
			}
		case <-time.After(wait):
			b.onIdleTimeout()
		}
	}
}

func (b *Bridge) idleTimeout() time.Duration {
	b.mu.Lock()
	ready := b.motor == motorReady
	b.mu.Unlock()
	if ready {
		return idleWaitReady
	}
	return idleWaitNotReady
}

func (b *Bridge) onIdleTimeout() {
	b.mu.Lock()
	ready := b.motor == motorReady
	paused := time.Now().Before(b.streamingPausedUntil)
	spinningUp := b.motor == motorSpinningUp
	spinElapsed := time.Since(b.motorSpinStartTs)
	b.mu.Unlock()

	if ready && !paused {
		b.backgroundRead()
	}
	b.maybeCheckDisk()

	if spinningUp && spinElapsed > spinupDuration {
		b.mu.Lock()
		b.motor = motorReady
		b.lastStepTs = time.Now()
		b.mu.Unlock()
	}
}

func (b *Bridge) dispatch(c command) {
	if DebugFlag {
		fmt.Printf("bridge: dispatch kind=%d cylinder=%d side=%v\n", c.kind, c.cylinder, c.side)
	}
	switch c.kind {
	case cmdMotorOn:
		b.mu.Lock()
		alreadyOn := b.motor != motorOff
		b.mu.Unlock()
		if alreadyOn {
			break
		}
		if err := b.ctrl.EnableMotor(true, true); err != nil {
			b.setError(fmt.Errorf("enable motor: %w", err))
		}
		b.mu.Lock()
		b.motor = motorSpinningUp
		b.motorSpinStartTs = time.Now()
		b.mu.Unlock()

	case cmdMotorOff:
		b.mu.Lock()
		alreadyOff := b.motor == motorOff
		b.mu.Unlock()
		if alreadyOff {
			break
		}
		if err := b.ctrl.EnableMotor(false, false); err != nil {
			b.setError(fmt.Errorf("disable motor: %w", err))
		}
		b.mu.Lock()
		b.motor = motorOff
		b.mu.Unlock()

	case cmdGotoCylinder:
		b.mu.Lock()
		b.lastStepTs = time.Now()
		b.mu.Unlock()

		status, err := b.ctrl.SelectTrack(c.cylinder, protocol.SeekNormal, false)
		if err != nil {
			b.setError(fmt.Errorf("select track %d: %w", c.cylinder, err))
		} else {
			b.mu.Lock()
			b.diskPresent = status.DiskPresent
			b.writeProtected = status.WriteProtected
			b.mu.Unlock()
		}
		b.mu.Lock()
		b.physicalCylinder = c.cylinder
		b.mu.Unlock()

	case cmdSelectSide:
		b.mu.Lock()
		b.lastStepTs = time.Now()
		b.mu.Unlock()

		if err := b.ctrl.SelectSurface(c.side); err != nil {
			b.setError(fmt.Errorf("select surface: %w", err))
		}
		b.mu.Lock()
		b.physicalSide = c.side
		b.mu.Unlock()

	case cmdWriteTrack:
		b.dispatchWriteTrack()
	}
}

func (b *Bridge) dispatchWriteTrack() {
	b.writeMu.Lock()
	if len(b.writeJobs) == 0 {
		b.writeMu.Unlock()
		return
	}
	job := b.writeJobs[0]
	b.writeJobs = b.writeJobs[1:]
	b.writeMu.Unlock()

	b.mu.Lock()
	needSeek := b.physicalCylinder != job.Cylinder
	needSide := b.physicalSide != job.Side
	b.mu.Unlock()

	if needSeek {
		if _, err := b.ctrl.SelectTrack(job.Cylinder, protocol.SeekFast, true); err != nil {
			b.setError(fmt.Errorf("write: select track %d: %w", job.Cylinder, err))
			return
		}
		b.mu.Lock()
		b.physicalCylinder = job.Cylinder
		b.mu.Unlock()
	}
	if needSide {
		if err := b.ctrl.SelectSurface(job.Side); err != nil {
			b.setError(fmt.Errorf("write: select surface: %w", err))
			return
		}
		b.mu.Lock()
		b.physicalSide = job.Side
		b.mu.Unlock()
	}

	precomp := job.Cylinder >= codec.PrecompStartCylinder
	if _, err := b.ctrl.WriteTrack(job.MfmBytes, job.BitCount, job.AlignToIndex, precomp); err != nil {
		b.setError(fmt.Errorf("write track %d: %w", job.Cylinder, err))
	}

	b.cache.Entry(job.Cylinder, job.Side).InvalidateCurrent()
	b.mu.Lock()
	b.streamingPausedUntil = time.Time{}
	b.mu.Unlock()
}

// backgroundRead fills the next slot of the entry addressed by the
// current physical position, unless it's already full.
func (b *Bridge) backgroundRead() {
	b.mu.Lock()
	cylinder, side := b.physicalCylinder, b.physicalSide
	b.mu.Unlock()

	entry := b.cache.Entry(cylinder, side)
	if entry.NextReady() {
		return
	}

	sp := splicer.New(entry, entry.Fingerprint())
	writer := func(sym codec.Symbol) bool {
		if !b.queue.empty() {
			return false
		}
		return sp.Feed(sym)
	}

	status, err := b.ctrl.ReadStream(streamChunkBits, 1, entry.Fingerprint(), writer)
	if fp := sp.Fingerprint(); fp != nil {
		entry.SetFingerprint(fp)
	}
	if diagErr := entry.LastError(); diagErr != nil {
		b.setError(diagErr)
	}

	if err != nil {
		if errors.Is(err, protocol.ErrNoDiskInDrive) {
			b.mu.Lock()
			b.diskPresent = false
			b.mu.Unlock()
			entry.Invalidate()
			return
		}
		b.setError(fmt.Errorf("background read: %w", err))
		return
	}

	b.mu.Lock()
	b.diskPresent = status.DiskPresent
	b.writeProtected = status.WriteProtected
	b.mu.Unlock()
}

func (b *Bridge) maybeCheckDisk() {
	b.mu.Lock()
	present := b.diskPresent
	fast := b.hasFastDiskCheck
	elapsed := time.Since(b.lastDiskCheckTs)
	b.mu.Unlock()

	interval := diskCheckSlow
	if fast {
		if present {
			interval = diskCheckFastPresent
		} else {
			interval = diskCheckFastAbsent
		}
	}
	if elapsed < interval {
		return
	}

	b.mu.Lock()
	b.lastDiskCheckTs = time.Now()
	b.mu.Unlock()

	state, err := b.ctrl.CheckDisk(false)
	if err != nil {
		b.setError(fmt.Errorf("check disk: %w", err))
		return
	}

	b.mu.Lock()
	wasPresent := b.diskPresent
	b.diskPresent = state.DiskPresent
	b.writeProtected = state.WriteProtected
	b.mu.Unlock()

	if wasPresent && !state.DiskPresent {
		b.mu.Lock()
		cylinder, side := b.physicalCylinder, b.physicalSide
		b.mu.Unlock()
		b.cache.Entry(cylinder, side).Invalidate()
	}
}
