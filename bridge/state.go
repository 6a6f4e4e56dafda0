package bridge

import "time"

// MaxCylinder is the cylinder limit reported for a DD 3.5" drive; the
// cylinders addressed are 0..MaxCylinder-1.
const MaxCylinder = 82

const (
	spinupDuration   = 750 * time.Millisecond
	stepGraceWindow  = 500 * time.Millisecond
	readBitPollTotal = 600 * time.Millisecond
	readBitPollStep  = 5 * time.Millisecond

	diskCheckFastPresent = 500 * time.Millisecond
	diskCheckFastAbsent  = 2500 * time.Millisecond
	diskCheckSlow        = 3000 * time.Millisecond

	idleWaitReady    = 1 * time.Millisecond
	idleWaitNotReady = 250 * time.Millisecond

	streamChunkBits = 128
)

// motorState tracks the Off / SpinningUp / Ready progression of §4.F's
// motor state machine.
type motorState int

const (
	motorOff motorState = iota
	motorSpinningUp
	motorReady
)
