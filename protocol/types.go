// Package protocol defines the shared contract both controller variants
// (V: ASCII single-byte commands, F: binary length-framed commands)
// present to the bridge controller, plus the serial transport and error
// taxonomy they're built on.
package protocol

import "github.com/sergev/floppybridge/codec"

// SeekSpeed selects how aggressively a seek is performed.
type SeekSpeed int

const (
	SeekNormal SeekSpeed = iota
	SeekFast
)

// Info is returned by Open: the negotiated firmware identity and the
// capabilities that depend on it.
type Info struct {
	FirmwareVersion  string
	HardwareModded   bool // Variant V only: modded-control marker in the version reply
	HasFastDiskCheck bool

	// SpeedScale is the divisor read_speed applies to a raw stored speed
	// sample after the common *10 scale-up: speed = clamp(raw*10/SpeedScale,
	// 700, 3000). Each variant samples its speed byte at a different
	// resolution, so the divisor differs (V: 1, F: 8).
	SpeedScale uint16
}

// DiskState is the drive's disk-presence/write-protect sense.
type DiskState struct {
	DiskPresent    bool
	WriteProtected bool
}

// TrackStatus is returned after selecting a cylinder, combining the seek
// result with whatever disk sense the command round-trip also reported.
type TrackStatus struct {
	DiskState
}

// Status is the outcome of a streaming read or write: the disk state as
// last observed, and a non-nil Err on failure.
type Status struct {
	DiskState
	Err error
}

// SymbolWriter receives one decoded bit-cell symbol at a time during a
// read stream. It returns false to request the stream be aborted, e.g.
// because a new command has been enqueued and the background worker needs
// the controller back.
type SymbolWriter func(sym codec.Symbol) bool

// Controller is the capability set a concrete protocol variant
// implements; the bridge controller is generic over it and never
// branches on which variant is in use.
type Controller interface {
	Open(port string) (Info, error)
	Close() error

	EnableMotor(on bool, dontWait bool) error
	FindTrack0() error
	SelectTrack(cylinder int, speed SeekSpeed, skipDiskCheck bool) (TrackStatus, error)
	SelectSurface(side bool) error

	ReadStream(maxBlockBits int, maxRevs int, startFingerprint []byte, write SymbolWriter) (Status, error)
	WriteTrack(mfmBytes []byte, bitCount int, alignIndex bool, precomp bool) (Status, error)

	CheckDisk(force bool) (DiskState, error)
}
