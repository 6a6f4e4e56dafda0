package protocol

import "errors"

// Transport errors (serial transport, component A).
var (
	ErrPortNotFound    = errors.New("serial port not found")
	ErrPortInUse       = errors.New("serial port in use")
	ErrConfigError     = errors.New("serial port configuration error")
	ErrBaudUnsupported = errors.New("requested baud rate unsupported")
	ErrIoTimeout       = errors.New("serial i/o timed out")
	ErrIoShort         = errors.New("short serial read")
	ErrIoAborted       = errors.New("serial i/o aborted")
)

// Protocol errors (controller protocol, component B).
var (
	ErrMalformedVersion = errors.New("malformed version response")
	ErrOldFirmware      = errors.New("firmware too old")
	ErrInUpdateMode     = errors.New("device is in update/bootloader mode")
	ErrBadCommand       = errors.New("device rejected command")
	ErrStatusError      = errors.New("device returned an error status")
	ErrFramingError     = errors.New("malformed response framing")
	ErrSerialOverrun    = errors.New("flux read overrun")
	ErrSerialUnderflow  = errors.New("flux write underflow")
)

// Drive errors.
var (
	ErrTrack0NotFound   = errors.New("track 0 not found")
	ErrTrackRangeError  = errors.New("cylinder out of range")
	ErrSelectTrackError = errors.New("failed to select track")
	ErrNoDiskInDrive    = errors.New("no disk in drive")
	ErrWriteProtected   = errors.New("disk is write protected")
	ErrWriteTimeout     = errors.New("write operation timed out")
)

// Logical errors. ErrInternalBug never aborts the caller; it is surfaced as
// a diagnostic and the worker proceeds, matching the "both slots ready"
// case in the invariant list.
var (
	ErrBadParameter = errors.New("bad parameter")
	ErrInternalBug  = errors.New("internal invariant violated")
)
