// Package variantf implements the binary length-framed controller
// protocol (modeled on the Greaseweazle firmware protocol): every message
// is [cmd_byte, total_length, payload...], acknowledged with
// [echoed_cmd, ack_byte].
package variantf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/sergev/floppybridge/codec"
	"github.com/sergev/floppybridge/protocol"
)

// Command codes.
const (
	cmdGetInfo       = 0
	cmdSeek          = 2
	cmdHead          = 3
	cmdMotor         = 6
	cmdReadFlux      = 7
	cmdWriteFlux     = 8
	cmdGetFluxStatus = 9
	cmdSelect        = 12
	cmdDeselect      = 13
	cmdSetBusType    = 14
	cmdReset         = 16
)

const getInfoFirmware = 0

// Ack codes.
const (
	ackOkay          = 0
	ackBadCommand    = 1
	ackNoIndex       = 2
	ackNoTrk0        = 3
	ackFluxOverflow  = 4
	ackFluxUnderflow = 5
	ackWrprot        = 6
	ackNoUnit        = 7
	ackNoBus         = 8
	ackBadUnit       = 9
	ackBadPin        = 10
	ackBadCylinder   = 11
)

const (
	fluxopIndex = 1
	fluxopSpace = 2
)

const busIBMPC = 1

const (
	getInfoBwStats = 1
	cmdGetPin      = 20
)

// BwStats is the bandwidth envelope the firmware has observed on its flux
// buffer, reported by Diagnostics.
type BwStats struct {
	MinBwBytes, MinBwUsecs uint32
	MaxBwBytes, MaxBwUsecs uint32
}

// Diagnostics is the GETINFO_BW_STATS query plus a pin-level sweep; not on
// the hot path, used by a probe-style CLI command.
type Diagnostics struct {
	Bandwidth BwStats
	Pins      map[int]bool
}

const minFirmwareMajor, minFirmwareMinor = 0, 25

// FirmwareInfo is the subset of GETINFO_FIRMWARE this client cares about.
type FirmwareInfo struct {
	Major          uint8
	Minor          uint8
	IsMainFirmware bool
	SampleFreqHz   uint32
}

// Client drives a Greaseweazle-style controller over a serial transport.
// It implements protocol.Controller.
type Client struct {
	transport      *protocol.Transport
	firmware       FirmwareInfo
	unit           byte
	writeProtected bool
}

// New constructs a Client; call Open to establish the connection.
func New() *Client {
	return &Client{}
}

func ackError(code byte) error {
	switch code {
	case ackOkay:
		return nil
	case ackBadCommand:
		return fmt.Errorf("%w: bad command", protocol.ErrBadCommand)
	case ackNoIndex:
		return fmt.Errorf("%w: no index pulse seen", protocol.ErrNoDiskInDrive)
	case ackNoTrk0:
		return fmt.Errorf("%w: no track 0", protocol.ErrTrack0NotFound)
	case ackFluxOverflow:
		return fmt.Errorf("%w: flux overflow", protocol.ErrSerialOverrun)
	case ackFluxUnderflow:
		return fmt.Errorf("%w: flux underflow", protocol.ErrSerialUnderflow)
	case ackWrprot:
		return fmt.Errorf("%w: disk is write protected", protocol.ErrWriteProtected)
	case ackNoUnit, ackNoBus:
		return fmt.Errorf("%w: no unit selected", protocol.ErrSelectTrackError)
	case ackBadUnit, ackBadPin:
		return fmt.Errorf("%w: code %d", protocol.ErrBadParameter, code)
	case ackBadCylinder:
		return fmt.Errorf("%w: code %d", protocol.ErrTrackRangeError, code)
	default:
		return fmt.Errorf("%w: unknown ack 0x%02x", protocol.ErrStatusError, code)
	}
}

func (c *Client) doCommand(cmd []byte) error {
	if err := c.transport.WriteAll(cmd); err != nil {
		return err
	}
	ack := make([]byte, 2)
	if err := c.transport.ReadExact(ack); err != nil {
		return err
	}
	if ack[0] != cmd[0] {
		return fmt.Errorf("%w: echoed 0x%02x for command 0x%02x", protocol.ErrFramingError, ack[0], cmd[0])
	}
	return ackError(ack[1])
}

// Open opens the serial port, performs the baud-twiddle reset sequence,
// fetches firmware identity, and sets the bus type.
func (c *Client) Open(port string) (protocol.Info, error) {
	t, err := protocol.OpenTransport(port, 9600)
	if err != nil {
		return protocol.Info{}, err
	}
	c.transport = t

	fw, err := c.fetchFirmwareInfo()
	if err != nil {
		t.Close()
		return protocol.Info{}, err
	}
	c.firmware = fw

	if !fw.IsMainFirmware {
		t.Close()
		return protocol.Info{}, protocol.ErrInUpdateMode
	}
	if fw.Major < minFirmwareMajor || (fw.Major == minFirmwareMajor && fw.Minor < minFirmwareMinor) {
		t.Close()
		return protocol.Info{}, fmt.Errorf("%w: got %d.%d", protocol.ErrOldFirmware, fw.Major, fw.Minor)
	}

	if err := t.SetBaud(10000); err != nil {
		t.Close()
		return protocol.Info{}, err
	}
	time.Sleep(100 * time.Millisecond)
	if err := t.SetBaud(9600); err != nil {
		t.Close()
		return protocol.Info{}, err
	}

	if err := c.setBusType(); err != nil {
		t.Close()
		return protocol.Info{}, err
	}

	return protocol.Info{
		FirmwareVersion:  fmt.Sprintf("%d.%d", fw.Major, fw.Minor),
		HasFastDiskCheck: true,
		SpeedScale:       8,
	}, nil
}

func (c *Client) fetchFirmwareInfo() (FirmwareInfo, error) {
	var fw FirmwareInfo
	cmd := []byte{cmdGetInfo, 3, getInfoFirmware}
	if err := c.doCommand(cmd); err != nil {
		return fw, err
	}
	resp := make([]byte, 32)
	if err := c.transport.ReadExact(resp); err != nil {
		return fw, err
	}
	fw.Major = resp[0]
	fw.Minor = resp[1]
	fw.IsMainFirmware = resp[2] != 0
	fw.SampleFreqHz = binary.LittleEndian.Uint32(resp[4:8])
	return fw, nil
}

func (c *Client) setBusType() error {
	return c.doCommand([]byte{cmdSetBusType, 3, busIBMPC})
}

// Close releases the underlying serial port.
func (c *Client) Close() error {
	if c.transport == nil {
		return nil
	}
	return c.transport.Close()
}

// EnableMotor turns the drive motor on or off. dontWait is accepted for
// interface symmetry with Variant V but has no effect here: the controller
// doesn't offer a non-blocking motor command.
func (c *Client) EnableMotor(on bool, dontWait bool) error {
	var state byte
	if on {
		state = 1
	}
	if err := c.doCommand([]byte{cmdSelect, 3, c.unit}); err != nil {
		return err
	}
	return c.doCommand([]byte{cmdMotor, 4, c.unit, state})
}

// FindTrack0 seeks to cylinder 0.
func (c *Client) FindTrack0() error {
	return c.doCommand([]byte{cmdSeek, 3, 0})
}

// SelectTrack seeks to the given cylinder. speed and skipDiskCheck are
// accepted for interface symmetry; this controller has no fast-seek mode.
func (c *Client) SelectTrack(cylinder int, speed protocol.SeekSpeed, skipDiskCheck bool) (protocol.TrackStatus, error) {
	err := c.doCommand([]byte{cmdSeek, 3, byte(cylinder)})
	if err != nil {
		return protocol.TrackStatus{}, err
	}
	return protocol.TrackStatus{DiskState: protocol.DiskState{DiskPresent: true, WriteProtected: c.writeProtected}}, nil
}

// SelectSurface selects the read/write head.
func (c *Client) SelectSurface(side bool) error {
	var head byte
	if side {
		head = 1
	}
	return c.doCommand([]byte{cmdHead, 3, head})
}

// CheckDisk probes disk presence with a short flux read: the controller has
// no direct disk-sense command, so absence is inferred from the device
// reporting no index pulses.
func (c *Client) CheckDisk(force bool) (protocol.DiskState, error) {
	cmd := make([]byte, 8)
	cmd[0] = cmdReadFlux
	cmd[1] = 8
	binary.LittleEndian.PutUint32(cmd[2:6], 0)
	binary.LittleEndian.PutUint16(cmd[6:8], 1)
	if err := c.doCommand(cmd); err != nil {
		if errors.Is(err, protocol.ErrNoDiskInDrive) {
			return protocol.DiskState{DiskPresent: false}, nil
		}
		return protocol.DiskState{}, err
	}

	if err := c.drainFluxStream(); err != nil {
		return protocol.DiskState{}, err
	}
	if err := c.doCommand([]byte{cmdGetFluxStatus, 2}); err != nil {
		if errors.Is(err, protocol.ErrNoDiskInDrive) {
			return protocol.DiskState{DiskPresent: false}, nil
		}
		return protocol.DiskState{}, err
	}
	return protocol.DiskState{DiskPresent: true, WriteProtected: c.writeProtected}, nil
}

func (c *Client) drainFluxStream() error {
	buf := make([]byte, 1)
	for {
		if err := c.transport.ReadExact(buf); err != nil {
			return err
		}
		if buf[0] == 0 {
			return nil
		}
		if buf[0] == 0xFF {
			if err := c.transport.ReadExact(buf); err != nil {
				return err
			}
			skip := 4
			for skip > 0 {
				tmp := make([]byte, skip)
				if err := c.transport.ReadExact(tmp); err != nil {
					return err
				}
				skip = 0
			}
		} else if buf[0] >= 250 {
			if err := c.transport.ReadExact(buf); err != nil {
				return err
			}
		}
	}
}

// ReadStream issues a flux read for maxRevs revolutions and feeds each
// decoded bit-cell symbol to write. startFingerprint is accepted for
// interface symmetry; the splicer, not the controller, consumes it.
func (c *Client) ReadStream(maxBlockBits int, maxRevs int, startFingerprint []byte, write protocol.SymbolWriter) (protocol.Status, error) {
	cmd := make([]byte, 8)
	cmd[0] = cmdReadFlux
	cmd[1] = 8
	binary.LittleEndian.PutUint32(cmd[2:6], 0)
	binary.LittleEndian.PutUint16(cmd[6:8], uint16(maxRevs))
	if err := c.doCommand(cmd); err != nil {
		if errors.Is(err, protocol.ErrNoDiskInDrive) {
			return protocol.Status{DiskState: protocol.DiskState{DiskPresent: false}}, nil
		}
		return protocol.Status{}, err
	}

	if err := c.transport.SetTimeouts(protocol.TimeoutShort); err != nil {
		return protocol.Status{}, err
	}
	defer c.transport.SetTimeouts(protocol.TimeoutLong)

	tickPeriodNs := 1e9 / float64(c.firmware.SampleFreqHz)
	var decoder codec.FluxDecoder
	decoder.Reset()

	aborted := false
	buf := make([]byte, 1)
	for {
		if err := c.transport.ReadExact(buf); err != nil {
			return protocol.Status{}, err
		}
		b := buf[0]
		if b == 0 {
			break
		}

		var ticks uint32
		isIndex := false
		switch {
		case b == 0xFF:
			if err := c.transport.ReadExact(buf); err != nil {
				return protocol.Status{}, err
			}
			opcode := buf[0]
			n28, err := c.readN28()
			if err != nil {
				return protocol.Status{}, err
			}
			switch opcode {
			case fluxopIndex:
				isIndex = true
				ticks = 0
			case fluxopSpace:
				ticks = n28
			default:
				continue
			}
		case b < 250:
			ticks = uint32(b)
		default:
			ext := make([]byte, 1)
			if err := c.transport.ReadExact(ext); err != nil {
				return protocol.Status{}, err
			}
			ticks = 250 + uint32(b-250)*255 + uint32(ext[0]) - 1
		}

		if isIndex {
			decoder.MarkIndex()
			continue
		}

		if aborted {
			continue
		}
		intervalNs := int64(float64(ticks) * tickPeriodNs)
		if sym, ok := decoder.AddTick(intervalNs); ok {
			if !write(sym) {
				aborted = true
			}
		}
	}

	if err := c.doCommand([]byte{cmdGetFluxStatus, 2}); err != nil {
		if errors.Is(err, protocol.ErrNoDiskInDrive) {
			return protocol.Status{DiskState: protocol.DiskState{DiskPresent: false}}, nil
		}
		return protocol.Status{}, err
	}

	status := protocol.Status{DiskState: protocol.DiskState{DiskPresent: true, WriteProtected: c.writeProtected}}
	if aborted {
		status.Err = protocol.ErrIoAborted
	}
	return status, nil
}

func (c *Client) readN28() (uint32, error) {
	b := make([]byte, 4)
	if err := c.transport.ReadExact(b); err != nil {
		return 0, err
	}
	value := ((uint32(b[0]) & 0xfe) >> 1) |
		((uint32(b[1]) & 0xfe) << 6) |
		((uint32(b[2]) & 0xfe) << 13) |
		((uint32(b[3]) & 0xfe) << 20)
	return value, nil
}

func encodeN28(value uint32) []byte {
	result := make([]byte, 4)
	result[0] = byte(1 | ((value & 0x7F) << 1))
	result[1] = byte(1 | (((value >> 7) & 0x7F) << 1))
	result[2] = byte(1 | (((value >> 14) & 0x7F) << 1))
	result[3] = byte(1 | (((value >> 21) & 0x7F) << 1))
	return result
}

// WriteTrack encodes mfmBytes (bitCount valid bits) to this controller's
// tick stream, applying write precompensation when precomp is set, and
// writes the track. precomp being true already implies the cylinder
// gating the bridge controller performs before calling WriteTrack.
func (c *Client) WriteTrack(mfmBytes []byte, bitCount int, alignIndex bool, precomp bool) (protocol.Status, error) {
	gateCylinder := 0
	if precomp {
		gateCylinder = codec.PrecompStartCylinder
	}
	runs := codec.Encode(mfmBytes, bitCount, precomp, gateCylinder)
	times := codec.RunTimesNs(runs)

	fluxBytes := c.encodeFluxStream(times)

	var cue, term byte
	if alignIndex {
		cue = 1
		term = 1
	}
	cmd := []byte{cmdWriteFlux, 4, cue, term}
	if err := c.doCommand(cmd); err != nil {
		return protocol.Status{}, err
	}
	if err := c.transport.WriteAll(fluxBytes); err != nil {
		return protocol.Status{}, err
	}

	sync := make([]byte, 1)
	if err := c.transport.ReadExact(sync); err != nil {
		return protocol.Status{}, err
	}
	if sync[0] != 0 {
		return protocol.Status{}, fmt.Errorf("%w: sync byte 0x%02x", protocol.ErrWriteTimeout, sync[0])
	}
	if err := c.doCommand([]byte{cmdGetFluxStatus, 2}); err != nil {
		return protocol.Status{}, err
	}

	return protocol.Status{DiskState: protocol.DiskState{DiskPresent: true, WriteProtected: c.writeProtected}}, nil
}

func (c *Client) encodeFluxStream(times []int64) []byte {
	var out []byte
	tickPeriodNs := 1e9 / float64(c.firmware.SampleFreqHz)
	for _, ns := range times {
		ticks := uint32(float64(ns) / tickPeriodNs)
		if ticks == 0 {
			ticks = 1
		}
		switch {
		case ticks < 250:
			out = append(out, byte(ticks))
		case ticks < 1525:
			base := byte(0xFA)
			offset := ticks + 1 - 250
			for offset >= 255 {
				base++
				offset -= 255
			}
			out = append(out, base, byte(offset))
		default:
			out = append(out, 0xFF, fluxopSpace)
			out = append(out, encodeN28(ticks)...)
		}
	}
	return append(out, 0)
}

// Diagnostics fetches bandwidth statistics and sweeps the first 34 GPIO
// pins, a hardware-bring-up aid carried over from the firmware's own
// diagnostic surface. Not called by the background worker.
func (c *Client) Diagnostics() (Diagnostics, error) {
	var d Diagnostics

	if err := c.doCommand([]byte{cmdGetInfo, 3, getInfoBwStats}); err != nil {
		return d, fmt.Errorf("get bw stats: %w", err)
	}
	resp := make([]byte, 16)
	if err := c.transport.ReadExact(resp); err != nil {
		return d, fmt.Errorf("read bw stats: %w", err)
	}
	d.Bandwidth = BwStats{
		MinBwBytes: binary.LittleEndian.Uint32(resp[0:4]),
		MinBwUsecs: binary.LittleEndian.Uint32(resp[4:8]),
		MaxBwBytes: binary.LittleEndian.Uint32(resp[8:12]),
		MaxBwUsecs: binary.LittleEndian.Uint32(resp[12:16]),
	}

	d.Pins = make(map[int]bool)
	for pin := byte(1); pin <= 34; pin++ {
		level, err := c.getPinValue(pin)
		if errors.Is(err, protocol.ErrBadParameter) {
			continue
		}
		if err != nil {
			return d, fmt.Errorf("get pin %d: %w", pin, err)
		}
		d.Pins[int(pin)] = level
	}
	return d, nil
}

func (c *Client) getPinValue(pin byte) (bool, error) {
	if err := c.doCommand([]byte{cmdGetPin, 3, pin}); err != nil {
		return false, err
	}
	level := make([]byte, 1)
	if err := c.transport.ReadExact(level); err != nil {
		return false, fmt.Errorf("read pin level: %w", err)
	}
	return level[0] == 1, nil
}
