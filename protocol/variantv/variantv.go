// Package variantv implements the ASCII single-byte-command controller
// protocol (modeled on an Arduino-based floppy reader/writer): a single
// command byte, optional ASCII parameters, and a single ASCII character
// response, '1' for ok and '0' for error.
package variantv

import (
	"fmt"
	"time"

	"github.com/sergev/floppybridge/codec"
	"github.com/sergev/floppybridge/protocol"
)

// Command bytes.
const (
	cmdVersion        = '?'
	cmdRewind         = '.'
	cmdGoto           = '#'
	cmdGotoReport     = '='
	cmdHead0          = '['
	cmdHead1          = ']'
	cmdRead           = '<'
	cmdEnable         = '+'
	cmdEnableNoWait   = '*'
	cmdDisable        = '-'
	cmdWrite          = '>'
	cmdEnableWrite    = '~'
	cmdDiag           = '&'
	cmdDDMode         = 'D'
	cmdHDMode         = 'H'
	cmdReadStream     = '{'
	cmdWritePrecomp   = '}'
	cmdCheckDisk      = '^'
	cmdWriteProtected = '$'
	cmdAbortStream    = 'x'
)

const minFirmwareMajor, minFirmwareMinor = 1, 8

const baudRate = 2000000

// precomp nibble flags, matching the firmware's packed write format.
const (
	precompNone  = 0x00
	precompEarly = 0x04
	precompLate  = 0x08
)

// Client drives an ASCII single-byte-command controller over a serial
// transport. It implements protocol.Controller.
type Client struct {
	transport      *protocol.Transport
	major, minor   int
	hardwareModded bool
	diskInDrive    bool
	writeProtected bool
}

// New constructs a Client; call Open to establish the connection.
func New() *Client {
	return &Client{}
}

func (c *Client) hasV18() bool {
	return c.major > 1 || (c.major == 1 && c.minor >= 8)
}

// runCommand sends a command byte, an optional ASCII parameter (param==0
// omits it), and reads a single ASCII response byte.
func (c *Client) runCommand(cmd byte, param byte) (byte, error) {
	buf := []byte{cmd}
	if param != 0 {
		buf = append(buf, param)
	}
	if err := c.transport.WriteAll(buf); err != nil {
		return 0, err
	}
	resp := make([]byte, 1)
	if err := c.transport.ReadExact(resp); err != nil {
		return 0, err
	}
	switch resp[0] {
	case '1':
		return resp[0], nil
	case '0':
		return resp[0], fmt.Errorf("%w: command 0x%02x", protocol.ErrBadCommand, cmd)
	default:
		return resp[0], nil // some commands fold extra data into this byte, e.g. version probe
	}
}

// Open opens the serial port at 2 Mbaud, resets the device with a DTR
// toggle, clears any stuck streaming mode with the abort byte, and probes
// the firmware version.
func (c *Client) Open(port string) (protocol.Info, error) {
	t, err := protocol.OpenTransport(port, baudRate)
	if err != nil {
		return protocol.Info{}, err
	}
	c.transport = t

	if err := t.ToggleDTR(150 * time.Millisecond); err != nil {
		t.Close()
		return protocol.Info{}, err
	}

	if err := t.WriteAll([]byte{cmdAbortStream}); err != nil {
		t.Close()
		return protocol.Info{}, err
	}
	c.drainStuckStream()

	major, minor, modded, err := c.fetchVersion()
	if err != nil {
		t.Close()
		return protocol.Info{}, err
	}
	c.major, c.minor, c.hardwareModded = major, minor, modded

	if c.major == 0 || (c.major == 1 && c.minor < 2) {
		t.Close()
		return protocol.Info{}, fmt.Errorf("%w: got %d.%d", protocol.ErrOldFirmware, major, minor)
	}

	return protocol.Info{
		FirmwareVersion:  fmt.Sprintf("%d.%d", major, minor),
		HardwareModded:   modded,
		HasFastDiskCheck: c.hasV18(),
		SpeedScale:       1,
	}, nil
}

func (c *Client) drainStuckStream() {
	buf := make([]byte, 1)
	for {
		n, err := c.transport.ReadUpTo(buf)
		if err != nil || n == 0 {
			return
		}
	}
}

// fetchVersion reads the 4-byte "Vx.y" reply; a comma in place of the dot
// marks hardware-modded firmware.
func (c *Client) fetchVersion() (major, minor int, modded bool, err error) {
	if err := c.transport.WriteAll([]byte{cmdVersion}); err != nil {
		return 0, 0, false, err
	}
	buf := make([]byte, 4)
	if err := c.transport.ReadExact(buf); err != nil {
		return 0, 0, false, err
	}
	modded = buf[2] == ','
	if modded {
		buf[2] = '.'
	}
	if buf[0] != 'V' || buf[2] != '.' {
		return 0, 0, false, protocol.ErrMalformedVersion
	}
	major = int(buf[1] - '0')
	minor = int(buf[3] - '0')
	return major, minor, modded, nil
}

// Close releases the underlying serial port.
func (c *Client) Close() error {
	if c.transport == nil {
		return nil
	}
	return c.transport.Close()
}

// EnableMotor turns the drive interface on or off. dontWait selects the
// non-blocking enable variant when turning on, available on firmware that
// supports it.
func (c *Client) EnableMotor(on bool, dontWait bool) error {
	if !on {
		_, err := c.runCommand(cmdDisable, 0)
		return err
	}
	cmd := byte(cmdEnable)
	if dontWait {
		cmd = cmdEnableNoWait
	}
	_, err := c.runCommand(cmd, 0)
	return err
}

// FindTrack0 rewinds to the first cylinder.
func (c *Client) FindTrack0() error {
	_, err := c.runCommand(cmdRewind, 0)
	return err
}

// SelectTrack seeks to the given cylinder, using the firmware-1.8+
// "goto report" form to learn disk-presence and write-protect state from
// the same round trip when available.
func (c *Client) SelectTrack(cylinder int, speed protocol.SeekSpeed, skipDiskCheck bool) (protocol.TrackStatus, error) {
	if cylinder < 0 || cylinder > 81 {
		return protocol.TrackStatus{}, fmt.Errorf("%w: cylinder %d", protocol.ErrTrackRangeError, cylinder)
	}

	if !c.hasV18() {
		buf := []byte(fmt.Sprintf("%c%02d", cmdGoto, cylinder))
		if err := c.transport.WriteAll(buf); err != nil {
			return protocol.TrackStatus{}, err
		}
		resp := make([]byte, 1)
		if err := c.transport.ReadExact(resp); err != nil {
			return protocol.TrackStatus{}, err
		}
		if resp[0] != '1' {
			return protocol.TrackStatus{}, fmt.Errorf("%w: cylinder %d", protocol.ErrSelectTrackError, cylinder)
		}
		return protocol.TrackStatus{DiskState: protocol.DiskState{DiskPresent: true, WriteProtected: c.writeProtected}}, nil
	}

	flags := byte(1)
	switch speed {
	case protocol.SeekFast:
		flags = 2
	}
	if !skipDiskCheck {
		flags |= 4
	}
	buf := []byte(fmt.Sprintf("%c%02d%c", cmdGotoReport, cylinder, flags))
	if err := c.transport.WriteAll(buf); err != nil {
		return protocol.TrackStatus{}, err
	}
	resp := make([]byte, 1)
	if err := c.transport.ReadExact(resp); err != nil {
		return protocol.TrackStatus{}, err
	}

	switch resp[0] {
	case '2':
		return protocol.TrackStatus{DiskState: protocol.DiskState{DiskPresent: c.diskInDrive, WriteProtected: c.writeProtected}}, nil
	case '1':
		extra := make([]byte, 2)
		if err := c.transport.ReadExact(extra); err != nil {
			return protocol.TrackStatus{}, err
		}
		if extra[0] != 'x' {
			c.diskInDrive = extra[0] == '1'
		}
		c.writeProtected = extra[1] == '1'
		return protocol.TrackStatus{DiskState: protocol.DiskState{DiskPresent: c.diskInDrive, WriteProtected: c.writeProtected}}, nil
	default:
		return protocol.TrackStatus{}, fmt.Errorf("%w: cylinder %d", protocol.ErrSelectTrackError, cylinder)
	}
}

// SelectSurface selects the read/write head.
func (c *Client) SelectSurface(side bool) error {
	cmd := byte(cmdHead0)
	if side {
		cmd = cmdHead1
	}
	_, err := c.runCommand(cmd, 0)
	return err
}

// CheckDisk asks the firmware to sense disk presence and write-protect
// state directly.
func (c *Client) CheckDisk(force bool) (protocol.DiskState, error) {
	if !c.hasV18() {
		return protocol.DiskState{DiskPresent: c.diskInDrive, WriteProtected: c.writeProtected}, nil
	}
	param := byte('0')
	if force {
		param = '1'
	}
	resp, err := c.runCommand(cmdCheckDisk, param)
	if err != nil {
		return protocol.DiskState{}, err
	}
	c.diskInDrive = resp == '1'

	wp, err := c.runCommand(cmdWriteProtected, 0)
	if err != nil {
		return protocol.DiskState{}, err
	}
	c.writeProtected = wp == '1'

	return protocol.DiskState{DiskPresent: c.diskInDrive, WriteProtected: c.writeProtected}, nil
}

// ReadStream issues the streaming read command and decodes each wire byte
// into its two half-cell symbols, feeding them to write. maxBlockBits is
// accepted for interface symmetry with Variant F. The stream stops once
// maxRevs index markers have been seen, or when write returns false; with
// maxRevs == 0 it runs until write returns false.
func (c *Client) ReadStream(maxBlockBits int, maxRevs int, startFingerprint []byte, write protocol.SymbolWriter) (protocol.Status, error) {
	if !c.hasV18() {
		return protocol.Status{}, protocol.ErrOldFirmware
	}
	if err := c.transport.WriteAll([]byte{cmdReadStream}); err != nil {
		return protocol.Status{}, err
	}
	ack := make([]byte, 1)
	if err := c.transport.ReadExact(ack); err != nil {
		return protocol.Status{}, err
	}
	if ack[0] != '1' {
		return protocol.Status{}, fmt.Errorf("%w: read stream rejected", protocol.ErrBadCommand)
	}

	if err := c.transport.SetTimeouts(protocol.TimeoutShort); err != nil {
		return protocol.Status{}, err
	}
	defer c.transport.SetTimeouts(protocol.TimeoutLong)

	revs := 0
	aborted := false
	buf := make([]byte, 1)
	for revs < maxRevs || maxRevs == 0 {
		if err := c.transport.ReadExact(buf); err != nil {
			return protocol.Status{}, err
		}
		first, second := codec.DecodeVariantVByte(buf[0])
		if first.AtIndex {
			revs++
		}
		if !aborted {
			if !write(first) || !write(second) {
				aborted = true
				if err := c.sendAbortSequence(); err != nil {
					return protocol.Status{}, err
				}
			}
		}
		if aborted {
			break
		}
	}
	if !aborted {
		if err := c.sendAbortSequence(); err != nil {
			return protocol.Status{}, err
		}
	}

	return protocol.Status{DiskState: protocol.DiskState{DiskPresent: c.diskInDrive, WriteProtected: c.writeProtected}}, nil
}

// sendAbortSequence sends the in-band abort byte and waits for the
// firmware's "XYZx1" handshake that confirms the stream has stopped.
func (c *Client) sendAbortSequence() error {
	if err := c.transport.WriteAll([]byte{cmdAbortStream}); err != nil {
		return err
	}
	seq := []byte{'X', 'Y', 'Z', cmdAbortStream, '1'}
	matched := 0
	buf := make([]byte, 1)
	for matched < len(seq) {
		if err := c.transport.ReadExact(buf); err != nil {
			return err
		}
		if buf[0] == seq[matched] {
			matched++
		} else {
			matched = 0
		}
	}
	return nil
}

// WriteTrack re-encodes mfmBytes with the shared codec's run/precomp
// decomposition into this controller's packed ppyy nibble format and
// writes it. precomp being true already implies the cylinder gating the
// bridge controller performs before calling WriteTrack.
func (c *Client) WriteTrack(mfmBytes []byte, bitCount int, alignIndex bool, precomp bool) (protocol.Status, error) {
	gateCylinder := 0
	if precomp {
		gateCylinder = codec.PrecompStartCylinder
	}
	runs := codec.Encode(mfmBytes, bitCount, precomp, gateCylinder)
	packed := packPrecompNibbles(runs)

	cmd := byte(cmdWrite)
	if precomp {
		cmd = cmdWritePrecomp
	}
	var param byte = '1'
	if !alignIndex {
		param = '0'
	}
	resp, err := c.runCommand(cmd, param)
	if err != nil {
		return protocol.Status{}, err
	}
	if resp != '1' {
		return protocol.Status{}, fmt.Errorf("%w: write rejected", protocol.ErrWriteTimeout)
	}

	if err := c.transport.WriteAll(packed); err != nil {
		return protocol.Status{}, err
	}
	ack := make([]byte, 1)
	if err := c.transport.ReadExact(ack); err != nil {
		return protocol.Status{}, err
	}
	if ack[0] != '1' {
		return protocol.Status{}, fmt.Errorf("%w: write did not complete", protocol.ErrWriteTimeout)
	}

	return protocol.Status{DiskState: protocol.DiskState{DiskPresent: true, WriteProtected: c.writeProtected}}, nil
}

// packPrecompNibbles packs encoded runs two-per-byte as ppyy nibbles:
// pp selects none/early/late precomp, yy the nominal cell width
// (run.Cells - 2, i.e. one of 4, 6, 8, 10 us).
func packPrecompNibbles(runs []codec.EncodedRun) []byte {
	out := make([]byte, 0, (len(runs)+1)/2)
	var cur byte
	have := false
	for _, r := range runs {
		var precomp byte
		switch r.Precomp {
		case codec.PrecompEarly:
			precomp = precompEarly
		case codec.PrecompLate:
			precomp = precompLate
		default:
			precomp = precompNone
		}
		nibble := (byte(r.Cells-2) & 0x03) | precomp
		if !have {
			cur = nibble << 4
			have = true
		} else {
			cur |= nibble
			out = append(out, cur)
			have = false
		}
	}
	if have {
		out = append(out, cur)
	}
	return out
}
