package variantf

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sergev/floppybridge/codec"
	"github.com/sergev/floppybridge/protocol"
)

// RotationInfo is a best-effort measurement of a disk's actual rotation
// speed and bit rate, taken from one sample revolution.
type RotationInfo struct {
	RPM            uint16
	BitRateKbps    uint16
	DecodedBits    int
	MatchesNominal bool // within tolerance of the fixed 2us/500kbps DD assumption
}

// DetectRotation reads two index pulses' worth of flux from the current
// track and derives RPM and bit rate from their timing, the way the
// firmware's own host tooling estimates disk speed before a format or
// read pass. It doesn't change the fixed 2us nominal bitcell the codec
// assumes; MatchesNominal just flags whether this disk is within the
// tolerance that assumption requires.
func (c *Client) DetectRotation() (RotationInfo, error) {
	cmd := make([]byte, 8)
	cmd[0] = cmdReadFlux
	cmd[1] = 8
	binary.LittleEndian.PutUint32(cmd[2:6], 0)
	binary.LittleEndian.PutUint16(cmd[6:8], 2)
	if err := c.doCommand(cmd); err != nil {
		return RotationInfo{}, fmt.Errorf("read flux: %w", err)
	}

	if err := c.transport.SetTimeouts(protocol.TimeoutShort); err != nil {
		return RotationInfo{}, err
	}
	defer c.transport.SetTimeouts(protocol.TimeoutLong)

	tickPeriodNs := 1e9 / float64(c.firmware.SampleFreqHz)
	var transitions []uint64
	var indexTimes []uint64
	var accumulated uint64

	buf := make([]byte, 1)
	for {
		if err := c.transport.ReadExact(buf); err != nil {
			return RotationInfo{}, err
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
				return RotationInfo{}, err
			}
			opcode := buf[0]
			n28, err := c.readN28()
			if err != nil {
				return RotationInfo{}, err
			}
			switch opcode {
			case fluxopIndex:
				isIndex = true
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
				return RotationInfo{}, err
			}
			ticks = 250 + uint32(b-250)*255 + uint32(ext[0]) - 1
		}

		if isIndex {
			indexTimes = append(indexTimes, accumulated)
			continue
		}

		accumulated += uint64(float64(ticks) * tickPeriodNs)
		transitions = append(transitions, accumulated)
	}

	if err := c.doCommand([]byte{cmdGetFluxStatus, 2}); err != nil {
		if !errors.Is(err, protocol.ErrNoDiskInDrive) {
			return RotationInfo{}, fmt.Errorf("flux status: %w", err)
		}
	}

	if len(indexTimes) < 2 {
		return RotationInfo{}, fmt.Errorf("%w: fewer than two index pulses in sample", protocol.ErrNoDiskInDrive)
	}

	trackDurationNs := indexTimes[1] - indexTimes[0]
	rpm := roundRPM(60e9 / float64(trackDurationNs))
	bitRate := roundBitRate(float64(len(transitions)) * 1e6 / float64(trackDurationNs))

	decoder := codec.NewDecoder(transitions, bitRate)
	bits := 0
	for {
		sym, ok := decoder.NextSymbol()
		if !ok {
			break
		}
		bits += int(sym.RunLength) + 1
	}

	return RotationInfo{
		RPM:            rpm,
		BitRateKbps:    bitRate,
		DecodedBits:    bits,
		MatchesNominal: bitRate >= 450 && bitRate <= 550,
	}, nil
}

// roundRPM snaps a raw RPM measurement to one of the two standard floppy
// drive speeds.
func roundRPM(raw float64) uint16 {
	if raw < 330 {
		return 300
	}
	return 360
}

// roundBitRate snaps a raw bits/ms measurement to one of the three
// standard floppy drive bit rates.
func roundBitRate(raw float64) uint16 {
	switch {
	case raw < 375:
		return 250
	case raw < 750:
		return 500
	default:
		return 1000
	}
}
