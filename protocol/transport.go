package protocol

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// TimeoutMode selects between the streaming read timeout (used to pump
// bytes during a flux read without stalling the background worker for
// long) and the long timeout used for command/response exchanges.
type TimeoutMode int

const (
	TimeoutShort TimeoutMode = iota
	TimeoutLong
)

const (
	shortReadTimeout = 5 * time.Millisecond
	longReadTimeout  = 2 * time.Second
)

// Transport wraps a single serial port with the framed byte-I/O primitives
// both controller variants are built on: exact-length reads with a
// timeout, best-effort drains, all-or-nothing writes, and purge/close.
type Transport struct {
	port serial.Port
	name string
}

// OpenTransport opens the named serial device at the given baud rate, 8N1,
// no flow control, and sets the long read timeout.
func OpenTransport(name string, baud int) (*Transport, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPortNotFound, name, err)
	}
	t := &Transport{port: port, name: name}
	if err := t.SetTimeouts(TimeoutLong); err != nil {
		port.Close()
		return nil, err
	}
	return t, nil
}

// SetBaud reconfigures the baud rate on an already-open port. Variant F
// uses this to twiddle the rate as a soft-reset signal to the device.
func (t *Transport) SetBaud(baud int) error {
	if err := t.port.SetMode(&serial.Mode{BaudRate: baud}); err != nil {
		return fmt.Errorf("%w: set baud %d: %v", ErrConfigError, baud, err)
	}
	return nil
}

// SetTimeouts selects the short (streaming) or long (command/response)
// read timeout. go.bug.st/serial exposes a single total read timeout
// rather than the interval+total pair a native COMMTIMEOUTS struct would
// give us, so the short mode collapses to its total value.
func (t *Transport) SetTimeouts(mode TimeoutMode) error {
	var d time.Duration
	switch mode {
	case TimeoutShort:
		d = shortReadTimeout
	default:
		d = longReadTimeout
	}
	if err := t.port.SetReadTimeout(d); err != nil {
		return fmt.Errorf("%w: set read timeout: %v", ErrConfigError, err)
	}
	return nil
}

// ReadExact reads exactly len(buf) bytes, retrying short reads until the
// buffer is full or the deadline set by SetTimeouts elapses.
func (t *Transport) ReadExact(buf []byte) error {
	_, err := io.ReadFull(t.port, buf)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return fmt.Errorf("%w: wanted %d bytes", ErrIoShort, len(buf))
		}
		return fmt.Errorf("%w: %v", ErrIoTimeout, err)
	}
	return nil
}

// ReadUpTo reads at most len(buf) bytes, returning however many arrived
// before the current read timeout elapsed. Used on the streaming hot path
// where a short read is not an error, just a smaller chunk.
func (t *Transport) ReadUpTo(buf []byte) (int, error) {
	n, err := t.port.Read(buf)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrIoTimeout, err)
	}
	return n, nil
}

// WriteAll writes buf in full, looping over partial writes.
func (t *Transport) WriteAll(buf []byte) error {
	for len(buf) > 0 {
		n, err := t.port.Write(buf)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIoAborted, err)
		}
		buf = buf[n:]
	}
	return nil
}

// PurgeRx discards any buffered, unread input.
func (t *Transport) PurgeRx() error {
	return t.port.ResetInputBuffer()
}

// ToggleDTR drops and re-raises DTR with a short gap, the reset sequence
// Variant V devices use in place of a hardware reset line.
func (t *Transport) ToggleDTR(settle time.Duration) error {
	if err := t.port.SetDTR(false); err != nil {
		return fmt.Errorf("%w: clear DTR: %v", ErrConfigError, err)
	}
	time.Sleep(settle)
	if err := t.port.SetDTR(true); err != nil {
		return fmt.Errorf("%w: set DTR: %v", ErrConfigError, err)
	}
	return nil
}

// Close releases the underlying serial port.
func (t *Transport) Close() error {
	return t.port.Close()
}

// Name returns the device path or COM port name this transport was opened
// against.
func (t *Transport) Name() string {
	return t.name
}
