package motion

import (
	"bytes"
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/kozaktomas/gatekeeper/internal/constants"
)

const (
	// readTimeout bounds a single Poll; the caller sleeps between polls.
	readTimeout = 10 * time.Millisecond
	// maxLineLength is the longest line kept while waiting for a newline.
	maxLineLength = 1024
)

// Port is the part of a serial port the channel uses. serial.Port satisfies it.
type Port interface {
	Read(p []byte) (int, error)
	ResetInputBuffer() error
	Close() error
}

// LineChannel assembles newline-terminated messages from a byte stream.
type LineChannel struct {
	port    Port
	pending []byte
	buf     []byte
}

// NewLineChannel wraps an opened port. The port must return from Read
// promptly when no data is available.
func NewLineChannel(port Port) *LineChannel {
	return &LineChannel{port: port, buf: make([]byte, 256)}
}

// OpenSerial opens the serial device with 8N1 framing at the given baud rate.
// A non-positive baud selects the default rate.
func OpenSerial(device string, baud int) (*LineChannel, error) {
	if baud <= 0 {
		baud = constants.DefaultSerialBaud
	}
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPortUnavailable, device, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: %s: failed to set read timeout: %v", ErrPortUnavailable, device, err)
	}
	return NewLineChannel(port), nil
}

// Poll returns the next buffered line, reading from the port once if none is
// complete yet.
func (c *LineChannel) Poll() (Message, bool, error) {
	if msg, ok := c.nextLine(); ok {
		return msg, true, nil
	}

	n, err := c.port.Read(c.buf)
	if n > 0 {
		c.pending = append(c.pending, c.buf[:n]...)
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("serial read failed: %w", err)
	}

	if msg, ok := c.nextLine(); ok {
		return msg, true, nil
	}
	if len(c.pending) > maxLineLength {
		// garbage without line breaks, report it once and start over
		msg := ParseLine(c.pending)
		c.pending = c.pending[:0]
		return msg, true, nil
	}
	return Message{}, false, nil
}

func (c *LineChannel) nextLine() (Message, bool) {
	i := bytes.IndexByte(c.pending, '\n')
	if i < 0 {
		return Message{}, false
	}
	line := c.pending[:i]
	msg := ParseLine(line)
	c.pending = append(c.pending[:0], c.pending[i+1:]...)
	return msg, true
}

// Reset drops everything buffered in the port and in the channel.
func (c *LineChannel) Reset() error {
	c.pending = c.pending[:0]
	return c.port.ResetInputBuffer()
}

// Close closes the port.
func (c *LineChannel) Close() error {
	return c.port.Close()
}
