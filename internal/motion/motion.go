// Package motion reads the motion sensor feed. The microcontroller sends one
// ASCII token per line: "1" for motion, "0" for no motion.
package motion

import (
	"errors"
	"strings"

	"github.com/kozaktomas/gatekeeper/internal/constants"
)

// ErrPortUnavailable means the serial port could not be opened.
var ErrPortUnavailable = errors.New("motion port unavailable")

// Event is the meaning of one line on the wire.
type Event int

const (
	Unknown Event = iota
	NoMotion
	Motion
)

func (e Event) String() string {
	switch e {
	case Motion:
		return "motion"
	case NoMotion:
		return "no-motion"
	default:
		return "unknown"
	}
}

// Message is one decoded line.
type Message struct {
	Event Event
	Raw   string
}

// ParseLine decodes a raw line. Invalid UTF-8 is dropped and surrounding
// whitespace (including the line terminator) is trimmed before the token is
// compared.
func ParseLine(raw []byte) Message {
	text := strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
	switch text {
	case constants.MotionToken:
		return Message{Event: Motion, Raw: text}
	case constants.NoMotionToken:
		return Message{Event: NoMotion, Raw: text}
	default:
		return Message{Event: Unknown, Raw: text}
	}
}

// Channel is a source of motion messages.
type Channel interface {
	// Poll returns the next complete message if one has arrived. ok is false
	// when no full line is buffered yet; Poll never blocks for long.
	Poll() (msg Message, ok bool, err error)
	// Reset discards buffered input.
	Reset() error
	Close() error
}
