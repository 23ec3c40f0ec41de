// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face matching constants
const (
	// DefaultDistanceThreshold is the default maximum descriptor distance for a face match.
	// Lower values = stricter matching
	DefaultDistanceThreshold = 0.5
)

// Motion channel constants
const (
	// DefaultPollInterval is the pause between two reads of the motion channel
	DefaultPollInterval = 100 * time.Millisecond

	// MaxChannelBackoff caps the pause between cycles while the motion channel keeps failing
	MaxChannelBackoff = 30 * time.Second

	// DefaultSerialBaud is the baud rate of the microcontroller link
	DefaultSerialBaud = 115200

	// MotionToken and NoMotionToken are the only recognized wire tokens
	MotionToken   = "1"
	NoMotionToken = "0"
)

// Actuation and escalation constants
const (
	// DefaultDwell is how long the indicator stays asserted after a match
	DefaultDwell = 5 * time.Second

	// DefaultEscalationTimeout bounds each escalation action (notification, feed start)
	DefaultEscalationTimeout = 15 * time.Second

	// DefaultFeedSettle is the pause between the notification and the feed start
	DefaultFeedSettle = 2 * time.Second

	// AlertTemplate is the notification body; the only argument is the live-feed URL
	AlertTemplate = "Unverified person at the gate.\nHere is the live camera feed: %s"
)

// Live feed constants
const (
	// DefaultFeedFrameInterval is the pause between two frames of the MJPEG stream
	DefaultFeedFrameInterval = 500 * time.Millisecond

	// DefaultFeedStartGrace is how long a started feed process must stay up to count as launched
	DefaultFeedStartGrace = 500 * time.Millisecond
)
