package gate

import (
	"time"

	"github.com/kozaktomas/gatekeeper/internal/camera"
	"github.com/kozaktomas/gatekeeper/internal/escalation"
	"github.com/kozaktomas/gatekeeper/internal/matcher"
	"github.com/kozaktomas/gatekeeper/internal/motion"
)

// State is a step of the verification cycle.
type State int

const (
	AwaitingMotion State = iota
	Capturing
	Matching
	Actuating
	Escalating
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingMotion:
		return "awaiting-motion"
	case Capturing:
		return "capturing"
	case Matching:
		return "matching"
	case Actuating:
		return "actuating"
	case Escalating:
		return "escalating"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Outcome is the decision reached by a cycle.
type Outcome int

const (
	// Pending means the cycle ended before reaching a decision, e.g. when
	// the process was interrupted.
	Pending Outcome = iota
	Verified
	Unverified
	CaptureFailed
	AmbiguousFace
	// Idle means no motion arrived before the motion timeout.
	Idle
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case Unverified:
		return "unverified"
	case CaptureFailed:
		return "capture-failed"
	case AmbiguousFace:
		return "ambiguous-face"
	case Idle:
		return "idle"
	default:
		return "pending"
	}
}

// Escalates reports whether the outcome goes to a human.
func (o Outcome) Escalates() bool {
	return o == Unverified || o == CaptureFailed || o == AmbiguousFace
}

// Cycle records one pass through the state machine.
type Cycle struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time

	Motion  motion.Message
	Frame   camera.Frame
	Match   matcher.Result
	Outcome Outcome
	// Err is the collaborator failure that decided the outcome, if any.
	Err error

	// States lists every state entered, in order.
	States     []State
	Escalation *escalation.Report
}

// Visited reports whether the cycle entered state s.
func (c *Cycle) Visited(s State) bool {
	for _, v := range c.States {
		if v == s {
			return true
		}
	}
	return false
}
