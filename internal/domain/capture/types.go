// Package capture defines the states, frames and retry policy of biometric capture.
package capture

import (
	"image"
	"time"
)

// State is a capture state machine state.
type State string

const (
	StateIdle       State = "IDLE"
	StateActive     State = "ACTIVE"
	StateDetecting  State = "DETECTING"
	StateSuccess    State = "SUCCESS"
	StateErrorRetry State = "ERROR_RETRY"
)

// HoldsDevice reports whether a machine in state s owns an open camera handle.
func (s State) HoldsDevice() bool {
	return s == StateActive || s == StateDetecting
}

// Frame is a single still rendered off-screen from the camera feed.
type Frame struct {
	Image      *image.NRGBA
	Digest     string
	CapturedAt time.Time
}

// Candidate is a detector's best guess for a frame.
type Candidate struct {
	Key        string  `json:"key"`
	Confidence float64 `json:"confidence"`
}

// EventKind enumerates what a capture event reports.
type EventKind string

const (
	EventTransition     EventKind = "transition"
	EventRetryScheduled EventKind = "retry_scheduled"
	EventExhausted      EventKind = "exhausted"
	EventMatched        EventKind = "matched"
)

// Event is published to machine subscribers.
type Event struct {
	Kind    EventKind
	From    State
	To      State
	Attempt int
	Key     string
	Err     error
}
