package usc

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupportedProvider means the requested login provider has no
	// implemented flow. Only the UvA federated login works today.
	ErrUnsupportedProvider = errors.New("unsupported login provider")
	// ErrNavigationExhausted means the day strip was advanced or
	// rewound past the safety bound without reaching the target. This
	// indicates the portal changed its calendar markup.
	ErrNavigationExhausted = errors.New("day navigation exhausted safety bound")
	// ErrSlotNotFound means no slot card on the selected day matched
	// the requested sport and start time.
	ErrSlotNotFound = errors.New("no slot card matches sport and time")
)

// AuthenticationError wraps a failed login step. It is fatal, the
// session never retries a login.
type AuthenticationError struct {
	Step string
	Err  error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed at %q: %s", e.Step, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// SportNotFoundError means no filter entry's label matched the sport
// exactly. Sport names must match the portal's casing and spelling.
// Suggestion carries the closest label seen, if any was close enough.
type SportNotFoundError struct {
	Sport      string
	Suggestion string
}

func (e *SportNotFoundError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("sport %q not found in filter, did you mean %q?", e.Sport, e.Suggestion)
	}
	return fmt.Sprintf("sport %q not found in filter", e.Sport)
}

// PastDateError means the caller asked for a date strictly before
// today. No navigation is performed before it is raised.
type PastDateError struct {
	Date time.Time
}

func (e *PastDateError) Error() string {
	return fmt.Sprintf("date %s is in the past", e.Date.Format("2006-01-02"))
}

// TimeExtractionError means a slot card's start time label was blank.
type TimeExtractionError struct {
	Slot string
}

func (e *TimeExtractionError) Error() string {
	return fmt.Sprintf("time extraction failed for slot %s", e.Slot)
}
