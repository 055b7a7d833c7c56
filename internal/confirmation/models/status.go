package models

import "time"

// Window is how long an unconfirmed account may wait for confirmation.
const Window = 600 * time.Second

// GracePeriod backdates a missing confirmation timestamp so the account keeps
// half of the window.
const GracePeriod = 5 * time.Minute

// Status is the Confirmation Tracker's answer for one identity.
type Status struct {
	Confirmed            bool `json:"confirmed"`
	Expired              bool `json:"expired"`
	MinutesLeft          *int `json:"minutesLeft,omitempty"`
	NeedsProfileCreation bool `json:"needsProfileCreation,omitempty"`
}

func Confirmed() Status {
	return Status{Confirmed: true}
}

func Expired() Status {
	return Status{Expired: true}
}

func Pending(minutesLeft int) Status {
	return Status{MinutesLeft: &minutesLeft}
}

// Missing reports an identity without a profile row. The full window is
// granted because no clock has started.
func Missing(window time.Duration) Status {
	s := Pending(int(window / time.Minute))
	s.NeedsProfileCreation = true
	return s
}

func (s Status) Terminal() bool {
	return s.Confirmed || s.Expired
}

// Remaining converts MinutesLeft into a countdown; ok is false when the status
// carries no estimate.
func (s Status) Remaining() (time.Duration, bool) {
	if s.MinutesLeft == nil {
		return 0, false
	}
	return time.Duration(*s.MinutesLeft) * time.Minute, true
}

// Source names the trigger that resolved a confirmation lifecycle.
type Source string

const (
	SourcePoll     Source = "poll"
	SourceTick     Source = "tick"
	SourceManual   Source = "manual"
	SourceProvider Source = "provider"
	SourceSweep    Source = "sweep"
)
