package progress

import (
	"encoding/json"
	"time"
)

// Snapshot is an immutable view of a Tracker. CurrentStep and FinishedAt are
// nil when absent.
type Snapshot struct {
	Messages    []string
	Completed   bool
	Success     bool
	NeedsSetup  bool
	CurrentStep *string
	FinishedAt  *time.Time
}

// Running reports whether a run is required or in flight.
func (s Snapshot) Running() bool { return s.NeedsSetup && !s.Completed }

// Failed reports a completed run that did not succeed.
func (s Snapshot) Failed() bool { return s.Completed && !s.Success }

// Status is the wire form consumed by the polling page. Every key is always
// present; absent values encode as null.
type Status struct {
	Messages    []string `json:"messages"`
	Completed   bool     `json:"completed"`
	Success     bool     `json:"success"`
	NeedsSetup  bool     `json:"needs_setup"`
	CurrentStep *string  `json:"current_step"`
	FinishedAt  *float64 `json:"finished_at"`
}

// Status converts the snapshot to its wire form. finished_at is expressed in
// fractional unix seconds.
func (s Snapshot) Status() Status {
	st := Status{
		Messages:    s.Messages,
		Completed:   s.Completed,
		Success:     s.Success,
		NeedsSetup:  s.NeedsSetup,
		CurrentStep: s.CurrentStep,
	}
	if st.Messages == nil {
		st.Messages = []string{}
	}
	if s.FinishedAt != nil {
		secs := float64(s.FinishedAt.Unix()) + float64(s.FinishedAt.Nanosecond())/float64(time.Second)
		st.FinishedAt = &secs
	}
	return st
}

// MarshalJSON encodes the snapshot as its Status.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Status())
}
