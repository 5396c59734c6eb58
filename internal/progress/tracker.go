// Package progress tracks the state of the data initialization run so that a
// polling client (the web page, or a CLI) can render a live transcript.
//
// A single Tracker is shared between one writer (the background pipeline
// goroutine) and any number of readers (HTTP handlers). Every mutation and
// every Snapshot happens under one mutex; readers only ever see fully
// copied values, so a snapshot can never pair completed=true with a step
// label from before the completion.
package progress

import (
	"strings"
	"sync"
	"time"
)

// StepPrefix tags a message as a step announcement. Log updates the current
// step when a message starts with it.
const StepPrefix = "[STEP] "

// Labels written by Reset and MarkComplete.
const (
	StepPending   = "Initialisation en attente"
	StepSucceeded = "Initialisation terminee"
	StepFailed    = "Initialisation echouee"
)

// Tracker is the lock-guarded initialization state.
type Tracker struct {
	mu  sync.Mutex
	now func() time.Time

	messages    []string
	completed   bool
	success     bool
	needsSetup  bool
	currentStep *string
	finishedAt  *time.Time
}

// New returns an idle Tracker. A nil clock defaults to time.Now.
func New(clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{now: clock}
}

// Reset clears the log and completion record. When needsSetup is true the
// log is seeded with a pending step announcement.
func (t *Tracker) Reset(needsSetup bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = t.messages[:0:0]
	t.completed = false
	t.success = false
	t.needsSetup = needsSetup
	t.finishedAt = nil
	t.currentStep = nil
	if needsSetup {
		t.currentStep = strPtr(StepPending)
		t.messages = append(t.messages, StepPrefix+StepPending)
	}
}

// Log appends message to the transcript. A "[STEP] " message also moves the
// current step; an empty label after the prefix clears it.
func (t *Tracker) Log(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if strings.HasPrefix(message, StepPrefix) {
		if label := strings.TrimSpace(message[len(StepPrefix):]); label != "" {
			t.currentStep = strPtr(label)
		} else {
			t.currentStep = nil
		}
	}
	t.messages = append(t.messages, message)
}

// SetStep announces a step: the current step and the transcript entry are
// updated together.
func (t *Tracker) SetStep(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.currentStep = strPtr(label)
	t.messages = append(t.messages, StepPrefix+label)
}

// MarkComplete records the end of a run. Callers invoke it once per run; a
// second call overwrites the first record.
func (t *Tracker) MarkComplete(success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completed = true
	t.success = success
	if success {
		t.needsSetup = false
		t.currentStep = strPtr(StepSucceeded)
	} else {
		t.currentStep = strPtr(StepFailed)
	}
	at := t.now()
	t.finishedAt = &at
}

// Snapshot returns a detached copy of the whole state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Messages:   append([]string(nil), t.messages...),
		Completed:  t.completed,
		Success:    t.success,
		NeedsSetup: t.needsSetup,
	}
	if s.Messages == nil {
		s.Messages = []string{}
	}
	if t.currentStep != nil {
		s.CurrentStep = strPtr(*t.currentStep)
	}
	if t.finishedAt != nil {
		at := *t.finishedAt
		s.FinishedAt = &at
	}
	return s
}

func strPtr(s string) *string { return &s }
