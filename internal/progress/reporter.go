package progress

import (
	"log"
	"sync"
)

// Reporter receives human-readable progress lines. Tags follow the
// transcript convention: "[STEP] ", "[INFO] ", "[OK] ", "[ERREUR] ".
type Reporter func(message string)

// Discard drops every message.
func Discard(string) {}

// LogReporter forwards messages to the standard logger.
func LogReporter(message string) { log.Print(message) }

// Or returns r, or Discard when r is nil.
func Or(r Reporter) Reporter {
	if r == nil {
		return Discard
	}
	return r
}

// Tee fans a message out to every non-nil reporter, in order.
func Tee(rs ...Reporter) Reporter {
	return func(message string) {
		for _, r := range rs {
			if r != nil {
				r(message)
			}
		}
	}
}

// Recorder is a Reporter that keeps every message; handy in tests and for
// commands that print a summary at the end.
type Recorder struct {
	mu   sync.Mutex
	msgs []string
}

// Report appends message.
func (r *Recorder) Report(message string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, message)
	r.mu.Unlock()
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}
