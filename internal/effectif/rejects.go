package effectif

import "sync"

// DefaultRejectSamples is the number of rejections kept verbatim.
const DefaultRejectSamples = 10

// RejectLog counts every rejection and keeps the first few. Safe for
// concurrent use.
type RejectLog struct {
	mu     sync.Mutex
	limit  int
	count  int
	first  []Rejection
	fields map[string]int
}

// NewRejectLog keeps up to limit samples; limit <= 0 means DefaultRejectSamples.
func NewRejectLog(limit int) *RejectLog {
	if limit <= 0 {
		limit = DefaultRejectSamples
	}
	return &RejectLog{limit: limit, fields: make(map[string]int)}
}

// Add records r.
func (l *RejectLog) Add(r Rejection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fields[r.Field]++
	if len(l.first) < l.limit {
		l.first = append(l.first, r)
	}
	l.count++
}

// Count is the total number of rejections seen.
func (l *RejectLog) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Samples returns a copy of the kept rejections, in arrival order.
func (l *RejectLog) Samples() []Rejection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Rejection(nil), l.first...)
}

// ByField returns rejection counts keyed by first offending field.
func (l *RejectLog) ByField() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.fields))
	for k, v := range l.fields {
		out[k] = v
	}
	return out
}
