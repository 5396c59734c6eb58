package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type call struct {
	name   string
	value  float64
	labels Labels
}

// recorder keeps every call it receives.
type recorder struct {
	mu       sync.Mutex
	counters []call
	hists    []call
	flushes  int
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	r.counters = append(r.counters, call{name, delta, labels})
	r.mu.Unlock()
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	r.hists = append(r.hists, call{name, value, labels})
	r.mu.Unlock()
}

func (r *recorder) Flush() error {
	r.mu.Lock()
	r.flushes++
	r.mu.Unlock()
	return nil
}

// install swaps the global backend for the duration of the test.
func install(t *testing.T) *recorder {
	t.Helper()
	mu.Lock()
	orig := backend
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		backend = orig
		mu.Unlock()
	})
	r := &recorder{}
	SetBackend(r)
	return r
}

func TestRecordStep(t *testing.T) {
	r := install(t)

	RecordStep("effectifs", "fetch_csv", nil, 2*time.Second)
	RecordStep("effectifs", "load", errors.New("disk full"), 1500*time.Millisecond)

	tests := []struct {
		step, status string
		secs         float64
	}{
		{"fetch_csv", "success", 2},
		{"load", "failure", 1.5},
	}
	if len(r.counters) != len(tests) || len(r.hists) != len(tests) {
		t.Fatalf("counters=%d hists=%d, want %d each", len(r.counters), len(r.hists), len(tests))
	}
	for i, tc := range tests {
		c, h := r.counters[i], r.hists[i]
		if c.name != StepTotal || c.value != 1 {
			t.Fatalf("counter[%d] = %+v", i, c)
		}
		if c.labels["job"] != "effectifs" || c.labels["step"] != tc.step || c.labels["status"] != tc.status {
			t.Fatalf("counter[%d] labels = %v", i, c.labels)
		}
		if h.name != StepDuration || h.value != tc.secs || h.labels["status"] != tc.status {
			t.Fatalf("hist[%d] = %+v", i, h)
		}
	}
}

func TestRecordRowAndBatches(t *testing.T) {
	r := install(t)

	RecordRow("effectifs", "kept", 4)
	RecordRow("effectifs", "dropped", 0)
	RecordRow("effectifs", "rejected", -1)
	RecordRow("effectifs", "inserted", 20_001)
	RecordBatches("effectifs", 2)
	RecordBatches("effectifs", 0)

	want := []call{
		{RowsTotal, 4, Labels{"job": "effectifs", "kind": "kept"}},
		{RowsTotal, 20_001, Labels{"job": "effectifs", "kind": "inserted"}},
		{BatchesTotal, 2, Labels{"job": "effectifs"}},
	}
	if len(r.counters) != len(want) {
		t.Fatalf("counters = %+v", r.counters)
	}
	for i, w := range want {
		got := r.counters[i]
		if got.name != w.name || got.value != w.value || len(got.labels) != len(w.labels) {
			t.Fatalf("counter[%d] = %+v, want %+v", i, got, w)
		}
		for k, v := range w.labels {
			if got.labels[k] != v {
				t.Fatalf("counter[%d] label %s = %q, want %q", i, k, got.labels[k], v)
			}
		}
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	r := install(t)

	if err := Flush(); err != nil || r.flushes != 1 {
		t.Fatalf("Flush = %v, flushes = %d", err, r.flushes)
	}
	SetBackend(nil)
	if current() != Backend(r) {
		t.Fatalf("SetBackend(nil) replaced the backend")
	}
}

func TestNopBackend(t *testing.T) {
	var b Backend = nopBackend{}
	b.IncCounter(RowsTotal, 1, nil)
	b.ObserveHistogram(StepDuration, 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("nop Flush: %v", err)
	}
}

func TestConcurrentRecording(t *testing.T) {
	r := install(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				RecordRow("effectifs", "inserted", 1)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		SetBackend(r)
	}()
	wg.Wait()

	if len(r.counters) != 800 {
		t.Fatalf("counters = %d, want 800", len(r.counters))
	}
}
