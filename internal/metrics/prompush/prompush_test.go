package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"effectifs/internal/metrics"
)

// gather returns the metric families of b keyed by name.
func gather(t *testing.T, b *Backend) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := b.reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

// find returns the metric of family whose labels include want.
func find(t *testing.T, mf *dto.MetricFamily, want map[string]string) *dto.Metric {
	t.Helper()
	if mf == nil {
		t.Fatalf("family not gathered")
	}
next:
	for _, m := range mf.GetMetric() {
		have := map[string]string{}
		for _, lp := range m.GetLabel() {
			have[lp.GetName()] = lp.GetValue()
		}
		for k, v := range want {
			if have[k] != v {
				continue next
			}
		}
		return m
	}
	t.Fatalf("%s: no metric with labels %v", mf.GetName(), want)
	return nil
}

func TestNewBackend_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		job, gateway, wantJob string
	}{
		{"effectifs-serve", "", "effectifs-serve"},
		{"", "http://pushgateway:9091", "effectifs"},
	}
	for _, tc := range tests {
		b, err := NewBackend(tc.job, tc.gateway)
		if err != nil {
			t.Fatalf("NewBackend(%q, %q): %v", tc.job, tc.gateway, err)
		}
		if b.jobName != tc.wantJob || b.gatewayURL != tc.gateway {
			t.Fatalf("backend job=%q gateway=%q", b.jobName, b.gatewayURL)
		}
	}
}

func TestRecordsPipelineRun(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("effectifs", "")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	step := func(name, status string, secs float64) {
		l := metrics.Labels{"job": "effectifs", "step": name, "status": status}
		b.IncCounter(metrics.StepTotal, 1, l)
		b.ObserveHistogram(metrics.StepDuration, secs, l)
	}
	step("fetch_csv", "success", 1.5)
	step("load", "success", 3)
	step("load", "failure", 0.5)
	b.IncCounter(metrics.RowsTotal, 4, metrics.Labels{"kind": "kept"})
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "dropped"})
	b.IncCounter(metrics.BatchesTotal, 2, nil)
	b.IncCounter("unknown_total", 1, nil)
	b.ObserveHistogram(metrics.RowsTotal, 1, nil)

	fams := gather(t, b)
	if len(fams) != 4 {
		t.Fatalf("families = %d, want 4", len(fams))
	}
	if v := find(t, fams[metrics.StepTotal], map[string]string{"step": "load", "status": "success"}).GetCounter().GetValue(); v != 1 {
		t.Fatalf("load success = %v", v)
	}
	s := find(t, fams[metrics.StepDuration], map[string]string{"step": "load", "status": "failure"}).GetSummary()
	if s.GetSampleCount() != 1 || s.GetSampleSum() != 0.5 {
		t.Fatalf("load failure summary = %d/%v", s.GetSampleCount(), s.GetSampleSum())
	}
	if v := find(t, fams[metrics.RowsTotal], map[string]string{"kind": "kept"}).GetCounter().GetValue(); v != 4 {
		t.Fatalf("kept = %v", v)
	}
	if v := find(t, fams[metrics.BatchesTotal], nil).GetCounter().GetValue(); v != 2 {
		t.Fatalf("batches = %v", v)
	}
}

func TestFlush_PushesToGateway(t *testing.T) {
	t.Parallel()

	type pushed struct {
		method, path string
		body         int
	}
	got := make(chan pushed, 1)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- pushed{r.Method, r.URL.Path, len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer gw.Close()

	b, err := NewBackend("effectifs-prepare", gw.URL)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 3, metrics.Labels{"kind": "inserted"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	select {
	case p := <-got:
		if p.method != http.MethodPut || p.path != "/metrics/job/effectifs-prepare" || p.body == 0 {
			t.Fatalf("push = %+v", p)
		}
	default:
		t.Fatalf("Flush sent nothing to the gateway")
	}
}

func TestFlush_GatewayError(t *testing.T) {
	t.Parallel()

	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer gw.Close()

	b, err := NewBackend("effectifs", gw.URL)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if err := b.Flush(); err == nil {
		t.Fatalf("Flush succeeded against a failing gateway")
	}
}

func TestFlushWithoutGateway(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("effectifs", "")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush = %v, want nil", err)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("effectifs", "")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 7, metrics.Labels{"kind": "inserted"})
	b.IncCounter(metrics.BatchesTotal, 1, nil)

	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`effectifs_rows_total{kind="inserted"} 7`,
		`effectifs_batches_total 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("scrape output missing %q:\n%s", want, body)
		}
	}
}

func BenchmarkIncCounterRows(b *testing.B) {
	be, err := NewBackend("bench", "")
	if err != nil {
		b.Fatalf("NewBackend: %v", err)
	}
	lbls := metrics.Labels{"kind": "inserted"}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		be.IncCounter(metrics.RowsTotal, 1, lbls)
	}
}
