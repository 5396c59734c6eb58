package config

import (
	"strings"
	"testing"
)

func hasIssue(issues []Issue, sev IssueSeverity, path string) bool {
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path {
			return true
		}
	}
	return false
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Dashboard)
		sev    IssueSeverity
		path   string
	}{
		{"empty job", func(d *Dashboard) { d.Job = " " }, SeverityError, "job"},
		{"same raw and clean", func(d *Dashboard) { d.Paths.CleanCSV = d.Paths.RawCSV }, SeverityError, "paths.clean_csv"},
		{"empty geo path", func(d *Dashboard) { d.Paths.GeoJSON = "" }, SeverityError, "paths.geo_json"},
		{"ftp source", func(d *Dashboard) { d.Sources.CSVURL = "ftp://host/x.csv" }, SeverityError, "sources.csv_url"},
		{"plain http", func(d *Dashboard) { d.Sources.GeoURL = "http://host/x.json" }, SeverityWarning, "sources.geo_url"},
		{"zero timeout", func(d *Dashboard) { d.Fetch.Timeout = 0 }, SeverityError, "fetch.timeout"},
		{"negative retries", func(d *Dashboard) { d.Fetch.MaxRetries = -1 }, SeverityError, "fetch.max_retries"},
		{"insecure tls", func(d *Dashboard) { d.Fetch.InsecureSkipVerify = true }, SeverityWarning, "fetch.insecure_skip_verify"},
		{"mysql kind", func(d *Dashboard) { d.Storage.Kind = "mysql" }, SeverityError, "storage.kind"},
		{"empty table", func(d *Dashboard) { d.Storage.Table = "" }, SeverityError, "storage.table"},
		{"postgres file dsn", func(d *Dashboard) { d.Storage.Kind = "postgres" }, SeverityWarning, "storage.dsn"},
		{"zero batch", func(d *Dashboard) { d.Load.BatchSize = 0 }, SeverityError, "load.batch_size"},
		{"tiny batch", func(d *Dashboard) { d.Load.BatchSize = 10 }, SeverityWarning, "load.batch_size"},
		{"force reimport", func(d *Dashboard) { d.Load.ForceReimport = true }, SeverityWarning, "load.force_reimport"},
		{"no addr", func(d *Dashboard) { d.Server.Addr = "" }, SeverityError, "server.addr"},
		{"fast polling", func(d *Dashboard) { d.Server.PollInterval = Duration(1) }, SeverityWarning, "server.poll_interval"},
		{"datadog without addr", func(d *Dashboard) { d.Metrics.Backend = "datadog"; d.Metrics.DatadogAddr = "" }, SeverityError, "metrics.datadog_addr"},
		{"unknown metrics", func(d *Dashboard) { d.Metrics.Backend = "statsd" }, SeverityWarning, "metrics.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Default()
			tt.mutate(&d)
			issues := Validate(d)
			if !hasIssue(issues, tt.sev, tt.path) {
				t.Fatalf("want %s at %s, got %v", tt.sev, tt.path, issues)
			}
		})
	}
}

func TestIssue_Error(t *testing.T) {
	t.Parallel()

	err := error(Issue{Severity: SeverityError, Path: "load.batch_size", Message: "must be positive"})
	if !strings.Contains(err.Error(), "error at load.batch_size") {
		t.Fatalf("Error() = %q", err.Error())
	}
}
