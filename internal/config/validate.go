package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "load.batch_size"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static validation of a Dashboard. It does not mutate d.
func Validate(d Dashboard) []Issue {
	var issues []Issue

	if strings.TrimSpace(d.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling",
		})
	}
	issues = append(issues, validatePaths(d.Paths)...)
	issues = append(issues, validateSources(d.Sources)...)
	issues = append(issues, validateFetch(d.Fetch)...)
	issues = append(issues, validateStorage(d.Storage)...)
	issues = append(issues, validateLoad(d.Load)...)
	issues = append(issues, validateServer(d.Server)...)
	issues = append(issues, validateMetrics(d.Metrics)...)
	return issues
}

func validatePaths(p Paths) []Issue {
	var issues []Issue
	for _, f := range []struct{ path, v string }{
		{"paths.raw_csv", p.RawCSV},
		{"paths.clean_csv", p.CleanCSV},
		{"paths.geo_json", p.GeoJSON},
	} {
		if strings.TrimSpace(f.v) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: f.path, Message: "path must not be empty"})
		}
	}
	if p.RawCSV != "" && p.RawCSV == p.CleanCSV {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "paths.clean_csv",
			Message:  "clean_csv must differ from raw_csv; the cleaner would truncate its own input",
		})
	}
	return issues
}

func validateSources(s Sources) []Issue {
	var issues []Issue
	check := func(path, raw string) {
		if strings.TrimSpace(raw) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: "source must not be empty"})
			return
		}
		u, err := url.Parse(raw)
		if err != nil {
			issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf("invalid URL: %v", err)})
			return
		}
		switch u.Scheme {
		case "http", "https", "s3", "file", "":
		default:
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  fmt.Sprintf("unsupported scheme %q; use http(s), s3, file or a bare path", u.Scheme),
			})
		}
		if u.Scheme == "http" {
			issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: "plain http source; prefer https"})
		}
	}
	check("sources.csv_url", s.CSVURL)
	check("sources.geo_url", s.GeoURL)
	return issues
}

func validateFetch(f Fetch) []Issue {
	var issues []Issue
	if f.Timeout.D() <= 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "fetch.timeout", Message: "timeout must be positive"})
	}
	if f.GeoTimeout.D() <= 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "fetch.geo_timeout", Message: "geo_timeout must be positive"})
	}
	if f.MaxRetries < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "fetch.max_retries", Message: "max_retries must not be negative"})
	}
	if f.InsecureSkipVerify {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "fetch.insecure_skip_verify",
			Message:  "TLS verification is disabled",
		})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	switch strings.TrimSpace(s.Kind) {
	case "":
		issues = append(issues, Issue{Severity: SeverityError, Path: "storage.kind", Message: "storage.kind must not be empty"})
	case "sqlite", "postgres":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; expected sqlite or postgres", s.Kind),
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "storage.dsn", Message: "storage.dsn must not be empty"})
	}
	if strings.TrimSpace(s.Table) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "storage.table", Message: "storage.table must not be empty"})
	}
	if s.Kind == "postgres" && s.DSN != "" && !strings.Contains(s.DSN, "://") && !strings.Contains(s.DSN, "=") {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.dsn",
			Message:  "postgres dsn looks like a file path; expected postgresql://... or key=value form",
		})
	}
	return issues
}

func validateLoad(l LoadConfig) []Issue {
	var issues []Issue
	if l.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "load.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; must be positive", l.BatchSize),
		})
	} else if l.BatchSize < 1000 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "load.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; small batches slow down the import", l.BatchSize),
		})
	}
	if l.RejectSamples < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "load.reject_samples", Message: "reject_samples must not be negative"})
	}
	if l.ForceReimport {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "load.force_reimport",
			Message:  "force_reimport empties the table on every run",
		})
	}
	return issues
}

func validateServer(s Server) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Addr) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "server.addr", Message: "server.addr must not be empty"})
	}
	if p := s.PollInterval.D(); p <= 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "server.poll_interval", Message: "poll_interval must be positive"})
	} else if p < 250*time.Millisecond {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: "server.poll_interval", Message: "poll_interval below 250ms"})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "pushgateway", "prom", "prometheus":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway backend without URL; metrics are only scrapeable on /metrics",
			})
		}
	case "datadog", "dogstatsd":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: "metrics.datadog_addr", Message: "datadog backend requires an address"})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics disabled", m.Backend),
		})
	}
	return issues
}
