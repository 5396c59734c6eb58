// Package config defines the canonical, JSON-serializable configuration model
// for the effectifs dashboard. A Dashboard value is built from Default(),
// optionally overlaid by a JSON file (Load) and by EFFECTIFS_* environment
// variables (ApplyEnv), and passed through the program without further glue.
//
// Example (trimmed):
//
//	{
//	  "job":     "effectifs",
//	  "paths":   { "raw_csv": "data/raw/effectifs.csv", "clean_csv": "data/clean/csv_clean.csv" },
//	  "storage": { "kind": "sqlite", "dsn": "data/effectifs.sqlite3", "table": "effectifs" },
//	  "load":    { "batch_size": 20000 },
//	  "server":  { "addr": ":8050", "poll_interval": "2s" }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Source locations and local paths of the published dashboard.
const (
	DefaultCSVURL  = "https://data.ameli.fr/api/explore/v2.1/catalog/datasets/effectifs/exports/csv?use_labels=true"
	DefaultGeoURL  = "https://static.data.gouv.fr/resources/departements-et-leurs-regions/20190815-175403/departements-region.json"
	DefaultRawCSV  = "data/raw/effectifs.csv"
	DefaultClean   = "data/clean/csv_clean.csv"
	DefaultGeoJSON = "data/geolocalisation/departements-regions.json"
	DefaultDSN     = "data/effectifs.sqlite3"
	DefaultTable   = "effectifs"

	DefaultBatchSize     = 20_000
	DefaultRejectSamples = 10
)

// Dashboard is the top-level configuration object.
type Dashboard struct {
	// Job labels metrics and log lines.
	Job string `json:"job"`

	Paths   Paths      `json:"paths"`
	Sources Sources    `json:"sources"`
	Fetch   Fetch      `json:"fetch"`
	Storage Storage    `json:"storage"`
	Load    LoadConfig `json:"load"`
	Server  Server     `json:"server"`
	Metrics Metrics    `json:"metrics"`
}

// Paths are the local files produced by the pipeline.
type Paths struct {
	RawCSV   string `json:"raw_csv"`
	CleanCSV string `json:"clean_csv"`
	GeoJSON  string `json:"geo_json"`
}

// Sources are the remote locations. http(s)://, s3://bucket/key, file:// and
// bare paths are accepted.
type Sources struct {
	CSVURL string `json:"csv_url"`
	GeoURL string `json:"geo_url"`
}

// Fetch tunes the download clients.
type Fetch struct {
	Timeout            Duration `json:"timeout"`
	GeoTimeout         Duration `json:"geo_timeout"`
	MaxRetries         int      `json:"max_retries"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify"`
	S3                 S3       `json:"s3"`
}

// S3 configures the s3:// source.
type S3 struct {
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	PathStyle bool   `json:"path_style"`
}

// Storage selects the relational store.
type Storage struct {
	// Kind selects the backend registered with the storage factory: "sqlite"
	// or "postgres".
	Kind string `json:"kind"`

	// DSN is a file path for sqlite, a postgresql:// URL for postgres.
	DSN string `json:"dsn"`

	// Table is the destination table name.
	Table string `json:"table"`

	// Options is a free-form bag read by the backend, e.g. sqlite
	// "busy_timeout_ms" and "journal_mode", postgres "max_conns".
	Options Options `json:"options"`
}

// LoadConfig tunes the bulk loader.
type LoadConfig struct {
	BatchSize     int  `json:"batch_size"`
	ForceReimport bool `json:"force_reimport"`
	RejectSamples int  `json:"reject_samples"`
}

// Server configures the HTTP surface.
type Server struct {
	Addr         string   `json:"addr"`
	PollInterval Duration `json:"poll_interval"`
}

// Metrics selects the metrics backend: "none", "pushgateway" or "datadog".
type Metrics struct {
	Backend        string `json:"backend"`
	PushgatewayURL string `json:"pushgateway_url"`
	DatadogAddr    string `json:"datadog_addr"`
}

// Default returns the configuration of the published dashboard.
func Default() Dashboard {
	return Dashboard{
		Job: "effectifs",
		Paths: Paths{
			RawCSV:   DefaultRawCSV,
			CleanCSV: DefaultClean,
			GeoJSON:  DefaultGeoJSON,
		},
		Sources: Sources{CSVURL: DefaultCSVURL, GeoURL: DefaultGeoURL},
		Fetch: Fetch{
			Timeout:    Duration(60 * time.Second),
			GeoTimeout: Duration(30 * time.Second),
			MaxRetries: 3,
		},
		Storage: Storage{Kind: "sqlite", DSN: DefaultDSN, Table: DefaultTable, Options: Options{}},
		Load:    LoadConfig{BatchSize: DefaultBatchSize, RejectSamples: DefaultRejectSamples},
		Server:  Server{Addr: ":8050", PollInterval: Duration(2 * time.Second)},
		Metrics: Metrics{Backend: "none", PushgatewayURL: "http://localhost:9091", DatadogAddr: "127.0.0.1:8125"},
	}
}

// Load decodes the JSON file at path over Default(). An empty path returns the
// defaults unchanged.
func Load(path string) (Dashboard, error) {
	d := Default()
	if path == "" {
		return d, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return d, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return d, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if d.Storage.Options == nil {
		d.Storage.Options = Options{}
	}
	return d, nil
}

// ApplyEnv overlays EFFECTIFS_* variables. Unset or malformed values leave the
// field untouched.
func (d *Dashboard) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	setStr := func(k string, dst *string) {
		if v := getenv(k); v != "" {
			*dst = v
		}
	}
	setStr("EFFECTIFS_JOB", &d.Job)
	setStr("EFFECTIFS_CSV_URL", &d.Sources.CSVURL)
	setStr("EFFECTIFS_GEO_URL", &d.Sources.GeoURL)
	setStr("EFFECTIFS_RAW_CSV", &d.Paths.RawCSV)
	setStr("EFFECTIFS_CLEAN_CSV", &d.Paths.CleanCSV)
	setStr("EFFECTIFS_STORAGE_KIND", &d.Storage.Kind)
	setStr("EFFECTIFS_STORAGE_DSN", &d.Storage.DSN)
	setStr("EFFECTIFS_TABLE", &d.Storage.Table)
	setStr("EFFECTIFS_ADDR", &d.Server.Addr)
	setStr("EFFECTIFS_METRICS_BACKEND", &d.Metrics.Backend)
	setStr("EFFECTIFS_PUSHGATEWAY_URL", &d.Metrics.PushgatewayURL)
	setStr("EFFECTIFS_DATADOG_ADDR", &d.Metrics.DatadogAddr)
	setStr("EFFECTIFS_S3_REGION", &d.Fetch.S3.Region)
	setStr("EFFECTIFS_S3_ENDPOINT", &d.Fetch.S3.Endpoint)

	d.Load.BatchSize = getenvInt(getenv, "EFFECTIFS_BATCH_SIZE", d.Load.BatchSize)
	d.Fetch.MaxRetries = getenvInt(getenv, "EFFECTIFS_MAX_RETRIES", d.Fetch.MaxRetries)
	d.Load.ForceReimport = getenvBool(getenv, "EFFECTIFS_FORCE_REIMPORT", d.Load.ForceReimport)
	if v := getenv("EFFECTIFS_POLL_INTERVAL"); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			d.Server.PollInterval = Duration(dur)
		}
	}
}

// getenvInt reads an int from the environment, returning def when unset/invalid.
func getenvInt(getenv func(string) string, k string, def int) int {
	if s := getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(getenv func(string) string, k string, def bool) bool {
	if s := getenv(k); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return def
}

// Duration is a time.Duration that decodes from "60s"-style strings or from a
// JSON number of seconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalJSON encodes the duration as a Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "1m30s" or 90 (seconds).
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		*d = Duration(x * float64(time.Second))
		return nil
	case string:
		dur, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", x, err)
		}
		*d = Duration(dur)
		return nil
	default:
		return fmt.Errorf("config: invalid duration %s", b)
	}
}
