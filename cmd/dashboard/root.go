package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"effectifs/internal/config"
	"effectifs/internal/metrics"
	"effectifs/internal/metrics/datadog"
	"effectifs/internal/metrics/prompush"
	"effectifs/internal/pipeline"
	"effectifs/internal/storage"
)

var errInvalidConfig = errors.New("configuration is invalid")

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath     string
	metricsBackend string
	pushgatewayURL string
	verbose        bool

	getenv func(string) string
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{getenv: os.Getenv}

	root := &cobra.Command{
		Use:           "dashboard",
		Short:         "Prepare and serve the effectifs par pathologie dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if o.verbose {
				log.SetFlags(log.LstdFlags | log.Lmicroseconds)
			}
			log.SetOutput(cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "dashboard config JSON path (built-in defaults when empty)")
	pf.StringVar(&o.metricsBackend, "metrics-backend", "", "metrics backend: none, pushgateway, prometheus, datadog (overrides config)")
	pf.StringVar(&o.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides config)")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "enable verbose logs")

	root.AddCommand(
		newServeCmd(o),
		newPrepareCmd(o),
		newCleanLabelsCmd(o),
		newVerifyLabelsCmd(o),
		newValidateConfigCmd(o),
	)
	return root
}

// load resolves the configuration: defaults, then the file, then
// EFFECTIFS_* variables, then flags.
func (o *rootOptions) load() (config.Dashboard, error) {
	d, err := config.Load(o.configPath)
	if err != nil {
		return d, err
	}
	d.ApplyEnv(o.getenv)
	if o.metricsBackend != "" {
		d.Metrics.Backend = o.metricsBackend
	}
	if o.pushgatewayURL != "" {
		d.Metrics.PushgatewayURL = o.pushgatewayURL
	}
	return d, nil
}

// loadValid is load followed by validation. Issues are printed to w; any
// error-level issue fails with errInvalidConfig.
func (o *rootOptions) loadValid(w io.Writer) (config.Dashboard, error) {
	d, err := o.load()
	if err != nil {
		return d, err
	}
	issues := config.Validate(d)
	printIssues(w, issues)
	if config.HasErrors(issues) {
		return d, errInvalidConfig
	}
	if o.verbose {
		log.Printf("config: job=%s storage=%s table=%s metrics=%s", d.Job, d.Storage.Kind, d.Storage.Table, d.Metrics.Backend)
	}
	return d, nil
}

func printIssues(w io.Writer, issues []config.Issue) {
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
}

// setupMetrics installs the configured metrics backend. It returns the
// Prometheus scrape handler when that backend is active, and a cleanup
// func that flushes and releases the backend.
func setupMetrics(d config.Dashboard) (http.Handler, func()) {
	nop := func() {}
	flush := func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}

	switch name := strings.ToLower(d.Metrics.Backend); name {
	case "pushgateway", "prom", "prometheus":
		gw := d.Metrics.PushgatewayURL
		if name == "prometheus" {
			gw = ""
		}
		b, err := prompush.NewBackend(d.Job, gw)
		if err != nil {
			log.Printf("metrics: failed to init prom backend: %v; using nop", err)
			return nil, nop
		}
		log.Printf("metrics: backend=%s url=%q job_name=%s", name, gw, d.Job)
		metrics.SetBackend(b)
		return b.Handler(), flush

	case "datadog", "dogstatsd":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       d.Metrics.DatadogAddr,
			GlobalTags: []string{"job:" + d.Job},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return nil, nop
		}
		log.Printf("metrics: backend=%s addr=%s", name, d.Metrics.DatadogAddr)
		metrics.SetBackend(b)
		return nil, func() {
			flush()
			if err := b.Close(); err != nil {
				log.Printf("metrics: close error: %v", err)
			}
		}

	case "", "none":
		return nil, nop

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", d.Metrics.Backend)
		return nil, nop
	}
}

// openStore opens the configured relational store.
func openStore(ctx context.Context, d config.Dashboard) (storage.Store, error) {
	return storage.New(ctx, pipeline.StoreConfig(d))
}

// lineReporter prints each progress message on its own line.
func lineReporter(w io.Writer) func(string) {
	return func(m string) { fmt.Fprintln(w, m) }
}
