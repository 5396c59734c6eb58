// Package pipeline runs the data initialization: reference JSON and CSV
// downloads, CSV cleaning, bulk load, a database check and label
// normalization. It is the fault boundary of those steps: Run turns any
// step error into a single "[ERREUR] ..." line and a false result, while
// Prepare hands the error back to scripted callers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"effectifs/internal/config"
	"effectifs/internal/datasource"
	"effectifs/internal/datasource/httpds"
	"effectifs/internal/datasource/s3ds"
	"effectifs/internal/fetch"
	"effectifs/internal/metrics"
	"effectifs/internal/progress"
	"effectifs/internal/storage"
	"effectifs/internal/storage/sqlite"
)

// ErrInitialization is returned by Prepare when a run fails.
var ErrInitialization = errors.New("pipeline: initialisation des donnees echouee")

// Resolver turns a configured source location into a datasource.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (datasource.Source, error)
}

// StoreOpener opens the destination store for one run.
type StoreOpener func(ctx context.Context) (storage.Store, error)

// Sampler checks up to limit stored rows and reports how many are valid.
type Sampler func(ctx context.Context, store storage.Store, limit int) (valid, total int, err error)

// Orchestrator sequences the initialization steps and owns the background
// run. At most one background run (pipeline or label cleaning) is in flight.
type Orchestrator struct {
	cfg     config.Dashboard
	tracker *progress.Tracker

	csvSource Resolver
	geoSource Resolver
	openStore StoreOpener
	sample    Sampler

	running atomic.Bool
	wg      sync.WaitGroup
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithResolvers replaces the resolvers used for the CSV and the reference
// JSON.
func WithResolvers(csv, geo Resolver) Option {
	return func(o *Orchestrator) {
		o.csvSource, o.geoSource = csv, geo
	}
}

// WithStoreOpener replaces the storage factory call.
func WithStoreOpener(f StoreOpener) Option {
	return func(o *Orchestrator) { o.openStore = f }
}

// WithSampler replaces the stored-row check of the verification step.
func WithSampler(f Sampler) Option {
	return func(o *Orchestrator) { o.sample = f }
}

// New builds an Orchestrator reporting background runs to tracker.
func New(cfg config.Dashboard, tracker *progress.Tracker, opts ...Option) *Orchestrator {
	o := &Orchestrator{cfg: cfg, tracker: tracker}
	s3cfg := s3ds.Config{
		Region:    cfg.Fetch.S3.Region,
		Endpoint:  cfg.Fetch.S3.Endpoint,
		PathStyle: cfg.Fetch.S3.PathStyle,
	}
	o.csvSource = fetch.Resolver{
		HTTP: httpds.NewClient(httpds.Config{
			Timeout:            cfg.Fetch.Timeout.D(),
			MaxRetries:         cfg.Fetch.MaxRetries,
			InsecureSkipVerify: cfg.Fetch.InsecureSkipVerify,
		}),
		S3: s3cfg,
	}
	o.geoSource = fetch.Resolver{
		HTTP: httpds.NewClient(httpds.Config{
			Timeout:            cfg.Fetch.GeoTimeout.D(),
			MaxRetries:         cfg.Fetch.MaxRetries,
			InsecureSkipVerify: cfg.Fetch.InsecureSkipVerify,
		}),
		S3: s3cfg,
	}
	o.openStore = func(ctx context.Context) (storage.Store, error) {
		return storage.New(ctx, StoreConfig(cfg))
	}
	o.sample = o.sampleRows
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StoreConfig maps the dashboard configuration onto the storage factory.
func StoreConfig(cfg config.Dashboard) storage.Config {
	return storage.Config{
		Kind:    cfg.Storage.Kind,
		DSN:     cfg.Storage.DSN,
		Table:   cfg.Storage.Table,
		Options: cfg.Storage.Options,
	}
}

// StoreLabel names the backend in progress messages.
func StoreLabel(kind string) string {
	switch strings.ToLower(kind) {
	case "postgres", "postgresql", "pg":
		return "Postgres"
	default:
		return "SQLite"
	}
}

// Tracker returns the tracker background runs report to.
func (o *Orchestrator) Tracker() *progress.Tracker { return o.tracker }

// Running reports whether a background run is in flight.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// Wait blocks until the current background run, if any, has finished.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// NeedsRun reports whether the data must be (re)initialized: the raw CSV is
// missing or empty, the database file is missing, the store cannot be
// opened, the table is missing or empty. Inspection errors count as true.
func (o *Orchestrator) NeedsRun(ctx context.Context) bool {
	if !nonEmptyFile(o.cfg.Paths.RawCSV) {
		return true
	}
	if strings.EqualFold(o.cfg.Storage.Kind, "sqlite") {
		if p := sqlite.PathFromDSN(o.cfg.Storage.DSN); p != "" {
			if _, err := os.Stat(p); err != nil {
				return true
			}
		}
	}
	store, err := o.openStore(ctx)
	if err != nil {
		log.Printf("pipeline: needs run: open store: %v", err)
		return true
	}
	defer store.Close()

	ok, err := store.TableExists(ctx)
	if err != nil || !ok {
		return true
	}
	n, err := store.CountRows(ctx)
	return err != nil || n == 0
}

// Run executes every step in order and reports progress. It returns false,
// after a single "[ERREUR] Initialisation interrompue : ..." line, when any
// step fails.
func (o *Orchestrator) Run(ctx context.Context, report progress.Reporter) bool {
	report = progress.Or(report)
	if err := o.run(ctx, report); err != nil {
		log.Printf("pipeline: run failed: %v", err)
		report(fmt.Sprintf("[ERREUR] Initialisation interrompue : %v", err))
		return false
	}
	return true
}

// Prepare runs the pipeline synchronously. A failed run yields an error
// wrapping both ErrInitialization and the step error.
func (o *Orchestrator) Prepare(ctx context.Context, report progress.Reporter) error {
	report = progress.Or(report)
	if err := o.run(ctx, report); err != nil {
		report(fmt.Sprintf("[ERREUR] Initialisation interrompue : %v", err))
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	return nil
}

// StartBackground announces the run on the tracker and starts it on its own
// goroutine, which calls MarkComplete exactly once. It returns false without
// starting anything when a background run is already in flight.
func (o *Orchestrator) StartBackground(ctx context.Context) bool {
	if !o.running.CompareAndSwap(false, true) {
		return false
	}
	o.tracker.SetStep("Initialisation en cours...")
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.running.Store(false)
		ok := o.Run(ctx, o.tracker.Log)
		o.tracker.MarkComplete(ok)
	}()
	return true
}

// StartLabelCleaning verifies and shortens the stored labels on a background
// goroutine with the same tracker protocol as StartBackground.
func (o *Orchestrator) StartLabelCleaning(ctx context.Context) bool {
	if !o.running.CompareAndSwap(false, true) {
		return false
	}
	o.tracker.SetStep("Verification des labels de pathologies...")
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.running.Store(false)
		err := o.cleanLabelsBackground(ctx)
		if err != nil {
			log.Printf("pipeline: label cleaning failed: %v", err)
			o.tracker.Log(fmt.Sprintf("[ERREUR] Nettoyage des labels echoue : %v", err))
		}
		o.tracker.MarkComplete(err == nil)
	}()
	return true
}

// step is one stage of a run. An empty announce adds no "[STEP]" line.
type step struct {
	name     string
	announce string
	run      func(ctx context.Context, rs *runState, report progress.Reporter) error
}

// runState carries what steps hand to each other within one run.
type runState struct {
	store storage.Store
}

func (rs *runState) close() {
	if rs.store != nil {
		rs.store.Close()
		rs.store = nil
	}
}

func (o *Orchestrator) steps() []step {
	return []step{
		{"fetch_geo", "Telechargement du JSON departements-regions", o.fetchGeo},
		{"fetch_csv", "Telechargement du CSV", o.fetchCSV},
		{"clean", "", o.cleanCSV},
		{"load", "Initialisation de la base " + StoreLabel(o.cfg.Storage.Kind), o.load},
		{"summary", "Verification des donnees", o.summarise},
		{"labels", "Verification et nettoyage des labels de pathologies", o.verifyAndCleanLabels},
	}
}

func (o *Orchestrator) run(ctx context.Context, report progress.Reporter) error {
	start := time.Now()
	rs := &runState{}
	defer rs.close()
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("pipeline: metrics flush: %v", err)
		}
	}()

	report(progress.StepPrefix + "Initialisation des donnees")
	for _, s := range o.steps() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("initialisation annulee avant %s: %w", s.name, err)
		}
		if s.announce != "" {
			report(progress.StepPrefix + s.announce)
		}
		t0 := time.Now()
		err := s.run(ctx, rs, report)
		metrics.RecordStep(o.cfg.Job, s.name, err, time.Since(t0))
		if err != nil {
			return err
		}
	}
	report(progress.StepPrefix + progress.StepSucceeded)
	report("[OK] Initialisation terminee.")
	log.Printf("pipeline: run finished in %s", time.Since(start).Truncate(time.Millisecond))
	return nil
}

// printer renders counts with thousands separators ("1,234").
var printer = message.NewPrinter(language.English)

func nonEmptyFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}
