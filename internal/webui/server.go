// Package webui serves the dashboard: a polling page that renders the
// initialization transcript, the status and control endpoints, and the
// read-only JSON query API.
//
// Routes:
//
//	GET  /                           → page (embedded template)
//	GET  /api/init/status            → tracker snapshot + show_loader
//	POST /api/init/start             → start the background pipeline (202, 409 if busy)
//	POST /api/labels/clean           → start background label cleaning (202, 409 if busy)
//	GET  /api/pathologies            → distinct patho_niv1 values
//	GET  /api/regions                → distinct region codes
//	GET  /api/prevalence/regions     → ?annee=&pathologie=
//	GET  /api/prevalence/departements → ?annee=&pathologie=
//	GET  /api/evolution              → ?debut=&fin=&pathologie=&region=
//	GET  /api/age-sexe               → ?annee=&pathologie=
//	GET  /api/age                    → ?annee=&pathologie=&region=&sexe=
//	GET  /api/geo/departements       → department/region reference
//	GET  /metrics                    → Prometheus exposition, when configured
//
// Query routes answer 503 while the data still needs to be initialized.
package webui

import (
	"context"
	_ "embed"
	"errors"
	"html/template"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"effectifs/internal/georef"
	"effectifs/internal/progress"
	"effectifs/internal/queries"
)

// CompletionDelay keeps the loader visible after a successful run so the
// final transcript lines can be read.
const CompletionDelay = 2 * time.Second

// Config controls server startup.
type Config struct {
	Addr         string
	PollInterval time.Duration
}

// Runner starts background work reporting to the tracker.
type Runner interface {
	StartBackground(ctx context.Context) bool
	StartLabelCleaning(ctx context.Context) bool
	Running() bool
}

// Querier is the read-only query layer.
type Querier interface {
	Pathologies(ctx context.Context) ([]string, error)
	Regions(ctx context.Context) ([]string, error)
	PrevalenceByRegion(ctx context.Context, f queries.Filter) ([]queries.AreaStat, error)
	PrevalenceByDepartement(ctx context.Context, f queries.Filter) ([]queries.AreaStat, error)
	Evolution(ctx context.Context, f queries.EvolutionFilter) ([]queries.EvolutionPoint, error)
	AgeSexe(ctx context.Context, f queries.Filter) ([]queries.AgeSexeStat, error)
	AgeDistribution(ctx context.Context, f queries.AgeFilter) ([]queries.AgeBucket, error)
}

// QueryOpener opens the query layer. It is called on the first query after
// the data is ready and its result is kept.
type QueryOpener func(ctx context.Context) (Querier, error)

// Deps are the collaborators of a Server. Geo and Metrics are optional.
type Deps struct {
	Tracker *progress.Tracker
	Runner  Runner
	Queries QueryOpener
	Geo     *georef.Lazy
	Metrics http.Handler
}

// Server holds routes and shared state.
type Server struct {
	cfg  Config
	deps Deps
	mux  *http.ServeMux
	tmpl *template.Template
	now  func() time.Time

	// bg is the context background runs inherit; request contexts end with
	// the response.
	bg context.Context

	startMu sync.Mutex

	qMu sync.Mutex
	q   Querier
}

// NewServer constructs a Server with routes and the embedded template.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
		tmpl: template.Must(template.New("index").Parse(indexHTML)),
		now:  time.Now,
		bg:   context.Background(),
	}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Serve listens on cfg.Addr until ctx is done, then shuts down gracefully.
// Background runs started through the API inherit ctx.
func (s *Server) Serve(ctx context.Context) error {
	s.bg = ctx
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Printf("webui: listening on %s", s.cfg.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/init/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/init/start", s.handleStart)
	s.mux.HandleFunc("POST /api/labels/clean", s.handleCleanLabels)

	s.mux.HandleFunc("GET /api/pathologies", s.ready(s.handlePathologies))
	s.mux.HandleFunc("GET /api/regions", s.ready(s.handleRegions))
	s.mux.HandleFunc("GET /api/prevalence/regions", s.ready(s.handlePrevalence(false)))
	s.mux.HandleFunc("GET /api/prevalence/departements", s.ready(s.handlePrevalence(true)))
	s.mux.HandleFunc("GET /api/evolution", s.ready(s.handleEvolution))
	s.mux.HandleFunc("GET /api/age-sexe", s.ready(s.handleAgeSexe))
	s.mux.HandleFunc("GET /api/age", s.ready(s.handleAge))
	s.mux.HandleFunc("GET /api/geo/departements", s.handleGeo)

	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics)
	}
}

// indexHTML is the polling page.
//
//go:embed index.tmpl.html
var indexHTML string

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		PollMillis int64
		Status     statusResponse
	}{
		PollMillis: s.cfg.PollInterval.Milliseconds(),
		Status:     s.status(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, data); err != nil {
		log.Println("webui: template error:", err)
	}
}
