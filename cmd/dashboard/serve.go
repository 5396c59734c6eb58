package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"effectifs/internal/config"
	"effectifs/internal/georef"
	"effectifs/internal/pipeline"
	"effectifs/internal/progress"
	"effectifs/internal/queries"
	"effectifs/internal/webui"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard, initializing the data in the background when needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := o.loadValid(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				d.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, d)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

// runServe starts the background initialization when the data is missing and
// serves HTTP until ctx is done. It returns once the server has shut down and
// any in-flight run has finished.
func runServe(ctx context.Context, d config.Dashboard) error {
	scrape, cleanup := setupMetrics(d)
	defer cleanup()

	tracker := progress.New(nil)
	orch := pipeline.New(d, tracker)

	needs := orch.NeedsRun(ctx)
	tracker.Reset(needs)
	if needs {
		log.Printf("dashboard: data not initialized; starting background run")
		orch.StartBackground(ctx)
	}

	var opened atomic.Pointer[queries.DB]
	srv := webui.NewServer(webui.Config{
		Addr:         d.Server.Addr,
		PollInterval: d.Server.PollInterval.D(),
	}, webui.Deps{
		Tracker: tracker,
		Runner:  orch,
		Queries: func(ctx context.Context) (webui.Querier, error) {
			db, err := queries.Open(ctx, d.Storage.Kind, d.Storage.DSN, d.Storage.Table)
			if err != nil {
				return nil, err
			}
			opened.Store(db)
			return db, nil
		},
		Geo:     &georef.Lazy{Path: d.Paths.GeoJSON},
		Metrics: scrape,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		orch.Wait()
		return nil
	})
	err := g.Wait()
	if db := opened.Load(); db != nil {
		if cerr := db.Close(); cerr != nil {
			log.Printf("dashboard: close queries: %v", cerr)
		}
	}
	return err
}
