// Package loader bulk-imports the cleaned effectifs CSV into a storage.Store.
// Rows are decoded with csvutil, validated one by one and flushed in fixed
// size transactional batches; invalid rows are counted and sampled instead
// of aborting the import.
package loader

import (
	"context"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/jszwec/csvutil"
	"golang.org/x/sync/errgroup"

	"effectifs/internal/effectif"
	"effectifs/internal/metrics"
	csvx "effectifs/internal/parser/csv"
	"effectifs/internal/progress"
	"effectifs/internal/storage"
)

// DefaultBatchSize is the number of rows per transaction.
const DefaultBatchSize = 20_000

// Options tunes one Load call.
type Options struct {
	// BatchSize is the flush threshold; zero means DefaultBatchSize.
	BatchSize int
	// ForceReimport empties a non-empty table instead of skipping the import.
	ForceReimport bool
	// RejectSamples caps kept rejections; zero or negative means the default of 10.
	RejectSamples int
	// StoreLabel names the backend in the completion message ("SQLite").
	StoreLabel string
	// Job labels metrics.
	Job string
	// Report receives progress lines.
	Report progress.Reporter
}

// Result summarizes one Load call.
type Result struct {
	Skipped  bool
	Existing int64
	Deleted  int64
	Inserted int64
	Rejected int
	Samples  []effectif.Rejection
	Batches  int
	Elapsed  time.Duration
}

// Load ensures the table, applies the idempotence gate and imports csvPath.
//
// A non-empty table is left untouched unless ForceReimport is set, in which
// case it is emptied in one transaction first. csvPath is not opened when
// the import is skipped.
func Load(ctx context.Context, store storage.Store, csvPath string, opts Options) (Result, error) {
	report := progress.Or(opts.Report)
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.StoreLabel == "" {
		opts.StoreLabel = "SQLite"
	}
	start := time.Now()
	var res Result

	if err := store.EnsureTable(ctx); err != nil {
		return res, fmt.Errorf("loader: ensure table: %w", err)
	}
	n, err := store.CountRows(ctx)
	if err != nil {
		return res, fmt.Errorf("loader: count rows: %w", err)
	}
	if n > 0 && !opts.ForceReimport {
		res.Skipped, res.Existing = true, n
		log.Printf("loader: table=%s rows=%d import skipped", store.Table(), n)
		report(fmt.Sprintf("[OK] Donnees deja presentes dans %s - import ignore.", store.Table()))
		return res, nil
	}
	if n > 0 {
		if res.Deleted, err = store.DeleteAll(ctx); err != nil {
			return res, fmt.Errorf("loader: empty table: %w", err)
		}
		report(fmt.Sprintf("[INFO] Table videe : %s", store.Table()))
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return res, fmt.Errorf("loader: open csv: %w", err)
	}
	defer f.Close()

	comma, err := csvx.SniffDelimiter(f)
	if err != nil {
		return res, fmt.Errorf("loader: %w", err)
	}

	rejects := effectif.NewRejectLog(opts.RejectSamples)
	rows := make(chan []any, 1024)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := decode(gctx, csvx.NewReader(f, comma), rows, rejects); err != nil {
			return err
		}
		close(rows)
		return nil
	})

	var tot storage.Totals
	g.Go(func() error {
		var err error
		tot, err = storage.LoadBatches(gctx, effectif.ColumnNames(), rows, opts.BatchSize, store.CopyFrom)
		return err
	})

	err = g.Wait()
	res.Inserted = tot.Rows
	res.Batches = tot.Batches
	res.Rejected = rejects.Count()
	res.Samples = rejects.Samples()
	res.Elapsed = time.Since(start)

	metrics.RecordRow(opts.Job, "inserted", res.Inserted)
	metrics.RecordRow(opts.Job, "rejected", int64(res.Rejected))
	metrics.RecordBatches(opts.Job, int64(res.Batches))

	if err != nil {
		// The table was empty before this call; drop the partial import so
		// the next run does not mistake it for a complete one.
		if tot.Rows > 0 {
			if _, derr := store.DeleteAll(context.WithoutCancel(ctx)); derr != nil {
				log.Printf("loader: rollback partial import: %v", derr)
			}
		}
		return res, fmt.Errorf("loader: %w", err)
	}

	log.Printf("loader: table=%s inserted=%d rejected=%d batches=%d elapsed=%s",
		store.Table(), res.Inserted, res.Rejected, res.Batches, res.Elapsed.Truncate(time.Millisecond))
	for _, s := range res.Samples {
		log.Printf("loader: rejected %s", s.String())
	}
	switch {
	case res.Rejected > 0 && len(res.Samples) > 0:
		report(fmt.Sprintf("[INFO] %d lignes rejetees (premiere : ligne %d, champ %s)",
			res.Rejected, res.Samples[0].Line, res.Samples[0].Field))
	case res.Rejected > 0:
		report(fmt.Sprintf("[INFO] %d lignes rejetees", res.Rejected))
	}
	report(fmt.Sprintf("[OK] Import %s termine - %d lignes.", opts.StoreLabel, res.Inserted))
	return res, nil
}

// decode reads the header, then streams validated rows to out. Malformed
// records and validation failures go to rejects; other read errors abort.
func decode(ctx context.Context, cr *stdcsv.Reader, out chan<- []any, rejects *effectif.RejectLog) error {
	header, err := csvx.ReadHeader(cr)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	dec, err := csvutil.NewDecoder(cr, effectif.CanonicalHeader(header)...)
	if err != nil {
		return fmt.Errorf("csv decoder: %w", err)
	}

	for {
		var raw effectif.Raw
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if line, ok := rowError(cr, err); ok {
				rejects.Add(effectif.Rejection{
					Line:     line,
					Errors:   1,
					Field:    "record",
					Problems: []effectif.FieldError{{Err: err}},
				})
				continue
			}
			return fmt.Errorf("decode: %w", err)
		}

		line, _ := cr.FieldPos(0)
		res := effectif.Validate(line, raw)
		if !res.OK() {
			rejects.Add(*res.Rejection)
			continue
		}

		select {
		case out <- res.Record.Values():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// rowError reports whether err concerns a single record and the line it
// started on.
func rowError(cr *stdcsv.Reader, err error) (int, bool) {
	var pe *stdcsv.ParseError
	if errors.As(err, &pe) {
		return pe.StartLine, true
	}
	if errors.Is(err, csvutil.ErrFieldCount) {
		line, _ := cr.FieldPos(0)
		return line, true
	}
	return 0, false
}
