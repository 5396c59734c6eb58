package storage

import (
	"context"
	"fmt"
	"log"
	"time"
)

// CopyFn abstracts a backend's bulk insert. Implementations insert rows
// aligned to columns and return the number inserted.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// Totals summarizes a LoadBatches run.
type Totals struct {
	Rows    int64
	Batches int
}

// LoadBatches drains rows from in, groups them into batches of batchSize and
// calls copyFn once per non-empty batch. The trailing partial batch is
// flushed when in is closed. It returns the totals of successful flushes and
// the first error.
func LoadBatches(
	ctx context.Context,
	columns []string,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
) (Totals, error) {
	var tot Totals
	if batchSize <= 0 {
		return tot, fmt.Errorf("storage: batchSize must be > 0")
	}
	if copyFn == nil {
		return tot, fmt.Errorf("storage: copyFn must not be nil")
	}

	var (
		batch       = make([][]any, 0, batchSize)
		start       = time.Now()
		lastFlushTS = start
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		batch = batch[:0]
		if err != nil {
			log.Printf("loader: COPY failed batch=%d total=%d err=%v", tot.Batches+1, tot.Rows, err)
			return err
		}
		tot.Rows += n
		tot.Batches++

		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(n) / sinceLast.Seconds()
		}
		log.Printf(
			"batch #%d: rps=%.0f inserted=%d total_inserted=%d elapsed=%s since_last=%s",
			tot.Batches,
			rps,
			n,
			tot.Rows,
			now.Sub(start).Truncate(time.Millisecond),
			sinceLast.Truncate(time.Millisecond),
		)
		lastFlushTS = now
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return tot, ctx.Err()

		case row, ok := <-in:
			if !ok {
				pending := len(batch)
				if err := flush(); err != nil {
					return tot, err
				}
				log.Printf("loader: input closed, final_flush=%d total_inserted=%d", pending, tot.Rows)
				return tot, nil
			}
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return tot, err
				}
			}
		}
	}
}
