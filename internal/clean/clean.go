// Package clean filters the raw effectifs CSV into the file the loader reads:
// rows with a blank required field are dropped and libelle_classe_age is
// removed.
package clean

import (
	"context"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	csvx "effectifs/internal/parser/csv"
	"effectifs/internal/progress"
)

// DroppedColumn is removed from the cleaned output.
const DroppedColumn = "libelle_classe_age"

// Optional columns may be blank without dropping the row.
var Optional = map[string]bool{
	"patho_niv2": true,
	"patho_niv3": true,
}

// Stats summarizes one cleaning pass. Total counts data rows, header excluded.
type Stats struct {
	Total   int
	Kept    int
	Dropped int
}

// seam for tests
var rename = os.Rename

// Clean reads in, writes the filtered rows to out as comma-delimited UTF-8
// and reports the outcome. out is replaced atomically. An empty input gives
// an empty output; a header-only input gives a header-only output.
func Clean(ctx context.Context, in, out string, report progress.Reporter) (Stats, error) {
	report = progress.Or(report)
	var st Stats

	f, err := os.Open(in)
	if err != nil {
		return st, fmt.Errorf("clean: open input: %w", err)
	}
	defer f.Close()

	comma, err := csvx.SniffDelimiter(f)
	if err != nil {
		return st, fmt.Errorf("clean: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return st, fmt.Errorf("clean: mkdir: %w", err)
	}
	tmp := out + ".part"
	w, err := os.Create(tmp)
	if err != nil {
		return st, fmt.Errorf("clean: create output: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			_ = w.Close()
			_ = os.Remove(tmp)
		}
	}()

	st, err = filter(ctx, csvx.NewReader(f, comma), stdcsv.NewWriter(w))
	if err != nil {
		return st, err
	}
	if err := w.Sync(); err != nil {
		return st, fmt.Errorf("clean: sync: %w", err)
	}
	if err := w.Close(); err != nil {
		return st, fmt.Errorf("clean: close: %w", err)
	}
	if err := rename(tmp, out); err != nil {
		return st, fmt.Errorf("clean: rename: %w", err)
	}
	ok = true

	log.Printf("clean: %s -> %s total=%d kept=%d dropped=%d", in, out, st.Total, st.Kept, st.Dropped)
	report(fmt.Sprintf("[INFO] Nettoyage CSV termine : %d lignes conservees sur %d.", st.Kept, st.Total))
	report(fmt.Sprintf("[INFO] Fichier nettoye enregistre sous : %s", out))
	return st, nil
}

func filter(ctx context.Context, cr *stdcsv.Reader, cw *stdcsv.Writer) (Stats, error) {
	var st Stats

	header, err := csvx.ReadHeader(cr)
	if errors.Is(err, io.EOF) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("clean: read header: %w", err)
	}

	keep := make([]int, 0, len(header))
	required := make([]bool, len(header))
	outHeader := make([]string, 0, len(header))
	for i, h := range header {
		required[i] = !Optional[h]
		if h == DroppedColumn {
			continue
		}
		keep = append(keep, i)
		outHeader = append(outHeader, h)
	}
	if err := cw.Write(outHeader); err != nil {
		return st, fmt.Errorf("clean: write header: %w", err)
	}

	row := make([]string, len(keep))
	for {
		if st.Total%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return st, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *stdcsv.ParseError
			if errors.As(err, &pe) {
				st.Total++
				st.Dropped++
				continue
			}
			return st, fmt.Errorf("clean: read row: %w", err)
		}
		st.Total++
		if !complete(rec, required) {
			st.Dropped++
			continue
		}
		for j, i := range keep {
			row[j] = ""
			if i < len(rec) {
				row[j] = rec[i]
			}
		}
		if err := cw.Write(row); err != nil {
			return st, fmt.Errorf("clean: write row: %w", err)
		}
		st.Kept++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return st, fmt.Errorf("clean: flush: %w", err)
	}
	return st, nil
}

// complete reports whether every required column is present and non-blank.
func complete(rec []string, required []bool) bool {
	for i, req := range required {
		if !req {
			continue
		}
		if i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
			return false
		}
	}
	return true
}
