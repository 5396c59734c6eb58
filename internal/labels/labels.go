// Package labels shortens the long patho_niv1 labels of the effectifs table
// and reports on the labels currently stored.
package labels

import (
	"context"
	"fmt"
	"log"
	"unicode/utf8"

	"effectifs/internal/progress"
	"effectifs/internal/storage"
)

// Column is the column the normalizer rewrites.
const Column = "patho_niv1"

// LongThreshold is the rune length above which a label counts as long.
const LongThreshold = 50

// Options tunes Normalize.
type Options struct {
	// DryRun computes the same statistics without writing.
	DryRun bool
}

// Change is one rewritten label.
type Change struct {
	Label     string `json:"nouveau_label"`
	Rows      int64  `json:"lignes_affectees"`
	Reduction int    `json:"reduction"`
}

// Stats summarizes a Normalize call.
type Stats struct {
	Scanned      int               `json:"pathologies_analysees"`
	Changed      int               `json:"pathologies_modifiees"`
	RowsAffected int64             `json:"lignes_affectees"`
	Mapping      map[string]Change `json:"mapping"`
}

// Normalize rewrites every mapped long label present in the store to its
// short form, in one transaction. Unmapped labels are left alone, so a
// second run changes nothing. With DryRun the store is only read.
func Normalize(ctx context.Context, store storage.Store, opts Options, report progress.Reporter) (Stats, error) {
	report = progress.Or(report)
	st := Stats{Mapping: map[string]Change{}}

	present, err := store.DistinctCounts(ctx, Column)
	if err != nil {
		return st, fmt.Errorf("labels: list %s: %w", Column, err)
	}
	st.Scanned = len(present)
	report(fmt.Sprintf("[INFO] Analyse de %d pathologies...", st.Scanned))

	have := make(map[string]bool, len(present))
	for _, vc := range present {
		have[vc.Value] = true
	}

	var reps []storage.Replacement
	for _, e := range Mapping {
		if e.Long == e.Short || !have[e.Long] {
			continue
		}
		n, err := store.CountWhere(ctx, Column, e.Long)
		if err != nil {
			return st, fmt.Errorf("labels: count %q: %w", e.Long, err)
		}
		if n == 0 {
			continue
		}
		st.Changed++
		st.RowsAffected += n
		st.Mapping[e.Long] = Change{
			Label:     e.Short,
			Rows:      n,
			Reduction: utf8.RuneCountInString(e.Long) - utf8.RuneCountInString(e.Short),
		}
		reps = append(reps, storage.Replacement{From: e.Long, To: e.Short})
		report(fmt.Sprintf("[MODIF] '%s' -> '%s' (%d lignes)", e.Long, e.Short, n))
	}

	if opts.DryRun {
		report("[DRY RUN] Aucune modification appliquee (mode simulation).")
	} else if len(reps) > 0 {
		if _, err := store.ReplaceValues(ctx, Column, reps); err != nil {
			return st, fmt.Errorf("labels: apply: %w", err)
		}
		report("[OK] Modifications appliquees dans la base de donnees.")
	}

	log.Printf("labels: scanned=%d changed=%d rows=%d dry_run=%t", st.Scanned, st.Changed, st.RowsAffected, opts.DryRun)
	return st, nil
}

// LabelInfo describes one stored label.
type LabelInfo struct {
	Label  string `json:"label"`
	Length int    `json:"longueur"`
	Rows   int64  `json:"nb_lignes"`
	Long   bool   `json:"est_long"`
}

// Verify lists the stored labels with their row counts, ordered by label.
func Verify(ctx context.Context, store storage.Store) ([]LabelInfo, error) {
	present, err := store.DistinctCounts(ctx, Column)
	if err != nil {
		return nil, fmt.Errorf("labels: verify: %w", err)
	}
	out := make([]LabelInfo, 0, len(present))
	for _, vc := range present {
		n := utf8.RuneCountInString(vc.Value)
		out = append(out, LabelInfo{Label: vc.Value, Length: n, Rows: vc.Rows, Long: n > LongThreshold})
	}
	return out, nil
}

// CountLong returns how many infos are long.
func CountLong(infos []LabelInfo) int {
	n := 0
	for _, i := range infos {
		if i.Long {
			n++
		}
	}
	return n
}

// NeedsCleaning reports whether any stored label is long. A missing table or
// any inspection error yields false.
func NeedsCleaning(ctx context.Context, store storage.Store) bool {
	ok, err := store.TableExists(ctx)
	if err != nil || !ok {
		return false
	}
	infos, err := Verify(ctx, store)
	if err != nil {
		return false
	}
	return CountLong(infos) > 0
}
