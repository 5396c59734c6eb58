package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"

	"effectifs/internal/clean"
	"effectifs/internal/fetch"
	"effectifs/internal/labels"
	"effectifs/internal/loader"
	"effectifs/internal/metrics"
	"effectifs/internal/progress"
	"effectifs/internal/queries"
	"effectifs/internal/storage"
)

// SampleSize caps the rows checked by the verification step.
const SampleSize = 100

func (o *Orchestrator) fetchGeo(ctx context.Context, _ *runState, report progress.Reporter) error {
	dest := o.cfg.Paths.GeoJSON
	if nonEmptyFile(dest) {
		report(fmt.Sprintf("[OK] JSON departements-regions deja present : %s", dest))
		return nil
	}
	report("[INFO] Telechargement du JSON departements-regions en cours...")
	if err := download(ctx, o.geoSource, o.cfg.Sources.GeoURL, dest); err != nil {
		report(fmt.Sprintf("[ERREUR] Telechargement du JSON echoue : %v", err))
		return err
	}
	report(fmt.Sprintf("[OK] JSON departements-regions telecharge : %s", dest))
	return nil
}

func (o *Orchestrator) fetchCSV(ctx context.Context, _ *runState, report progress.Reporter) error {
	dest := o.cfg.Paths.RawCSV
	if nonEmptyFile(dest) {
		report(fmt.Sprintf("[OK] CSV brut deja present : %s", dest))
		return nil
	}
	report("[INFO] Telechargement du CSV en cours...")
	if err := download(ctx, o.csvSource, o.cfg.Sources.CSVURL, dest); err != nil {
		report(fmt.Sprintf("[ERREUR] Telechargement echoue : %v", err))
		return err
	}
	report(fmt.Sprintf("[OK] CSV telecharge : %s", dest))
	return nil
}

func download(ctx context.Context, r Resolver, raw, dest string) error {
	src, err := r.Resolve(ctx, raw)
	if err != nil {
		return err
	}
	res, err := fetch.EnsureLocalCopy(ctx, src, dest)
	if err != nil {
		return err
	}
	if !res.Skipped {
		log.Printf("pipeline: fetched %s -> %s bytes=%d xxh3=%s", raw, dest, res.Bytes, res.Digest)
	}
	return nil
}

func (o *Orchestrator) cleanCSV(ctx context.Context, _ *runState, report progress.Reporter) error {
	report("[INFO] Nettoyage des donnees en cours...")
	st, err := clean.Clean(ctx, o.cfg.Paths.RawCSV, o.cfg.Paths.CleanCSV, report)
	if err != nil {
		report(fmt.Sprintf("[ERREUR] Nettoyage impossible : %v", err))
		return err
	}
	metrics.RecordRow(o.cfg.Job, "kept", int64(st.Kept))
	metrics.RecordRow(o.cfg.Job, "dropped", int64(st.Dropped))
	report(fmt.Sprintf("[OK] CSV nettoye : %s", o.cfg.Paths.CleanCSV))
	return nil
}

func (o *Orchestrator) load(ctx context.Context, rs *runState, report progress.Reporter) error {
	store, err := o.openStore(ctx)
	if err != nil {
		return fmt.Errorf("ouverture de la base: %w", err)
	}
	rs.store = store

	_, err = loader.Load(ctx, store, o.cfg.Paths.CleanCSV, loader.Options{
		BatchSize:     o.cfg.Load.BatchSize,
		ForceReimport: o.cfg.Load.ForceReimport,
		RejectSamples: o.cfg.Load.RejectSamples,
		StoreLabel:    StoreLabel(o.cfg.Storage.Kind),
		Job:           o.cfg.Job,
		Report:        report,
	})
	return err
}

// summarise reports the stored row count, then checks a sample of rows.
// A failed sample check is only a warning.
func (o *Orchestrator) summarise(ctx context.Context, rs *runState, report progress.Reporter) error {
	n, err := rs.store.CountRows(ctx)
	if err != nil {
		return fmt.Errorf("comptage des lignes: %w", err)
	}
	report(fmt.Sprintf("[RAW SQL] %s -> %d lignes", rs.store.Table(), n))

	valid, total, err := o.sample(ctx, rs.store, SampleSize)
	if err != nil {
		report(fmt.Sprintf("[AVERTISSEMENT] Validation de l'echantillon echouee : %v", err))
		return nil
	}
	report(fmt.Sprintf("[Validation] %d/%d lignes valides", valid, total))
	if invalid := total - valid; invalid > 0 {
		report(fmt.Sprintf("[AVERTISSEMENT] %d ligne(s) invalide(s) detectee(s)", invalid))
	} else {
		report("[OK] Toutes les lignes testees sont valides")
	}
	return nil
}

func (o *Orchestrator) verifyAndCleanLabels(ctx context.Context, rs *runState, report progress.Reporter) error {
	infos, err := labels.Verify(ctx, rs.store)
	if err != nil {
		return err
	}
	long := labels.CountLong(infos)
	if long == 0 {
		report("[OK] Tous les labels de pathologies sont deja au bon format")
		return nil
	}
	report(fmt.Sprintf("[INFO] Detection de %d labels de pathologies trop longs", long))
	report("[INFO] Nettoyage automatique des labels en cours...")

	st, err := labels.Normalize(ctx, rs.store, labels.Options{}, nil)
	if err != nil {
		return err
	}
	metrics.RecordRow(o.cfg.Job, "relabelled", st.RowsAffected)
	report(fmt.Sprintf("[OK] %d pathologies raccourcies", st.Changed))
	report(printer.Sprintf("[OK] %d lignes mises a jour", st.RowsAffected))
	return nil
}

func (o *Orchestrator) cleanLabelsBackground(ctx context.Context) error {
	t := o.tracker
	t.Log("[INFO] Verification des labels de pathologies...")

	store, err := o.openStore(ctx)
	if err != nil {
		return fmt.Errorf("ouverture de la base: %w", err)
	}
	defer store.Close()

	infos, err := labels.Verify(ctx, store)
	if err != nil {
		return err
	}
	long := labels.CountLong(infos)
	if long == 0 {
		t.Log("[OK] Tous les labels sont deja au bon format")
		return nil
	}
	t.Log(fmt.Sprintf("[INFO] Detection de %d labels trop longs", long))
	t.SetStep("Nettoyage des labels en cours...")
	t.Log("[INFO] Nettoyage automatique des labels...")

	st, err := labels.Normalize(ctx, store, labels.Options{}, t.Log)
	if err != nil {
		return err
	}
	metrics.RecordRow(o.cfg.Job, "relabelled", st.RowsAffected)
	t.Log(fmt.Sprintf("[OK] %d pathologies raccourcies", st.Changed))
	t.Log(printer.Sprintf("[OK] %d lignes mises a jour", st.RowsAffected))
	return nil
}

// sampleRows runs queries.Sample over the store's own handle when it has
// one (SQLite), or over a fresh connection to the configured DSN.
func (o *Orchestrator) sampleRows(ctx context.Context, store storage.Store, limit int) (int, int, error) {
	if h, ok := store.(interface{ DB() *sql.DB }); ok {
		return queries.New(sqlx.NewDb(h.DB(), "sqlite"), store.Table()).Sample(ctx, limit)
	}
	q, err := queries.Open(ctx, o.cfg.Storage.Kind, o.cfg.Storage.DSN, store.Table())
	if err != nil {
		return 0, 0, err
	}
	defer q.Close()
	return q.Sample(ctx, limit)
}
