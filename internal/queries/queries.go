// Package queries holds the read-only aggregations served by the dashboard.
// It talks to the same database the loader fills, through sqlx, and renders
// placeholders for the driver in use with Rebind.
package queries

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jmoiron/sqlx"

	"effectifs/internal/ddl"
	"effectifs/internal/effectif"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ExcludedRegion is the catch-all region code left out of geographic views.
const ExcludedRegion = "99"

// ErrUnknownKind is returned by Open for a store kind without a SQL driver.
var ErrUnknownKind = errors.New("queries: unsupported store kind")

// DriverName maps a storage kind to its database/sql driver.
func DriverName(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "sqlite", "sqlite3":
		return "sqlite", nil
	case "postgres", "postgresql", "pg":
		return "pgx", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// DB runs the dashboard queries against one table.
type DB struct {
	db    *sqlx.DB
	table string
}

// Open connects to dsn with the driver matching kind.
func Open(ctx context.Context, kind, dsn, table string) (*DB, error) {
	driver, err := DriverName(kind)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("queries: connect %s: %w", driver, err)
	}
	return New(db, table), nil
}

// New wraps an open handle.
func New(db *sqlx.DB, table string) *DB {
	return &DB{db: db, table: table}
}

// Close releases the handle.
func (q *DB) Close() error { return q.db.Close() }

func (q *DB) from() string { return ddl.QuoteFQN(q.table) }

func col(name string) string { return ddl.QuoteIdent(name) }

// where accumulates "?" conditions and their arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Filter narrows a yearly aggregation. Empty Pathologie means all.
type Filter struct {
	Annee      int
	Pathologie string
}

// AreaStat is one row of a regional or departmental aggregation.
type AreaStat struct {
	Code       string  `db:"code" json:"code"`
	TotalCas   int64   `db:"total_cas" json:"total_cas"`
	Population int64   `db:"population_totale" json:"population_totale"`
	Prevalence float64 `db:"-" json:"prevalence"`
}

// Prevalence returns cases per hundred inhabitants, rounded to two decimals.
// A zero population yields zero.
func Prevalence(cas, pop int64) float64 {
	if pop <= 0 {
		return 0
	}
	return math.Round(float64(cas)*100/float64(pop)*100) / 100
}

// PrevalenceByRegion aggregates cases and population per region for a year.
func (q *DB) PrevalenceByRegion(ctx context.Context, f Filter) ([]AreaStat, error) {
	return q.byArea(ctx, "region", f)
}

// PrevalenceByDepartement aggregates cases and population per department.
func (q *DB) PrevalenceByDepartement(ctx context.Context, f Filter) ([]AreaStat, error) {
	return q.byArea(ctx, "dept", f)
}

func (q *DB) byArea(ctx context.Context, area string, f Filter) ([]AreaStat, error) {
	var w where
	w.add(col("annee")+" = ?", f.Annee)
	w.add(col(area) + " IS NOT NULL")
	w.add(col(area)+" <> ?", ExcludedRegion)
	if f.Pathologie != "" {
		w.add(col("patho_niv1")+" = ?", f.Pathologie)
	}
	query := fmt.Sprintf(`SELECT %[1]s AS code,
  CAST(COALESCE(SUM(%[2]s), 0) AS BIGINT) AS total_cas,
  CAST(COALESCE(SUM(%[3]s), 0) AS BIGINT) AS population_totale
FROM %[4]s%[5]s
GROUP BY %[1]s
ORDER BY total_cas DESC, code`, col(area), col("Ntop"), col("Npop"), q.from(), w.String())

	var out []AreaStat
	if err := q.db.SelectContext(ctx, &out, q.db.Rebind(query), w.args...); err != nil {
		return nil, fmt.Errorf("queries: by %s: %w", area, err)
	}
	for i := range out {
		out[i].Prevalence = Prevalence(out[i].TotalCas, out[i].Population)
	}
	return out, nil
}

// EvolutionFilter bounds Evolution. Empty strings mean no filter.
type EvolutionFilter struct {
	From, To   int
	Pathologie string
	Region     string
}

// EvolutionPoint is the case count of one pathology for one year.
type EvolutionPoint struct {
	Annee      int64  `db:"annee" json:"annee"`
	Pathologie string `db:"patho_niv1" json:"patho_niv1"`
	TotalCas   int64  `db:"total_cas" json:"total_cas"`
}

// Evolution returns yearly case counts per pathology between From and To
// inclusive.
func (q *DB) Evolution(ctx context.Context, f EvolutionFilter) ([]EvolutionPoint, error) {
	var w where
	w.add(col("annee")+" BETWEEN ? AND ?", f.From, f.To)
	w.add(col("patho_niv1") + " IS NOT NULL")
	if f.Pathologie != "" {
		w.add(col("patho_niv1")+" = ?", f.Pathologie)
	}
	if f.Region != "" {
		w.add(col("region")+" = ?", f.Region)
	}
	query := fmt.Sprintf(`SELECT %[1]s AS annee, %[2]s AS patho_niv1,
  CAST(COALESCE(SUM(%[3]s), 0) AS BIGINT) AS total_cas
FROM %[4]s%[5]s
GROUP BY %[1]s, %[2]s
ORDER BY annee, total_cas DESC`, col("annee"), col("patho_niv1"), col("Ntop"), q.from(), w.String())

	var out []EvolutionPoint
	if err := q.db.SelectContext(ctx, &out, q.db.Rebind(query), w.args...); err != nil {
		return nil, fmt.Errorf("queries: evolution: %w", err)
	}
	return out, nil
}

// AgeSexeStat is the case count of one age class and sex.
type AgeSexeStat struct {
	ClasseAge string `db:"cla_age_5" json:"cla_age_5"`
	Sexe      string `db:"libelle_sexe" json:"libelle_sexe"`
	TotalCas  int64  `db:"total_cas" json:"total_cas"`
}

// AgeSexe splits a year's cases by age class and sex.
func (q *DB) AgeSexe(ctx context.Context, f Filter) ([]AgeSexeStat, error) {
	var w where
	w.add(col("annee")+" = ?", f.Annee)
	if f.Pathologie != "" {
		w.add(col("patho_niv1")+" = ?", f.Pathologie)
	}
	query := fmt.Sprintf(`SELECT COALESCE(%[1]s, '') AS cla_age_5, COALESCE(%[2]s, '') AS libelle_sexe,
  CAST(COALESCE(SUM(%[3]s), 0) AS BIGINT) AS total_cas
FROM %[4]s%[5]s
GROUP BY %[1]s, %[2]s
ORDER BY cla_age_5, libelle_sexe`, col("cla_age_5"), col("libelle_sexe"), col("Ntop"), q.from(), w.String())

	var out []AgeSexeStat
	if err := q.db.SelectContext(ctx, &out, q.db.Rebind(query), w.args...); err != nil {
		return nil, fmt.Errorf("queries: age-sexe: %w", err)
	}
	return out, nil
}

// AgeFilter narrows AgeDistribution. Nil Sexe means both.
type AgeFilter struct {
	Annee      int
	Pathologie string
	Region     string
	Sexe       *int
}

// AgeBucket is the case count of one age class.
type AgeBucket struct {
	ClasseAge string `db:"cla_age_5" json:"cla_age_5"`
	Cas       int64  `db:"nombre_cas" json:"nombre_cas"`
}

// AgeDistribution counts cases per age class, leaving out the all-ages
// "tsage" class.
func (q *DB) AgeDistribution(ctx context.Context, f AgeFilter) ([]AgeBucket, error) {
	var w where
	w.add(col("annee")+" = ?", f.Annee)
	w.add(col("cla_age_5")+" <> ?", "tsage")
	if f.Pathologie != "" {
		w.add(col("patho_niv1")+" = ?", f.Pathologie)
	}
	if f.Region != "" {
		w.add(col("region")+" = ?", f.Region)
	}
	if f.Sexe != nil {
		w.add(col("sexe")+" = ?", *f.Sexe)
	}
	query := fmt.Sprintf(`SELECT %[1]s AS cla_age_5, CAST(COALESCE(SUM(%[2]s), 0) AS BIGINT) AS nombre_cas
FROM %[3]s%[4]s
GROUP BY %[1]s
ORDER BY cla_age_5`, col("cla_age_5"), col("Ntop"), q.from(), w.String())

	var out []AgeBucket
	if err := q.db.SelectContext(ctx, &out, q.db.Rebind(query), w.args...); err != nil {
		return nil, fmt.Errorf("queries: age distribution: %w", err)
	}
	return out, nil
}

// Pathologies lists the distinct patho_niv1 values, sorted.
func (q *DB) Pathologies(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT %[1]s FROM %[2]s WHERE %[1]s IS NOT NULL ORDER BY %[1]s`,
		col("patho_niv1"), q.from())
	var out []string
	if err := q.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("queries: pathologies: %w", err)
	}
	return out, nil
}

// Regions lists the distinct region codes, sorted, without ExcludedRegion.
func (q *DB) Regions(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT %[1]s FROM %[2]s WHERE %[1]s IS NOT NULL AND %[1]s <> ? ORDER BY %[1]s`,
		col("region"), q.from())
	var out []string
	if err := q.db.SelectContext(ctx, &out, q.db.Rebind(query), ExcludedRegion); err != nil {
		return nil, fmt.Errorf("queries: regions: %w", err)
	}
	return out, nil
}

// Sample reads up to limit rows and reports how many of them map cleanly
// onto effectif.Record. Rows stored with a value of the wrong type count as
// invalid.
func (q *DB) Sample(ctx context.Context, limit int) (valid, total int, err error) {
	cols := make([]string, len(effectif.Columns))
	for i, c := range effectif.Columns {
		cols[i] = col(c.Name)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s LIMIT %d`, strings.Join(cols, ", "), q.from(), limit)

	rows, err := q.db.QueryxContext(ctx, query)
	if err != nil {
		return 0, 0, fmt.Errorf("queries: sample: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		total++
		var r effectif.Record
		if rows.StructScan(&r) == nil {
			valid++
		}
	}
	if err := rows.Err(); err != nil {
		return valid, total, fmt.Errorf("queries: sample: %w", err)
	}
	return valid, total, nil
}
