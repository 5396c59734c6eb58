package queries

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"effectifs/internal/effectif"
	"effectifs/internal/storage"
	_ "effectifs/internal/storage/sqlite"
)

type row struct {
	annee      int64
	patho      string
	age        string
	sexe       int64
	libSexe    string
	region     string
	dept       string
	ntop, npop int64
}

func (r row) values() []any {
	v := make([]any, len(effectif.Columns))
	v[0] = r.annee
	v[1] = r.patho
	v[5] = r.age
	v[6] = r.sexe
	v[7] = r.region
	v[8] = r.dept
	v[9] = r.ntop
	v[10] = r.npop
	v[14] = r.libSexe
	return v
}

var fixture = []row{
	{2023, "Cancers", "40-44", 1, "hommes", "11", "75", 30, 1000},
	{2023, "Cancers", "40-44", 2, "femmes", "11", "92", 10, 1000},
	{2023, "Diabète", "tsage", 9, "tous sexes", "84", "01", 5, 500},
	{2023, "Cancers", "45-49", 1, "hommes", "99", "999", 1000, 1},
	{2022, "Cancers", "40-44", 1, "hommes", "11", "75", 20, 1000},
	{2021, "Diabète", "40-44", 2, "femmes", "84", "01", 7, 700},
}

func openFixture(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "effectifs.sqlite3")

	st, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: dsn, Table: "effectifs"})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer st.Close()
	if err := st.EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	rows := make([][]any, len(fixture))
	for i, r := range fixture {
		rows[i] = r.values()
	}
	if _, err := st.CopyFrom(ctx, effectif.ColumnNames(), rows); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}

	q, err := Open(ctx, "sqlite", dsn, "effectifs")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func TestDriverName(t *testing.T) {
	t.Parallel()

	for kind, want := range map[string]string{"sqlite": "sqlite", "Postgres": "pgx", "pg": "pgx"} {
		if got, err := DriverName(kind); err != nil || got != want {
			t.Errorf("DriverName(%q) = %q, %v", kind, got, err)
		}
	}
	if _, err := DriverName("mssql"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}

func TestPrevalence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cas, pop int64
		want     float64
	}{
		{40, 2000, 2},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := Prevalence(tt.cas, tt.pop); got != tt.want {
			t.Errorf("Prevalence(%d, %d) = %v, want %v", tt.cas, tt.pop, got, tt.want)
		}
	}
}

func TestPrevalenceByRegion(t *testing.T) {
	t.Parallel()

	q := openFixture(t)
	got, err := q.PrevalenceByRegion(context.Background(), Filter{Annee: 2023})
	if err != nil {
		t.Fatalf("PrevalenceByRegion: %v", err)
	}
	want := []AreaStat{
		{Code: "11", TotalCas: 40, Population: 2000, Prevalence: 2},
		{Code: "84", TotalCas: 5, Population: 500, Prevalence: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}

	got, err = q.PrevalenceByRegion(context.Background(), Filter{Annee: 2023, Pathologie: "Diabète"})
	if err != nil || len(got) != 1 || got[0].Code != "84" {
		t.Fatalf("filtered = %+v, %v", got, err)
	}
}

func TestPrevalenceByDepartement(t *testing.T) {
	t.Parallel()

	q := openFixture(t)
	got, err := q.PrevalenceByDepartement(context.Background(), Filter{Annee: 2023, Pathologie: "Cancers"})
	if err != nil {
		t.Fatalf("PrevalenceByDepartement: %v", err)
	}
	if len(got) != 3 || got[0].Code != "999" || got[1].Code != "75" || got[2].Code != "92" {
		t.Fatalf("got %+v", got)
	}
}

func TestEvolution(t *testing.T) {
	t.Parallel()

	q := openFixture(t)
	got, err := q.Evolution(context.Background(), EvolutionFilter{From: 2021, To: 2023, Region: "11"})
	if err != nil {
		t.Fatalf("Evolution: %v", err)
	}
	want := []EvolutionPoint{
		{Annee: 2022, Pathologie: "Cancers", TotalCas: 20},
		{Annee: 2023, Pathologie: "Cancers", TotalCas: 40},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}
}

func TestAgeSexeAndDistribution(t *testing.T) {
	t.Parallel()

	q := openFixture(t)
	ctx := context.Background()

	as, err := q.AgeSexe(ctx, Filter{Annee: 2023, Pathologie: "Cancers"})
	if err != nil {
		t.Fatalf("AgeSexe: %v", err)
	}
	want := []AgeSexeStat{
		{ClasseAge: "40-44", Sexe: "femmes", TotalCas: 10},
		{ClasseAge: "40-44", Sexe: "hommes", TotalCas: 30},
		{ClasseAge: "45-49", Sexe: "hommes", TotalCas: 1000},
	}
	if !reflect.DeepEqual(as, want) {
		t.Fatalf("AgeSexe = %+v", as)
	}

	one := 1
	dist, err := q.AgeDistribution(ctx, AgeFilter{Annee: 2023, Sexe: &one})
	if err != nil {
		t.Fatalf("AgeDistribution: %v", err)
	}
	if len(dist) != 2 || dist[0] != (AgeBucket{"40-44", 30}) || dist[1] != (AgeBucket{"45-49", 1000}) {
		t.Fatalf("AgeDistribution = %+v", dist)
	}
	all, err := q.AgeDistribution(ctx, AgeFilter{Annee: 2023})
	if err != nil {
		t.Fatalf("AgeDistribution: %v", err)
	}
	for _, b := range all {
		if b.ClasseAge == "tsage" {
			t.Fatalf("tsage must be excluded: %+v", all)
		}
	}
}

func TestListsAndSample(t *testing.T) {
	t.Parallel()

	q := openFixture(t)
	ctx := context.Background()

	p, err := q.Pathologies(ctx)
	if err != nil || !reflect.DeepEqual(p, []string{"Cancers", "Diabète"}) {
		t.Fatalf("Pathologies = %v, %v", p, err)
	}
	r, err := q.Regions(ctx)
	if err != nil || !reflect.DeepEqual(r, []string{"11", "84"}) {
		t.Fatalf("Regions = %v, %v", r, err)
	}
	valid, total, err := q.Sample(ctx, 100)
	if err != nil || valid != len(fixture) || total != len(fixture) {
		t.Fatalf("Sample = %d/%d, %v", valid, total, err)
	}
	valid, total, err = q.Sample(ctx, 2)
	if err != nil || valid != 2 || total != 2 {
		t.Fatalf("Sample(2) = %d/%d, %v", valid, total, err)
	}
}
