// Package effectif models one row of the effectifs table: the fixed column
// contract, the raw CSV shape and the typed record the loader writes.
package effectif

import "strings"

// Kind is the storage affinity of a column.
type Kind int

const (
	Integer Kind = iota
	Text
	Real
)

// Column is one destination column, by literal identifier.
type Column struct {
	Name string
	Kind Kind
}

// IDColumn is the store-assigned surrogate key. It never appears in Columns.
const IDColumn = "id"

// Columns lists the data columns in table order. Names are on-disk
// identifiers; "Niveau prioritaire" contains a space and must be quoted.
var Columns = []Column{
	{"annee", Integer},
	{"patho_niv1", Text},
	{"patho_niv2", Text},
	{"patho_niv3", Text},
	{"top", Text},
	{"cla_age_5", Text},
	{"sexe", Integer},
	{"region", Text},
	{"dept", Text},
	{"Ntop", Integer},
	{"Npop", Integer},
	{"prev", Text},
	{"Niveau prioritaire", Text},
	{"libelle_classe_age", Text},
	{"libelle_sexe", Text},
	{"tri", Real},
}

// ColumnNames returns the data column names in table order.
func ColumnNames() []string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		out[i] = c.Name
	}
	return out
}

// headerAliases maps alternative source spellings to the table identifier.
var headerAliases = map[string]string{
	"niveau_prioritaire": "Niveau prioritaire",
	"niveau prioritaire": "Niveau prioritaire",
}

// CanonicalHeader trims each header name and resolves known aliases. It runs
// once per file, before any row is decoded.
func CanonicalHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if alias, ok := headerAliases[strings.ToLower(h)]; ok {
			h = alias
		}
		out[i] = h
	}
	return out
}

// Raw is one source row as text. Tags are source column names.
type Raw struct {
	Annee             string `csv:"annee"`
	PathoNiv1         string `csv:"patho_niv1"`
	PathoNiv2         string `csv:"patho_niv2"`
	PathoNiv3         string `csv:"patho_niv3"`
	Top               string `csv:"top"`
	ClaAge5           string `csv:"cla_age_5"`
	Sexe              string `csv:"sexe"`
	Region            string `csv:"region"`
	Dept              string `csv:"dept"`
	Ntop              string `csv:"Ntop"`
	Npop              string `csv:"Npop"`
	Prev              string `csv:"prev"`
	NiveauPrioritaire string `csv:"Niveau prioritaire"`
	LibelleClasseAge  string `csv:"libelle_classe_age"`
	LibelleSexe       string `csv:"libelle_sexe"`
	Tri               string `csv:"tri"`
}

// Record is a validated row. Nil means NULL.
type Record struct {
	Annee             *int64   `db:"annee" json:"annee"`
	PathoNiv1         *string  `db:"patho_niv1" json:"patho_niv1"`
	PathoNiv2         *string  `db:"patho_niv2" json:"patho_niv2"`
	PathoNiv3         *string  `db:"patho_niv3" json:"patho_niv3"`
	Top               *string  `db:"top" json:"top"`
	ClaAge5           *string  `db:"cla_age_5" json:"cla_age_5"`
	Sexe              *int64   `db:"sexe" json:"sexe"`
	Region            *string  `db:"region" json:"region"`
	Dept              *string  `db:"dept" json:"dept"`
	Ntop              *int64   `db:"Ntop" json:"Ntop"`
	Npop              *int64   `db:"Npop" json:"Npop"`
	Prev              *string  `db:"prev" json:"prev"`
	NiveauPrioritaire *string  `db:"Niveau prioritaire" json:"Niveau prioritaire"`
	LibelleClasseAge  *string  `db:"libelle_classe_age" json:"libelle_classe_age"`
	LibelleSexe       *string  `db:"libelle_sexe" json:"libelle_sexe"`
	Tri               *float64 `db:"tri" json:"tri"`
}

// Values projects r onto Columns order. NULLs are untyped nil.
func (r *Record) Values() []any {
	return []any{
		i64(r.Annee),
		str(r.PathoNiv1),
		str(r.PathoNiv2),
		str(r.PathoNiv3),
		str(r.Top),
		str(r.ClaAge5),
		i64(r.Sexe),
		str(r.Region),
		str(r.Dept),
		i64(r.Ntop),
		i64(r.Npop),
		str(r.Prev),
		str(r.NiveauPrioritaire),
		str(r.LibelleClasseAge),
		str(r.LibelleSexe),
		f64(r.Tri),
	}
}

func i64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func str(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func f64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
