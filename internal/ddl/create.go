// Package ddl defines a small model for SQL DDL and renders the CREATE TABLE
// statement of the effectifs table for each supported dialect.
//
// Every identifier is double-quoted so names such as "Niveau prioritaire"
// and mixed-case "Ntop" survive verbatim. Statements use IF NOT EXISTS.
package ddl

import (
	"fmt"
	"strings"

	"effectifs/internal/effectif"
)

// QuoteIdent double-quotes one identifier segment.
func QuoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// QuoteFQN quotes a possibly schema-qualified name segment by segment:
// public.effectifs → "public"."effectifs".
func QuoteFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}

// QuoteAll quotes each column name.
func QuoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = QuoteIdent(c)
	}
	return out
}

// BuildCreateTableSQL renders:
//
//	CREATE TABLE IF NOT EXISTS "table" (
//	  "id" <identity>,
//	  "col" TYPE [NOT NULL] [DEFAULT expr],
//	  [PRIMARY KEY ("pk", ...)]
//	);
//
// AutoIncrement columns take the dialect's Identity clause and are excluded
// from the trailing PRIMARY KEY constraint.
func BuildCreateTableSQL(t TableDef, d Dialect) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, 1)

	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		var sb strings.Builder
		sb.WriteString(QuoteIdent(c.Name))
		sb.WriteByte(' ')

		if c.AutoIncrement {
			if d.Identity == "" {
				return "", fmt.Errorf("ddl: dialect %q has no identity clause for %s", d.Name, c.Name)
			}
			sb.WriteString(d.Identity)
			cols = append(cols, sb.String())
			continue
		}

		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", c.Name)
		}
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, QuoteIdent(c.Name))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		QuoteFQN(fqn),
		strings.Join(cols, ",\n  "),
	), nil
}

// Effectifs returns the fixed table definition: an identity "id" followed by
// effectif.Columns, all nullable, typed per dialect.
func Effectifs(table string, d Dialect) TableDef {
	cols := make([]ColumnDef, 0, len(effectif.Columns)+1)
	cols = append(cols, ColumnDef{Name: effectif.IDColumn, PrimaryKey: true, AutoIncrement: true})
	for _, c := range effectif.Columns {
		cols = append(cols, ColumnDef{Name: c.Name, SQLType: d.typeOf(c.Kind), Nullable: true})
	}
	return TableDef{FQN: table, Columns: cols}
}

func (d Dialect) typeOf(k effectif.Kind) string {
	switch k {
	case effectif.Integer:
		return d.Integer
	case effectif.Real:
		return d.Real
	default:
		return d.Text
	}
}
