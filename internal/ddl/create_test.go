package ddl

import (
	"strings"
	"testing"
)

// TestBuildCreateTableSQL checks rendering and input errors with table-driven
// subtests.
func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		def         TableDef
		dialect     Dialect
		wantSQL     string
		wantErr     bool
		errContains string
	}{
		{
			name:        "empty FQN returns error",
			def:         TableDef{FQN: "  ", Columns: []ColumnDef{{Name: "id", SQLType: "INT"}}},
			dialect:     SQLite,
			wantErr:     true,
			errContains: "table FQN must not be empty",
		},
		{
			name:        "no columns returns error",
			def:         TableDef{FQN: "t"},
			dialect:     SQLite,
			wantErr:     true,
			errContains: "at least one column is required",
		},
		{
			name:        "column with empty name returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: " ", SQLType: "INT"}}},
			dialect:     SQLite,
			wantErr:     true,
			errContains: "column with empty name",
		},
		{
			name:        "column with empty type returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: "x"}}},
			dialect:     SQLite,
			wantErr:     true,
			errContains: "missing SQLType",
		},
		{
			name:        "identity without dialect support",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id", AutoIncrement: true}}},
			dialect:     Dialect{Name: "bare"},
			wantErr:     true,
			errContains: "no identity clause",
		},
		{
			name: "sqlite identity and quoted names",
			def: TableDef{FQN: "effectifs", Columns: []ColumnDef{
				{Name: "id", PrimaryKey: true, AutoIncrement: true},
				{Name: "Niveau prioritaire", SQLType: "TEXT", Nullable: true},
				{Name: "Ntop", SQLType: "INTEGER", Nullable: true},
			}},
			dialect: SQLite,
			wantSQL: "CREATE TABLE IF NOT EXISTS \"effectifs\" (\n" +
				"  \"id\" INTEGER PRIMARY KEY AUTOINCREMENT,\n" +
				"  \"Niveau prioritaire\" TEXT,\n" +
				"  \"Ntop\" INTEGER\n);",
		},
		{
			name: "composite key with default and schema",
			def: TableDef{FQN: "public.t", Columns: []ColumnDef{
				{Name: "a", SQLType: "INT", PrimaryKey: true},
				{Name: "b", SQLType: "INT", PrimaryKey: true},
				{Name: "flag", SQLType: "BOOLEAN", Default: "  false "},
			}},
			dialect: Postgres,
			wantSQL: "CREATE TABLE IF NOT EXISTS \"public\".\"t\" (\n" +
				"  \"a\" INT NOT NULL,\n" +
				"  \"b\" INT NOT NULL,\n" +
				"  \"flag\" BOOLEAN NOT NULL DEFAULT false,\n" +
				"  PRIMARY KEY (\"a\", \"b\")\n);",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gotSQL, err := BuildCreateTableSQL(tt.def, tt.dialect)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("BuildCreateTableSQL() error = nil, want non-nil")
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("BuildCreateTableSQL() error = %q, want substring %q", err.Error(), tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildCreateTableSQL() unexpected error = %v", err)
			}
			if gotSQL != tt.wantSQL {
				t.Fatalf("BuildCreateTableSQL() =\n%s\nwant:\n%s", gotSQL, tt.wantSQL)
			}
		})
	}
}

func TestEffectifs(t *testing.T) {
	t.Parallel()

	for _, d := range []Dialect{SQLite, Postgres} {
		def := Effectifs("effectifs", d)
		if len(def.Columns) != 17 {
			t.Fatalf("%s: %d columns, want 17", d.Name, len(def.Columns))
		}
		if !def.Columns[0].AutoIncrement || def.Columns[0].Name != "id" {
			t.Fatalf("%s: first column = %+v", d.Name, def.Columns[0])
		}
		sql, err := BuildCreateTableSQL(def, d)
		if err != nil {
			t.Fatalf("%s: %v", d.Name, err)
		}
		for _, want := range []string{`"Niveau prioritaire" TEXT`, `"annee" ` + d.Integer, `"tri" ` + d.Real, d.Identity} {
			if !strings.Contains(sql, want) {
				t.Fatalf("%s: DDL missing %q:\n%s", d.Name, want, sql)
			}
		}
		if strings.Contains(sql, "NOT NULL") {
			t.Fatalf("%s: data columns must be nullable:\n%s", d.Name, sql)
		}
	}
}

func TestQuoteFQN(t *testing.T) {
	t.Parallel()

	if got := QuoteFQN(`main.we"ird`); got != `"main"."we""ird"` {
		t.Fatalf("QuoteFQN() = %s", got)
	}
}
