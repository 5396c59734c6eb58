package ddl

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: literal column identifier (quoted at render time)
//   - SQLType: target SQL type (e.g., TEXT, BIGINT, REAL)
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - AutoIncrement: store-assigned key; rendered with the dialect's identity clause
//   - Default: raw default expression (e.g., 'anon', CURRENT_TIMESTAMP)
type ColumnDef struct {
	Name          string
	SQLType       string
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
	Default       string
}

// TableDef holds the table name (optionally "schema.table") and an ordered
// list of columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// Dialect carries the per-backend rendering choices.
type Dialect struct {
	Name string
	// Identity replaces the type of an AutoIncrement column, primary key
	// included (e.g., "INTEGER PRIMARY KEY AUTOINCREMENT").
	Identity string
	Integer  string
	Text     string
	Real     string
}

var (
	SQLite = Dialect{
		Name:     "sqlite",
		Identity: "INTEGER PRIMARY KEY AUTOINCREMENT",
		Integer:  "INTEGER",
		Text:     "TEXT",
		Real:     "REAL",
	}
	Postgres = Dialect{
		Name:     "postgres",
		Identity: "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY",
		Integer:  "BIGINT",
		Text:     "TEXT",
		Real:     "DOUBLE PRECISION",
	}
)
