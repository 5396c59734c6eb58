package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"effectifs/internal/ddl"
	"effectifs/internal/storage"

	_ "modernc.org/sqlite"
)

// defaultInsertChunk keeps 16 columns × rows under SQLite's default
// 32766 bind-variable limit.
const defaultInsertChunk = 500

// Repository is the SQLite-backed storage.Store.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens the database (creating parent directories of a file
// DSN), applies pragmas and returns the Repository plus a close function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("sqlite: table must not be empty")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.InsertChunk <= 0 {
		cfg.InsertChunk = defaultInsertChunk
	}
	if p := PathFromDSN(cfg.DSN); p != "" {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection: in-memory databases are per-connection and the loader
	// is the single writer.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	pragmas := []string{fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds())}
	if jm := strings.TrimSpace(cfg.JournalMode); jm != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode = "+jm)
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	closeFn := func() { db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// DB exposes the underlying handle for read-only collaborators.
func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) Table() string { return r.cfg.Table }

func (r *Repository) table() string { return ddl.QuoteFQN(r.cfg.Table) }

// EnsureTable runs the CREATE TABLE IF NOT EXISTS statement.
func (r *Repository) EnsureTable(ctx context.Context) error {
	stmt, err := ddl.BuildCreateTableSQL(ddl.Effectifs(r.cfg.Table, ddl.SQLite), ddl.SQLite)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: create table: %w", err)
	}
	return nil
}

// TableExists looks the table up in sqlite_master.
func (r *Repository) TableExists(ctx context.Context) (bool, error) {
	name := r.cfg.Table
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: table exists: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) CountRows(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.table()).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

// DeleteAll empties the table in a single transaction.
func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	var n int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+r.table())
		if err != nil {
			return fmt.Errorf("sqlite: delete: %w", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}

// CopyFrom inserts rows in one transaction using multi-row INSERT statements
// of at most InsertChunk rows. Nothing is kept on error.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var inserted int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var (
			full     *sql.Stmt
			fullRows = min(r.cfg.InsertChunk, len(rows))
			args     = make([]any, 0, fullRows*len(columns))
		)
		defer func() {
			if full != nil {
				full.Close()
			}
		}()

		for off := 0; off < len(rows); off += fullRows {
			chunk := rows[off:min(off+fullRows, len(rows))]
			args = args[:0]
			for _, row := range chunk {
				if len(row) != len(columns) {
					return fmt.Errorf("sqlite: CopyFrom: row length %d != columns length %d", len(row), len(columns))
				}
				args = append(args, row...)
			}

			var err error
			if len(chunk) == fullRows {
				if full == nil {
					if full, err = tx.PrepareContext(ctx, r.insertSQL(columns, fullRows)); err != nil {
						return fmt.Errorf("sqlite: prepare insert: %w", err)
					}
				}
				_, err = full.ExecContext(ctx, args...)
			} else {
				_, err = tx.ExecContext(ctx, r.insertSQL(columns, len(chunk)), args...)
			}
			if err != nil {
				return fmt.Errorf("sqlite: insert: %w", err)
			}
			inserted += int64(len(chunk))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *Repository) insertSQL(columns []string, nrows int) string {
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", r.table(), strings.Join(ddl.QuoteAll(columns), ", "))
	for i := 0; i < nrows; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(tuple)
	}
	return sb.String()
}

func (r *Repository) DistinctCounts(ctx context.Context, column string) ([]storage.ValueCount, error) {
	col := ddl.QuoteIdent(column)
	q := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s WHERE %s IS NOT NULL GROUP BY %s ORDER BY %s",
		col, r.table(), col, col, col)
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlite: distinct %s: %w", column, err)
	}
	defer rows.Close()

	var out []storage.ValueCount
	for rows.Next() {
		var vc storage.ValueCount
		if err := rows.Scan(&vc.Value, &vc.Rows); err != nil {
			return nil, fmt.Errorf("sqlite: scan distinct %s: %w", column, err)
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}

func (r *Repository) CountWhere(ctx context.Context, column, value string) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", r.table(), ddl.QuoteIdent(column))
	if err := r.db.QueryRowContext(ctx, q, value).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count where %s: %w", column, err)
	}
	return n, nil
}

// ReplaceValues runs one UPDATE per replacement inside a single transaction.
func (r *Repository) ReplaceValues(ctx context.Context, column string, reps []storage.Replacement) (int64, error) {
	if len(reps) == 0 {
		return 0, nil
	}
	col := ddl.QuoteIdent(column)
	q := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", r.table(), col, col)

	var total int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("sqlite: prepare update: %w", err)
		}
		defer stmt.Close()
		for _, rep := range reps {
			res, err := stmt.ExecContext(ctx, rep.To, rep.From)
			if err != nil {
				return fmt.Errorf("sqlite: update %q: %w", rep.From, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}
