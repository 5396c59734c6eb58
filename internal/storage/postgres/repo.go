// Package postgres implements the effectifs storage.Store on Postgres using
// pgx v5. Batches are loaded with COPY inside a transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"effectifs/internal/ddl"
	"effectifs/internal/storage"
)

// Config holds Postgres store configuration.
type Config struct {
	DSN      string // connection string for pgxpool
	Table    string // optionally schema-qualified, e.g. "public.effectifs"
	MaxConns int32  // pool size; zero keeps the pgxpool default
}

// Repository is the Postgres-backed storage.Store.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a close function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("postgres: table must not be empty")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repository{pool: pool, cfg: cfg}, pool.Close, nil
}

func (r *Repository) Table() string { return r.cfg.Table }

func (r *Repository) table() string { return ddl.QuoteFQN(r.cfg.Table) }

func (r *Repository) EnsureTable(ctx context.Context) error {
	stmt, err := ddl.BuildCreateTableSQL(ddl.Effectifs(r.cfg.Table, ddl.Postgres), ddl.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if _, err := r.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}
	return nil
}

// TableExists resolves the (quoted) name with to_regclass.
func (r *Repository) TableExists(ctx context.Context) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", r.table()).Scan(&ok); err != nil {
		return false, fmt.Errorf("postgres: table exists: %w", err)
	}
	return ok, nil
}

func (r *Repository) CountRows(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+r.table()).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return n, nil
}

func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	var n int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM "+r.table())
		if err != nil {
			return fmt.Errorf("postgres: delete: %w", err)
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

// CopyFrom runs COPY for rows inside one transaction.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var n int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		n, err = tx.CopyFrom(ctx, splitFQN(r.cfg.Table), columns, pgx.CopyFromRows(rows))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Detail != "" {
				return fmt.Errorf("postgres: copy: %s (%s): %w", pgErr.Detail, pgErr.SQLState(), err)
			}
			return fmt.Errorf("postgres: copy: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Repository) DistinctCounts(ctx context.Context, column string) ([]storage.ValueCount, error) {
	col := ddl.QuoteIdent(column)
	q := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s WHERE %s IS NOT NULL GROUP BY %s ORDER BY %s",
		col, r.table(), col, col, col)
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: distinct %s: %w", column, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.ValueCount, error) {
		var vc storage.ValueCount
		err := row.Scan(&vc.Value, &vc.Rows)
		return vc, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan distinct %s: %w", column, err)
	}
	return out, nil
}

func (r *Repository) CountWhere(ctx context.Context, column, value string) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = $1", r.table(), ddl.QuoteIdent(column))
	if err := r.pool.QueryRow(ctx, q, value).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count where %s: %w", column, err)
	}
	return n, nil
}

// ReplaceValues sends every UPDATE in one pgx.Batch inside a transaction.
func (r *Repository) ReplaceValues(ctx context.Context, column string, reps []storage.Replacement) (int64, error) {
	if len(reps) == 0 {
		return 0, nil
	}
	col := ddl.QuoteIdent(column)
	q := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = $2", r.table(), col, col)

	var total int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, rep := range reps {
			b.Queue(q, rep.To, rep.From)
		}
		br := tx.SendBatch(ctx, b)
		for _, rep := range reps {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("postgres: update %q: %w", rep.From, err)
			}
			total += tag.RowsAffected()
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
