// Package storage defines the backend-agnostic contract for the effectifs
// table and a small factory registry. Concrete backends (sqlite, postgres)
// register themselves at init; import internal/storage/all to enable them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"effectifs/internal/config"
)

// ErrUnknownKind is returned by New for a kind no backend registered.
var ErrUnknownKind = errors.New("unsupported storage.kind")

// ValueCount is one distinct value of a column and its row count.
type ValueCount struct {
	Value string `db:"value"`
	Rows  int64  `db:"n"`
}

// Replacement rewrites every row whose column equals From to To.
type Replacement struct {
	From string
	To   string
}

// Store is the table-level contract used by the loader and the label
// normalizer. Column arguments are literal identifiers; implementations quote
// them. Every mutating call is one transaction.
type Store interface {
	// Table returns the configured table name.
	Table() string
	// EnsureTable creates the effectifs table if absent.
	EnsureTable(ctx context.Context) error
	// TableExists reports whether the table is present.
	TableExists(ctx context.Context) (bool, error)
	// CountRows returns COUNT(*) of the table.
	CountRows(ctx context.Context) (int64, error)
	// DeleteAll empties the table and returns the number of deleted rows.
	DeleteAll(ctx context.Context) (int64, error)
	// CopyFrom inserts rows (aligned to columns) and returns the inserted count.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// DistinctCounts groups the table by column, ordered by value. NULLs are skipped.
	DistinctCounts(ctx context.Context, column string) ([]ValueCount, error)
	// CountWhere counts rows where column = value.
	CountWhere(ctx context.Context, column, value string) (int64, error)
	// ReplaceValues applies every replacement in one transaction and returns
	// the total number of updated rows.
	ReplaceValues(ctx context.Context, column string, reps []Replacement) (int64, error)
	// Close releases the underlying connections.
	Close()
}

// Config selects and configures a backend.
type Config struct {
	Kind    string
	DSN     string
	Table   string
	Options config.Options
}

// Factory opens a Store for cfg.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a Store using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Store, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w=%s", ErrUnknownKind, cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns a sorted snapshot of the registered kinds.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
