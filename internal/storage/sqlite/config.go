// Package sqlite implements the effectifs storage.Store on SQLite through the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"net/url"
	"strings"
	"time"
)

// Config holds SQLite store configuration derived from storage.Config.
type Config struct {
	// DSN is a file path or a "file:" URI, e.g.:
	//   "data/effectifs.sqlite3"
	//   "file:data/effectifs.sqlite3?cache=shared"
	DSN string

	// Table is the destination table name.
	Table string

	// BusyTimeout is applied as PRAGMA busy_timeout. Zero keeps 5s.
	BusyTimeout time.Duration

	// JournalMode, when set, is applied as PRAGMA journal_mode (e.g. "WAL").
	JournalMode string

	// InsertChunk caps rows per multi-row INSERT statement. Zero keeps
	// defaultInsertChunk.
	InsertChunk int
}

// PathFromDSN returns the database file a DSN points to, or "" for
// in-memory databases.
func PathFromDSN(dsn string) string {
	p := strings.TrimSpace(dsn)
	if p == "" || p == ":memory:" {
		return ""
	}
	if strings.HasPrefix(p, "file:") {
		if u, err := url.Parse(p); err == nil && u.Query().Get("mode") == "memory" {
			return ""
		}
		p = strings.TrimPrefix(p, "file:")
		p = strings.TrimPrefix(p, "//")
	}
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == ":memory:" {
		return ""
	}
	return p
}
