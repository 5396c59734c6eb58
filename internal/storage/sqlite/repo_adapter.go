package sqlite

import (
	"context"
	"time"

	"effectifs/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

// wrappedRepo adds a Close that calls the cleanup returned by NewRepository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

var _ storage.Store = (*wrappedRepo)(nil)

// configFrom maps storage.Config (and its free-form options) to Config.
// Recognized options: busy_timeout_ms, journal_mode, insert_chunk.
func configFrom(cfg storage.Config) Config {
	return Config{
		DSN:         cfg.DSN,
		Table:       cfg.Table,
		BusyTimeout: time.Duration(cfg.Options.Int("busy_timeout_ms", 5000)) * time.Millisecond,
		JournalMode: cfg.Options.String("journal_mode", ""),
		InsertChunk: cfg.Options.Int("insert_chunk", defaultInsertChunk),
	}
}

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		r, closeFn, err := newRepository(ctx, configFrom(cfg))
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
}
