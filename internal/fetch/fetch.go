// Package fetch keeps a local copy of a remote resource. A copy that exists
// with a non-zero size is trusted as is; otherwise the resource is streamed to
// "<dest>.part", synced and renamed over dest, so dest is never observed
// half-written.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"

	"effectifs/internal/datasource"
)

const (
	chunkSize  = 1 << 20
	partSuffix = ".part"
)

// ErrEmptySource is returned when the source stream ends before any byte.
var ErrEmptySource = errors.New("fetch: source returned no data")

// Result describes one EnsureLocalCopy call.
type Result struct {
	Path string
	// Skipped is true when dest already existed with a non-zero size.
	Skipped bool
	// Bytes is the size of dest after the call.
	Bytes int64
	// Digest is the xxh3-64 of the downloaded bytes, hex encoded. Empty when
	// Skipped.
	Digest string
}

// Test seams.
var (
	rename = os.Rename
	create = func(name string) (*os.File, error) {
		return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	}
)

// EnsureLocalCopy makes dest hold the content of src. It is not safe for
// concurrent callers sharing the same dest.
//
// On failure the ".part" file is removed, a zero-length dest is removed, and
// a pre-existing non-empty dest is left untouched.
func EnsureLocalCopy(ctx context.Context, src datasource.Source, dest string) (Result, error) {
	if fi, err := os.Stat(dest); err == nil && fi.Mode().IsRegular() && fi.Size() > 0 {
		return Result{Path: dest, Skipped: true, Bytes: fi.Size()}, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Result{}, fmt.Errorf("fetch: create dir for %s: %w", dest, err)
	}

	tmp := dest + partSuffix
	res, err := download(ctx, src, tmp)
	if err == nil {
		if rerr := rename(tmp, dest); rerr != nil {
			err = fmt.Errorf("fetch: rename %s: %w", tmp, rerr)
		}
	}
	if err != nil {
		_ = os.Remove(tmp)
		if fi, serr := os.Stat(dest); serr == nil && fi.Size() == 0 {
			_ = os.Remove(dest)
		}
		return Result{}, err
	}
	res.Path = dest
	return res, nil
}

func download(ctx context.Context, src datasource.Source, tmp string) (Result, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch: open source: %w", err)
	}
	defer rc.Close()

	f, err := create(tmp)
	if err != nil {
		return Result{}, fmt.Errorf("fetch: create %s: %w", tmp, err)
	}
	h := xxh3.New()
	buf := make([]byte, chunkSize)
	n, err := io.CopyBuffer(io.MultiWriter(f, h), ctxReader{ctx: ctx, r: rc}, buf)
	if err != nil {
		_ = f.Close()
		return Result{}, fmt.Errorf("fetch: stream to %s: %w", tmp, err)
	}
	if n == 0 {
		_ = f.Close()
		return Result{}, ErrEmptySource
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return Result{}, fmt.Errorf("fetch: sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("fetch: close %s: %w", tmp, err)
	}
	return Result{Bytes: n, Digest: fmt.Sprintf("%016x", h.Sum64())}, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
