// Package file implements a local filesystem-backed data source.
package file

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// Local is a filesystem data source that opens files from the local disk.
type Local struct{ path string }

// NewLocal returns a Local source bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// FromURL accepts "file:///abs/path", "file://rel/path" or a bare path.
func FromURL(raw string) (*Local, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return NewLocal(raw), nil
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("file: unsupported scheme %q", u.Scheme)
	}
	p := u.Path
	if u.Host != "" && u.Host != "localhost" {
		p = u.Host + u.Path
	}
	if p == "" {
		return nil, fmt.Errorf("file: empty path in %q", raw)
	}
	return NewLocal(filepath.FromSlash(p)), nil
}

// Path returns the bound path.
func (l *Local) Path() string { return l.path }

func (l *Local) String() string { return l.path }

// Open returns the context error when ctx is already done; otherwise it opens
// the file. Filesystem errors keep their identity for errors.Is checks.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}
