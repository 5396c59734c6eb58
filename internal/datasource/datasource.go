// Package datasource defines the byte-source abstraction the fetcher streams
// from. Concrete sources live in subpackages: file (local paths and file://
// URLs), httpds (http/https with retry) and s3ds (s3://bucket/key).
package datasource

import (
	"context"
	"io"
)

// Source opens a fresh stream of the remote resource. The caller closes it.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Func adapts a plain function to Source.
type Func func(ctx context.Context) (io.ReadCloser, error)

// Open calls f.
func (f Func) Open(ctx context.Context) (io.ReadCloser, error) { return f(ctx) }
