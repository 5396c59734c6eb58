package fetch

import (
	"context"
	"fmt"
	"net/url"

	"effectifs/internal/datasource"
	"effectifs/internal/datasource/file"
	"effectifs/internal/datasource/httpds"
	"effectifs/internal/datasource/s3ds"
)

// Resolver maps a source URL to a datasource by scheme.
type Resolver struct {
	// HTTP serves http:// and https://. Required for those schemes.
	HTTP *httpds.Client
	// S3 configures s3:// sources.
	S3 s3ds.Config
}

// Resolve returns the Source for raw: http(s) → httpds, s3 → s3ds, file or a
// bare path → file.
func (r Resolver) Resolve(ctx context.Context, raw string) (datasource.Source, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse source %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
		if r.HTTP == nil {
			return nil, fmt.Errorf("fetch: no http client for %q", raw)
		}
		return httpds.NewSource(r.HTTP, raw), nil
	case "s3":
		return s3ds.New(ctx, r.S3, raw)
	case "file", "":
		return file.FromURL(raw)
	default:
		return nil, fmt.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
}
