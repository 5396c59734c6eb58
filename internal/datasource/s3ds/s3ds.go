// Package s3ds reads a single object from an S3-compatible store (AWS S3 or
// MinIO) addressed as s3://bucket/key.
package s3ds

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds client construction parameters. Credentials come from the
// default AWS chain (env, shared config, instance role).
type Config struct {
	Region    string
	Endpoint  string // optional; custom endpoint such as MinIO
	PathStyle bool
}

// Source streams one object.
type Source struct {
	client *s3.Client
	bucket string
	key    string
}

// ParseURL splits "s3://bucket/path/to/key".
func ParseURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("s3ds: parse %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("s3ds: unsupported scheme %q", u.Scheme)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3ds: %q must be s3://bucket/key", raw)
	}
	return bucket, key, nil
}

// New builds a Source for rawURL, loading the AWS configuration once.
func New(ctx context.Context, cfg Config, rawURL string, optFns ...func(*s3.Options)) (*Source, error) {
	bucket, key, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	region := cfg.Region
	if region == "" {
		region = "eu-west-3"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3ds: load aws config: %w", err)
	}
	opts := append([]func(*s3.Options){func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}}, optFns...)
	return &Source{client: s3.NewFromConfig(awsCfg, opts...), bucket: bucket, key: key}, nil
}

// NewWithClient binds an existing client.
func NewWithClient(client *s3.Client, bucket, key string) *Source {
	return &Source{client: client, bucket: bucket, key: key}
}

func (s *Source) String() string { return "s3://" + s.bucket + "/" + s.key }

// Open issues GetObject and returns the object body.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &s.key})
	if err != nil {
		return nil, fmt.Errorf("s3ds: get %s: %w", s, err)
	}
	return out.Body, nil
}
