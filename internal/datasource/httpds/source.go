package httpds

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"
)

// ErrStalled is the cause reported when a body read makes no progress within
// the client timeout.
var ErrStalled = errors.New("httpds: download stalled")

// Source streams one URL through a Client.
type Source struct {
	client *Client
	url    string
}

// NewSource binds url to c.
func NewSource(c *Client, url string) *Source { return &Source{client: c, url: url} }

func (s *Source) String() string { return s.url }

// Open issues the GET and returns the body once a 2xx arrives. Any other final
// status is a *StatusError. The body is read under a stall timer: if a read
// waits longer than the client timeout the request is canceled and Read fails
// with ErrStalled.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	rctx, cancel := context.WithCancelCause(ctx)
	resp, err := s.client.Get(rctx, s.url, nil)
	if err != nil {
		cancel(nil)
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cancel(nil)
		return nil, newStatusError(http.MethodGet, s.url, resp)
	}
	return newStallReader(rctx, resp.Body, s.client.timeout, cancel), nil
}

// stallReader cancels the request when no Read completes within idle.
type stallReader struct {
	ctx    context.Context
	body   io.ReadCloser
	idle   time.Duration
	timer  *time.Timer
	cancel context.CancelCauseFunc
	once   sync.Once
}

func newStallReader(ctx context.Context, body io.ReadCloser, idle time.Duration, cancel context.CancelCauseFunc) *stallReader {
	r := &stallReader{ctx: ctx, body: body, idle: idle, cancel: cancel}
	r.timer = time.AfterFunc(idle, func() { cancel(ErrStalled) })
	return r
}

func (r *stallReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if n > 0 {
		r.timer.Reset(r.idle)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		if cause := context.Cause(r.ctx); errors.Is(cause, ErrStalled) {
			return n, ErrStalled
		}
	}
	return n, err
}

func (r *stallReader) Close() error {
	var err error
	r.once.Do(func() {
		r.timer.Stop()
		err = r.body.Close()
		r.cancel(nil)
	})
	return err
}
