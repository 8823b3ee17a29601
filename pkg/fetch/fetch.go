// Package fetch downloads release tarballs with retry on transient
// upstream failures. The SHA-1 of the tarball uniquely identifies a
// release inside its spec file.
package fetch

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenk/backoff"
)

var (
	ErrNotFound     = errors.New("artifact not found")
	ErrRateLimited  = errors.New("rate limited by upstream")
	ErrUpstreamDown = errors.New("upstream unavailable")
)

// Fetcher downloads artifacts over HTTP. Rate limits and server errors are
// retried with exponential backoff; client errors are permanent.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxElapsed  time.Duration
	maxInterval time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithMaxElapsed bounds the total time spent retrying one download.
func WithMaxElapsed(d time.Duration) Option {
	return func(f *Fetcher) {
		f.maxElapsed = d
	}
}

// WithMaxInterval bounds the delay between two attempts.
func WithMaxInterval(d time.Duration) Option {
	return func(f *Fetcher) {
		f.maxInterval = d
	}
}

// NewFetcher creates a Fetcher with the given options.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:      http.DefaultClient,
		userAgent:   "hubsync/1.0",
		maxElapsed:  2 * time.Minute,
		maxInterval: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Download fetches the artifact at url into memory.
func (f *Fetcher) Download(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = f.maxElapsed
	bo.MaxInterval = f.maxInterval

	op := func() error {
		b, err := f.doFetch(ctx, url)
		if err != nil {
			// only rate limits and server errors are worth retrying
			if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamDown) {
				return err
			}
			return backoff.Permanent(err)
		}
		body = b
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// SHA1 downloads the artifact and returns the hex digest of its contents.
func (f *Fetcher) SHA1(ctx context.Context, url string) (string, error) {
	body, err := f.Download(ctx, url)
	if err != nil {
		return "", err
	}

	hasher := sha1.New()
	hasher.Write(body)
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

func (f *Fetcher) doFetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading body of %s: %w", url, err)
		}
		return body, nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", url, ErrNotFound)

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", url, ErrRateLimited)

	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%s: status %d: %w", url, resp.StatusCode, ErrUpstreamDown)

	default:
		return nil, fmt.Errorf("%s: unexpected status %d", url, resp.StatusCode)
	}
}
