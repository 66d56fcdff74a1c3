// Package source fetches the listing page. Any error it returns is the
// "fetch failed" signal for an extraction cycle.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Default configuration values.
const (
	DefaultURL         = "https://www.coingecko.com/"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultMaxBody     = 10 << 20
)

// ErrFetch wraps every failure to obtain page content.
var ErrFetch = errors.New("fetch failed")

// Source yields raw listing page content.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// HTTPSource fetches a page over HTTP with retries and exponential backoff.
type HTTPSource struct {
	url         string
	userAgent   string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	maxBody     int64
}

// Option configures HTTPSource.
type Option func(*HTTPSource)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPSource) {
		if d > 0 {
			s.client.Timeout = d
		}
	}
}

// WithMaxRetries sets maximum retry attempts after the first request.
func WithMaxRetries(n int) Option {
	return func(s *HTTPSource) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(s *HTTPSource) {
		s.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) Option {
	return func(s *HTTPSource) {
		s.maxDelay = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *HTTPSource) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// NewHTTPSource creates a source for url.
func NewHTTPSource(url string, opts ...Option) *HTTPSource {
	if url == "" {
		url = DefaultURL
	}
	s := &HTTPSource{
		url:         url,
		userAgent:   DefaultUserAgent,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		maxBody:     DefaultMaxBody,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// URL returns the fetched address.
func (s *HTTPSource) URL() string { return s.url }

// Fetch GETs the page. Transport errors, 429 and 5xx are retried; other
// non-2xx statuses fail immediately.
func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	delay := s.retryDelay
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrFetch, ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * s.backoffMult)
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}

		body, retry, err := s.do(ctx)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	return nil, fmt.Errorf("%w: %s: %w", ErrFetch, s.url, lastErr)
}

// do performs one request. retry reports whether the failure is transient.
func (s *HTTPSource) do(ctx context.Context) (body []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, s.maxBody))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("rate limited (429)")
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("unexpected status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, false, nil
}

// StaticSource returns fixed content or a fixed error.
type StaticSource struct {
	Body []byte
	Err  error
}

// Fetch returns the configured content.
func (s *StaticSource) Fetch(ctx context.Context) ([]byte, error) {
	if s.Err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, s.Err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return s.Body, nil
}

// FileSource reads a saved page from disk on every fetch.
type FileSource struct {
	Path string
}

// Fetch reads the file.
func (s *FileSource) Fetch(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return data, nil
}

var (
	_ Source = (*HTTPSource)(nil)
	_ Source = (*StaticSource)(nil)
	_ Source = (*FileSource)(nil)
)
