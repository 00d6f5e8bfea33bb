package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxBodyBytes = 8 << 20

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

// IsStatus reports whether err is a StatusError with one of the given codes.
func IsStatus(err error, codes ...int) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	for _, code := range codes {
		if se.StatusCode == code {
			return true
		}
	}
	return false
}

// Fetcher performs polite GET requests: a shared User-Agent and one request
// per interval per upstream host.
type Fetcher struct {
	client    *http.Client
	userAgent string
	interval  time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFetcher wires an HTTP client; a nil client gets a 20s timeout.
func NewFetcher(client *http.Client, userAgent string, interval time.Duration) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = "PatchRadar/1.0"
	}
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		interval:  interval,
		limiters:  map[string]*rate.Limiter{},
	}
}

// Client exposes the underlying HTTP client for libraries that fetch on their own.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// UserAgent returns the identifying agent string.
func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// Wait blocks until the host of rawURL may be contacted again.
func (f *Fetcher) Wait(ctx context.Context, rawURL string) error {
	if f.interval <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing host in %s", rawURL)
	}
	return f.limiterFor(parsed.Host).Wait(ctx)
}

func (f *Fetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	limiter, ok := f.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(f.interval), 1)
		f.limiters[host] = limiter
	}
	return limiter
}

// Get returns the body of a successful response.
func (f *Fetcher) Get(ctx context.Context, rawURL string, accept string) ([]byte, error) {
	if err := f.Wait(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
