// Package httpclient wraps net/http with the behaviors every outbound
// fetch here wants: a request budget, optional rate limiting, and a local
// response cache with conditional revalidation.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/everstacklabs/pricesync/internal/cache"
)

const defaultTimeout = 60 * time.Second

// Client is an HTTP client with optional caching and rate limiting.
type Client struct {
	http    *http.Client
	cache   *cache.FileCache
	limiter *rate.Limiter
	noCache bool
}

// Option configures the Client.
type Option func(*Client)

// WithTimeout bounds every request, connection setup through body read.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http.Timeout = d
		}
	}
}

// WithCache enables file-based response caching.
func WithCache(c *cache.FileCache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64) Option {
	return func(cl *Client) {
		cl.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithNoCache bypasses the cache for both reads and writes.
func WithNoCache() Option {
	return func(cl *Client) { cl.noCache = true }
}

// New creates a Client with a 60s default timeout.
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response carries a fetched body and where it came from.
type Response struct {
	Body       []byte
	StatusCode int
	FromCache  bool
}

// Get fetches a URL. A fresh cache entry short-circuits the network
// entirely; a stale entry is revalidated with If-None-Match or
// If-Modified-Since and reused on 304. Status >= 400 is an error.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	stale := c.cachedEntry(url)
	if stale != nil && stale.Fresh {
		return &Response{Body: stale.Body, StatusCode: stale.StatusCode, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if stale != nil {
		if stale.ETag != "" {
			req.Header.Set("If-None-Match", stale.ETag)
		}
		if stale.LastModified != "" {
			req.Header.Set("If-Modified-Since", stale.LastModified)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && stale != nil {
		c.store(url, stale) // refresh the TTL, body unchanged
		return &Response{Body: stale.Body, StatusCode: stale.StatusCode, FromCache: true}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, truncate(body, 200))
	}

	c.store(url, &cache.Entry{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		StatusCode:   resp.StatusCode,
	})
	return &Response{Body: body, StatusCode: resp.StatusCode}, nil
}

// cachedEntry returns the cached entry for url with its freshness flag set,
// or nil when caching is off or nothing is stored.
func (c *Client) cachedEntry(url string) *cache.Entry {
	if c.cache == nil || c.noCache {
		return nil
	}
	entry, fresh := c.cache.Get(url)
	if entry == nil {
		return nil
	}
	entry.Fresh = fresh
	return entry
}

func (c *Client) store(url string, entry *cache.Entry) {
	if c.cache == nil || c.noCache {
		return
	}
	// Cache write failures degrade to refetching next run.
	_ = c.cache.Set(url, entry)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
