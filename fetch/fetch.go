// Package fetch retrieves remote documents for the monitor. Two
// implementations are provided: Client, a plain HTTP fetcher with
// conditional-GET support, and Browser, a headless-Chrome fetcher for pages
// that only render their content through JavaScript.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Config tunes fetching behaviour, shared by both implementations.
type Config struct {
	// Timeout bounds a single fetch. Default: 10s.
	Timeout time.Duration
	// MaxBytes caps the response body size. Default: 10MB.
	MaxBytes int64
	// UserAgent sent with requests.
	UserAgent string
	// AllowPrivate disables the SSRF guard so private and loopback targets
	// can be fetched. Meant for tests and trusted intranet deployments.
	AllowPrivate bool
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "vigil/1.0"
	}
}

// cacheEntry remembers conditional-GET validators and the body they validate.
type cacheEntry struct {
	etag    string
	lastMod string
	body    []byte
}

// Client fetches documents over plain HTTP with ETag/If-Modified-Since
// revalidation. On 304 Not Modified it returns the previously fetched body,
// so callers always receive content to fingerprint.
type Client struct {
	client *http.Client
	config Config

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New creates a Client. Redirects are re-validated against the SSRF guard.
func New(cfg Config) *Client {
	cfg.defaults()
	c := &Client{
		config: cfg,
		cache:  make(map[string]cacheEntry),
	}
	c.client = &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (%d)", len(via))
			}
			if !cfg.AllowPrivate {
				if err := ValidateURL(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
			}
			return nil
		},
	}
	return c
}

// Fetch retrieves url and returns the raw body. A timeout, a non-2xx status,
// or an oversized body are all reported as errors.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if !c.config.AllowPrivate {
		if err := ValidateURL(url); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	c.mu.Lock()
	prev, cached := c.cache[url]
	c.mu.Unlock()
	if cached {
		if prev.etag != "" {
			req.Header.Set("If-None-Match", prev.etag)
		}
		if prev.lastMod != "" {
			req.Header.Set("If-Modified-Since", prev.lastMod)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && cached {
		return prev.body, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch: get %s: http %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	if int64(len(body)) > c.config.MaxBytes {
		return nil, fmt.Errorf("fetch: body exceeds %d bytes", c.config.MaxBytes)
	}

	c.mu.Lock()
	c.cache[url] = cacheEntry{
		etag:    resp.Header.Get("ETag"),
		lastMod: resp.Header.Get("Last-Modified"),
		body:    body,
	}
	c.mu.Unlock()

	return body, nil
}
