// Package rss fetches feeds and runs the fetch, parse, merge pipeline.
package rss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Per-domain politeness defaults.
const (
	// MaxConcurrencyPerDomain limits parallel requests to any single domain
	MaxConcurrencyPerDomain = 2
	// DelayBetweenDomainRequests is the minimum delay between requests to the same domain
	DelayBetweenDomainRequests = 500 * time.Millisecond
	// MaxPayloadBytes caps how much of a response body is read.
	MaxPayloadBytes = 16 << 20
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "feedkeeper/1.0 (+https://github.com/bryan-buckman/feedkeeper)"

// ErrFetch marks failures of the network collaborator.
var ErrFetch = errors.New("fetch failed")

// Source retrieves raw feed payloads. Timeouts are the source's concern.
type Source interface {
	Fetch(ctx context.Context, feedURL string) ([]byte, error)
}

// domainLimiter controls rate limiting per domain to avoid overwhelming hosts.
type domainLimiter struct {
	mu          sync.Mutex
	perDomain   int
	delay       time.Duration
	semaphores  map[string]chan struct{}
	lastRequest map[string]time.Time
}

// newDomainLimiter creates a new per-domain rate limiter.
func newDomainLimiter(perDomain int, delay time.Duration) *domainLimiter {
	if perDomain < 1 {
		perDomain = MaxConcurrencyPerDomain
	}
	return &domainLimiter{
		perDomain:   perDomain,
		delay:       delay,
		semaphores:  make(map[string]chan struct{}),
		lastRequest: make(map[string]time.Time),
	}
}

// acquire gets a slot for the domain, blocking if necessary.
// It also enforces the minimum delay between requests to the same domain.
func (dl *domainLimiter) acquire(ctx context.Context, domain string) error {
	dl.mu.Lock()
	sem, ok := dl.semaphores[domain]
	if !ok {
		sem = make(chan struct{}, dl.perDomain)
		dl.semaphores[domain] = sem
	}
	dl.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	dl.mu.Lock()
	lastReq := dl.lastRequest[domain]
	dl.mu.Unlock()

	if !lastReq.IsZero() {
		if elapsed := time.Since(lastReq); elapsed < dl.delay {
			select {
			case <-time.After(dl.delay - elapsed):
			case <-ctx.Done():
				<-sem
				return ctx.Err()
			}
		}
	}
	return nil
}

// release returns a slot for the domain and records the request time.
func (dl *domainLimiter) release(domain string) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	dl.lastRequest[domain] = time.Now()
	if sem, ok := dl.semaphores[domain]; ok {
		<-sem
	}
}

// extractDomain gets the host from a URL.
func extractDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL // fallback to full URL
	}
	return u.Host
}

// HTTPSource fetches payloads over HTTP with per-domain rate limiting.
type HTTPSource struct {
	client    *http.Client
	userAgent string
	limiter   *domainLimiter
}

// NewHTTPSource creates an HTTP source. A nil client gets a 30 second timeout.
func NewHTTPSource(client *http.Client, userAgent string, perDomain int, delay time.Duration) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPSource{
		client:    client,
		userAgent: userAgent,
		limiter:   newDomainLimiter(perDomain, delay),
	}
}

// Fetch downloads a feed. Every failure wraps ErrFetch.
func (s *HTTPSource) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	domain := extractDomain(feedURL)
	if err := s.limiter.acquire(ctx, domain); err != nil {
		return nil, fmt.Errorf("%w: rate limit cancelled for %s: %v", ErrFetch, feedURL, err)
	}
	defer s.limiter.release(domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/rdf+xml, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %s", ErrFetch, feedURL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	return body, nil
}
