package rss

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPSourceFetch(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte("<rss></rss>"))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.Client(), "test-agent", 1, 0)
	body, err := src.Fetch(context.Background(), srv.URL+"/feed")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(body) != "<rss></rss>" {
		t.Errorf("body = %q", body)
	}
	if gotAgent != "test-agent" {
		t.Errorf("user agent = %q", gotAgent)
	}

	if _, err := src.Fetch(context.Background(), srv.URL+"/missing"); !errors.Is(err, ErrFetch) {
		t.Errorf("expected ErrFetch for 404, got %v", err)
	}
	if _, err := src.Fetch(context.Background(), "http://127.0.0.1:0/unreachable"); !errors.Is(err, ErrFetch) {
		t.Errorf("expected ErrFetch for unreachable host, got %v", err)
	}
}

func TestDomainLimiterDelay(t *testing.T) {
	dl := newDomainLimiter(1, 50*time.Millisecond)
	ctx := context.Background()
	if err := dl.acquire(ctx, "example.com"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	dl.release("example.com")

	start := time.Now()
	if err := dl.acquire(ctx, "example.com"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	dl.release("example.com")
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("second request after %v, want at least the domain delay", elapsed)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	dl.acquire(ctx, "busy.example.com")
	if err := dl.acquire(cancelled, "busy.example.com"); err == nil {
		t.Error("acquire on a full domain should fail once cancelled")
	}
}

func TestExtractDomain(t *testing.T) {
	if got := extractDomain("https://blog.example.com:8443/feed.xml"); got != "blog.example.com:8443" {
		t.Errorf("extractDomain = %q", got)
	}
}
