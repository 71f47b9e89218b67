package discover

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const page = `<!doctype html>
<html><head>
  <title>Blog</title>
  <link rel="stylesheet" href="/style.css">
  <link rel="alternate" type="application/rss+xml" title="RSS" href="/feed.xml">
  <link rel="alternate" type="application/atom+xml" title="Atom" href="https://cdn.example.com/atom.xml">
  <link rel="Alternate Feed" type="application/rss+xml" href="/feed.xml">
  <link rel="alternate" type="text/html" hreflang="de" href="/de/">
</head><body><p>hello</p></body></html>`

func TestFind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/blog/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer srv.Close()

	links, err := Find(context.Background(), srv.Client(), srv.URL+"/blog/")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %+v", links)
	}
	if links[0].URL != srv.URL+"/feed.xml" || links[0].Format != "rss" || links[0].Title != "RSS" {
		t.Errorf("unexpected first link %+v", links[0])
	}
	if links[1].URL != "https://cdn.example.com/atom.xml" || links[1].Format != "atom" {
		t.Errorf("unexpected second link %+v", links[1])
	}

	if _, err := Find(context.Background(), srv.Client(), srv.URL+"/missing"); err == nil {
		t.Error("expected error for 404 page")
	}
}
