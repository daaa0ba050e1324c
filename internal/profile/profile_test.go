package profile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lirantal/devrel-cfp-committee/internal/sessionize"
)

const profilePage = `<!DOCTYPE html>
<html><head><title>Jane Doe - Sessionize</title></head>
<body>
<nav>Home | Speakers | Events</nav>
<article>
<h1>Jane Doe</h1>
<p>Jane is a Node.js core collaborator who works on the streams and worker threads subsystems.
She has spent the last eight years building developer tooling for JavaScript teams.</p>
<p>Her talks cover performance profiling, observability for Node.js services, and secure dependency management
for large monorepos. She regularly speaks at JavaScript conferences across Europe.</p>
</article>
</body></html>`

const blogFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Jane's blog</title><link>https://jane.dev</link>
<item><title>Profiling Node.js in production</title><link>https://jane.dev/1</link></item>
<item><title></title><link>https://jane.dev/2</link></item>
<item><title>Worker threads explained</title><link>https://jane.dev/3</link></item>
<item><title>Streams backpressure</title><link>https://jane.dev/4</link></item>
</channel></rss>`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/jane":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(profilePage))
		case "/feed.xml":
			w.Header().Set("Content-Type", "application/rss+xml")
			w.Write([]byte(blogFeed))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPageText(t *testing.T) {
	srv := newTestServer(t)
	f := NewFetcher(Options{Timeout: time.Second}, nil)

	text, err := f.PageText(context.Background(), srv.URL+"/jane")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "Node.js core collaborator") {
		t.Errorf("expected profile text, got %q", text)
	}
}

func TestPageTextHTTPError(t *testing.T) {
	srv := newTestServer(t)
	f := NewFetcher(Options{Timeout: time.Second}, nil)

	if _, err := f.PageText(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("expected error for 404 page")
	}
}

func TestPageTextTruncates(t *testing.T) {
	srv := newTestServer(t)
	f := NewFetcher(Options{Timeout: time.Second, MaxChars: 120}, nil)

	text, err := f.PageText(context.Background(), srv.URL+"/jane")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(text) > 123 || !strings.HasSuffix(text, "...") {
		t.Errorf("expected truncated text, got %d chars: %q", len(text), text)
	}
}

func TestRecentPosts(t *testing.T) {
	srv := newTestServer(t)
	f := NewFetcher(Options{Timeout: time.Second, MaxPosts: 2}, nil)

	titles, err := f.RecentPosts(context.Background(), srv.URL+"/feed.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Profiling Node.js in production", "Worker threads explained"}
	if len(titles) != len(want) {
		t.Fatalf("expected %d titles, got %v", len(want), titles)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Errorf("title %d: expected %q, got %q", i, want[i], titles[i])
		}
	}
}

func TestEnrich(t *testing.T) {
	srv := newTestServer(t)
	f := NewFetcher(Options{Timeout: time.Second}, nil)

	links := []sessionize.Link{
		{Title: "Sessionize", URL: srv.URL + "/jane", LinkType: "Sessionize"},
		{Title: "Blog", URL: srv.URL + "/feed.xml", LinkType: "Blog"},
	}
	got := f.Enrich(context.Background(), links)
	if !strings.Contains(got, "worker threads subsystems") {
		t.Errorf("expected page text in context: %q", got)
	}
	if !strings.Contains(got, "Recent blog posts:\n- Profiling Node.js in production") {
		t.Errorf("expected blog titles in context: %q", got)
	}
}

func TestEnrichFailuresAreEmpty(t *testing.T) {
	srv := newTestServer(t)
	f := NewFetcher(Options{Timeout: time.Second}, nil)

	links := []sessionize.Link{
		{URL: srv.URL + "/gone", LinkType: "sessionize"},
		{URL: srv.URL + "/nofeed", LinkType: "blog"},
	}
	if got := f.Enrich(context.Background(), links); got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
	if got := f.Enrich(context.Background(), nil); got != "" {
		t.Errorf("expected empty context for no links, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("unexpected %q", got)
	}
	if got := truncate("one two three four", 12); got != "one two..." {
		t.Errorf("unexpected %q", got)
	}
}
