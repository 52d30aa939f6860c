package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/feed"
)

func TestBuildPageURL(t *testing.T) {
	t.Parallel()

	base := "https://social.example.org/mentions?brand=acme"
	u, err := buildPageURL(base, 3)
	if err != nil {
		t.Fatalf("buildPageURL returned error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}

	if parsed.Host != "social.example.org" {
		t.Fatalf("unexpected host: %s", parsed.Host)
	}

	q := parsed.Query()
	if q.Get("page") != "3" {
		t.Fatalf("expected page=3, got %s", q.Get("page"))
	}
	if q.Get("brand") != "acme" {
		t.Fatalf("existing query lost: %s", parsed.RawQuery)
	}
}

func TestParseEntry(t *testing.T) {
	t.Parallel()

	page := `
	<article data-id="981">
	  <a href="https://social.example.org/p/981">link</a>
	  <span class="author">jdoe</span>
	  <time datetime="2024-03-01T10:00:00Z">1 March</time>
	  <div class="content"><p>Love the <b>new</b> release &amp; docs</p></div>
	</article>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	req := feed.Request{SourceName: "acme-wall", Kind: domain.KindComment, Language: "en"}
	raw := parseEntry(doc.Find("article").First(), req)

	if raw.MessageID != "acme-wall:981" {
		t.Fatalf("unexpected message id: %s", raw.MessageID)
	}
	if raw.Message != "Love the new release & docs" {
		t.Fatalf("unexpected message: %q", raw.Message)
	}
	if raw.Author != "jdoe" {
		t.Fatalf("unexpected author: %s", raw.Author)
	}
	if raw.URL != "https://social.example.org/p/981" {
		t.Fatalf("unexpected url: %s", raw.URL)
	}
	if !raw.CreatedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created at: %v", raw.CreatedAt)
	}
	if raw.Kind != domain.KindComment {
		t.Fatalf("unexpected kind: %s", raw.Kind)
	}
}

func TestParseEntryCustomSelectors(t *testing.T) {
	t.Parallel()

	page := `<li class="mention" data-key="x1"><q>meh</q></li>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	req := feed.Request{
		SourceName: "forum",
		Options:    map[string]string{"idAttr": "data-key", "text": "q"},
	}
	raw := parseEntry(doc.Find("li.mention").First(), req)

	if raw.MessageID != "forum:x1" || raw.Message != "meh" {
		t.Fatalf("unexpected entry: %+v", raw)
	}
}

func TestHTMLStrategyFetchStopsOnRepeatedPage(t *testing.T) {
	t.Parallel()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = w.Write([]byte(`<article data-id="1"><div class="content">first</div></article>
			<article data-id="2"><div class="content">second</div></article>`))
		default:
			_, _ = w.Write([]byte(`<article data-id="2"><div class="content">second</div></article>`))
		}
	}))
	defer server.Close()

	strategy := NewHTMLStrategy(server.Client(), nil)
	items, err := strategy.Fetch(context.Background(), feed.Request{SourceName: "wall", URL: server.URL})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if calls != 2 {
		t.Fatalf("expected 2 page requests, got %d", calls)
	}
}

func TestHTMLStrategyFetchRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	strategy := NewHTMLStrategy(server.Client(), nil)
	if _, err := strategy.Fetch(context.Background(), feed.Request{SourceName: "wall", URL: server.URL}); err == nil {
		t.Fatal("expected error for bad gateway")
	}
}

func TestHTMLStrategyRequiresURL(t *testing.T) {
	t.Parallel()

	strategy := NewHTMLStrategy(nil, nil)
	if _, err := strategy.Fetch(context.Background(), feed.Request{SourceName: "wall"}); err == nil {
		t.Fatal("expected error for missing url")
	}
}
