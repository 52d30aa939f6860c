package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/feed"
)

const (
	defaultItemSelector   = "article"
	defaultTextSelector   = ".content"
	defaultAuthorSelector = ".author"
	defaultTimeSelector   = "time"
	defaultIDAttr         = "data-id"
	defaultMaxPages       = 5
)

// HTMLStrategy scrapes interaction listings (mention pages, comment walls)
// rendered as HTML. Selectors come from the source options.
type HTMLStrategy struct {
	client   *http.Client
	logger   *slog.Logger
	maxPages int
}

// NewHTMLStrategy wires an HTTP client; maxPages defaults to 5.
func NewHTMLStrategy(client *http.Client, logger *slog.Logger) *HTMLStrategy {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTMLStrategy{client: client, logger: logger, maxPages: defaultMaxPages}
}

// Name identifies the strategy inside the registry.
func (h *HTMLStrategy) Name() string {
	return "html"
}

// Fetch walks the listing page by page until a page yields nothing new.
func (h *HTMLStrategy) Fetch(ctx context.Context, req feed.Request) ([]domain.RawInteraction, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("no url provided for source %s", req.SourceName)
	}

	maxPages := h.maxPages
	if v, err := strconv.Atoi(req.Option("maxPages", "")); err == nil && v > 0 {
		maxPages = v
	}

	results := make([]domain.RawInteraction, 0)
	seen := map[string]struct{}{}

	for page := 1; page <= maxPages; page++ {
		pageURL, err := buildPageURL(req.URL, page)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", req.SourceName, err)
		}

		doc, err := h.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", req.SourceName, err)
		}

		fresh := 0
		for _, raw := range extractInteractions(doc, req) {
			if raw.MessageID != "" {
				if _, ok := seen[raw.MessageID]; ok {
					continue
				}
				seen[raw.MessageID] = struct{}{}
			}
			results = append(results, raw)
			fresh++
		}

		h.logger.DebugContext(ctx, "page scraped", "source", req.SourceName, "page", page, "items", fresh)
		if fresh == 0 {
			break
		}
	}

	return results, nil
}

func (h *HTMLStrategy) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "SentimentPipeline/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func extractInteractions(doc *goquery.Document, req feed.Request) []domain.RawInteraction {
	var collected []domain.RawInteraction
	doc.Find(req.Option("item", defaultItemSelector)).Each(func(_ int, sel *goquery.Selection) {
		collected = append(collected, parseEntry(sel, req))
	})
	return collected
}

func parseEntry(sel *goquery.Selection, req feed.Request) domain.RawInteraction {
	id, _ := sel.Attr(req.Option("idAttr", defaultIDAttr))
	id = strings.TrimSpace(id)

	link, _ := sel.Find("a[href]").First().Attr("href")
	if id == "" {
		id = link
	}

	textHTML, _ := sel.Find(req.Option("text", defaultTextSelector)).First().Html()
	author := strings.TrimSpace(sel.Find(req.Option("author", defaultAuthorSelector)).First().Text())

	created := time.Time{}
	if stamp, ok := sel.Find(req.Option("time", defaultTimeSelector)).First().Attr("datetime"); ok {
		if parsed, err := time.Parse(time.RFC3339, stamp); err == nil {
			created = parsed
		}
	}

	messageID := ""
	if id != "" {
		messageID = fmt.Sprintf("%s:%s", req.SourceName, id)
	}

	return domain.RawInteraction{
		MessageID: messageID,
		Provider:  req.SourceName,
		Kind:      req.Kind,
		Author:    author,
		URL:       link,
		Message:   cleanText(textHTML),
		Language:  req.Language,
		CreatedAt: created,
	}
}

func buildPageURL(base string, page int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid listing url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("page", strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
