package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/feed"
)

// RSSStrategy reads interactions exposed as RSS/Atom feeds, e.g. mention
// or hashtag feeds published by social networks and bridges.
type RSSStrategy struct {
	client *http.Client
	logger *slog.Logger
}

// NewRSSStrategy wires an HTTP client used by the feed parser.
func NewRSSStrategy(client *http.Client, logger *slog.Logger) *RSSStrategy {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RSSStrategy{client: client, logger: logger}
}

// Name identifies the strategy inside the registry.
func (r *RSSStrategy) Name() string {
	return "rss"
}

// Fetch parses the feed and converts its items.
func (r *RSSStrategy) Fetch(ctx context.Context, req feed.Request) ([]domain.RawInteraction, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("no url provided for source %s", req.SourceName)
	}

	fp := gofeed.NewParser()
	fp.Client = r.client
	parsed, err := fp.ParseURLWithContext(req.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", req.SourceName, err)
	}

	results := make([]domain.RawInteraction, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		results = append(results, toRawInteraction(item, req))
	}

	r.logger.DebugContext(ctx, "feed parsed", "source", req.SourceName, "items", len(results))
	return results, nil
}

func toRawInteraction(item *gofeed.Item, req feed.Request) domain.RawInteraction {
	id := strings.TrimSpace(item.GUID)
	if id == "" {
		id = strings.TrimSpace(item.Link)
	}

	body := item.Content
	if strings.TrimSpace(body) == "" {
		body = item.Description
	}
	if strings.TrimSpace(body) == "" {
		body = item.Title
	}

	author := ""
	if item.Author != nil {
		author = item.Author.Name
	}

	var created time.Time
	switch {
	case item.PublishedParsed != nil:
		created = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		created = *item.UpdatedParsed
	}

	messageID := ""
	if id != "" {
		messageID = fmt.Sprintf("%s:%s", req.SourceName, id)
	}

	lang := req.Language
	return domain.RawInteraction{
		MessageID: messageID,
		Provider:  req.SourceName,
		Kind:      req.Kind,
		Author:    author,
		URL:       item.Link,
		Message:   cleanText(body),
		Language:  lang,
		CreatedAt: created,
	}
}
