package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentimentPipeline/internal/config"
	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/feed"
)

type stubStrategy struct {
	name  string
	items []domain.RawInteraction
	err   error
	seen  []feed.Request
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Fetch(_ context.Context, req feed.Request) ([]domain.RawInteraction, error) {
	s.seen = append(s.seen, req)
	return s.items, s.err
}

func TestStrategySourceAggregatesAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	good := &stubStrategy{name: "rss", items: []domain.RawInteraction{{MessageID: "a", Message: "hi"}}}
	bad := &stubStrategy{name: "html", err: errors.New("boom")}

	reg := feed.NewRegistry()
	reg.Register(good)
	reg.Register(bad)

	src := NewStrategySource(reg, []config.SourceConfig{
		{Name: "feed-one", Provider: "rss", URL: "https://a", Kind: "tweet", Options: map[string]string{"x": "y"}},
		{Name: "wall", Provider: "html", URL: "https://b"},
		{Name: "ghost", Provider: "missing"},
	}, nil)

	items, err := src.FetchNewInteractions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "missing")

	require.Len(t, items, 1)
	assert.Equal(t, "feed-one", items[0].Provider)

	require.Len(t, good.seen, 1)
	assert.Equal(t, domain.KindTweet, good.seen[0].Kind)
	assert.Equal(t, "y", good.seen[0].Option("x", ""))
}

func TestStrategySourceWithoutRegistry(t *testing.T) {
	t.Parallel()

	src := NewStrategySource(nil, nil, nil)
	_, err := src.FetchNewInteractions(context.Background())
	require.Error(t, err)
}
