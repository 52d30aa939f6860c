package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"SentimentPipeline/internal/config"
	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/feed"
	"SentimentPipeline/internal/ports"
)

// StrategySource implements InteractionSource via registered provider strategies.
type StrategySource struct {
	registry *feed.Registry
	sources  []config.SourceConfig
	logger   *slog.Logger
}

var _ ports.InteractionSource = (*StrategySource)(nil)

// NewStrategySource wires the strategy registry with config-defined sources.
func NewStrategySource(reg *feed.Registry, sources []config.SourceConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sources:  sources,
		logger:   log,
	}
}

// FetchNewInteractions polls every configured source. A failing source is
// logged and reported in the joined error; the others still contribute.
func (s *StrategySource) FetchNewInteractions(ctx context.Context) ([]domain.RawInteraction, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("provider registry is not configured")
	}

	s.debug("fetch interactions", "sources", len(s.sources))

	var (
		aggregated []domain.RawInteraction
		errs       []error
	)
	for _, src := range s.sources {
		s.debug("process source", "source", src.Name, "provider", src.Provider)
		strategy, err := s.registry.Resolve(src.Provider)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", src.Name, err))
			continue
		}

		results, err := strategy.Fetch(ctx, toFeedRequest(src))
		if err != nil {
			s.warn("source failed", "source", src.Name, "error", err)
			errs = append(errs, fmt.Errorf("fetch source %s: %w", src.Name, err))
			continue
		}

		for i := range results {
			if results[i].Provider == "" {
				results[i].Provider = src.Name
			}
		}
		s.debug("source produced interactions", "source", src.Name, "count", len(results))
		aggregated = append(aggregated, results...)
	}

	s.debug("strategy source done", "total_interactions", len(aggregated))
	return aggregated, errors.Join(errs...)
}

func toFeedRequest(src config.SourceConfig) feed.Request {
	return feed.Request{
		SourceName: src.Name,
		URL:        src.URL,
		Kind:       domain.InteractionKind(src.Kind),
		Language:   src.Language,
		Options:    src.Options,
	}
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
