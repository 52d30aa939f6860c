package feed

import (
	"context"
	"fmt"
	"sort"

	"SentimentPipeline/internal/domain"
)

// Request carries everything a strategy needs to poll one configured source.
type Request struct {
	SourceName string
	URL        string
	Kind       domain.InteractionKind
	Language   string
	Options    map[string]string
}

// Option returns the named option or fallback when it is unset.
func (r Request) Option(name, fallback string) string {
	if v, ok := r.Options[name]; ok && v != "" {
		return v
	}
	return fallback
}

// Strategy captures a single provider implementation (RSS, scraped page, etc.).
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]domain.RawInteraction, error)
}

// Registry keeps a mapping from strategy names to their implementations.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[string]Strategy{}}
}

// Register adds or replaces a strategy implementation.
func (r *Registry) Register(strategy Strategy) {
	if r.strategies == nil {
		r.strategies = map[string]Strategy{}
	}
	r.strategies[strategy.Name()] = strategy
}

// Resolve returns a strategy by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Strategy, error) {
	if strategy, ok := r.strategies[name]; ok {
		return strategy, nil
	}
	return nil, fmt.Errorf("provider strategy %s is not registered", name)
}

// Names lists registered strategies in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
