package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/ports"
)

const (
	// DefaultAPIKeyHeader is the header the hosted text-analytics API expects.
	DefaultAPIKeyHeader = "Ocp-Apim-Subscription-Key"
	defaultTimeout      = 30 * time.Second
	maxResponseBytes    = 8 << 20
)

// Options configures the HTTP scorer.
type Options struct {
	Endpoint          string
	APIKey            string
	APIKeyHeader      string
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// HTTPClient talks to the external sentiment endpoint. Each call is
// all-or-nothing: any failure leaves the whole batch unscored.
type HTTPClient struct {
	endpoint     string
	apiKey       string
	apiKeyHeader string
	http         *http.Client
	limiter      *rate.Limiter
	logger       *slog.Logger
}

var _ ports.Scorer = (*HTTPClient)(nil)

type documentsRequest struct {
	Documents []domain.ScoringDocument `json:"documents"`
}

type documentsResponse struct {
	Documents []domain.ScoredDocument `json:"documents"`
	Errors    []domain.DocumentError  `json:"errors"`
}

// NewHTTPClient creates a reusable client with an explicit timeout.
func NewHTTPClient(opts Options) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	header := opts.APIKeyHeader
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &HTTPClient{
		endpoint:     opts.Endpoint,
		apiKey:       opts.APIKey,
		apiKeyHeader: header,
		http:         client,
		limiter:      limiter,
		logger:       logger,
	}
}

// Score posts the batch and returns the per-document scores.
func (c *HTTPClient) Score(ctx context.Context, batch domain.ScoringBatch) (domain.ScoringResult, error) {
	if c.endpoint == "" {
		return domain.ScoringResult{}, fmt.Errorf("%w: endpoint is not configured", domain.ErrScorerTransport)
	}
	if batch.Len() == 0 {
		return domain.ScoringResult{}, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return domain.ScoringResult{}, fmt.Errorf("%w: rate limit wait: %w", domain.ErrScorerTransport, err)
	}

	body, err := json.Marshal(documentsRequest{Documents: batch.Documents})
	if err != nil {
		return domain.ScoringResult{}, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ScoringResult{}, fmt.Errorf("%w: new request: %w", domain.ErrScorerTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ScoringResult{}, fmt.Errorf("%w: do request: %w", domain.ErrScorerTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.ScoringResult{}, fmt.Errorf("%w: unexpected status %s: %s",
			domain.ErrScorerTransport, resp.Status, strings.TrimSpace(string(payload)))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.ScoringResult{}, fmt.Errorf("%w: read response: %w", domain.ErrScorerTransport, err)
	}

	result, err := decodeResponse(raw)
	if err != nil {
		return domain.ScoringResult{}, err
	}

	c.logger.DebugContext(ctx, "batch scored",
		"documents", batch.Len(),
		"scored", len(result.Documents),
		"rejected", len(result.Errors),
		"duration_ms", time.Since(started).Milliseconds())
	return result, nil
}

func decodeResponse(raw []byte) (domain.ScoringResult, error) {
	var payload documentsResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.ScoringResult{}, fmt.Errorf("%w: decode response: %w", domain.ErrScorerResponse, err)
	}
	if payload.Documents == nil && payload.Errors == nil {
		return domain.ScoringResult{}, fmt.Errorf("%w: response has no documents", domain.ErrScorerResponse)
	}

	for _, doc := range payload.Documents {
		if doc.ID == "" {
			return domain.ScoringResult{}, fmt.Errorf("%w: document without id", domain.ErrScorerResponse)
		}
		if doc.Score < 0 || doc.Score > 1 {
			return domain.ScoringResult{}, fmt.Errorf("%w: document %s score %v outside [0,1]",
				domain.ErrScorerResponse, doc.ID, doc.Score)
		}
	}

	return domain.ScoringResult{Documents: payload.Documents, Errors: payload.Errors}, nil
}
