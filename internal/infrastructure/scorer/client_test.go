package scorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentimentPipeline/internal/domain"
)

func testBatch() domain.ScoringBatch {
	return domain.ScoringBatch{
		Documents: []domain.ScoringDocument{
			{ID: "1", Language: "en", Text: "great product"},
			{ID: "2", Language: "en", Text: "awful service"},
		},
		ItemIDs: []int64{1, 2},
	}
}

func TestScoreSendsDocumentsAndKey(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get(DefaultAPIKeyHeader))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Documents []domain.ScoringDocument `json:"documents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		assert.Len(t, body.Documents, 2)
		assert.Equal(t, "great product", body.Documents[0].Text)

		_, _ = w.Write([]byte(`{
			"documents": [{"id": "1", "score": 0.92}],
			"errors": [{"id": "2", "message": "Document text is empty."}]
		}`))
	}))
	defer server.Close()

	client := NewHTTPClient(Options{Endpoint: server.URL, APIKey: "secret"})
	result, err := client.Score(context.Background(), testBatch())
	require.NoError(t, err)
	assert.Equal(t, []domain.ScoredDocument{{ID: "1", Score: 0.92}}, result.Documents)
	assert.Equal(t, []domain.DocumentError{{ID: "2", Message: "Document text is empty."}}, result.Errors)
}

func TestScoreCustomHeader(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer xyz", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get(DefaultAPIKeyHeader))
		_, _ = w.Write([]byte(`{"documents": []}`))
	}))
	defer server.Close()

	client := NewHTTPClient(Options{Endpoint: server.URL, APIKey: "Bearer xyz", APIKeyHeader: "Authorization"})
	_, err := client.Score(context.Background(), testBatch())
	require.NoError(t, err)
}

func TestScoreTransportFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(Options{Endpoint: server.URL})
	_, err := client.Score(context.Background(), testBatch())
	require.ErrorIs(t, err, domain.ErrScorerTransport)
	assert.Contains(t, err.Error(), "quota exceeded")

	unreachable := NewHTTPClient(Options{Endpoint: "http://127.0.0.1:1/score", Timeout: time.Second})
	_, err = unreachable.Score(context.Background(), testBatch())
	require.ErrorIs(t, err, domain.ErrScorerTransport)

	unconfigured := NewHTTPClient(Options{})
	_, err = unconfigured.Score(context.Background(), testBatch())
	require.ErrorIs(t, err, domain.ErrScorerTransport)
}

func TestScoreTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewHTTPClient(Options{Endpoint: server.URL, Timeout: 50 * time.Millisecond})
	_, err := client.Score(context.Background(), testBatch())
	require.ErrorIs(t, err, domain.ErrScorerTransport)
}

func TestScoreMalformedResponses(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":      `<html>oops</html>`,
		"no documents":  `{"status": "ok"}`,
		"missing id":    `{"documents": [{"score": 0.5}]}`,
		"score above 1": `{"documents": [{"id": "1", "score": 1.5}]}`,
		"negative":      `{"documents": [{"id": "1", "score": -0.1}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			_, err := NewHTTPClient(Options{Endpoint: server.URL}).Score(context.Background(), testBatch())
			require.ErrorIs(t, err, domain.ErrScorerResponse)
		})
	}
}

func TestScoreEmptyBatchSkipsCall(t *testing.T) {
	t.Parallel()

	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	result, err := NewHTTPClient(Options{Endpoint: server.URL}).Score(context.Background(), domain.ScoringBatch{})
	require.NoError(t, err)
	assert.Empty(t, result.Documents)
	assert.False(t, called)
}
