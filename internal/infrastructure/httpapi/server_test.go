package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/ports"
	"SentimentPipeline/internal/usecase"
)

type stubCycles struct {
	report usecase.CycleReport
	err    error
}

func (s stubCycles) RunCycle(context.Context) (usecase.CycleReport, error) {
	return s.report, s.err
}

type stubIngester struct {
	got    []domain.RawInteraction
	polled bool
	report usecase.IngestReport
}

func (s *stubIngester) Ingest(_ context.Context, raws []domain.RawInteraction) (usecase.IngestReport, error) {
	s.got = raws
	return s.report, nil
}

func (s *stubIngester) IngestFrom(context.Context, ports.InteractionSource) (usecase.IngestReport, error) {
	s.polled = true
	return s.report, nil
}

type stubQueue struct {
	stats    domain.QueueStats
	limit    int
	priority int
}

func (s *stubQueue) Stats(context.Context) (domain.QueueStats, error) { return s.stats, nil }

func (s *stubQueue) RequeueUnscored(_ context.Context, limit, priority int) (usecase.RequeueReport, error) {
	s.limit, s.priority = limit, priority
	return usecase.RequeueReport{Examined: 2, Queued: 1, AlreadyQueued: 1}, nil
}

func (s *stubQueue) DefaultPriority() int { return 5 }

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec := serve(NewServer(Deps{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRunCycle(t *testing.T) {
	t.Parallel()

	e := NewServer(Deps{Cycles: stubCycles{report: usecase.CycleReport{RunID: "r1", Scored: 4}}})
	rec := serve(e, http.MethodPost, "/api/v1/cycles", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "r1", body["runId"])
	assert.Equal(t, float64(4), body["scored"])
}

func TestRunCycleConflict(t *testing.T) {
	t.Parallel()

	e := NewServer(Deps{Cycles: stubCycles{err: domain.ErrCycleInProgress}})
	rec := serve(e, http.MethodPost, "/api/v1/cycles", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunCycleFailure(t *testing.T) {
	t.Parallel()

	e := NewServer(Deps{Cycles: stubCycles{report: usecase.CycleReport{RunID: "r2"}, err: errors.New("db down")}})
	rec := serve(e, http.MethodPost, "/api/v1/cycles", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "db down")
	assert.Contains(t, rec.Body.String(), `"runId":"r2"`)
}

func TestIngestPostedInteractions(t *testing.T) {
	t.Parallel()

	ing := &stubIngester{report: usecase.IngestReport{Received: 1, Created: 1, Enqueued: 1}}
	e := NewServer(Deps{Ingest: ing})

	rec := serve(e, http.MethodPost, "/api/v1/ingest", `[{"messageId":"tw-1","provider":"twitter","message":"great"}]`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ing.got, 1)
	assert.Equal(t, "tw-1", ing.got[0].MessageID)
	assert.False(t, ing.polled)
	assert.Contains(t, rec.Body.String(), `"created":1`)
}

func TestIngestWithoutBodyPollsSources(t *testing.T) {
	t.Parallel()

	ing := &stubIngester{}
	rec := serve(NewServer(Deps{Ingest: ing}), http.MethodPost, "/api/v1/ingest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ing.polled)
}

func TestIngestRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	rec := serve(NewServer(Deps{Ingest: &stubIngester{}}), http.MethodPost, "/api/v1/ingest", `{"messageId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestPartialFailure(t *testing.T) {
	t.Parallel()

	ing := &stubIngester{report: usecase.IngestReport{
		Received:  1,
		Failures:  []usecase.IngestFailure{{Index: 0, MessageID: "x", Err: errors.New("boom")}},
		FailedIDs: []string{"x"},
	}}
	rec := serve(NewServer(Deps{Ingest: ing}), http.MethodPost, "/api/v1/ingest", `[{"messageId":"x","message":"hi"}]`)
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed":["x"]`)
}

func TestQueueStats(t *testing.T) {
	t.Parallel()

	q := &stubQueue{stats: domain.QueueStats{Unprocessed: 3}}
	rec := serve(NewServer(Deps{Queue: q}), http.MethodGet, "/api/v1/queue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unprocessed":3`)
}

func TestRequeue(t *testing.T) {
	t.Parallel()

	q := &stubQueue{}
	e := NewServer(Deps{Queue: q})

	rec := serve(e, http.MethodPost, "/api/v1/queue/requeue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultRequeueLimit, q.limit)
	assert.Equal(t, 5, q.priority)

	rec = serve(e, http.MethodPost, "/api/v1/queue/requeue?limit=10&priority=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, q.limit)
	assert.Equal(t, 1, q.priority)

	rec = serve(e, http.MethodPost, "/api/v1/queue/requeue?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("sentiment_pipeline_items_scored_total 1\n"))
	})
	rec := serve(NewServer(Deps{Metrics: handler}), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "items_scored_total")
}

func TestUnconfiguredRoutes(t *testing.T) {
	t.Parallel()

	e := NewServer(Deps{})
	assert.Equal(t, http.StatusServiceUnavailable, serve(e, http.MethodPost, "/api/v1/cycles", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(e, http.MethodGet, "/api/v1/queue", "").Code)
}
