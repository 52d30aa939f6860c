package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/ports"
)

func TestScoreToPercent(t *testing.T) {
	t.Parallel()

	cases := map[float64]int{
		0:         0,
		0.004:     0,
		0.005:     1,
		0.015:     2,
		0.5:       50,
		0.835:     84,
		0.8349996: 83,
		0.0049996: 0,
		0.0000001: 0,
		0.845:     85,
		0.92:      92,
		0.9949:    99,
		0.995:     100,
		1:         100,
		-0.2:      0,
		1.7:       100,
	}
	for in, want := range cases {
		assert.Equal(t, want, ScoreToPercent(in), "score %v", in)
	}
}

func TestThresholdPolicy(t *testing.T) {
	t.Parallel()

	p := NewThresholdPolicy(nil)
	assert.Equal(t, domain.FlagVeryNegative, p.Flag(0))
	assert.Equal(t, domain.FlagVeryNegative, p.Flag(19))
	assert.Equal(t, domain.FlagNegative, p.Flag(20))
	assert.Equal(t, domain.FlagNeutral, p.Flag(50))
	assert.Equal(t, domain.FlagPositive, p.Flag(79))
	assert.Equal(t, domain.FlagVeryPositive, p.Flag(100))

	custom := NewThresholdPolicy([]FlagThreshold{
		{Min: 50, Flag: domain.FlagPositive},
		{Min: 10, Flag: domain.FlagNegative},
	})
	assert.Equal(t, domain.FlagUnknown, custom.Flag(5))
	assert.Equal(t, domain.FlagNegative, custom.Flag(49))
	assert.Equal(t, domain.FlagPositive, custom.Flag(50))
}

func drainBatch(t *testing.T, h *harness) domain.ScoringBatch {
	t.Helper()

	entries, err := h.queue.DrainUnprocessed(context.Background(), 100)
	require.NoError(t, err)
	batches, _ := NewBatchBuilder(0, 0, "", nil).Build(entries)
	require.Len(t, batches, 1)
	return batches[0]
}

func resultFor(batch domain.ScoringBatch, score float64) domain.ScoringResult {
	var res domain.ScoringResult
	for _, doc := range batch.Documents {
		res.Documents = append(res.Documents, domain.ScoredDocument{ID: doc.ID, Score: score})
	}
	return res
}

func TestCorrelateAppliesScoreAndFlag(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ingest(t, raw("m1", "great product"))
	batch := drainBatch(t, h)

	report, err := h.correlator.Correlate(context.Background(), batch, resultFor(batch, 0.835))
	require.NoError(t, err)
	assert.Equal(t, CorrelationReport{Applied: 1}, report)

	in := h.interaction(t, "m1")
	assert.Equal(t, 84, in.Sentiment)
	assert.Equal(t, domain.FlagVeryPositive, in.Flag)
	assert.True(t, h.queueItem(t, batch.ItemIDs[0]).Processed)
}

func TestCorrelateTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ingest(t, raw("m1", "great product"))
	batch := drainBatch(t, h)
	ctx := context.Background()

	_, err := h.correlator.Correlate(ctx, batch, resultFor(batch, 0.9))
	require.NoError(t, err)

	report, err := h.correlator.Correlate(ctx, batch, resultFor(batch, 0.1))
	require.NoError(t, err)
	assert.Equal(t, CorrelationReport{Misses: 1}, report)
	assert.Equal(t, 90, h.interaction(t, "m1").Sentiment)
}

func TestCorrelateIgnoresForeignIDs(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ingest(t, raw("m1", "great product"))
	batch := drainBatch(t, h)

	result := domain.ScoringResult{Documents: []domain.ScoredDocument{
		{ID: "999", Score: 0.5},
		{ID: "not-a-number", Score: 0.5},
	}}
	report, err := h.correlator.Correlate(context.Background(), batch, result)
	require.NoError(t, err)
	assert.Equal(t, CorrelationReport{Misses: 2}, report)
	assert.False(t, h.queueItem(t, batch.ItemIDs[0]).Processed)
}

func TestCorrelateStaleResultRetiresItem(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ingest(t, raw("m1", "great product"))
	batch := drainBatch(t, h)
	ctx := context.Background()

	// someone scored the interaction out of band
	in := h.interaction(t, "m1")
	require.NoError(t, h.repo.Do(ctx, func(repos ports.Repositories) error {
		return repos.Interactions().ApplySentiment(ctx, in.ID, 10, domain.FlagVeryNegative)
	}))

	report, err := h.correlator.Correlate(ctx, batch, resultFor(batch, 0.9))
	require.NoError(t, err)
	assert.Equal(t, CorrelationReport{Misses: 1}, report)
	assert.Equal(t, 10, h.interaction(t, "m1").Sentiment)
	assert.True(t, h.queueItem(t, batch.ItemIDs[0]).Processed)
}

func TestCorrelateFailureRollsBackOnlyThatItem(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ingest(t, raw("m1", "one"), raw("m2", "two"))
	batch := drainBatch(t, h)

	flaky := &flakyUnitOfWork{inner: h.repo, failOn: map[int]bool{1: true}}
	correlator := NewCorrelator(CorrelatorDeps{UnitOfWork: flaky})

	report, err := correlator.Correlate(context.Background(), batch, resultFor(batch, 0.6))
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, CorrelationReport{Applied: 1, Failed: 1}, report)

	first := h.interaction(t, "m1")
	assert.False(t, first.Scored())
	assert.False(t, h.queueItem(t, batch.ItemIDs[0]).Processed)

	assert.Equal(t, 60, h.interaction(t, "m2").Sentiment)
	assert.True(t, h.queueItem(t, batch.ItemIDs[1]).Processed)
}
