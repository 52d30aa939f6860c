package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentimentPipeline/internal/domain"
)

// manualDriver captures the job so tests can fire ticks by hand.
type manualDriver struct {
	mu      sync.Mutex
	job     func(time.Time)
	stopped bool
	stopErr error
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return d.stopErr
}

func (d *manualDriver) fire() {
	d.mu.Lock()
	job := d.job
	d.mu.Unlock()
	job(time.Now())
}

func TestSchedulerRunsIngestionAndScoring(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ingestDriver := &manualDriver{}
	scoringDriver := &manualDriver{}

	s := NewScheduler(SchedulerDeps{
		IngestDriver:  ingestDriver,
		ScoringDriver: scoringDriver,
		Ingestor:      h.ingestor,
		Source:        staticSource{items: []domain.RawInteraction{raw("m1", "great product")}},
		Pipeline:      h.pipeline(constantScorer(0.92), nil, 0, 0),
	})
	require.NoError(t, s.Start(context.Background()))

	ingestDriver.fire()
	scoringDriver.fire()

	assert.Equal(t, 92, h.interaction(t, "m1").Sentiment)

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, ingestDriver.stopped)
	assert.True(t, scoringDriver.stopped)
}

func TestSchedulerSkipsTickWhileCycleRuns(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ingest(t, raw("m1", "hello"))
	scorer := constantScorer(0.5)
	driver := &manualDriver{}

	s := NewScheduler(SchedulerDeps{ScoringDriver: driver, Pipeline: h.pipeline(scorer, busyLock{}, 0, 0)})
	require.NoError(t, s.Start(context.Background()))

	driver.fire()
	assert.Zero(t, scorer.Calls())
}

func TestSchedulerStopJoinsErrors(t *testing.T) {
	t.Parallel()

	first := &manualDriver{stopErr: errors.New("ingest driver")}
	second := &manualDriver{stopErr: errors.New("scoring driver")}
	s := NewScheduler(SchedulerDeps{IngestDriver: first, ScoringDriver: second})

	err := s.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest driver")
	assert.Contains(t, err.Error(), "scoring driver")
}
