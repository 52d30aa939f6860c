package usecase

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/infrastructure/storage"
	"SentimentPipeline/internal/ports"
)

var errBoom = errors.New("boom")

// stepClock hands out strictly increasing timestamps one second apart.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// scorerFunc adapts a function to ports.Scorer and counts calls.
type scorerFunc struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, batch domain.ScoringBatch) (domain.ScoringResult, error)
}

func (s *scorerFunc) Score(ctx context.Context, batch domain.ScoringBatch) (domain.ScoringResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.fn(ctx, batch)
}

func (s *scorerFunc) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func constantScorer(score float64) *scorerFunc {
	return &scorerFunc{fn: func(_ context.Context, batch domain.ScoringBatch) (domain.ScoringResult, error) {
		var res domain.ScoringResult
		for _, doc := range batch.Documents {
			res.Documents = append(res.Documents, domain.ScoredDocument{ID: doc.ID, Score: score})
		}
		return res, nil
	}}
}

func failingScorer() *scorerFunc {
	return &scorerFunc{fn: func(context.Context, domain.ScoringBatch) (domain.ScoringResult, error) {
		return domain.ScoringResult{}, errors.Join(domain.ErrScorerTransport, errBoom)
	}}
}

// flakyUnitOfWork fails every unit of work whose ordinal is in failOn.
type flakyUnitOfWork struct {
	inner  ports.UnitOfWork
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (f *flakyUnitOfWork) Do(ctx context.Context, fn func(ports.Repositories) error) error {
	f.mu.Lock()
	f.calls++
	fail := f.failOn[f.calls]
	f.mu.Unlock()

	return f.inner.Do(ctx, func(repos ports.Repositories) error {
		if err := fn(repos); err != nil {
			return err
		}
		if fail {
			return errors.Join(domain.ErrPersistence, errBoom)
		}
		return nil
	})
}

type harness struct {
	repo       *storage.MemoryRepository
	clock      *stepClock
	queue      *Queue
	ingestor   *Ingestor
	correlator *Correlator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	repo := storage.NewMemoryRepository()
	clock := newStepClock()
	queue := NewQueue(QueueDeps{UnitOfWork: repo, Now: clock.Now})
	return &harness{
		repo:       repo,
		clock:      clock,
		queue:      queue,
		ingestor:   NewIngestor(IngestorDeps{UnitOfWork: repo, Queue: queue, Now: clock.Now}),
		correlator: NewCorrelator(CorrelatorDeps{UnitOfWork: repo}),
	}
}

func (h *harness) pipeline(scorer ports.Scorer, lock ports.RunLock, maxBatches, batchSize int) *Pipeline {
	return NewPipeline(PipelineDeps{
		Queue:              h.queue,
		Builder:            NewBatchBuilder(batchSize, 0, "", nil),
		Scorer:             scorer,
		Correlator:         h.correlator,
		Lock:               lock,
		MaxBatchesPerCycle: maxBatches,
	})
}

func (h *harness) ingest(t *testing.T, raws ...domain.RawInteraction) IngestReport {
	t.Helper()

	report, err := h.ingestor.Ingest(context.Background(), raws)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	return report
}

func (h *harness) interaction(t *testing.T, messageID string) domain.Interaction {
	t.Helper()

	var (
		in    domain.Interaction
		found bool
	)
	err := h.repo.Do(context.Background(), func(repos ports.Repositories) error {
		var err error
		in, found, err = repos.Interactions().FindByMessageID(context.Background(), messageID)
		return err
	})
	if err != nil || !found {
		t.Fatalf("interaction %q not found (err=%v)", messageID, err)
	}
	return in
}

func (h *harness) queueItem(t *testing.T, id int64) domain.QueueItem {
	t.Helper()

	var item domain.QueueItem
	err := h.repo.Do(context.Background(), func(repos ports.Repositories) error {
		var err error
		item, err = repos.Queue().FindByID(context.Background(), id)
		return err
	})
	if err != nil {
		t.Fatalf("queue item %d: %v", id, err)
	}
	return item
}

func raw(messageID, message string) domain.RawInteraction {
	return domain.RawInteraction{MessageID: messageID, Provider: "twitter", Message: message}
}

func rawBatch(n int) []domain.RawInteraction {
	raws := make([]domain.RawInteraction, 0, n)
	for i := 0; i < n; i++ {
		raws = append(raws, raw("m-"+strconv.Itoa(i), "message "+strconv.Itoa(i)))
	}
	return raws
}

type busyLock struct{}

func (busyLock) TryAcquire(context.Context) (func(), bool, error) { return nil, false, nil }

// enqueueCounter records Enqueued outcomes and ignores every other metric.
type enqueueCounter struct {
	noopMetrics
	mu     sync.Mutex
	counts map[domain.EnqueueStatus]int
}

func (c *enqueueCounter) Enqueued(status domain.EnqueueStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[domain.EnqueueStatus]int{}
	}
	c.counts[status]++
}

func (c *enqueueCounter) Count(status domain.EnqueueStatus) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[status]
}
