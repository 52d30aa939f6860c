package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/ports"
)

// CycleState names the orchestrator's position within a scoring cycle.
type CycleState string

const (
	StateIdle        CycleState = "idle"
	StateDraining    CycleState = "draining"
	StateScoring     CycleState = "scoring"
	StateCorrelating CycleState = "correlating"
)

// PipelineDeps wires all driven adapters into the scoring pipeline.
type PipelineDeps struct {
	Queue              *Queue
	Builder            *BatchBuilder
	Scorer             ports.Scorer
	Correlator         *Correlator
	Lock               ports.RunLock
	Metrics            ports.Metrics
	Logger             *slog.Logger
	MaxBatchesPerCycle int
	DrainLimit         int
	ScoreTimeout       time.Duration
}

// Pipeline drives scoring cycles: drain, build, score, correlate.
type Pipeline struct {
	queue        *Queue
	builder      *BatchBuilder
	scorer       ports.Scorer
	correlator   *Correlator
	lock         ports.RunLock
	metrics      ports.Metrics
	logger       *slog.Logger
	maxBatches   int
	drainLimit   int
	scoreTimeout time.Duration
}

// CycleReport describes one RunCycle invocation.
type CycleReport struct {
	RunID               string       `json:"runId"`
	StartedAt           time.Time    `json:"startedAt"`
	FinishedAt          time.Time    `json:"finishedAt"`
	Transitions         []CycleState `json:"transitions"`
	Drained             int          `json:"drained"`
	Skipped             int          `json:"skipped"`
	BatchesSent         int          `json:"batchesSent"`
	BatchesFailed       int          `json:"batchesFailed"`
	Scored              int          `json:"scored"`
	RetryLater          int          `json:"retryLater"`
	Misses              int          `json:"misses"`
	CorrelationFailures int          `json:"correlationFailures"`
	BatchLimitReached   bool         `json:"batchLimitReached"`
	Cancelled           bool         `json:"cancelled"`
}

type scoredBatch struct {
	batch  domain.ScoringBatch
	result domain.ScoringResult
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		queue:        deps.Queue,
		builder:      deps.Builder,
		scorer:       deps.Scorer,
		correlator:   deps.Correlator,
		lock:         deps.Lock,
		metrics:      metricsOrNoop(deps.Metrics),
		logger:       deps.Logger,
		maxBatches:   deps.MaxBatchesPerCycle,
		drainLimit:   deps.DrainLimit,
		scoreTimeout: deps.ScoreTimeout,
	}
	if p.builder == nil {
		p.builder = NewBatchBuilder(MaxBatchItems, MaxCharacters, "", deps.Logger)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.maxBatches <= 0 {
		p.maxBatches = 10
	}
	if p.drainLimit <= 0 {
		p.drainLimit = MaxBatchItems * p.maxBatches
	}
	return p
}

// RunCycle performs one bounded pass over the queue. Scorer failures leave
// their items unprocessed for the next cycle and are only reported;
// persistence failures are returned joined.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	if p.queue == nil || p.scorer == nil || p.correlator == nil {
		return report, fmt.Errorf("pipeline is not fully configured")
	}

	if p.lock != nil {
		release, ok, err := p.lock.TryAcquire(ctx)
		if err != nil {
			return report, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			return report, domain.ErrCycleInProgress
		}
		defer release()
	}

	logger := p.logger.With("run_id", report.RunID)
	errs := p.run(ctx, logger, &report)

	report.FinishedAt = time.Now().UTC()
	p.metrics.CycleFinished(report.FinishedAt.Sub(report.StartedAt))
	logger.InfoContext(ctx, "scoring cycle finished",
		"drained", report.Drained,
		"batches", report.BatchesSent,
		"failed_batches", report.BatchesFailed,
		"scored", report.Scored,
		"retry_later", report.RetryLater,
		"misses", report.Misses,
		"cancelled", report.Cancelled,
		"batch_limit", report.BatchLimitReached)

	return report, errors.Join(errs...)
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, report *CycleReport) []error {
	var (
		cursor *domain.QueueCursor
		errs   []error
	)
	p.enter(ctx, logger, report, StateIdle)

	for {
		if ctx.Err() != nil {
			report.Cancelled = true
			logger.WarnContext(ctx, "cycle cancelled before draining")
			break
		}
		if report.BatchesSent >= p.maxBatches {
			more, err := p.queue.DrainAfter(ctx, cursor, 1)
			if err != nil {
				errs = append(errs, p.drainErr(ctx, report, err)...)
				break
			}
			report.BatchLimitReached = len(more) > 0
			break
		}

		p.enter(ctx, logger, report, StateDraining)
		entries, err := p.queue.DrainAfter(ctx, cursor, p.drainLimit)
		if err != nil {
			errs = append(errs, p.drainErr(ctx, report, err)...)
			break
		}
		if len(entries) == 0 {
			break
		}
		report.Drained += len(entries)
		last := domain.CursorOf(entries[len(entries)-1].Item)
		cursor = &last

		batches, skipped := p.builder.Build(entries)
		report.Skipped += len(skipped)
		p.metrics.NoMessageSkipped(len(skipped))

		p.enter(ctx, logger, report, StateScoring)
		scored, stop := p.scoreBatches(ctx, logger, report, batches)

		p.enter(ctx, logger, report, StateCorrelating)
		// results already received are written even if the run was cancelled
		writeCtx := context.WithoutCancel(ctx)
		for _, sb := range scored {
			cr, err := p.correlator.Correlate(writeCtx, sb.batch, sb.result)
			report.Scored += cr.Applied
			report.Misses += cr.Misses
			report.CorrelationFailures += cr.Failed
			report.RetryLater += cr.Failed
			if err != nil {
				errs = append(errs, err)
			}
		}

		if stop || len(entries) < p.drainLimit {
			break
		}
	}

	p.enter(ctx, logger, report, StateIdle)
	return errs
}

// scoreBatches calls the scorer once per batch in order. stop is true when
// the run must not drain again.
func (p *Pipeline) scoreBatches(ctx context.Context, logger *slog.Logger, report *CycleReport, batches []domain.ScoringBatch) ([]scoredBatch, bool) {
	scored := make([]scoredBatch, 0, len(batches))

	for i, batch := range batches {
		if ctx.Err() != nil {
			report.Cancelled = true
			report.RetryLater += pendingItems(batches[i:])
			logger.WarnContext(ctx, "cycle cancelled between batches", "remaining_batches", len(batches)-i)
			return scored, true
		}
		if report.BatchesSent >= p.maxBatches {
			report.BatchLimitReached = true
			report.RetryLater += pendingItems(batches[i:])
			return scored, true
		}

		report.BatchesSent++
		result, err := p.score(ctx, batch)
		p.metrics.BatchScored(err == nil)
		if err != nil {
			report.BatchesFailed++
			report.RetryLater += batch.Len()
			logger.WarnContext(ctx, "batch scoring failed, items retried next cycle",
				"batch", i, "items", batch.Len(), "error", err)
			continue
		}
		for _, docErr := range result.Errors {
			logger.WarnContext(ctx, "scorer rejected document", "document_id", docErr.ID, "message", docErr.Message)
		}
		report.RetryLater += len(result.Errors)
		scored = append(scored, scoredBatch{batch: batch, result: result})
	}

	return scored, false
}

// drainErr treats a drain aborted by the run's own cancellation as a clean
// stop rather than a failure.
func (p *Pipeline) drainErr(ctx context.Context, report *CycleReport, err error) []error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		report.Cancelled = true
		return nil
	}
	return []error{err}
}

func (p *Pipeline) score(ctx context.Context, batch domain.ScoringBatch) (domain.ScoringResult, error) {
	if p.scoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.scoreTimeout)
		defer cancel()
	}
	return p.scorer.Score(ctx, batch)
}

func (p *Pipeline) enter(ctx context.Context, logger *slog.Logger, report *CycleReport, state CycleState) {
	report.Transitions = append(report.Transitions, state)
	logger.DebugContext(ctx, "cycle state", "state", state)
}

func pendingItems(batches []domain.ScoringBatch) int {
	n := 0
	for _, b := range batches {
		n += b.Len()
	}
	return n
}
