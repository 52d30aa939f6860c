package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/ports"
)

// QueueDeps wires the sentiment queue to its store.
type QueueDeps struct {
	UnitOfWork      ports.UnitOfWork
	// DefaultPriority is used by Enqueue; nil means domain.DefaultPriority.
	DefaultPriority *int
	Metrics         ports.Metrics
	Logger          *slog.Logger
	Now             func() time.Time
}

// Queue is the priority-ordered work list of interactions awaiting a score.
// All state lives in the repository; every call is its own transaction.
type Queue struct {
	uow             ports.UnitOfWork
	defaultPriority int
	metrics         ports.Metrics
	logger          *slog.Logger
	now             func() time.Time
}

// NewQueue constructs the queue use case.
func NewQueue(deps QueueDeps) *Queue {
	q := &Queue{
		uow:             deps.UnitOfWork,
		defaultPriority: domain.DefaultPriority,
		metrics:         metricsOrNoop(deps.Metrics),
		logger:          deps.Logger,
		now:             deps.Now,
	}
	if deps.DefaultPriority != nil {
		q.defaultPriority = *deps.DefaultPriority
	}
	if q.logger == nil {
		q.logger = slog.New(slog.DiscardHandler)
	}
	if q.now == nil {
		q.now = time.Now
	}
	return q
}

// DefaultPriority is the priority used by Enqueue.
func (q *Queue) DefaultPriority() int {
	return q.defaultPriority
}

// Enqueue queues the interaction at the default priority.
func (q *Queue) Enqueue(ctx context.Context, interaction domain.Interaction) (domain.EnqueueStatus, error) {
	return q.EnqueueWithPriority(ctx, interaction, q.defaultPriority)
}

// EnqueueWithPriority queues the interaction unless a live item already
// references it, in which case it reports EnqueueAlreadyQueued.
func (q *Queue) EnqueueWithPriority(ctx context.Context, interaction domain.Interaction, priority int) (domain.EnqueueStatus, error) {
	var status domain.EnqueueStatus
	err := q.uow.Do(ctx, func(repos ports.Repositories) error {
		var err error
		status, err = q.EnqueueIn(ctx, repos, interaction, priority)
		return err
	})
	if err != nil {
		return "", err
	}
	q.recordEnqueued(status)
	return status, nil
}

// EnqueueIn is Enqueue for callers already inside a unit of work. The
// caller records the outcome with recordEnqueued once its unit commits.
func (q *Queue) EnqueueIn(ctx context.Context, repos ports.Repositories, interaction domain.Interaction, priority int) (domain.EnqueueStatus, error) {
	if !interaction.HasMessage() {
		return "", fmt.Errorf("enqueue interaction %d: %w", interaction.ID, domain.ErrInvalidEnqueueTarget)
	}

	item := &domain.QueueItem{
		InteractionID: interaction.ID,
		Priority:      priority,
		EnqueuedAt:    q.now().UTC(),
	}
	inserted, err := repos.Queue().Insert(ctx, item)
	if err != nil {
		return "", fmt.Errorf("enqueue interaction %d: %w", interaction.ID, err)
	}

	status := domain.EnqueueQueued
	if !inserted {
		status = domain.EnqueueAlreadyQueued
		q.logger.DebugContext(ctx, "interaction already queued", "interaction_id", interaction.ID)
	}
	return status, nil
}

func (q *Queue) recordEnqueued(statuses ...domain.EnqueueStatus) {
	for _, status := range statuses {
		q.metrics.Enqueued(status)
	}
}

// DrainUnprocessed returns up to limit unprocessed entries in queue order
// without removing them.
func (q *Queue) DrainUnprocessed(ctx context.Context, limit int) ([]domain.QueueEntry, error) {
	return q.DrainAfter(ctx, nil, limit)
}

// DrainAfter is DrainUnprocessed starting strictly after the cursor.
func (q *Queue) DrainAfter(ctx context.Context, after *domain.QueueCursor, limit int) ([]domain.QueueEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	var entries []domain.QueueEntry
	err := q.uow.Do(ctx, func(repos ports.Repositories) error {
		var err error
		entries, err = repos.Queue().ListUnprocessed(ctx, after, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("drain queue: %w", err)
	}
	return entries, nil
}

// MarkProcessed flags the item as done; repeating it is a no-op.
func (q *Queue) MarkProcessed(ctx context.Context, itemID int64) error {
	err := q.uow.Do(ctx, func(repos ports.Repositories) error {
		return repos.Queue().MarkProcessed(ctx, itemID)
	})
	if err != nil {
		return fmt.Errorf("mark queue item %d processed: %w", itemID, err)
	}
	return nil
}

// IsEmpty is true iff no unprocessed items exist.
func (q *Queue) IsEmpty(ctx context.Context) (bool, error) {
	stats, err := q.Stats(ctx)
	if err != nil {
		return false, err
	}
	return stats.Empty, nil
}

// Stats counts the unprocessed items.
func (q *Queue) Stats(ctx context.Context) (domain.QueueStats, error) {
	var count int
	err := q.uow.Do(ctx, func(repos ports.Repositories) error {
		var err error
		count, err = repos.Queue().CountUnprocessed(ctx)
		return err
	})
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("count queue: %w", err)
	}
	return domain.QueueStats{Unprocessed: count, Empty: count == 0}, nil
}

// RequeueReport summarizes a RequeueUnscored run.
type RequeueReport struct {
	Examined      int `json:"examined"`
	Queued        int `json:"queued"`
	AlreadyQueued int `json:"alreadyQueued"`
}

// RequeueUnscored enqueues interactions that carry a message but have no
// score and no live queue item, e.g. after queue rows were cleaned up by hand.
func (q *Queue) RequeueUnscored(ctx context.Context, limit, priority int) (RequeueReport, error) {
	var (
		report   RequeueReport
		statuses []domain.EnqueueStatus
	)
	if limit <= 0 {
		return report, nil
	}

	err := q.uow.Do(ctx, func(repos ports.Repositories) error {
		pending, err := repos.Interactions().FindUnscored(ctx, limit)
		if err != nil {
			return err
		}
		for _, interaction := range pending {
			report.Examined++
			status, err := q.EnqueueIn(ctx, repos, interaction, priority)
			if errors.Is(err, domain.ErrInvalidEnqueueTarget) {
				continue
			}
			if err != nil {
				return err
			}
			statuses = append(statuses, status)
			if status == domain.EnqueueQueued {
				report.Queued++
			} else {
				report.AlreadyQueued++
			}
		}
		return nil
	})
	if err != nil {
		return RequeueReport{}, fmt.Errorf("requeue unscored: %w", err)
	}
	q.recordEnqueued(statuses...)

	q.logger.InfoContext(ctx, "requeued unscored interactions",
		"examined", report.Examined, "queued", report.Queued, "already_queued", report.AlreadyQueued)
	return report, nil
}
