package ports

import (
	"context"
	"time"

	"SentimentPipeline/internal/domain"
)

// InteractionSource pulls fresh interactions from upstream social providers.
type InteractionSource interface {
	FetchNewInteractions(ctx context.Context) ([]domain.RawInteraction, error)
}

// InteractionStore persists interactions for deduplication and scoring.
type InteractionStore interface {
	FindByID(ctx context.Context, id int64) (domain.Interaction, error)
	FindByMessageID(ctx context.Context, messageID string) (domain.Interaction, bool, error)
	ExistingMessageIDs(ctx context.Context, messageIDs []string) (map[string]bool, error)
	FindUnscored(ctx context.Context, limit int) ([]domain.Interaction, error)
	Create(ctx context.Context, interaction *domain.Interaction) error
	CreateMany(ctx context.Context, interactions []*domain.Interaction) error
	ApplySentiment(ctx context.Context, id int64, score int, flag domain.SentimentFlag) error
}

// QueueRepository is the durable, re-queryable backing of the sentiment queue.
type QueueRepository interface {
	Insert(ctx context.Context, item *domain.QueueItem) (bool, error)
	FindByID(ctx context.Context, id int64) (domain.QueueItem, error)
	ListUnprocessed(ctx context.Context, after *domain.QueueCursor, limit int) ([]domain.QueueEntry, error)
	MarkProcessed(ctx context.Context, id int64) error
	CountUnprocessed(ctx context.Context) (int, error)
}

// Repositories groups repositories bound to one unit of work.
type Repositories interface {
	Interactions() InteractionStore
	Queue() QueueRepository
}

// UnitOfWork runs fn atomically: all writes commit when fn returns nil and
// none are visible otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(repos Repositories) error) error
}

// Scorer sends one batch to the external sentiment service.
type Scorer interface {
	Score(ctx context.Context, batch domain.ScoringBatch) (domain.ScoringResult, error)
}

// FlagPolicy maps an integer sentiment onto an intensity flag.
type FlagPolicy interface {
	Flag(score int) domain.SentimentFlag
}

// RunLock keeps two scoring cycles from draining the same queue.
type RunLock interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// Metrics receives pipeline counters; implementations must accept concurrent calls.
type Metrics interface {
	InteractionsIngested(n int)
	DuplicatesSkipped(n int)
	Enqueued(status domain.EnqueueStatus)
	NoMessageSkipped(n int)
	BatchScored(ok bool)
	ItemsScored(n int)
	CorrelationMisses(n int)
	CycleFinished(d time.Duration)
}
