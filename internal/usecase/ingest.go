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

// IngestorDeps wires the dedup ingestor.
type IngestorDeps struct {
	UnitOfWork      ports.UnitOfWork
	Queue           *Queue
	DefaultLanguage string
	Metrics         ports.Metrics
	Logger          *slog.Logger
	Now             func() time.Time
}

// Ingestor filters provider interactions already present in the store and
// persists the rest together with their queue entry.
type Ingestor struct {
	uow             ports.UnitOfWork
	queue           *Queue
	defaultLanguage string
	metrics         ports.Metrics
	logger          *slog.Logger
	now             func() time.Time
}

// IngestFailure records one interaction that could not be persisted.
type IngestFailure struct {
	Index     int
	MessageID string
	Err       error
}

// IngestReport is the outcome of one ingestion call.
type IngestReport struct {
	Received   int             `json:"received"`
	Created    int             `json:"created"`
	Duplicates int             `json:"duplicates"`
	Enqueued   int             `json:"enqueued"`
	NoMessage  int             `json:"noMessage"`
	Failures   []IngestFailure `json:"-"`
	FailedIDs  []string        `json:"failed,omitempty"`
}

// Err joins per-interaction failures; nil when every item was handled.
func (r IngestReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("interaction #%d (%q): %w", f.Index, f.MessageID, f.Err))
	}
	return errors.Join(errs...)
}

// NewIngestor constructs the ingestion use case.
func NewIngestor(deps IngestorDeps) *Ingestor {
	in := &Ingestor{
		uow:             deps.UnitOfWork,
		queue:           deps.Queue,
		defaultLanguage: deps.DefaultLanguage,
		metrics:         metricsOrNoop(deps.Metrics),
		logger:          deps.Logger,
		now:             deps.Now,
	}
	if in.defaultLanguage == "" {
		in.defaultLanguage = "en"
	}
	if in.logger == nil {
		in.logger = slog.New(slog.DiscardHandler)
	}
	if in.now == nil {
		in.now = time.Now
	}
	return in
}

// IngestFrom fetches from the source and ingests the result.
func (in *Ingestor) IngestFrom(ctx context.Context, source ports.InteractionSource) (IngestReport, error) {
	if source == nil {
		return IngestReport{}, nil
	}
	raws, err := source.FetchNewInteractions(ctx)
	if len(raws) == 0 && err != nil {
		return IngestReport{}, fmt.Errorf("fetch interactions: %w", err)
	}
	if err != nil {
		// a failing provider does not hold back the ones that answered
		in.logger.WarnContext(ctx, "some providers failed", "error", err)
	}
	return in.Ingest(ctx, raws)
}

// Ingest persists every interaction whose provider message id is unseen.
// Each interaction is written in its own unit of work so one failure does
// not abort the rest; failures are returned in the report.
func (in *Ingestor) Ingest(ctx context.Context, raws []domain.RawInteraction) (IngestReport, error) {
	report := IngestReport{Received: len(raws)}
	if len(raws) == 0 {
		return report, nil
	}

	existing, err := in.existingIDs(ctx, raws)
	if err != nil {
		return report, err
	}

	for i, raw := range raws {
		if raw.MessageID != "" && existing[raw.MessageID] {
			in.duplicate(ctx, &report, raw)
			continue
		}

		enqueued, err := in.persist(ctx, raw)
		switch {
		case errors.Is(err, domain.ErrDuplicateInteraction):
			in.duplicate(ctx, &report, raw)
		case err != nil:
			in.logger.ErrorContext(ctx, "persist interaction failed",
				"index", i, "message_id", raw.MessageID, "provider", raw.Provider, "error", err)
			report.Failures = append(report.Failures, IngestFailure{Index: i, MessageID: raw.MessageID, Err: err})
			report.FailedIDs = append(report.FailedIDs, raw.MessageID)
		default:
			report.Created++
			if enqueued {
				report.Enqueued++
			} else {
				report.NoMessage++
			}
		}

		if raw.MessageID != "" && err == nil {
			existing[raw.MessageID] = true
		}
	}

	in.metrics.InteractionsIngested(report.Created)
	in.metrics.DuplicatesSkipped(report.Duplicates)
	in.logger.InfoContext(ctx, "ingestion finished",
		"received", report.Received,
		"created", report.Created,
		"duplicates", report.Duplicates,
		"enqueued", report.Enqueued,
		"failed", len(report.Failures))

	return report, nil
}

// Import bulk-loads archived interactions in a single unit of work: either
// every new interaction and its queue entry is stored or none is.
func (in *Ingestor) Import(ctx context.Context, raws []domain.RawInteraction) (IngestReport, error) {
	report := IngestReport{Received: len(raws)}
	if len(raws) == 0 {
		return report, nil
	}

	existing, err := in.existingIDs(ctx, raws)
	if err != nil {
		return report, err
	}

	fresh := make([]*domain.Interaction, 0, len(raws))
	var statuses []domain.EnqueueStatus
	for _, raw := range raws {
		if raw.MessageID != "" && existing[raw.MessageID] {
			report.Duplicates++
			continue
		}
		if raw.MessageID != "" {
			existing[raw.MessageID] = true
		}
		interaction := raw.ToInteraction(in.defaultLanguage, in.now())
		fresh = append(fresh, &interaction)
	}

	err = in.uow.Do(ctx, func(repos ports.Repositories) error {
		if err := repos.Interactions().CreateMany(ctx, fresh); err != nil {
			return err
		}
		for _, interaction := range fresh {
			if !interaction.HasMessage() {
				continue
			}
			status, err := in.queue.EnqueueIn(ctx, repos, *interaction, in.queue.DefaultPriority())
			if err != nil {
				return err
			}
			statuses = append(statuses, status)
		}
		return nil
	})
	if err != nil {
		return IngestReport{Received: len(raws)}, fmt.Errorf("import interactions: %w", err)
	}
	in.queue.recordEnqueued(statuses...)

	for _, interaction := range fresh {
		if interaction.HasMessage() {
			report.Enqueued++
		} else {
			report.NoMessage++
		}
	}
	report.Created = len(fresh)
	in.metrics.InteractionsIngested(report.Created)
	in.metrics.DuplicatesSkipped(report.Duplicates)
	in.logger.InfoContext(ctx, "import finished", "created", report.Created, "duplicates", report.Duplicates)
	return report, nil
}

func (in *Ingestor) persist(ctx context.Context, raw domain.RawInteraction) (bool, error) {
	interaction := raw.ToInteraction(in.defaultLanguage, in.now())
	var status domain.EnqueueStatus

	err := in.uow.Do(ctx, func(repos ports.Repositories) error {
		if err := repos.Interactions().Create(ctx, &interaction); err != nil {
			return err
		}
		if !interaction.HasMessage() {
			return nil
		}
		var err error
		status, err = in.queue.EnqueueIn(ctx, repos, interaction, in.queue.DefaultPriority())
		return err
	})
	if err != nil || status == "" {
		return false, err
	}
	in.queue.recordEnqueued(status)
	return true, nil
}

func (in *Ingestor) existingIDs(ctx context.Context, raws []domain.RawInteraction) (map[string]bool, error) {
	ids := make([]string, 0, len(raws))
	for _, raw := range raws {
		if raw.MessageID != "" {
			ids = append(ids, raw.MessageID)
		}
	}

	existing := map[string]bool{}
	if len(ids) == 0 {
		return existing, nil
	}

	err := in.uow.Do(ctx, func(repos ports.Repositories) error {
		found, err := repos.Interactions().ExistingMessageIDs(ctx, ids)
		if err != nil {
			return err
		}
		for id, ok := range found {
			existing[id] = ok
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load existing message ids: %w", err)
	}
	return existing, nil
}

func (in *Ingestor) duplicate(ctx context.Context, report *IngestReport, raw domain.RawInteraction) {
	report.Duplicates++
	in.logger.InfoContext(ctx, "duplicate interaction skipped",
		"message_id", raw.MessageID, "provider", raw.Provider)
}
