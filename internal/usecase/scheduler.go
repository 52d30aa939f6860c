package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/ports"
)

// SchedulerDeps wires the cron-like drivers with the use cases they trigger.
type SchedulerDeps struct {
	IngestDriver  ports.Scheduler
	ScoringDriver ports.Scheduler
	Ingestor      *Ingestor
	Source        ports.InteractionSource
	Pipeline      *Pipeline
	Logger        *slog.Logger
}

// Scheduler starts and stops the recurring ingestion and scoring jobs.
type Scheduler struct {
	ingestDriver  ports.Scheduler
	scoringDriver ports.Scheduler
	ingestor      *Ingestor
	source        ports.InteractionSource
	pipeline      *Pipeline
	logger        *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		ingestDriver:  deps.IngestDriver,
		scoringDriver: deps.ScoringDriver,
		ingestor:      deps.Ingestor,
		source:        deps.Source,
		pipeline:      deps.Pipeline,
		logger:        logger,
	}
}

// Start registers both jobs with their drivers.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.ingestDriver != nil && s.ingestor != nil && s.source != nil {
		job := func(trigger time.Time) {
			if _, err := s.ingestor.IngestFrom(ctx, s.source); err != nil {
				s.logger.ErrorContext(ctx, "scheduled ingestion failed", "trigger", trigger, "error", err)
			}
		}
		if err := s.ingestDriver.Start(ctx, job); err != nil {
			return err
		}
	}

	if s.scoringDriver != nil && s.pipeline != nil {
		job := func(trigger time.Time) {
			_, err := s.pipeline.RunCycle(ctx)
			if errors.Is(err, domain.ErrCycleInProgress) {
				s.logger.InfoContext(ctx, "previous cycle still running, tick skipped", "trigger", trigger)
				return
			}
			if err != nil {
				s.logger.ErrorContext(ctx, "scheduled scoring cycle failed", "trigger", trigger, "error", err)
			}
		}
		if err := s.scoringDriver.Start(ctx, job); err != nil {
			return err
		}
	}

	return nil
}

// Stop gracefully tears down the underlying schedulers.
func (s *Scheduler) Stop(ctx context.Context) error {
	var errs []error
	if s.ingestDriver != nil {
		errs = append(errs, s.ingestDriver.Stop(ctx))
	}
	if s.scoringDriver != nil {
		errs = append(errs, s.scoringDriver.Stop(ctx))
	}
	return errors.Join(errs...)
}
