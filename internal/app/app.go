package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"SentimentPipeline/internal/config"
	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/feed"
	"SentimentPipeline/internal/infrastructure/httpapi"
	"SentimentPipeline/internal/infrastructure/lock"
	"SentimentPipeline/internal/infrastructure/metrics"
	"SentimentPipeline/internal/infrastructure/provider"
	"SentimentPipeline/internal/infrastructure/scheduler"
	"SentimentPipeline/internal/infrastructure/scorer"
	"SentimentPipeline/internal/infrastructure/storage"
	"SentimentPipeline/internal/logging"
	"SentimentPipeline/internal/ports"
	"SentimentPipeline/internal/usecase"
)

const shutdownTimeout = 15 * time.Second

type store interface {
	ports.UnitOfWork
	Close() error
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    store
	postgres *storage.PostgresRepository
	closers  []func() error

	recorder *metrics.Recorder
	source   ports.InteractionSource
	queue    *usecase.Queue
	ingestor *usecase.Ingestor
	pipeline *usecase.Pipeline
}

// New opens storage and builds every use case from cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging)
	}
	a := &Application{cfg: cfg, logger: baseLogger, recorder: metrics.NewRecorder()}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	runLock, err := a.buildLock()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	registry := feed.NewRegistry()
	registry.Register(provider.NewRSSStrategy(nil, baseLogger.With("component", "provider.rss")))
	registry.Register(provider.NewHTMLStrategy(nil, baseLogger.With("component", "provider.html")))
	a.source = provider.NewStrategySource(registry, cfg.Sources, baseLogger.With("component", "source"))

	a.queue = usecase.NewQueue(usecase.QueueDeps{
		UnitOfWork:      a.store,
		DefaultPriority: cfg.Pipeline.DefaultPriority,
		Metrics:         a.recorder,
		Logger:          baseLogger.With("component", "queue"),
	})
	a.ingestor = usecase.NewIngestor(usecase.IngestorDeps{
		UnitOfWork:      a.store,
		Queue:           a.queue,
		DefaultLanguage: cfg.Scorer.Language,
		Metrics:         a.recorder,
		Logger:          baseLogger.With("component", "ingestor"),
	})
	correlator := usecase.NewCorrelator(usecase.CorrelatorDeps{
		UnitOfWork: a.store,
		Policy:     usecase.NewThresholdPolicy(flagThresholds(cfg.Sentiment.Flags)),
		Metrics:    a.recorder,
		Logger:     baseLogger.With("component", "correlator"),
	})
	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Queue:              a.queue,
		Builder:            usecase.NewBatchBuilder(cfg.Pipeline.MaxBatchItems, cfg.Pipeline.MaxCharacters, cfg.Scorer.Language, baseLogger.With("component", "batch")),
		Scorer:             a.buildScorer(),
		Correlator:         correlator,
		Lock:               runLock,
		Metrics:            a.recorder,
		Logger:             baseLogger.With("component", "pipeline"),
		MaxBatchesPerCycle: cfg.Pipeline.MaxBatchesPerCycle,
		DrainLimit:         cfg.Pipeline.DrainLimit,
		ScoreTimeout:       cfg.Scorer.Timeout,
	})

	return a, nil
}

func (a *Application) openStore(ctx context.Context) error {
	switch a.cfg.Database.Driver {
	case "postgres":
		repo, err := storage.OpenPostgres(ctx, a.cfg.Database.DSN)
		if err != nil {
			return err
		}
		a.store, a.postgres = repo, repo
	default:
		a.logger.Warn("using in-memory storage, data is lost on exit")
		a.store = storage.NewMemoryRepository()
	}
	a.closers = append(a.closers, a.store.Close)
	return nil
}

func (a *Application) buildLock() (ports.RunLock, error) {
	if a.cfg.Lock.Kind != "redis" {
		return lock.NewLocalLock(), nil
	}
	client, err := lock.NewRedisClient(a.cfg.Lock.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return lock.NewRedisLock(lock.RedisLockDeps{
		Client: client,
		Key:    a.cfg.Lock.Key,
		TTL:    a.cfg.Lock.TTL,
		Logger: a.logger.With("component", "lock"),
	}), nil
}

func (a *Application) buildScorer() ports.Scorer {
	if a.cfg.Scorer.Kind == "vader" {
		return scorer.NewVaderScorer()
	}
	return scorer.NewHTTPClient(scorer.Options{
		Endpoint:          a.cfg.Scorer.Endpoint,
		APIKey:            a.cfg.Scorer.APIKey,
		APIKeyHeader:      a.cfg.Scorer.APIKeyHeader,
		Timeout:           a.cfg.Scorer.Timeout,
		RequestsPerSecond: a.cfg.Scorer.RequestsPerSecond,
		Logger:            a.logger.With("component", "scorer"),
	})
}

func flagThresholds(flags []config.FlagConfig) []usecase.FlagThreshold {
	out := make([]usecase.FlagThreshold, 0, len(flags))
	for _, f := range flags {
		out = append(out, usecase.FlagThreshold{Min: f.Min, Flag: domain.SentimentFlag(f.Flag)})
	}
	return out
}

// RunCycle runs a single scoring cycle.
func (a *Application) RunCycle(ctx context.Context) (usecase.CycleReport, error) {
	return a.pipeline.RunCycle(ctx)
}

// Ingest polls every configured source once.
func (a *Application) Ingest(ctx context.Context) (usecase.IngestReport, error) {
	return a.ingestor.IngestFrom(ctx, a.source)
}

// Import bulk-loads archived interactions all-or-nothing.
func (a *Application) Import(ctx context.Context, raws []domain.RawInteraction) (usecase.IngestReport, error) {
	return a.ingestor.Import(ctx, raws)
}

// Requeue re-enqueues unscored interactions lacking a live queue item.
// A negative priority means the configured default.
func (a *Application) Requeue(ctx context.Context, limit, priority int) (usecase.RequeueReport, error) {
	if priority < 0 {
		priority = a.queue.DefaultPriority()
	}
	return a.queue.RequeueUnscored(ctx, limit, priority)
}

// Migrate applies the Postgres schema.
func (a *Application) Migrate(ctx context.Context) error {
	if a.postgres == nil {
		return errors.New("migrate requires database.driver=postgres")
	}
	return a.postgres.Migrate(ctx)
}

// Handler returns the admin HTTP surface.
func (a *Application) Handler() *echo.Echo {
	return httpapi.NewServer(httpapi.Deps{
		Cycles:  a.pipeline,
		Ingest:  a.ingestor,
		Source:  a.source,
		Queue:   a.queue,
		Metrics: a.recorder.Handler(),
		Logger:  a.logger.With("component", "http"),
	})
}

// Serve runs the schedulers and the admin server until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	jobs, err := a.buildScheduler()
	if err != nil {
		return err
	}
	if err := jobs.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	server := a.Handler()
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("admin server listening", "addr", a.cfg.HTTP.Addr)
		if err := server.Start(a.cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, server.Shutdown(shutdownCtx), jobs.Stop(shutdownCtx))
}

func (a *Application) buildScheduler() (*usecase.Scheduler, error) {
	deps := usecase.SchedulerDeps{
		Ingestor: a.ingestor,
		Source:   a.source,
		Pipeline: a.pipeline,
		Logger:   a.logger.With("component", "scheduler"),
	}
	loc := a.cfg.Scheduler.Location()

	if spec := a.cfg.Scheduler.IngestCron; spec != "" {
		driver, err := scheduler.NewCronScheduler(spec, loc, deps.Logger)
		if err != nil {
			return nil, err
		}
		deps.IngestDriver = driver
	}
	if spec := a.cfg.Scheduler.ScoringCron; spec != "" {
		driver, err := scheduler.NewCronScheduler(spec, loc, deps.Logger)
		if err != nil {
			return nil, err
		}
		deps.ScoringDriver = driver
	}
	return usecase.NewScheduler(deps), nil
}

// Close releases storage and lock connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
