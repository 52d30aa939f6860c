package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"SentimentPipeline/internal/ports"
)

const retryDelay = 30 * time.Second

// CronScheduler runs a job on every tick of a cron expression.
type CronScheduler struct {
	spec     string
	location *time.Location
	logger   *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler validates spec and binds it to loc (UTC when nil).
func NewCronScheduler(spec string, loc *time.Location, logger *slog.Logger) (*CronScheduler, error) {
	if !gronx.IsValid(spec) {
		return nil, fmt.Errorf("invalid cron expression %q", spec)
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CronScheduler{
		spec:     spec,
		location: loc,
		logger:   logger,
		now:      time.Now,
		after:    time.After,
	}, nil
}

// Spec returns the cron expression driving the scheduler.
func (c *CronScheduler) Spec() string {
	return c.spec
}

// Start launches the tick loop. Calling Start twice is a no-op.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.loop(ctx, job, c.stop, c.done)

	return nil
}

func (c *CronScheduler) loop(ctx context.Context, job func(time.Time), stop, done chan struct{}) {
	defer close(done)

	for {
		now := c.now().In(c.location)
		next, err := gronx.NextTickAfter(c.spec, now, false)
		wait := retryDelay
		if err != nil {
			c.logger.Error("next tick failed", "cron", c.spec, "error", err)
		} else {
			wait = next.Sub(now)
		}

		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case t := <-c.after(wait):
			if err != nil {
				continue
			}
			job(t)
		}
	}
}

// Stop halts the tick loop and waits for a running job to return.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
