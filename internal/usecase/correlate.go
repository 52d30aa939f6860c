package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/ports"
)

// CorrelatorDeps wires the result correlator.
type CorrelatorDeps struct {
	UnitOfWork ports.UnitOfWork
	Policy     ports.FlagPolicy
	Metrics    ports.Metrics
	Logger     *slog.Logger
}

// Correlator writes returned scores back to queue items and interactions.
type Correlator struct {
	uow     ports.UnitOfWork
	policy  ports.FlagPolicy
	metrics ports.Metrics
	logger  *slog.Logger
}

// CorrelationReport counts what happened to each returned score.
type CorrelationReport struct {
	Applied int `json:"applied"`
	Misses  int `json:"misses"`
	Failed  int `json:"failed"`
}

// NewCorrelator constructs the correlator; a nil policy uses the default table.
func NewCorrelator(deps CorrelatorDeps) *Correlator {
	c := &Correlator{
		uow:     deps.UnitOfWork,
		policy:  deps.Policy,
		metrics: metricsOrNoop(deps.Metrics),
		logger:  deps.Logger,
	}
	if c.policy == nil {
		c.policy = NewThresholdPolicy(nil)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// errMiss aborts an item's unit of work without it counting as a failure.
var errMiss = errors.New("correlation miss")

// Correlate applies every score of result that belongs to batch. Unknown,
// foreign or already processed items are skipped. Each item's score, flag and
// processed mark commit together; a failed item is rolled back alone and
// stays queued for the next cycle.
func (c *Correlator) Correlate(ctx context.Context, batch domain.ScoringBatch, result domain.ScoringResult) (CorrelationReport, error) {
	var (
		report CorrelationReport
		errs   []error
	)

	inBatch := make(map[string]struct{}, batch.Len())
	for _, doc := range batch.Documents {
		inBatch[doc.ID] = struct{}{}
	}

	for _, scored := range result.Documents {
		itemID, err := strconv.ParseInt(scored.ID, 10, 64)
		if _, ok := inBatch[scored.ID]; !ok || err != nil {
			c.miss(ctx, &report, scored.ID, "not in batch")
			continue
		}

		err = c.apply(ctx, itemID, scored.Score)
		switch {
		case errors.Is(err, errMiss):
			c.miss(ctx, &report, scored.ID, err.Error())
		case err != nil:
			report.Failed++
			c.logger.ErrorContext(ctx, "apply sentiment failed", "queue_item_id", itemID, "error", err)
			errs = append(errs, fmt.Errorf("queue item %d: %w", itemID, err))
		default:
			report.Applied++
		}
	}

	c.metrics.ItemsScored(report.Applied)
	c.metrics.CorrelationMisses(report.Misses)
	return report, errors.Join(errs...)
}

func (c *Correlator) apply(ctx context.Context, itemID int64, score float64) error {
	percent := ScoreToPercent(score)
	stale := false

	err := c.uow.Do(ctx, func(repos ports.Repositories) error {
		item, err := repos.Queue().FindByID(ctx, itemID)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: unknown queue item", errMiss)
		}
		if err != nil {
			return err
		}
		if item.Processed {
			return fmt.Errorf("%w: already processed", errMiss)
		}

		err = repos.Interactions().ApplySentiment(ctx, item.InteractionID, percent, c.policy.Flag(percent))
		if errors.Is(err, domain.ErrAlreadyScored) {
			// stale result: retire the item, keep the existing score
			stale = true
		} else if err != nil {
			return err
		}
		return repos.Queue().MarkProcessed(ctx, itemID)
	})
	if err == nil && stale {
		return fmt.Errorf("%w: interaction already scored", errMiss)
	}
	return err
}

func (c *Correlator) miss(ctx context.Context, report *CorrelationReport, id, reason string) {
	report.Misses++
	c.logger.DebugContext(ctx, "correlation miss", "document_id", id, "reason", reason)
}

// ScoreToPercent converts a [0,1] score to an integer percentage, rounding
// half away from zero on the decimal value: 0.835 gives 84, 0.005 gives 1,
// 0.8349996 gives 83.
func ScoreToPercent(score float64) int {
	if math.IsNaN(score) || score <= 0 {
		return 0
	}
	if score >= 1 {
		return 100
	}
	// round the shortest decimal form, not score*100, whose binary value
	// can sit just below a written .5
	digits := strconv.FormatFloat(score, 'f', -1, 64)
	_, frac, _ := strings.Cut(digits, ".")
	frac += "000"
	percent := int(frac[0]-'0')*10 + int(frac[1]-'0')
	if frac[2] >= '5' {
		percent++
	}
	return percent
}
