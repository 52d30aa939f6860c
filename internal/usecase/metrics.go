package usecase

import (
	"time"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/ports"
)

type noopMetrics struct{}

var _ ports.Metrics = noopMetrics{}

func (noopMetrics) InteractionsIngested(int) {}
func (noopMetrics) DuplicatesSkipped(int) {}
func (noopMetrics) Enqueued(domain.EnqueueStatus) {}
func (noopMetrics) NoMessageSkipped(int) {}
func (noopMetrics) BatchScored(bool) {}
func (noopMetrics) ItemsScored(int) {}
func (noopMetrics) CorrelationMisses(int) {}
func (noopMetrics) CycleFinished(time.Duration) {}

func metricsOrNoop(m ports.Metrics) ports.Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
