package usecase

import (
	"sort"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/ports"
)

// FlagThreshold assigns Flag to every score >= Min up to the next threshold.
type FlagThreshold struct {
	Min  int
	Flag domain.SentimentFlag
}

// DefaultFlagThresholds splits 0..100 into five equal bands.
var DefaultFlagThresholds = []FlagThreshold{
	{Min: 0, Flag: domain.FlagVeryNegative},
	{Min: 20, Flag: domain.FlagNegative},
	{Min: 40, Flag: domain.FlagNeutral},
	{Min: 60, Flag: domain.FlagPositive},
	{Min: 80, Flag: domain.FlagVeryPositive},
}

// ThresholdPolicy is a FlagPolicy backed by an explicit threshold table.
type ThresholdPolicy struct {
	thresholds []FlagThreshold
}

var _ ports.FlagPolicy = (*ThresholdPolicy)(nil)

// NewThresholdPolicy sorts a copy of the table; an empty table uses the defaults.
func NewThresholdPolicy(thresholds []FlagThreshold) *ThresholdPolicy {
	if len(thresholds) == 0 {
		thresholds = DefaultFlagThresholds
	}
	sorted := append([]FlagThreshold(nil), thresholds...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })
	return &ThresholdPolicy{thresholds: sorted}
}

// Flag returns the band the score falls in; scores below the first band are unknown.
func (p *ThresholdPolicy) Flag(score int) domain.SentimentFlag {
	flag := domain.FlagUnknown
	for _, t := range p.thresholds {
		if score < t.Min {
			break
		}
		flag = t.Flag
	}
	return flag
}
