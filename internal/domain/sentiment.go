package domain

import "strings"

// SentimentFlag is the coarse intensity class derived from the integer score.
type SentimentFlag string

const (
	FlagUnknown      SentimentFlag = ""
	FlagVeryNegative SentimentFlag = "very_negative"
	FlagNegative     SentimentFlag = "negative"
	FlagNeutral      SentimentFlag = "neutral"
	FlagPositive     SentimentFlag = "positive"
	FlagVeryPositive SentimentFlag = "very_positive"
)

// ParseSentimentFlag accepts the persisted string form.
func ParseSentimentFlag(value string) (SentimentFlag, bool) {
	switch SentimentFlag(strings.ToLower(strings.TrimSpace(value))) {
	case FlagVeryNegative:
		return FlagVeryNegative, true
	case FlagNegative:
		return FlagNegative, true
	case FlagNeutral:
		return FlagNeutral, true
	case FlagPositive:
		return FlagPositive, true
	case FlagVeryPositive:
		return FlagVeryPositive, true
	default:
		return FlagUnknown, false
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
