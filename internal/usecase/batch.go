package usecase

import (
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"SentimentPipeline/internal/domain"
)

const (
	// MaxBatchItems is the scorer's documented per-call document limit.
	MaxBatchItems = 1000
	// MaxCharacters is the scorer's documented per-document text limit.
	MaxCharacters = 5000
)

// BatchBuilder splits ordered queue entries into scoring batches.
type BatchBuilder struct {
	maxItems        int
	maxChars        int
	defaultLanguage string
	logger          *slog.Logger
}

// NewBatchBuilder falls back to the scorer limits for non-positive values.
func NewBatchBuilder(maxItems, maxChars int, defaultLanguage string, logger *slog.Logger) *BatchBuilder {
	if maxItems <= 0 || maxItems > MaxBatchItems {
		maxItems = MaxBatchItems
	}
	if maxChars <= 0 || maxChars > MaxCharacters {
		maxChars = MaxCharacters
	}
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BatchBuilder{maxItems: maxItems, maxChars: maxChars, defaultLanguage: defaultLanguage, logger: logger}
}

// Build keeps the input order. Entries with a blank message are returned in
// skipped and stay unprocessed in the queue; longer texts are truncated.
func (b *BatchBuilder) Build(entries []domain.QueueEntry) (batches []domain.ScoringBatch, skipped []int64) {
	var current domain.ScoringBatch

	for _, entry := range entries {
		if strings.TrimSpace(entry.Message) == "" {
			b.logger.Info("no message, excluded from scoring",
				"queue_item_id", entry.Item.ID, "interaction_id", entry.Item.InteractionID)
			skipped = append(skipped, entry.Item.ID)
			continue
		}

		lang := entry.Language
		if lang == "" {
			lang = b.defaultLanguage
		}

		current.Documents = append(current.Documents, domain.ScoringDocument{
			ID:       strconv.FormatInt(entry.Item.ID, 10),
			Language: lang,
			Text:     Truncate(entry.Message, b.maxChars),
		})
		current.ItemIDs = append(current.ItemIDs, entry.Item.ID)

		if current.Len() == b.maxItems {
			batches = append(batches, current)
			current = domain.ScoringBatch{}
		}
	}

	if current.Len() > 0 {
		batches = append(batches, current)
	}
	return batches, skipped
}

// Truncate cuts text to at most limit characters without splitting a rune.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit || utf8.RuneCountInString(text) <= limit {
		return text
	}

	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}
