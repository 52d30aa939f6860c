package domain

// ScoringDocument is one tuple placed in a batch for the external scorer.
type ScoringDocument struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

// ScoringBatch is built per cycle and never persisted. ItemIDs[i] is the
// queue item behind Documents[i].
type ScoringBatch struct {
	Documents []ScoringDocument
	ItemIDs   []int64
}

// Len returns the number of documents in the batch.
func (b ScoringBatch) Len() int {
	return len(b.Documents)
}

// Contains reports whether the document id was placed in this batch.
func (b ScoringBatch) Contains(id string) bool {
	for _, doc := range b.Documents {
		if doc.ID == id {
			return true
		}
	}
	return false
}

// ScoredDocument carries a fractional score in [0,1].
type ScoredDocument struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// DocumentError is a per-document rejection reported by the scorer.
type DocumentError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// ScoringResult is what the scorer returned for one batch.
type ScoringResult struct {
	Documents []ScoredDocument
	Errors    []DocumentError
}
