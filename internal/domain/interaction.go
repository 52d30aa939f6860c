package domain

import "time"

// InteractionKind tells what sort of social item was ingested.
type InteractionKind string

const (
	KindPost    InteractionKind = "post"
	KindTweet   InteractionKind = "tweet"
	KindMention InteractionKind = "mention"
	KindComment InteractionKind = "comment"
)

// InteractionState is the moderation lifecycle owned by the CRUD screens.
type InteractionState string

const (
	StateOpen     InteractionState = "open"
	StateClosed   InteractionState = "closed"
	StateFollowup InteractionState = "followup"
	StateIgnored  InteractionState = "ignored"
)

// NoSentiment marks an interaction that has not been scored yet.
const NoSentiment = -1

// Interaction is a single ingested social item subject to sentiment scoring.
type Interaction struct {
	ID        int64
	MessageID string
	Provider  string
	Kind      InteractionKind
	State     InteractionState
	Author    string
	URL       string
	Message   string
	Language  string
	Sentiment int
	Flag      SentimentFlag
	CreatedAt time.Time
}

// Scored reports whether the correlator already wrote a sentiment.
func (i Interaction) Scored() bool {
	return i.Sentiment >= 0
}

// HasMessage is false for nil, empty and whitespace-only text.
func (i Interaction) HasMessage() bool {
	return !isBlank(i.Message)
}

// RawInteraction is what provider feeds hand to the ingestor.
type RawInteraction struct {
	MessageID string          `json:"messageId"`
	Provider  string          `json:"provider"`
	Kind      InteractionKind `json:"kind,omitempty"`
	Author    string          `json:"author,omitempty"`
	URL       string          `json:"url,omitempty"`
	Message   string          `json:"message"`
	Language  string          `json:"language,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ToInteraction builds an unscored, open interaction from the raw feed item.
func (r RawInteraction) ToInteraction(defaultLanguage string, now time.Time) Interaction {
	created := r.CreatedAt
	if created.IsZero() {
		created = now
	}
	lang := r.Language
	if lang == "" {
		lang = defaultLanguage
	}
	kind := r.Kind
	if kind == "" {
		kind = KindPost
	}

	return Interaction{
		MessageID: r.MessageID,
		Provider:  r.Provider,
		Kind:      kind,
		State:     StateOpen,
		Author:    r.Author,
		URL:       r.URL,
		Message:   r.Message,
		Language:  lang,
		Sentiment: NoSentiment,
		Flag:      FlagUnknown,
		CreatedAt: created.UTC(),
	}
}
