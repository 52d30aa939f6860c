package domain

import "errors"

var (
	// ErrInvalidEnqueueTarget rejects enqueueing an interaction without text.
	ErrInvalidEnqueueTarget = errors.New("interaction has no message to score")
	// ErrDuplicateInteraction is returned by stores when the provider message id already exists.
	ErrDuplicateInteraction = errors.New("interaction already ingested")
	// ErrAlreadyScored guards against stale results overwriting a sentiment.
	ErrAlreadyScored = errors.New("interaction already scored")
	// ErrNotFound is returned by lookups by id.
	ErrNotFound = errors.New("not found")
	// ErrScorerTransport covers network failures, timeouts and non-2xx replies.
	ErrScorerTransport = errors.New("scorer transport error")
	// ErrScorerResponse covers bodies that cannot be parsed or validated.
	ErrScorerResponse = errors.New("scorer response error")
	// ErrPersistence wraps failures coming from the store collaborator.
	ErrPersistence = errors.New("persistence error")
	// ErrCycleInProgress is returned when another cycle holds the run lock.
	ErrCycleInProgress = errors.New("scoring cycle already running")
)
