package domain

import "time"

// DefaultPriority sits in the middle of the 0..10 range; lower runs first.
const DefaultPriority = 5

// QueueItem references exactly one interaction awaiting sentiment scoring.
type QueueItem struct {
	ID            int64
	InteractionID int64
	Priority      int
	EnqueuedAt    time.Time
	Processed     bool
}

// QueueEntry is an unprocessed item joined with the text the scorer needs.
type QueueEntry struct {
	Item     QueueItem
	Message  string
	Language string
}

// QueueCursor is a position in the (priority, enqueued_at, id) order.
type QueueCursor struct {
	Priority   int
	EnqueuedAt time.Time
	ID         int64
}

// CursorOf returns the position of the given item.
func CursorOf(item QueueItem) QueueCursor {
	return QueueCursor{Priority: item.Priority, EnqueuedAt: item.EnqueuedAt, ID: item.ID}
}

// Before reports whether item a sorts ahead of item b.
func Before(a, b QueueItem) bool {
	return CursorOf(a).Less(CursorOf(b))
}

// Less compares two positions lexicographically.
func (c QueueCursor) Less(o QueueCursor) bool {
	if c.Priority != o.Priority {
		return c.Priority < o.Priority
	}
	if !c.EnqueuedAt.Equal(o.EnqueuedAt) {
		return c.EnqueuedAt.Before(o.EnqueuedAt)
	}
	return c.ID < o.ID
}

// EnqueueStatus is the non-error outcome of an enqueue call.
type EnqueueStatus string

const (
	EnqueueQueued        EnqueueStatus = "queued"
	EnqueueAlreadyQueued EnqueueStatus = "already_queued"
)

// QueueStats summarizes the live part of the queue.
type QueueStats struct {
	Unprocessed int  `json:"unprocessed"`
	Empty       bool `json:"empty"`
}
