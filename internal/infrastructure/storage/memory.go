package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/ports"
)

// MemoryRepository keeps interactions and queue items in process memory.
// Each unit of work runs against a private copy that replaces the shared
// state only on success. Units of work are serialized; do not nest them.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memState
}

var _ ports.UnitOfWork = (*MemoryRepository)(nil)

type memState struct {
	interactions      map[int64]domain.Interaction
	byMessageID       map[string]int64
	queue             map[int64]domain.QueueItem
	liveByInteraction map[int64]int64
	nextInteractionID int64
	nextQueueID       int64
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: &memState{
		interactions:      map[int64]domain.Interaction{},
		byMessageID:       map[string]int64{},
		queue:             map[int64]domain.QueueItem{},
		liveByInteraction: map[int64]int64{},
	}}
}

// Do runs fn on a copy of the state and publishes it when fn succeeds.
func (r *MemoryRepository) Do(ctx context.Context, fn func(repos ports.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.state.clone()
	if err := fn(memRepos{st: work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

// Close is a no-op; it lets the repository stand in for Postgres.
func (r *MemoryRepository) Close() error {
	return nil
}

func (s *memState) clone() *memState {
	c := &memState{
		interactions:      make(map[int64]domain.Interaction, len(s.interactions)),
		byMessageID:       make(map[string]int64, len(s.byMessageID)),
		queue:             make(map[int64]domain.QueueItem, len(s.queue)),
		liveByInteraction: make(map[int64]int64, len(s.liveByInteraction)),
		nextInteractionID: s.nextInteractionID,
		nextQueueID:       s.nextQueueID,
	}
	for k, v := range s.interactions {
		c.interactions[k] = v
	}
	for k, v := range s.byMessageID {
		c.byMessageID[k] = v
	}
	for k, v := range s.queue {
		c.queue[k] = v
	}
	for k, v := range s.liveByInteraction {
		c.liveByInteraction[k] = v
	}
	return c
}

type memRepos struct {
	st *memState
}

func (m memRepos) Interactions() ports.InteractionStore { return memInteractions(m) }
func (m memRepos) Queue() ports.QueueRepository { return memQueue(m) }

type memInteractions memRepos

func (m memInteractions) FindByID(_ context.Context, id int64) (domain.Interaction, error) {
	in, ok := m.st.interactions[id]
	if !ok {
		return domain.Interaction{}, domain.ErrNotFound
	}
	return in, nil
}

func (m memInteractions) FindByMessageID(_ context.Context, messageID string) (domain.Interaction, bool, error) {
	id, ok := m.st.byMessageID[messageID]
	if !ok || messageID == "" {
		return domain.Interaction{}, false, nil
	}
	return m.st.interactions[id], true, nil
}

func (m memInteractions) ExistingMessageIDs(_ context.Context, messageIDs []string) (map[string]bool, error) {
	result := make(map[string]bool)
	for _, id := range messageIDs {
		if _, ok := m.st.byMessageID[id]; ok && id != "" {
			result[id] = true
		}
	}
	return result, nil
}

func (m memInteractions) FindUnscored(_ context.Context, limit int) ([]domain.Interaction, error) {
	ids := make([]int64, 0)
	for id, in := range m.st.interactions {
		if !in.Scored() && strings.TrimSpace(in.Message) != "" {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	result := make([]domain.Interaction, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.st.interactions[id])
	}
	return result, nil
}

func (m memInteractions) Create(_ context.Context, interaction *domain.Interaction) error {
	if interaction.MessageID != "" {
		if _, ok := m.st.byMessageID[interaction.MessageID]; ok {
			return domain.ErrDuplicateInteraction
		}
	}

	m.st.nextInteractionID++
	interaction.ID = m.st.nextInteractionID
	m.st.interactions[interaction.ID] = *interaction
	if interaction.MessageID != "" {
		m.st.byMessageID[interaction.MessageID] = interaction.ID
	}
	return nil
}

func (m memInteractions) CreateMany(ctx context.Context, interactions []*domain.Interaction) error {
	for _, in := range interactions {
		if err := m.Create(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

func (m memInteractions) ApplySentiment(_ context.Context, id int64, score int, flag domain.SentimentFlag) error {
	in, ok := m.st.interactions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if in.Scored() {
		return domain.ErrAlreadyScored
	}
	in.Sentiment = score
	in.Flag = flag
	m.st.interactions[id] = in
	return nil
}

type memQueue memRepos

func (m memQueue) Insert(_ context.Context, item *domain.QueueItem) (bool, error) {
	if _, ok := m.st.interactions[item.InteractionID]; !ok {
		return false, domain.ErrNotFound
	}
	if _, live := m.st.liveByInteraction[item.InteractionID]; live {
		return false, nil
	}

	m.st.nextQueueID++
	item.ID = m.st.nextQueueID
	item.Processed = false
	m.st.queue[item.ID] = *item
	m.st.liveByInteraction[item.InteractionID] = item.ID
	return true, nil
}

func (m memQueue) FindByID(_ context.Context, id int64) (domain.QueueItem, error) {
	item, ok := m.st.queue[id]
	if !ok {
		return domain.QueueItem{}, domain.ErrNotFound
	}
	return item, nil
}

func (m memQueue) ListUnprocessed(_ context.Context, after *domain.QueueCursor, limit int) ([]domain.QueueEntry, error) {
	items := make([]domain.QueueItem, 0, len(m.st.liveByInteraction))
	for _, id := range m.st.liveByInteraction {
		item := m.st.queue[id]
		if after != nil && !after.Less(domain.CursorOf(item)) {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return domain.Before(items[i], items[j]) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	entries := make([]domain.QueueEntry, 0, len(items))
	for _, item := range items {
		in := m.st.interactions[item.InteractionID]
		entries = append(entries, domain.QueueEntry{Item: item, Message: in.Message, Language: in.Language})
	}
	return entries, nil
}

func (m memQueue) MarkProcessed(_ context.Context, id int64) error {
	item, ok := m.st.queue[id]
	if !ok {
		return domain.ErrNotFound
	}
	if item.Processed {
		return nil
	}
	item.Processed = true
	m.st.queue[id] = item
	delete(m.st.liveByInteraction, item.InteractionID)
	return nil
}

func (m memQueue) CountUnprocessed(_ context.Context) (int, error) {
	return len(m.st.liveByInteraction), nil
}
