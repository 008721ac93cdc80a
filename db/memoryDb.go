package db

import (
	"context"
	"sort"
	"sync"

	"socratic/models"
)

// InMemoryConversationRepository keeps records in process. Used by default
// and in tests; nothing survives a restart.
type InMemoryConversationRepository struct {
	mu       sync.RWMutex
	records  map[string]*models.ConversationRecord
	messages map[string][]*models.MessageLogEntry
}

func NewInMemoryConversationRepository() *InMemoryConversationRepository {
	return &InMemoryConversationRepository{
		records:  make(map[string]*models.ConversationRecord),
		messages: make(map[string][]*models.MessageLogEntry),
	}
}

func (r *InMemoryConversationRepository) SaveConversation(_ context.Context, record *models.ConversationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[record.SessionID]; ok && existing.UpdatedAt.After(record.UpdatedAt) {
		return nil
	}
	r.records[record.SessionID] = cloneRecord(record)
	return nil
}

func (r *InMemoryConversationRepository) AppendMessage(_ context.Context, entry *models.MessageLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *entry
	r.messages[entry.SessionID] = append(r.messages[entry.SessionID], &copied)
	return nil
}

func (r *InMemoryConversationRepository) GetConversationsByOwner(_ context.Context, owner string) ([]*models.ConversationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := []*models.ConversationRecord{}
	for _, record := range r.records {
		if record.Owner == owner {
			records = append(records, cloneRecord(record))
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (r *InMemoryConversationRepository) GetConversation(_ context.Context, owner, sessionID string) (*models.ConversationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[sessionID]
	if !ok || record.Owner != owner {
		return nil, ErrConversationNotFound
	}
	return cloneRecord(record), nil
}

func (r *InMemoryConversationRepository) GetMessages(_ context.Context, owner, sessionID string) ([]*models.MessageLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := []*models.MessageLogEntry{}
	for _, entry := range r.messages[sessionID] {
		if entry.Owner == owner {
			copied := *entry
			entries = append(entries, &copied)
		}
	}
	return entries, nil
}

func (r *InMemoryConversationRepository) Close() error {
	return nil
}

func cloneRecord(record *models.ConversationRecord) *models.ConversationRecord {
	copied := *record
	copied.Turns = append([]models.StoredMessage(nil), record.Turns...)
	if record.Evaluation != nil {
		evaluation := *record.Evaluation
		evaluation.Scores = append([]models.CriterionScore(nil), record.Evaluation.Scores...)
		copied.Evaluation = &evaluation
	}
	return &copied
}
