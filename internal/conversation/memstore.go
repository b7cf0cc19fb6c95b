package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local conversation store. It backs the degraded
// persistence mode (replies are still attempted when Postgres is down) and
// doubles as the test store.
type MemoryStore struct {
	mu            sync.Mutex
	conversations []Conversation
	messages      map[string][]Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string][]Message)}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, identity, displayName string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.newestLocked(identity); ok {
		return conv, nil
	}
	now := time.Now().UTC()
	conv := Conversation{
		ID:          uuid.NewString(),
		PhoneNumber: identity,
		UserName:    displayName,
		Status:      "active",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.conversations = append(s.conversations, conv)
	return conv, nil
}

func (s *MemoryStore) Lookup(_ context.Context, identity string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.newestLocked(identity); ok {
		return conv, nil
	}
	return Conversation{}, ErrNotFound
}

func (s *MemoryStore) SaveMessage(_ context.Context, msg Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Platform == "" {
		msg.Platform = defaultPlatform
	}
	if msg.Type == "" {
		msg.Type = TypeText
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return msg.ID, nil
}

func (s *MemoryStore) History(_ context.Context, conversationID string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.messages[conversationID]
	sorted := make([]Message, len(all))
	copy(sorted, all)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}
	return sorted, nil
}

func (s *MemoryStore) UpdateConversation(_ context.Context, conversationID string, upd Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.conversations {
		if s.conversations[i].ID != conversationID {
			continue
		}
		if upd.Status != nil {
			s.conversations[i].Status = *upd.Status
		}
		if upd.UserName != nil {
			s.conversations[i].UserName = *upd.UserName
		}
		if upd.LastMessageAt != nil {
			s.conversations[i].LastMessageAt = *upd.LastMessageAt
		}
		s.conversations[i].UpdatedAt = time.Now().UTC()
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) newestLocked(identity string) (Conversation, bool) {
	var newest Conversation
	found := false
	for _, conv := range s.conversations {
		if conv.PhoneNumber != identity {
			continue
		}
		if !found || conv.CreatedAt.After(newest.CreatedAt) {
			newest = conv
			found = true
		}
	}
	return newest, found
}
