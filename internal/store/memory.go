package store

import (
	"context"
	"sort"
	"sync"

	"github.com/careai/careai-go/internal/domain"
)

// Memory is an in-process Store used in tests.
type Memory struct {
	mu            sync.Mutex
	conversations map[string]domain.Conversation
	messages      []domain.Message
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{conversations: make(map[string]domain.Conversation)}
}

func (s *Memory) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *Memory) InsertConversation(ctx context.Context, c *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = *c
	return nil
}

func (s *Memory) UpdateConversation(ctx context.Context, c *domain.Conversation) error {
	return s.InsertConversation(ctx, c)
}

func (s *Memory) InsertMessage(ctx context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *m)
	return nil
}

func (s *Memory) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*domain.Message
	for i := range s.messages {
		if s.messages[i].ConversationID == conversationID {
			m := s.messages[i]
			all = append(all, &m)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *Memory) Close() error { return nil }
