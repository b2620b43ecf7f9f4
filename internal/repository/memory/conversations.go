package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"todoagent/internal/model"
	"todoagent/internal/repository"
)

func (s *Store) CreateConversation(_ context.Context, c *model.Conversation) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextConvID++
	now := s.now()
	stored := *c
	stored.ID = s.nextConvID
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.conversations[stored.ID] = &stored

	out := stored
	return &out, nil
}

func (s *Store) GetConversation(_ context.Context, userID string, id int64) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok || c.UserID != userID {
		return nil, fmt.Errorf("conversation %d: %w", id, repository.ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (s *Store) ListConversations(_ context.Context, userID string) ([]*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Conversation
	for _, c := range s.conversations {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteConversation(_ context.Context, userID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok || c.UserID != userID {
		return fmt.Errorf("conversation %d: %w", id, repository.ErrNotFound)
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

func (s *Store) AppendMessages(_ context.Context, conversationID int64, msgs ...*model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation %d: %w", conversationID, repository.ErrNotFound)
	}
	for _, m := range msgs {
		s.nextMsgID++
		m.ID = s.nextMsgID
		m.ConversationID = conversationID
		m.CreatedAt = s.now()
		stored := *m
		s.messages[conversationID] = append(s.messages[conversationID], &stored)
	}
	c.UpdatedAt = s.now()
	return nil
}

// ListMessages keeps insertion order, which is creation order here.
func (s *Store) ListMessages(_ context.Context, conversationID int64, limit int) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*model.Message, len(all))
	for i, m := range all {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, exists := s.users[key]; exists {
		return fmt.Errorf("user %s: %w", u.Email, repository.ErrConflict)
	}
	u.Email = key
	u.CreatedAt = s.now()
	stored := *u
	s.users[key] = &stored
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", email, repository.ErrNotFound)
	}
	out := *u
	return &out, nil
}
