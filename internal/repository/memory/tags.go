package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"todoagent/internal/model"
	"todoagent/internal/repository"
)

func (s *Store) CreateTag(_ context.Context, tag *model.Tag) (*model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tagByNameLocked(tag.UserID, tag.Name) != nil {
		return nil, fmt.Errorf("tag %q: %w", tag.Name, repository.ErrConflict)
	}
	s.nextTagID++
	stored := *tag
	stored.ID = s.nextTagID
	stored.CreatedAt = s.now()
	stored.TaskCount = 0
	s.tags[stored.ID] = &stored

	out := stored
	return &out, nil
}

func (s *Store) ListTags(_ context.Context, userID string) ([]*model.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[int64]int{}
	for _, links := range s.taskTags {
		for tagID := range links {
			counts[tagID]++
		}
	}

	var out []*model.Tag
	for _, tag := range s.tags {
		if tag.UserID != userID {
			continue
		}
		c := *tag
		c.TaskCount = counts[tag.ID]
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if li != lj {
			return li < lj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteTag(_ context.Context, userID string, id int64) (*model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, ok := s.tags[id]
	if !ok || tag.UserID != userID {
		return nil, fmt.Errorf("tag %d: %w", id, repository.ErrNotFound)
	}
	delete(s.tags, id)
	for _, links := range s.taskTags {
		delete(links, id)
	}
	out := *tag
	return &out, nil
}
