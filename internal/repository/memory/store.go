// Package memory is the storage.driver=memory backend. It mirrors the
// PostgreSQL repositories' scoping, ordering and error semantics.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	contract "todoagent/contracts/mq"
	"todoagent/internal/model"
	"todoagent/internal/repository"
)

// EventSink receives the events the PostgreSQL driver would write to the outbox.
type EventSink func(ctx context.Context, routingKey string, payload contract.TaskEventPayload)

type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	nextTaskID int64
	nextTagID  int64
	nextConvID int64
	nextMsgID  int64

	tasks         map[int64]*model.Task
	tags          map[int64]*model.Tag
	taskTags      map[int64]map[int64]struct{} // task id -> tag ids
	conversations map[int64]*model.Conversation
	messages      map[int64][]*model.Message
	users         map[string]*model.User // by lowercased email

	sink EventSink
}

type Option func(*Store)

func WithEventSink(sink EventSink) Option {
	return func(s *Store) { s.sink = sink }
}

// WithClock fixes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:           time.Now,
		tasks:         map[int64]*model.Task{},
		tags:          map[int64]*model.Tag{},
		taskTags:      map[int64]map[int64]struct{}{},
		conversations: map[int64]*model.Conversation{},
		messages:      map[int64][]*model.Message{},
		users:         map[string]*model.User{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) emit(ctx context.Context, routingKey string, t *model.Task) {
	if s.sink != nil {
		s.sink(ctx, routingKey, repository.NewTaskEvent(ctx, t))
	}
}

func (s *Store) CreateTask(ctx context.Context, t *model.Task, tags []string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ParentID != nil {
		if p, ok := s.tasks[*t.ParentID]; !ok || p.UserID != t.UserID {
			return nil, fmt.Errorf("task %d: %w", *t.ParentID, repository.ErrNotFound)
		}
	}

	s.nextTaskID++
	now := s.now()
	stored := t.Clone()
	stored.ID = s.nextTaskID
	stored.ReminderSent = false
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Tags = nil
	s.tasks[stored.ID] = stored
	s.attachTagsLocked(stored, tags)

	out := s.withTagsLocked(stored)
	s.emit(ctx, contract.RoutingTaskCreated, out)
	return out, nil
}

func (s *Store) GetTask(_ context.Context, userID string, id int64) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.ownedTaskLocked(userID, id)
	if err != nil {
		return nil, err
	}
	return s.withTagsLocked(t), nil
}

func (s *Store) ListTasks(_ context.Context, userID string, f model.TaskFilter) ([]*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wantTags := map[string]struct{}{}
	for _, name := range f.Tags {
		wantTags[strings.ToLower(name)] = struct{}{}
	}
	search := strings.ToLower(f.Search)

	var out []*model.Task
	for _, t := range s.tasks {
		if t.UserID != userID {
			continue
		}
		switch f.Status {
		case model.StatusPending:
			if t.Completed {
				continue
			}
		case model.StatusCompleted:
			if !t.Completed {
				continue
			}
		}
		if f.Priority != nil && t.Priority != *f.Priority {
			continue
		}
		withTags := s.withTagsLocked(t)
		if len(wantTags) > 0 && !hasAnyTag(withTags.Tags, wantTags) {
			continue
		}
		if search != "" && !matchesSearch(t, search) {
			continue
		}
		out = append(out, withTags)
	}

	sortTasks(out, f.SortBy, f.SortOrder)
	return out, nil
}

func (s *Store) UpdateTask(ctx context.Context, userID string, id int64, p model.TaskPatch) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.ownedTaskLocked(userID, id)
	if err != nil {
		return nil, err
	}
	if p.ParentID != nil && !p.ClearParent {
		if parent, ok := s.tasks[*p.ParentID]; !ok || parent.UserID != userID {
			return nil, fmt.Errorf("task %d: %w", *p.ParentID, repository.ErrNotFound)
		}
	}

	wasCompleted := t.Completed
	p.Apply(t)
	t.UpdatedAt = s.now()
	if p.ReplaceTags {
		delete(s.taskTags, id)
		s.attachTagsLocked(t, p.Tags)
	}

	out := s.withTagsLocked(t)
	s.emit(ctx, contract.RoutingTaskUpdated, out)
	if !wasCompleted && t.Completed {
		s.emit(ctx, contract.RoutingTaskCompleted, out)
	}
	return out, nil
}

func (s *Store) CompleteTask(ctx context.Context, userID string, id int64) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.ownedTaskLocked(userID, id)
	if err != nil {
		return nil, err
	}
	if !t.Completed {
		t.Completed = true
		t.UpdatedAt = s.now()
		s.emit(ctx, contract.RoutingTaskCompleted, s.withTagsLocked(t))
	}
	return s.withTagsLocked(t), nil
}

func (s *Store) DeleteTask(ctx context.Context, userID string, id int64) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.ownedTaskLocked(userID, id)
	if err != nil {
		return nil, err
	}
	out := s.withTagsLocked(t)
	delete(s.tasks, id)
	delete(s.taskTags, id)
	for _, other := range s.tasks {
		if other.ParentID != nil && *other.ParentID == id {
			other.ParentID = nil
		}
	}
	s.emit(ctx, contract.RoutingTaskDeleted, out)
	return out, nil
}

func (s *Store) ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*model.Task
	for _, t := range s.tasks {
		if !t.ReminderSent && !t.Completed && t.ReminderAt != nil && !t.ReminderAt.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ReminderAt.Equal(*due[j].ReminderAt) {
			return due[i].ReminderAt.Before(*due[j].ReminderAt)
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*model.Task, 0, len(due))
	for _, t := range due {
		t.ReminderSent = true
		c := s.withTagsLocked(t)
		s.emit(ctx, contract.RoutingTaskReminderDue, c)
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) ownedTaskLocked(userID string, id int64) (*model.Task, error) {
	t, ok := s.tasks[id]
	if !ok || t.UserID != userID {
		return nil, fmt.Errorf("task %d: %w", id, repository.ErrNotFound)
	}
	return t, nil
}

// withTagsLocked returns a copy of t carrying its tag names sorted case-insensitively.
func (s *Store) withTagsLocked(t *model.Task) *model.Task {
	c := t.Clone()
	c.Tags = []string{}
	for tagID := range s.taskTags[t.ID] {
		if tag, ok := s.tags[tagID]; ok {
			c.Tags = append(c.Tags, tag.Name)
		}
	}
	sort.Slice(c.Tags, func(i, j int) bool { return strings.ToLower(c.Tags[i]) < strings.ToLower(c.Tags[j]) })
	return c
}

func (s *Store) attachTagsLocked(t *model.Task, names []string) {
	if len(names) == 0 {
		return
	}
	links := s.taskTags[t.ID]
	if links == nil {
		links = map[int64]struct{}{}
		s.taskTags[t.ID] = links
	}
	for _, name := range names {
		tag := s.tagByNameLocked(t.UserID, name)
		if tag == nil {
			s.nextTagID++
			tag = &model.Tag{ID: s.nextTagID, UserID: t.UserID, Name: name, CreatedAt: s.now()}
			s.tags[tag.ID] = tag
		}
		links[tag.ID] = struct{}{}
	}
}

func (s *Store) tagByNameLocked(userID, name string) *model.Tag {
	for _, tag := range s.tags {
		if tag.UserID == userID && strings.EqualFold(tag.Name, name) {
			return tag
		}
	}
	return nil
}

func hasAnyTag(have []string, want map[string]struct{}) bool {
	for _, name := range have {
		if _, ok := want[strings.ToLower(name)]; ok {
			return true
		}
	}
	return false
}

func matchesSearch(t *model.Task, needle string) bool {
	if strings.Contains(strings.ToLower(t.Title), needle) {
		return true
	}
	return t.Description != nil && strings.Contains(strings.ToLower(*t.Description), needle)
}

// sortTasks matches the SQL ordering: nulls last for due_date, ties by id in
// the same direction.
func sortTasks(tasks []*model.Task, field model.SortField, order model.SortOrder) {
	desc := order != model.SortAsc
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if field == model.SortDueDate && (a.DueDate == nil) != (b.DueDate == nil) {
			return b.DueDate == nil
		}
		c := compareTasks(a, b, field)
		if c == 0 {
			c = cmpInt64(a.ID, b.ID)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compareTasks(a, b *model.Task, field model.SortField) int {
	switch field {
	case model.SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case model.SortDueDate:
		if a.DueDate == nil || b.DueDate == nil {
			return 0
		}
		return a.DueDate.Compare(*b.DueDate)
	case model.SortPriority:
		return a.Priority.Rank() - b.Priority.Rank()
	case model.SortTitle:
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
