// Package taskstore holds the per-user task and tag operations. Every method
// takes the caller's user id and never reads one from its input.
package taskstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"todoagent/internal/model"
)

type TaskRepository interface {
	CreateTask(ctx context.Context, t *model.Task, tags []string) (*model.Task, error)
	GetTask(ctx context.Context, userID string, id int64) (*model.Task, error)
	ListTasks(ctx context.Context, userID string, f model.TaskFilter) ([]*model.Task, error)
	UpdateTask(ctx context.Context, userID string, id int64, p model.TaskPatch) (*model.Task, error)
	CompleteTask(ctx context.Context, userID string, id int64) (*model.Task, error)
	DeleteTask(ctx context.Context, userID string, id int64) (*model.Task, error)
}

type TagRepository interface {
	CreateTag(ctx context.Context, tag *model.Tag) (*model.Tag, error)
	ListTags(ctx context.Context, userID string) ([]*model.Tag, error)
	DeleteTag(ctx context.Context, userID string, id int64) (*model.Tag, error)
}

type Service struct {
	tasks    TaskRepository
	tags     TagRepository
	validate *validator.Validate
	loc      *time.Location
	logger   *zap.Logger
}

type Option func(*Service)

// WithLocation sets the zone for dates given without an offset. Default UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewService(tasks TaskRepository, tags TagRepository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		tasks:    tasks,
		tags:     tags,
		validate: newValidator(),
		loc:      time.UTC,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Add(ctx context.Context, userID string, in AddTaskInput) (*model.Task, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	in.normalize()
	if err := s.validate.Struct(in); err != nil {
		return nil, translate(err)
	}

	t := &model.Task{
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		Priority:    model.PriorityMedium,
		ParentID:    in.ParentID,
	}
	if in.Priority != "" {
		t.Priority = model.Priority(in.Priority)
	}
	var err error
	if t.DueDate, err = s.optionalTime("due_date", in.DueDate); err != nil {
		return nil, err
	}
	if t.ReminderAt, err = s.optionalTime("reminder_at", in.ReminderAt); err != nil {
		return nil, err
	}
	if in.Recurrence != nil {
		rec, err := NormalizeRecurrence(*in.Recurrence)
		if err != nil {
			return nil, invalid("recurrence: %v", err)
		}
		t.Recurrence = &rec
	}
	if t.ParentID != nil {
		if _, err := s.tasks.GetTask(ctx, userID, *t.ParentID); err != nil {
			return nil, s.wrapParent(err, *t.ParentID)
		}
	}

	created, err := s.tasks.CreateTask(ctx, t, in.Tags)
	if err != nil {
		s.logger.Error("Failed to add task", zap.Error(err), zap.String("user_id", userID))
		return nil, err
	}
	s.logger.Info("Task added",
		zap.String("user_id", userID),
		zap.Int64("task_id", created.ID),
	)
	return created, nil
}

func (s *Service) List(ctx context.Context, userID string, in ListTasksInput) (*TaskList, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	in.normalize()
	if err := s.validate.Struct(in); err != nil {
		return nil, translate(err)
	}

	tasks, err := s.tasks.ListTasks(ctx, userID, in.filter())
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	return &TaskList{Tasks: tasks, Count: len(tasks)}, nil
}

func (s *Service) Get(ctx context.Context, userID string, id int64) (*model.Task, error) {
	if err := s.checkIDs(userID, id); err != nil {
		return nil, err
	}
	return s.tasks.GetTask(ctx, userID, id)
}

func (s *Service) Complete(ctx context.Context, userID string, id int64) (*model.Task, error) {
	if err := s.checkIDs(userID, id); err != nil {
		return nil, err
	}
	t, err := s.tasks.CompleteTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Task completed", zap.String("user_id", userID), zap.Int64("task_id", id))
	return t, nil
}

func (s *Service) Delete(ctx context.Context, userID string, id int64) (*model.Task, error) {
	if err := s.checkIDs(userID, id); err != nil {
		return nil, err
	}
	t, err := s.tasks.DeleteTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Task deleted", zap.String("user_id", userID), zap.Int64("task_id", id))
	return t, nil
}

func (s *Service) Update(ctx context.Context, userID string, id int64, in UpdateTaskInput) (*model.Task, error) {
	if err := s.checkIDs(userID, id); err != nil {
		return nil, err
	}
	in.normalize()
	if err := s.validate.Struct(in); err != nil {
		return nil, translate(err)
	}

	patch, err := s.buildPatch(id, in)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, invalid("no fields to update")
	}
	if patch.ParentID != nil {
		if _, err := s.tasks.GetTask(ctx, userID, *patch.ParentID); err != nil {
			return nil, s.wrapParent(err, *patch.ParentID)
		}
	}

	t, err := s.tasks.UpdateTask(ctx, userID, id, patch)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Task updated", zap.String("user_id", userID), zap.Int64("task_id", id))
	return t, nil
}

func (s *Service) buildPatch(id int64, in UpdateTaskInput) (model.TaskPatch, error) {
	var p model.TaskPatch
	if in.Title != nil {
		if *in.Title == "" {
			return p, invalid("title must not be empty")
		}
		p.Title = in.Title
	}
	if in.Description != nil {
		if *in.Description == "" {
			p.ClearDescription = true
		} else {
			p.Description = in.Description
		}
	}
	p.Completed = in.Completed
	if in.Priority != nil {
		if *in.Priority == "" {
			return p, invalid("priority must be one of: low, medium, high, urgent")
		}
		pr := model.Priority(*in.Priority)
		p.Priority = &pr
	}
	if in.DueDate != nil {
		if *in.DueDate == "" {
			p.ClearDueDate = true
		} else {
			t, err := parseTime("due_date", *in.DueDate, s.loc)
			if err != nil {
				return p, err
			}
			p.DueDate = &t
		}
	}
	if in.ReminderAt != nil {
		if *in.ReminderAt == "" {
			p.ClearReminderAt = true
		} else {
			t, err := parseTime("reminder_at", *in.ReminderAt, s.loc)
			if err != nil {
				return p, err
			}
			p.ReminderAt = &t
		}
	}
	if in.Recurrence != nil {
		if *in.Recurrence == "" {
			p.ClearRecurrence = true
		} else {
			rec, err := NormalizeRecurrence(*in.Recurrence)
			if err != nil {
				return p, invalid("recurrence: %v", err)
			}
			p.Recurrence = &rec
		}
	}
	if in.ParentID != nil {
		switch {
		case *in.ParentID == 0:
			p.ClearParent = true
		case *in.ParentID == id:
			return p, invalid("a task cannot be its own parent")
		default:
			p.ParentID = in.ParentID
		}
	}
	if in.Tags != nil {
		p.Tags = *in.Tags
		p.ReplaceTags = true
	}
	return p, nil
}

func (s *Service) CreateTag(ctx context.Context, userID string, in CreateTagInput) (*model.Tag, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	in.normalize()
	if err := s.validate.Struct(in); err != nil {
		return nil, translate(err)
	}
	tag, err := s.tags.CreateTag(ctx, &model.Tag{UserID: userID, Name: in.Name, Color: in.Color})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Tag created", zap.String("user_id", userID), zap.Int64("tag_id", tag.ID))
	return tag, nil
}

func (s *Service) ListTags(ctx context.Context, userID string) ([]*model.Tag, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	tags, err := s.tags.ListTags(ctx, userID)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []*model.Tag{}
	}
	return tags, nil
}

func (s *Service) DeleteTag(ctx context.Context, userID string, id int64) (*model.Tag, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, invalid("tag_id must be a positive integer")
	}
	return s.tags.DeleteTag(ctx, userID, id)
}

func (s *Service) checkIDs(userID string, id int64) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	return mustPositiveID(id)
}

func (s *Service) optionalTime(field string, v *string) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	t, err := parseTime(field, *v, s.loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) wrapParent(err error, parentID int64) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("parent task %d: %w", parentID, ErrNotFound)
	}
	return err
}
