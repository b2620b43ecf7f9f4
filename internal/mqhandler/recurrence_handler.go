package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	contract "todoagent/contracts/mq"
	"todoagent/internal/model"
	"todoagent/internal/repository"
	"todoagent/internal/service/taskstore"
	"todoagent/pkg/logger"
	"todoagent/pkg/metrics"
	"todoagent/pkg/trace"
)

const recurrenceHandlerName = "task_recurrence"

type TaskStore interface {
	GetTask(ctx context.Context, userID string, id int64) (*model.Task, error)
	CreateTask(ctx context.Context, t *model.Task, tags []string) (*model.Task, error)
}

type Deduper interface {
	AcquireOnce(ctx context.Context, handler, eventID string) bool
	Release(ctx context.Context, handler, eventID string)
}

// TaskRecurrenceHandler consumes task.completed and creates the next
// occurrence of recurring tasks.
type TaskRecurrenceHandler struct {
	tasks   TaskStore
	deduper Deduper
	now     func() time.Time
	logger  *zap.Logger
}

func NewTaskRecurrenceHandler(tasks TaskStore, deduper Deduper, logger *zap.Logger) *TaskRecurrenceHandler {
	return &TaskRecurrenceHandler{tasks: tasks, deduper: deduper, now: time.Now, logger: logger}
}

func (h *TaskRecurrenceHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p contract.TaskEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal TaskEventPayload", zap.Error(err))
		return err // 交给 Consumer 的重试/DLQ 机制处理
	}
	if p.TraceID != "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("event_id", p.EventID),
		zap.Int64("task_id", p.TaskID),
		zap.String("user_id", p.UserID),
	)

	if p.Recurrence == "" {
		log.Debug("Completed task is not recurring")
		return nil
	}
	if p.EventID != "" && h.deduper != nil && !h.deduper.AcquireOnce(ctx, recurrenceHandlerName, p.EventID) {
		return nil
	}

	next, err := h.rollover(ctx, p)
	if err != nil {
		if p.EventID != "" && h.deduper != nil {
			h.deduper.Release(ctx, recurrenceHandlerName, p.EventID)
		}
		log.Error("Failed to create next occurrence", zap.Error(err))
		return err
	}
	if next == nil {
		return nil
	}

	metrics.IncrementTaskGeneration("recurrence")
	log.Info("Next occurrence created",
		zap.Int64("next_task_id", next.ID),
		zap.Timep("due_date", next.DueDate),
	)
	return nil
}

func (h *TaskRecurrenceHandler) rollover(ctx context.Context, p contract.TaskEventPayload) (*model.Task, error) {
	done, err := h.tasks.GetTask(ctx, p.UserID, p.TaskID)
	if errors.Is(err, repository.ErrNotFound) {
		// deleted after completion: nothing to roll over
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load completed task: %w", err)
	}
	if done.Recurrence == nil || *done.Recurrence == "" {
		return nil, nil
	}

	now := h.now()
	base := p.OccurredAt
	if done.DueDate != nil {
		base = *done.DueDate
	}
	if base.IsZero() {
		base = now
	}
	due, err := taskstore.NextOccurrenceAfter(*done.Recurrence, base, now)
	if err != nil {
		// a bad descriptor will not get better on retry
		h.logger.Warn("Unusable recurrence on completed task",
			zap.Int64("task_id", done.ID),
			zap.String("recurrence", *done.Recurrence),
			zap.Error(err),
		)
		return nil, nil
	}

	next := &model.Task{
		UserID:      done.UserID,
		Title:       done.Title,
		Description: done.Description,
		Priority:    done.Priority,
		DueDate:     &due,
		Recurrence:  done.Recurrence,
	}
	if done.ReminderAt != nil && done.DueDate != nil {
		// keep the reminder's lead time
		reminder := due.Add(done.ReminderAt.Sub(*done.DueDate))
		next.ReminderAt = &reminder
	}
	return h.tasks.CreateTask(ctx, next, done.Tags)
}
