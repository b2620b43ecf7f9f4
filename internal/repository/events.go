package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	contract "todoagent/contracts/mq"
	"todoagent/internal/model"
	"todoagent/pkg/trace"
)

// NewTaskEvent snapshots t into the payload shared by every task.* event.
func NewTaskEvent(ctx context.Context, t *model.Task) contract.TaskEventPayload {
	p := contract.TaskEventPayload{
		EventID:    uuid.NewString(),
		TraceID:    trace.FromContext(ctx),
		TaskID:     t.ID,
		UserID:     t.UserID,
		Title:      t.Title,
		Priority:   string(t.Priority),
		Completed:  t.Completed,
		DueDate:    t.DueDate,
		ReminderAt: t.ReminderAt,
		Tags:       t.Tags,
		OccurredAt: time.Now().UTC(),
	}
	if t.Recurrence != nil {
		p.Recurrence = *t.Recurrence
	}
	return p
}
