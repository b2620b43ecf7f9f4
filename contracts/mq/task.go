package mq

import "time"

// Routing keys published on the events exchange.
const (
	RoutingTaskCreated     = "task.created"
	RoutingTaskUpdated     = "task.updated"
	RoutingTaskCompleted   = "task.completed"
	RoutingTaskDeleted     = "task.deleted"
	RoutingTaskReminderDue = "task.reminder_due"
)

// AggregateTask is the outbox aggregate_type for task events.
const AggregateTask = "task"

// TaskEventPayload is shared by every task.* routing key.
type TaskEventPayload struct {
	EventID    string     `json:"event_id"`
	TraceID    string     `json:"trace_id,omitempty"`
	TaskID     int64      `json:"task_id"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title"`
	Priority   string     `json:"priority"`
	Completed  bool       `json:"completed"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	ReminderAt *time.Time `json:"reminder_at,omitempty"`
	Recurrence string     `json:"recurrence,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}
