package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	contract "todoagent/contracts/mq"
)

const reminderHandlerName = "task_reminder"

// Notifier delivers a reminder to the task owner.
type Notifier interface {
	Notify(ctx context.Context, userID, message string) error
}

// LogNotifier writes reminders to the log; the only delivery channel so far.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Notify(_ context.Context, userID, message string) error {
	n.Logger.Info("Reminder delivered", zap.String("user_id", userID), zap.String("message", message))
	return nil
}

// TaskReminderHandler consumes task.reminder_due.
type TaskReminderHandler struct {
	notifier Notifier
	deduper  Deduper
	logger   *zap.Logger
}

func NewTaskReminderHandler(notifier Notifier, deduper Deduper, logger *zap.Logger) *TaskReminderHandler {
	return &TaskReminderHandler{notifier: notifier, deduper: deduper, logger: logger}
}

func (h *TaskReminderHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p contract.TaskEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal TaskEventPayload", zap.Error(err))
		return err
	}
	if p.EventID != "" && h.deduper != nil && !h.deduper.AcquireOnce(ctx, reminderHandlerName, p.EventID) {
		return nil
	}

	msg := fmt.Sprintf("Reminder: %q", p.Title)
	if p.DueDate != nil {
		msg += " is due " + p.DueDate.Format("2006-01-02 15:04 MST")
	}
	if err := h.notifier.Notify(ctx, p.UserID, msg); err != nil {
		if p.EventID != "" && h.deduper != nil {
			h.deduper.Release(ctx, reminderHandlerName, p.EventID)
		}
		h.logger.Error("Failed to deliver reminder",
			zap.Int64("task_id", p.TaskID),
			zap.String("user_id", p.UserID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
