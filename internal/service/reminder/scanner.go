// Package reminder claims tasks whose reminder time has passed. Claiming marks
// them sent and emits task.reminder_due in the same write.
package reminder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"todoagent/internal/model"
)

const defaultBatch = 100

type Claimer interface {
	ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]*model.Task, error)
}

type Scanner struct {
	repo   Claimer
	batch  int
	now    func() time.Time
	logger *zap.Logger
}

func NewScanner(repo Claimer, batch int, logger *zap.Logger) *Scanner {
	if batch <= 0 {
		batch = defaultBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{repo: repo, batch: batch, now: time.Now, logger: logger}
}

// Scan drains due reminders batch by batch and returns how many it claimed.
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	total := 0
	now := s.now()
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		claimed, err := s.repo.ClaimDueReminders(ctx, now, s.batch)
		if err != nil {
			s.logger.Error("Failed to claim due reminders", zap.Error(err), zap.Int("claimed_so_far", total))
			return total, err
		}
		for _, t := range claimed {
			s.logger.Debug("Reminder due",
				zap.Int64("task_id", t.ID),
				zap.String("user_id", t.UserID),
			)
		}
		total += len(claimed)
		if len(claimed) < s.batch {
			break
		}
	}
	if total > 0 {
		s.logger.Info("Reminders claimed", zap.Int("count", total))
	}
	return total, nil
}
