package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReplayService re-queues events that exhausted their publish retries.
type ReplayService struct {
	repo   *Repository
	logger *zap.Logger
}

func NewReplayService(repo *Repository, logger *zap.Logger) *ReplayService {
	return &ReplayService{repo: repo, logger: logger}
}

// ReplayFailed resets up to limit failed events to pending; the dispatcher
// picks them up on its next tick.
func (s *ReplayService) ReplayFailed(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed events: %w", err)
	}

	replayed := 0
	for _, event := range events {
		if err := s.repo.ResetForReplay(ctx, event.ID); err != nil {
			s.logger.Error("Failed to replay outbox event",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		replayed++
	}

	if replayed > 0 {
		s.logger.Info("Replayed failed outbox events", zap.Int("count", replayed))
	}
	return replayed, nil
}
