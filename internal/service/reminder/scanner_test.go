package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contract "todoagent/contracts/mq"
	"todoagent/internal/model"
	"todoagent/internal/repository/memory"
)

func TestScanner_Scan(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

	t.Run("Should claim each due reminder once and emit an event", func(t *testing.T) {
		var (
			mu     sync.Mutex
			events []contract.TaskEventPayload
		)
		store := memory.New(memory.WithEventSink(func(_ context.Context, key string, p contract.TaskEventPayload) {
			if key == contract.RoutingTaskReminderDue {
				mu.Lock()
				events = append(events, p)
				mu.Unlock()
			}
		}))

		past := now.Add(-time.Minute)
		future := now.Add(time.Hour)
		for i, at := range []*time.Time{&past, &past, &past, &future, nil} {
			_, err := store.CreateTask(ctx, &model.Task{
				UserID:     "u1",
				Title:      "t" + string(rune('a'+i)),
				Priority:   model.PriorityMedium,
				ReminderAt: at,
			}, nil)
			require.NoError(t, err)
		}

		s := NewScanner(store, 2, nil)
		s.now = func() time.Time { return now }

		n, err := s.Scan(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Len(t, events, 3)

		n, err = s.Scan(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Should surface repository errors", func(t *testing.T) {
		s := NewScanner(failingClaimer{}, 10, nil)
		_, err := s.Scan(ctx)
		assert.Error(t, err)
	})
}

type failingClaimer struct{}

func (failingClaimer) ClaimDueReminders(context.Context, time.Time, int) ([]*model.Task, error) {
	return nil, errors.New("db down")
}

func TestScheduler_Add(t *testing.T) {
	t.Run("Should reject invalid specs", func(t *testing.T) {
		s := NewScheduler(nil, nil)
		_, err := s.Add(context.Background(), "bad", "not a spec", 0, func(context.Context) error { return nil })
		assert.Error(t, err)
	})

	t.Run("Should run jobs on @every specs", func(t *testing.T) {
		s := NewScheduler(time.UTC, nil)
		ran := make(chan struct{}, 1)
		_, err := s.Add(context.Background(), "tick", "@every 1s", time.Second, func(context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		})
		require.NoError(t, err)
		s.Start()
		defer s.Stop()

		select {
		case <-ran:
		case <-time.After(3 * time.Second):
			t.Fatal("job did not run")
		}
	})
}
