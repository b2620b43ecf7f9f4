//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"todoagent/internal/model"
)

func startPostgres(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("todo"),
		postgres.WithUsername("todo"),
		postgres.WithPassword("todo"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, ApplyMigrations(ctx, dsn))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresRepositories(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(ctx, t)
	tasks := NewTaskRepository(pool, zap.NewNop())
	tags := NewTagRepository(pool, zap.NewNop())

	t.Run("Should round-trip a task with tags and cascade on delete", func(t *testing.T) {
		created, err := tasks.CreateTask(ctx, &model.Task{UserID: "u1", Title: "buy milk", Priority: model.PriorityHigh}, []string{"Errands", "home"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Errands", "home"}, created.Tags)

		list, err := tasks.ListTasks(ctx, "u1", model.TaskFilter{Tags: []string{"errands"}})
		require.NoError(t, err)
		require.Len(t, list, 1)

		_, err = tasks.DeleteTask(ctx, "u1", created.ID)
		require.NoError(t, err)

		_, err = tasks.GetTask(ctx, "u1", created.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		all, err := tags.ListTags(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Zero(t, all[0].TaskCount)
	})

	t.Run("Should enforce tag uniqueness per user only", func(t *testing.T) {
		_, err := tags.CreateTag(ctx, &model.Tag{UserID: "u2", Name: "Work"})
		require.NoError(t, err)
		_, err = tags.CreateTag(ctx, &model.Tag{UserID: "u2", Name: "work"})
		assert.ErrorIs(t, err, ErrConflict)
		_, err = tags.CreateTag(ctx, &model.Tag{UserID: "u3", Name: "work"})
		assert.NoError(t, err)
	})

	t.Run("Should sort by priority rank", func(t *testing.T) {
		for _, p := range []model.Priority{model.PriorityUrgent, model.PriorityLow, model.PriorityHigh} {
			_, err := tasks.CreateTask(ctx, &model.Task{UserID: "u4", Title: string(p), Priority: p}, nil)
			require.NoError(t, err)
		}
		list, err := tasks.ListTasks(ctx, "u4", model.TaskFilter{SortBy: model.SortPriority, SortOrder: model.SortAsc})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, model.PriorityLow, list[0].Priority)
		assert.Equal(t, model.PriorityUrgent, list[2].Priority)
	})

	t.Run("Should claim reminders once and enqueue events", func(t *testing.T) {
		past := time.Now().Add(-time.Minute)
		_, err := tasks.CreateTask(ctx, &model.Task{UserID: "u5", Title: "ping", Priority: model.PriorityLow, ReminderAt: &past}, nil)
		require.NoError(t, err)

		claimed, err := tasks.ClaimDueReminders(ctx, time.Now(), 10)
		require.NoError(t, err)
		assert.Len(t, claimed, 1)

		claimed, err = tasks.ClaimDueReminders(ctx, time.Now(), 10)
		require.NoError(t, err)
		assert.Empty(t, claimed)

		var n int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE routing_key = 'task.reminder_due'`).Scan(&n))
		assert.Equal(t, 1, n)
	})
}
