package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"todoagent/internal/model"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func taskRows(mock pgxmock.PgxPoolIface, id int64, userID string, completed bool) *pgxmock.Rows {
	now := time.Now()
	desc := "details"
	rec := "daily"
	parent := int64(1)
	return mock.NewRows(taskColumns).AddRow(
		id, userID, "buy milk", &desc, completed, model.PriorityMedium,
		&now, &now, false, &rec, &parent,
		now, now,
	)
}

func TestTaskRepository_GetTask(t *testing.T) {
	t.Run("Should return the task with its tags", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery("SELECT (.+) FROM tasks WHERE id = \\$1 AND user_id = \\$2").
			WithArgs(int64(5), "u1").
			WillReturnRows(taskRows(mock, 5, "u1", false))
		mock.ExpectQuery("SELECT tt.task_id, tg.name FROM task_tags tt JOIN tags tg").
			WithArgs(int64(5)).
			WillReturnRows(mock.NewRows([]string{"task_id", "name"}).AddRow(int64(5), "errands"))

		task, err := NewTaskRepository(mock, zap.NewNop()).GetTask(context.Background(), "u1", 5)
		require.NoError(t, err)
		assert.Equal(t, "buy milk", task.Title)
		assert.Equal(t, []string{"errands"}, task.Tags)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should map missing rows to ErrNotFound", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery("SELECT (.+) FROM tasks").
			WithArgs(int64(9), "u2").
			WillReturnError(pgx.ErrNoRows)

		_, err := NewTaskRepository(mock, zap.NewNop()).GetTask(context.Background(), "u2", 9)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTaskRepository_CompleteTask(t *testing.T) {
	t.Run("Should not emit again for an already completed task", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM tasks WHERE (.+) FOR UPDATE").
			WithArgs(int64(5), "u1").
			WillReturnRows(taskRows(mock, 5, "u1", true))
		mock.ExpectQuery("SELECT tt.task_id, tg.name").
			WithArgs(int64(5)).
			WillReturnRows(mock.NewRows([]string{"task_id", "name"}))
		mock.ExpectCommit()

		task, err := NewTaskRepository(mock, zap.NewNop()).CompleteTask(context.Background(), "u1", 5)
		require.NoError(t, err)
		assert.True(t, task.Completed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should complete and enqueue task.completed in the same transaction", func(t *testing.T) {
		mock := newMock(t)
		now := time.Now()
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM tasks WHERE (.+) FOR UPDATE").
			WithArgs(int64(5), "u1").
			WillReturnRows(taskRows(mock, 5, "u1", false))
		mock.ExpectQuery("SELECT tt.task_id, tg.name").
			WithArgs(int64(5)).
			WillReturnRows(mock.NewRows([]string{"task_id", "name"}))
		mock.ExpectQuery("UPDATE tasks SET completed = TRUE").
			WithArgs(int64(5), "u1").
			WillReturnRows(mock.NewRows([]string{"updated_at"}).AddRow(now))
		mock.ExpectQuery("INSERT INTO outbox_events").
			WithArgs("task", pgxmock.AnyArg(), "task.completed", pgxmock.AnyArg(), "pending").
			WillReturnRows(mock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(1), now, now))
		mock.ExpectCommit()

		task, err := NewTaskRepository(mock, zap.NewNop()).CompleteTask(context.Background(), "u1", 5)
		require.NoError(t, err)
		assert.True(t, task.Completed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should roll back when the task belongs to someone else", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM tasks").
			WithArgs(int64(5), "intruder").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := NewTaskRepository(mock, zap.NewNop()).CompleteTask(context.Background(), "intruder", 5)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTaskRepository_ListTasks(t *testing.T) {
	t.Run("Should scope by user and apply filters", func(t *testing.T) {
		mock := newMock(t)
		high := model.PriorityHigh
		mock.ExpectQuery(`SELECT (.+) FROM tasks WHERE user_id = \$1 AND completed = \$2 AND priority = \$3 AND \(title ILIKE \$4 OR description ILIKE \$5\) ORDER BY`).
			WithArgs("u1", false, "high", `%50\%%`, `%50\%%`).
			WillReturnRows(mock.NewRows(taskColumns))

		tasks, err := NewTaskRepository(mock, zap.NewNop()).ListTasks(context.Background(), "u1", model.TaskFilter{
			Status:   model.StatusPending,
			Priority: &high,
			Search:   "50%",
			SortBy:   model.SortPriority,
		})
		require.NoError(t, err)
		assert.Empty(t, tasks)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTagRepository(t *testing.T) {
	t.Run("Should map unique violations to ErrConflict", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery("INSERT INTO tags").
			WithArgs("u1", "work", pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		_, err := NewTagRepository(mock, zap.NewNop()).CreateTag(context.Background(), &model.Tag{UserID: "u1", Name: "work"})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("Should return not found when deleting a foreign tag", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery("DELETE FROM tags WHERE id = \\$1 AND user_id = \\$2 RETURNING").
			WithArgs(int64(3), "u2").
			WillReturnError(pgx.ErrNoRows)

		_, err := NewTagRepository(mock, zap.NewNop()).DeleteTag(context.Background(), "u2", 3)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Should list tags with usage counts", func(t *testing.T) {
		mock := newMock(t)
		color := "#ff0000"
		mock.ExpectQuery("SELECT (.+) FROM tags t LEFT JOIN task_tags tt").
			WithArgs("u1").
			WillReturnRows(mock.NewRows([]string{"id", "user_id", "name", "color", "created_at", "task_count"}).
				AddRow(int64(1), "u1", "home", &color, time.Now(), 2))

		tags, err := NewTagRepository(mock, zap.NewNop()).ListTags(context.Background(), "u1")
		require.NoError(t, err)
		require.Len(t, tags, 1)
		assert.Equal(t, 2, tags[0].TaskCount)
	})
}

func TestConversationRepository_ListMessages(t *testing.T) {
	mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM \(SELECT (.+) FROM messages WHERE conversation_id = \$1 ORDER BY created_at DESC, id DESC LIMIT 2\) AS recent ORDER BY created_at ASC, id ASC`).
		WithArgs(int64(4)).
		WillReturnRows(mock.NewRows([]string{"id", "conversation_id", "role", "content", "created_at"}).
			AddRow(int64(2), int64(4), model.RoleUser, "hi", now).
			AddRow(int64(3), int64(4), model.RoleAssistant, "hello", now))

	msgs, err := NewConversationRepository(mock, zap.NewNop()).ListMessages(context.Background(), 4, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderClauses(t *testing.T) {
	assert.Equal(t, []string{"created_at DESC", "id DESC"}, orderClauses("", ""))
	assert.Equal(t, []string{"due_date ASC NULLS LAST", "id ASC"}, orderClauses(model.SortDueDate, model.SortAsc))
	assert.Contains(t, orderClauses(model.SortPriority, model.SortDesc)[0], "CASE priority")
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%\_done\\`, escapeLike(`100%_done\`))
}
