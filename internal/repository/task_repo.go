package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	contract "todoagent/contracts/mq"
	"todoagent/internal/model"
	"todoagent/pkg/outbox"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var taskColumns = []string{
	"id", "user_id", "title", "description", "completed", "priority",
	"due_date", "reminder_at", "reminder_sent", "recurrence", "parent_id",
	"created_at", "updated_at",
}

const priorityRankExpr = "CASE priority WHEN 'low' THEN 1 WHEN 'medium' THEN 2 WHEN 'high' THEN 3 WHEN 'urgent' THEN 4 ELSE 0 END"

type TaskRepository struct {
	db     DBInterface
	logger *zap.Logger
}

func NewTaskRepository(db DBInterface, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

// CreateTask inserts t, resolves or creates its tags and enqueues task.created
// in one transaction.
func (r *TaskRepository) CreateTask(ctx context.Context, t *model.Task, tags []string) (*model.Task, error) {
	r.logger.Debug("Inserting task",
		zap.String("user_id", t.UserID),
		zap.String("title", t.Title),
		zap.Int("tag_count", len(tags)),
	)

	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		query, args, err := psql.Insert("tasks").
			Columns("user_id", "title", "description", "completed", "priority",
				"due_date", "reminder_at", "recurrence", "parent_id").
			Values(t.UserID, t.Title, t.Description, t.Completed, string(t.Priority),
				t.DueDate, t.ReminderAt, t.Recurrence, t.ParentID).
			Suffix("RETURNING id, reminder_sent, created_at, updated_at").
			ToSql()
		if err != nil {
			return fmt.Errorf("building insert query: %w", err)
		}
		if err := tx.QueryRow(ctx, query, args...).Scan(&t.ID, &t.ReminderSent, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return fmt.Errorf("inserting task: %w", err)
		}

		t.Tags, err = attachTags(ctx, tx, t.UserID, t.ID, tags)
		if err != nil {
			return err
		}

		return outbox.Enqueue(ctx, tx, contract.AggregateTask, t.ID, contract.RoutingTaskCreated, NewTaskEvent(ctx, t))
	})
	if err != nil {
		r.logger.Error("Failed to insert task",
			zap.Error(err),
			zap.String("user_id", t.UserID),
		)
		return nil, err
	}

	r.logger.Info("Task inserted successfully",
		zap.Int64("task_id", t.ID),
		zap.String("user_id", t.UserID),
	)
	return t, nil
}

func (r *TaskRepository) GetTask(ctx context.Context, userID string, id int64) (*model.Task, error) {
	task, err := getTask(ctx, r.db, userID, id, false)
	if err != nil {
		return nil, err
	}
	if err := loadTags(ctx, r.db, []*model.Task{task}); err != nil {
		return nil, err
	}
	return task, nil
}

func (r *TaskRepository) ListTasks(ctx context.Context, userID string, f model.TaskFilter) ([]*model.Task, error) {
	r.logger.Debug("Listing tasks for user",
		zap.String("user_id", userID),
		zap.String("status", string(f.Status)),
		zap.String("sort_by", string(f.SortBy)),
	)

	qb := psql.Select(taskColumns...).From("tasks").Where(squirrel.Eq{"user_id": userID})

	switch f.Status {
	case model.StatusPending:
		qb = qb.Where(squirrel.Eq{"completed": false})
	case model.StatusCompleted:
		qb = qb.Where(squirrel.Eq{"completed": true})
	}
	if f.Priority != nil {
		qb = qb.Where(squirrel.Eq{"priority": string(*f.Priority)})
	}
	if len(f.Tags) > 0 {
		lowered := make([]string, len(f.Tags))
		for i, name := range f.Tags {
			lowered[i] = strings.ToLower(name)
		}
		qb = qb.Where(`id IN (SELECT tt.task_id FROM task_tags tt JOIN tags tg ON tg.id = tt.tag_id
			WHERE tg.user_id = ? AND lower(tg.name) = ANY(?))`, userID, lowered)
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(f.Search) + "%"
		qb = qb.Where(squirrel.Or{
			squirrel.ILike{"title": pattern},
			squirrel.ILike{"description": pattern},
		})
	}
	qb = qb.OrderBy(orderClauses(f.SortBy, f.SortOrder)...)

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var tasks []*model.Task
	if err := pgxscan.Select(ctx, r.db, &tasks, query, args...); err != nil {
		r.logger.Error("Failed to query tasks",
			zap.Error(err),
			zap.String("user_id", userID),
		)
		return nil, fmt.Errorf("scanning tasks: %w", err)
	}
	if err := loadTags(ctx, r.db, tasks); err != nil {
		return nil, err
	}

	r.logger.Info("Tasks listed successfully",
		zap.String("user_id", userID),
		zap.Int("count", len(tasks)),
	)
	return tasks, nil
}

func (r *TaskRepository) UpdateTask(ctx context.Context, userID string, id int64, p model.TaskPatch) (*model.Task, error) {
	r.logger.Debug("Updating task",
		zap.String("user_id", userID),
		zap.Int64("task_id", id),
	)

	var updated *model.Task
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		before, err := getTask(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}

		ub := psql.Update("tasks").
			Set("updated_at", squirrel.Expr("NOW()")).
			Where(squirrel.Eq{"id": id, "user_id": userID})
		ub = applyPatch(ub, p)

		query, args, err := ub.Suffix("RETURNING " + strings.Join(taskColumns, ", ")).ToSql()
		if err != nil {
			return fmt.Errorf("building update query: %w", err)
		}
		updated = &model.Task{}
		if err := pgxscan.Get(ctx, tx, updated, query, args...); err != nil {
			return fmt.Errorf("updating task: %w", err)
		}

		if p.ReplaceTags {
			if _, err := tx.Exec(ctx, `DELETE FROM task_tags WHERE task_id = $1`, id); err != nil {
				return fmt.Errorf("clearing task tags: %w", err)
			}
			if updated.Tags, err = attachTags(ctx, tx, userID, id, p.Tags); err != nil {
				return err
			}
		} else if err := loadTags(ctx, tx, []*model.Task{updated}); err != nil {
			return err
		}

		if err := outbox.Enqueue(ctx, tx, contract.AggregateTask, id, contract.RoutingTaskUpdated, NewTaskEvent(ctx, updated)); err != nil {
			return err
		}
		if !before.Completed && updated.Completed {
			return outbox.Enqueue(ctx, tx, contract.AggregateTask, id, contract.RoutingTaskCompleted, NewTaskEvent(ctx, updated))
		}
		return nil
	})
	if err != nil {
		r.logFailure("Failed to update task", err, userID, id)
		return nil, err
	}

	r.logger.Info("Task updated successfully",
		zap.String("user_id", userID),
		zap.Int64("task_id", id),
	)
	return updated, nil
}

// CompleteTask is idempotent; task.completed is only emitted on the transition.
func (r *TaskRepository) CompleteTask(ctx context.Context, userID string, id int64) (*model.Task, error) {
	r.logger.Debug("Marking task as completed",
		zap.String("user_id", userID),
		zap.Int64("task_id", id),
	)

	var task *model.Task
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		task, err = getTask(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}
		if err := loadTags(ctx, tx, []*model.Task{task}); err != nil {
			return err
		}
		if task.Completed {
			return nil
		}

		if err := tx.QueryRow(ctx,
			`UPDATE tasks SET completed = TRUE, updated_at = NOW() WHERE id = $1 AND user_id = $2 RETURNING updated_at`,
			id, userID,
		).Scan(&task.UpdatedAt); err != nil {
			return fmt.Errorf("completing task: %w", err)
		}
		task.Completed = true

		return outbox.Enqueue(ctx, tx, contract.AggregateTask, id, contract.RoutingTaskCompleted, NewTaskEvent(ctx, task))
	})
	if err != nil {
		r.logFailure("Failed to mark task as completed", err, userID, id)
		return nil, err
	}

	r.logger.Info("Task marked as completed",
		zap.String("user_id", userID),
		zap.Int64("task_id", id),
	)
	return task, nil
}

// DeleteTask hard-deletes the row; task_tags rows go with it via ON DELETE CASCADE.
func (r *TaskRepository) DeleteTask(ctx context.Context, userID string, id int64) (*model.Task, error) {
	r.logger.Debug("Deleting task",
		zap.String("user_id", userID),
		zap.Int64("task_id", id),
	)

	var task *model.Task
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		task, err = getTask(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}
		if err := loadTags(ctx, tx, []*model.Task{task}); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID); err != nil {
			return fmt.Errorf("deleting task: %w", err)
		}
		return outbox.Enqueue(ctx, tx, contract.AggregateTask, id, contract.RoutingTaskDeleted, NewTaskEvent(ctx, task))
	})
	if err != nil {
		r.logFailure("Failed to delete task", err, userID, id)
		return nil, err
	}

	r.logger.Info("Task deleted successfully",
		zap.String("user_id", userID),
		zap.Int64("task_id", id),
	)
	return task, nil
}

// ClaimDueReminders marks up to limit due reminders as sent and enqueues a
// task.reminder_due event for each. Concurrent workers skip each other's rows.
func (r *TaskRepository) ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]*model.Task, error) {
	var tasks []*model.Task
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		query, args, err := psql.Select(taskColumns...).From("tasks").
			Where(squirrel.Eq{"reminder_sent": false, "completed": false}).
			Where(squirrel.LtOrEq{"reminder_at": now}).
			OrderBy("reminder_at ASC", "id ASC").
			Limit(uint64(limit)).
			Suffix("FOR UPDATE SKIP LOCKED").
			ToSql()
		if err != nil {
			return fmt.Errorf("building reminder query: %w", err)
		}
		if err := pgxscan.Select(ctx, tx, &tasks, query, args...); err != nil {
			return fmt.Errorf("scanning due reminders: %w", err)
		}
		if len(tasks) == 0 {
			return nil
		}

		ids := make([]int64, len(tasks))
		for i, t := range tasks {
			ids[i] = t.ID
			t.ReminderSent = true
		}
		if _, err := tx.Exec(ctx, `UPDATE tasks SET reminder_sent = TRUE WHERE id = ANY($1)`, ids); err != nil {
			return fmt.Errorf("marking reminders sent: %w", err)
		}
		if err := loadTags(ctx, tx, tasks); err != nil {
			return err
		}
		for _, t := range tasks {
			if err := outbox.Enqueue(ctx, tx, contract.AggregateTask, t.ID, contract.RoutingTaskReminderDue, NewTaskEvent(ctx, t)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to claim due reminders", zap.Error(err))
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) logFailure(msg string, err error, userID string, id int64) {
	if errors.Is(err, ErrNotFound) {
		r.logger.Info("Task not found",
			zap.String("user_id", userID),
			zap.Int64("task_id", id),
		)
		return
	}
	r.logger.Error(msg,
		zap.Error(err),
		zap.String("user_id", userID),
		zap.Int64("task_id", id),
	)
}

func getTask(ctx context.Context, q pgxscan.Querier, userID string, id int64, forUpdate bool) (*model.Task, error) {
	qb := psql.Select(taskColumns...).From("tasks").Where(squirrel.Eq{"id": id, "user_id": userID})
	if forUpdate {
		qb = qb.Suffix("FOR UPDATE")
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var task model.Task
	if err := pgxscan.Get(ctx, q, &task, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scanning task: %w", err)
	}
	return &task, nil
}

type taskTagRow struct {
	TaskID int64  `db:"task_id"`
	Name   string `db:"name"`
}

// loadTags fills Tags on every task with one query.
func loadTags(ctx context.Context, q pgxscan.Querier, tasks []*model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	byID := make(map[int64]*model.Task, len(tasks))
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		t.Tags = []string{}
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	query, args, err := psql.Select("tt.task_id", "tg.name").
		From("task_tags tt").
		Join("tags tg ON tg.id = tt.tag_id").
		Where(squirrel.Eq{"tt.task_id": ids}).
		OrderBy("tt.task_id", "lower(tg.name)").
		ToSql()
	if err != nil {
		return fmt.Errorf("building tag query: %w", err)
	}

	var rows []taskTagRow
	if err := pgxscan.Select(ctx, q, &rows, query, args...); err != nil {
		return fmt.Errorf("scanning task tags: %w", err)
	}
	for _, row := range rows {
		if t, ok := byID[row.TaskID]; ok {
			t.Tags = append(t.Tags, row.Name)
		}
	}
	return nil
}

type tagRef struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// attachTags creates missing tags for the user, links them to taskID and
// returns the stored names sorted the way loadTags reads them back.
func attachTags(ctx context.Context, tx pgx.Tx, userID string, taskID int64, names []string) ([]string, error) {
	if len(names) == 0 {
		return []string{}, nil
	}

	ins := psql.Insert("tags").Columns("user_id", "name")
	lowered := make([]string, len(names))
	for i, name := range names {
		ins = ins.Values(userID, name)
		lowered[i] = strings.ToLower(name)
	}
	query, args, err := ins.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building tag insert: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("inserting tags: %w", err)
	}

	var refs []tagRef
	if err := pgxscan.Select(ctx, tx, &refs,
		`SELECT id, name FROM tags WHERE user_id = $1 AND lower(name) = ANY($2)`,
		userID, lowered,
	); err != nil {
		return nil, fmt.Errorf("resolving tags: %w", err)
	}
	byLower := make(map[string]tagRef, len(refs))
	for _, ref := range refs {
		byLower[strings.ToLower(ref.Name)] = ref
	}

	link := psql.Insert("task_tags").Columns("task_id", "tag_id")
	resolved := make([]string, 0, len(names))
	for _, l := range lowered {
		ref, ok := byLower[l]
		if !ok {
			return nil, fmt.Errorf("tag %q was not resolved", l)
		}
		link = link.Values(taskID, ref.ID)
		resolved = append(resolved, ref.Name)
	}
	query, args, err = link.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building task_tags insert: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("linking tags: %w", err)
	}
	sort.Slice(resolved, func(i, j int) bool { return strings.ToLower(resolved[i]) < strings.ToLower(resolved[j]) })
	return resolved, nil
}

func applyPatch(ub squirrel.UpdateBuilder, p model.TaskPatch) squirrel.UpdateBuilder {
	if p.Title != nil {
		ub = ub.Set("title", *p.Title)
	}
	switch {
	case p.ClearDescription:
		ub = ub.Set("description", nil)
	case p.Description != nil:
		ub = ub.Set("description", *p.Description)
	}
	if p.Completed != nil {
		ub = ub.Set("completed", *p.Completed)
	}
	if p.Priority != nil {
		ub = ub.Set("priority", string(*p.Priority))
	}
	switch {
	case p.ClearDueDate:
		ub = ub.Set("due_date", nil)
	case p.DueDate != nil:
		ub = ub.Set("due_date", *p.DueDate)
	}
	switch {
	case p.ClearReminderAt:
		ub = ub.Set("reminder_at", nil).Set("reminder_sent", false)
	case p.ReminderAt != nil:
		ub = ub.Set("reminder_at", *p.ReminderAt).Set("reminder_sent", false)
	}
	switch {
	case p.ClearRecurrence:
		ub = ub.Set("recurrence", nil)
	case p.Recurrence != nil:
		ub = ub.Set("recurrence", *p.Recurrence)
	}
	switch {
	case p.ClearParent:
		ub = ub.Set("parent_id", nil)
	case p.ParentID != nil:
		ub = ub.Set("parent_id", *p.ParentID)
	}
	return ub
}

func orderClauses(field model.SortField, order model.SortOrder) []string {
	dir := "DESC"
	if order == model.SortAsc {
		dir = "ASC"
	}
	var primary string
	switch field {
	case model.SortUpdatedAt:
		primary = "updated_at " + dir
	case model.SortDueDate:
		primary = "due_date " + dir + " NULLS LAST"
	case model.SortPriority:
		primary = priorityRankExpr + " " + dir
	case model.SortTitle:
		primary = "lower(title) " + dir
	default:
		primary = "created_at " + dir
	}
	return []string{primary, "id " + dir}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
