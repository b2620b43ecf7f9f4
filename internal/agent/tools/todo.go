package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"todoagent/internal/model"
	"todoagent/internal/service/taskstore"
)

// TaskService is the part of taskstore.Service the todo tools call.
type TaskService interface {
	Add(ctx context.Context, userID string, in taskstore.AddTaskInput) (*model.Task, error)
	List(ctx context.Context, userID string, in taskstore.ListTasksInput) (*taskstore.TaskList, error)
	Get(ctx context.Context, userID string, id int64) (*model.Task, error)
	Complete(ctx context.Context, userID string, id int64) (*model.Task, error)
	Delete(ctx context.Context, userID string, id int64) (*model.Task, error)
	Update(ctx context.Context, userID string, id int64, in taskstore.UpdateTaskInput) (*model.Task, error)
	CreateTag(ctx context.Context, userID string, in taskstore.CreateTagInput) (*model.Tag, error)
	ListTags(ctx context.Context, userID string) ([]*model.Tag, error)
	DeleteTag(ctx context.Context, userID string, id int64) (*model.Tag, error)
}

const (
	AddTask      = "add_task"
	ListTasks    = "list_tasks"
	GetTask      = "get_task"
	CompleteTask = "complete_task"
	DeleteTask   = "delete_task"
	UpdateTask   = "update_task"
	CreateTag    = "create_tag"
	ListTags     = "list_tags"
	DeleteTag    = "delete_tag"
)

var priorityValues = []string{"low", "medium", "high", "urgent"}

type taskIDArgs struct {
	TaskID int64 `json:"task_id"`
}

type tagIDArgs struct {
	TagID int64 `json:"tag_id"`
}

type updateArgs struct {
	TaskID int64 `json:"task_id"`
	taskstore.UpdateTaskInput
}

// NewTodoRegistry registers the task and tag tools against svc.
func NewTodoRegistry(svc TaskService) *Registry {
	r := NewRegistry()

	r.MustRegister(addTaskDef(), func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		in, err := decodeArgs[taskstore.AddTaskInput](raw)
		if err != nil {
			return nil, err
		}
		return svc.Add(ctx, userID, in)
	})

	r.MustRegister(listTasksDef(), func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		in, err := decodeArgs[taskstore.ListTasksInput](raw)
		if err != nil {
			return nil, err
		}
		return svc.List(ctx, userID, in)
	})

	r.MustRegister(taskIDTool(GetTask, "Get one task by id."), taskIDHandler(svc.Get))
	r.MustRegister(taskIDTool(CompleteTask, "Mark a task as completed."), taskIDHandler(svc.Complete))
	r.MustRegister(taskIDTool(DeleteTask, "Permanently delete a task. Its tags are kept."), taskIDHandler(svc.Delete))

	r.MustRegister(updateTaskDef(), func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		in, err := decodeArgs[updateArgs](raw)
		if err != nil {
			return nil, err
		}
		if in.TaskID <= 0 {
			return nil, fmt.Errorf("%w: task_id is required", ErrInvalidArgs)
		}
		return svc.Update(ctx, userID, in.TaskID, in.UpdateTaskInput)
	})

	r.MustRegister(createTagDef(), func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		in, err := decodeArgs[taskstore.CreateTagInput](raw)
		if err != nil {
			return nil, err
		}
		return svc.CreateTag(ctx, userID, in)
	})

	r.MustRegister(mcp.NewTool(ListTags,
		mcp.WithDescription("List the user's tags with how many tasks carry each."),
	), func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		if _, err := decodeArgs[struct{}](raw); err != nil {
			return nil, err
		}
		tags, err := svc.ListTags(ctx, userID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tags": tags, "count": len(tags)}, nil
	})

	r.MustRegister(mcp.NewTool(DeleteTag,
		mcp.WithDescription("Delete a tag. Tasks that carried it are kept."),
		mcp.WithNumber("tag_id", mcp.Required(), mcp.Description("Tag id"), mcp.Min(1)),
	), func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		in, err := decodeArgs[tagIDArgs](raw)
		if err != nil {
			return nil, err
		}
		if in.TagID <= 0 {
			return nil, fmt.Errorf("%w: tag_id is required", ErrInvalidArgs)
		}
		return svc.DeleteTag(ctx, userID, in.TagID)
	})

	return r
}

func taskIDHandler(fn func(ctx context.Context, userID string, id int64) (*model.Task, error)) Handler {
	return func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		in, err := decodeArgs[taskIDArgs](raw)
		if err != nil {
			return nil, err
		}
		if in.TaskID <= 0 {
			return nil, fmt.Errorf("%w: task_id is required", ErrInvalidArgs)
		}
		return fn(ctx, userID, in.TaskID)
	}
}

func taskIDTool(name, desc string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription(desc),
		mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task id"), mcp.Min(1)),
	)
}

func tagsProperty(desc string) mcp.ToolOption {
	return mcp.WithArray("tags",
		mcp.Description(desc),
		mcp.Items(map[string]any{"type": "string", "maxLength": 50}),
	)
}

func addTaskDef() mcp.Tool {
	return mcp.NewTool(AddTask,
		mcp.WithDescription("Create a task for the user. Missing tags are created."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short task title"), mcp.MaxLength(200)),
		mcp.WithString("description", mcp.Description("Optional details"), mcp.MaxLength(1000)),
		mcp.WithString("priority", mcp.Description("Defaults to medium"), mcp.Enum(priorityValues...)),
		mcp.WithString("due_date", mcp.Description("ISO 8601 date or date-time, e.g. 2026-03-02 or 2026-03-02T17:00:00Z")),
		mcp.WithString("reminder_at", mcp.Description("ISO 8601 date-time for a reminder")),
		mcp.WithString("recurrence", mcp.Description("daily, weekly <weekday>, monthly <day>, yearly, @weekly or a 5-field cron expression")),
		mcp.WithNumber("parent_id", mcp.Description("Id of a parent task"), mcp.Min(1)),
		tagsProperty("Tag names"),
	)
}

func listTasksDef() mcp.Tool {
	return mcp.NewTool(ListTasks,
		mcp.WithDescription("List the user's tasks with optional filters and sorting. Returns every match and the count."),
		mcp.WithString("status", mcp.Description("Defaults to all"), mcp.Enum("all", "pending", "completed")),
		mcp.WithString("priority", mcp.Enum(priorityValues...)),
		tagsProperty("Return tasks carrying any of these tags"),
		mcp.WithString("search", mcp.Description("Case-insensitive text to find in title or description")),
		mcp.WithString("sort_by", mcp.Description("Defaults to created_at"),
			mcp.Enum("created_at", "updated_at", "due_date", "priority", "title")),
		mcp.WithString("sort_order", mcp.Description("Defaults to desc"), mcp.Enum("asc", "desc")),
	)
}

func updateTaskDef() mcp.Tool {
	return mcp.NewTool(UpdateTask,
		mcp.WithDescription("Change some fields of a task. Omitted fields stay as they are. "+
			"An empty string clears description, due_date, reminder_at or recurrence. "+
			"tags replaces the task's tags entirely."),
		mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task id"), mcp.Min(1)),
		mcp.WithString("title", mcp.MaxLength(200)),
		mcp.WithString("description", mcp.MaxLength(1000)),
		mcp.WithBoolean("completed"),
		mcp.WithString("priority", mcp.Enum(priorityValues...)),
		mcp.WithString("due_date"),
		mcp.WithString("reminder_at"),
		mcp.WithString("recurrence"),
		mcp.WithNumber("parent_id", mcp.Description("0 removes the parent"), mcp.Min(0)),
		tagsProperty("New complete list of tag names"),
	)
}

func createTagDef() mcp.Tool {
	return mcp.NewTool(CreateTag,
		mcp.WithDescription("Create a tag. Names are unique per user, ignoring case."),
		mcp.WithString("name", mcp.Required(), mcp.MaxLength(50)),
		mcp.WithString("color", mcp.Description("Hex color like #1e90ff")),
	)
}
