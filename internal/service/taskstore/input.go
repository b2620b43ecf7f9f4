package taskstore

import (
	"fmt"
	"strings"
	"time"

	"todoagent/internal/model"
)

// AddTaskInput is shared by the add_task tool and POST /api/tasks.
type AddTaskInput struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=1000"`
	Priority    string   `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	DueDate     *string  `json:"due_date,omitempty"`
	ReminderAt  *string  `json:"reminder_at,omitempty"`
	Recurrence  *string  `json:"recurrence,omitempty" validate:"omitempty,max=100"`
	ParentID    *int64   `json:"parent_id,omitempty" validate:"omitempty,gt=0"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,max=20,dive,required,max=50"`
}

// UpdateTaskInput: nil leaves a field alone. An empty string clears an
// optional text/date field; parent_id 0 clears the parent. Tags, when
// present, replace every association ([] removes them all).
type UpdateTaskInput struct {
	Title       *string   `json:"title,omitempty" validate:"omitempty,max=200"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=1000"`
	Completed   *bool     `json:"completed,omitempty"`
	Priority    *string   `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	DueDate     *string   `json:"due_date,omitempty"`
	ReminderAt  *string   `json:"reminder_at,omitempty"`
	Recurrence  *string   `json:"recurrence,omitempty" validate:"omitempty,max=100"`
	ParentID    *int64    `json:"parent_id,omitempty" validate:"omitempty,gte=0"`
	Tags        *[]string `json:"tags,omitempty" validate:"omitempty,max=20,dive,required,max=50"`
}

// ListTasksInput is the list_tasks query. Empty fields take the defaults
// status=all, sort_by=created_at, sort_order=desc.
type ListTasksInput struct {
	Status    string   `json:"status,omitempty" validate:"omitempty,oneof=all pending completed"`
	Priority  string   `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	Tags      []string `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=50"`
	Search    string   `json:"search,omitempty" validate:"omitempty,max=200"`
	SortBy    string   `json:"sort_by,omitempty" validate:"omitempty,oneof=created_at updated_at due_date priority title"`
	SortOrder string   `json:"sort_order,omitempty" validate:"omitempty,oneof=asc desc"`
}

type CreateTagInput struct {
	Name  string  `json:"name" validate:"required,max=50"`
	Color *string `json:"color,omitempty" validate:"omitempty,len=7,hexcolor"`
}

type TaskList struct {
	Tasks []*model.Task `json:"tasks"`
	Count int           `json:"count"`
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime accepts RFC 3339 or a local date[-time]; values without an
// offset are read in loc.
func parseTime(field, s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalid("%s must be an ISO 8601 date or date-time, got %q", field, s)
}

// trimPtr trims in place and reports whether the value is blank.
func trimPtr(p *string) bool {
	if p == nil {
		return true
	}
	*p = strings.TrimSpace(*p)
	return *p == ""
}

// normalizeTags trims and drops blanks and case-insensitive duplicates,
// keeping the first spelling.
func normalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, name := range in {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}

func (in *AddTaskInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	if trimPtr(in.Description) {
		in.Description = nil
	}
	in.Priority = strings.ToLower(strings.TrimSpace(in.Priority))
	if trimPtr(in.DueDate) {
		in.DueDate = nil
	}
	if trimPtr(in.ReminderAt) {
		in.ReminderAt = nil
	}
	if trimPtr(in.Recurrence) {
		in.Recurrence = nil
	}
	in.Tags = normalizeTags(in.Tags)
}

func (in *UpdateTaskInput) normalize() {
	if in.Title != nil {
		*in.Title = strings.TrimSpace(*in.Title)
	}
	trimPtr(in.Description)
	if in.Priority != nil {
		*in.Priority = strings.ToLower(strings.TrimSpace(*in.Priority))
	}
	trimPtr(in.DueDate)
	trimPtr(in.ReminderAt)
	trimPtr(in.Recurrence)
	if in.Tags != nil {
		tags := normalizeTags(*in.Tags)
		in.Tags = &tags
	}
}

func (in *ListTasksInput) normalize() {
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	in.Priority = strings.ToLower(strings.TrimSpace(in.Priority))
	in.Search = strings.TrimSpace(in.Search)
	in.SortBy = strings.ToLower(strings.TrimSpace(in.SortBy))
	in.SortOrder = strings.ToLower(strings.TrimSpace(in.SortOrder))
	in.Tags = normalizeTags(in.Tags)
}

func (in ListTasksInput) filter() model.TaskFilter {
	f := model.TaskFilter{
		Status:    model.StatusAll,
		Tags:      in.Tags,
		Search:    in.Search,
		SortBy:    model.SortCreatedAt,
		SortOrder: model.SortDesc,
	}
	if in.Status != "" {
		f.Status = model.TaskStatus(in.Status)
	}
	if in.Priority != "" {
		p := model.Priority(in.Priority)
		f.Priority = &p
	}
	if in.SortBy != "" {
		f.SortBy = model.SortField(in.SortBy)
	}
	if in.SortOrder != "" {
		f.SortOrder = model.SortOrder(in.SortOrder)
	}
	return f
}

func (in *CreateTagInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	if trimPtr(in.Color) {
		in.Color = nil
	} else {
		*in.Color = strings.ToLower(*in.Color)
	}
}

func mustPositiveID(id int64) error {
	if id <= 0 {
		return invalid("task_id must be a positive integer")
	}
	return nil
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return nil
}
