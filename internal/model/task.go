package model

import (
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every priority from least to most pressing.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// Rank orders priorities low < medium < high < urgent; unknown values rank 0.
func (p Priority) Rank() int {
	for i, v := range Priorities {
		if v == p {
			return i + 1
		}
	}
	return 0
}

func (p Priority) Valid() bool { return p.Rank() > 0 }

// ParsePriority accepts any casing and surrounding whitespace.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Valid()
}

type Task struct {
	ID           int64      `json:"id" db:"id"`
	UserID       string     `json:"user_id" db:"user_id"`
	Title        string     `json:"title" db:"title"`
	Description  *string    `json:"description,omitempty" db:"description"`
	Completed    bool       `json:"completed" db:"completed"`
	Priority     Priority   `json:"priority" db:"priority"`
	DueDate      *time.Time `json:"due_date,omitempty" db:"due_date"`
	ReminderAt   *time.Time `json:"reminder_at,omitempty" db:"reminder_at"`
	ReminderSent bool       `json:"reminder_sent" db:"reminder_sent"`
	Recurrence   *string    `json:"recurrence,omitempty" db:"recurrence"`
	ParentID     *int64     `json:"parent_id,omitempty" db:"parent_id"`
	Tags         []string   `json:"tags" db:"-"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so callers cannot mutate stored rows.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Description = clonePtr(t.Description)
	c.DueDate = clonePtr(t.DueDate)
	c.ReminderAt = clonePtr(t.ReminderAt)
	c.Recurrence = clonePtr(t.Recurrence)
	c.ParentID = clonePtr(t.ParentID)
	c.Tags = append([]string{}, t.Tags...)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type TaskStatus string

const (
	StatusAll       TaskStatus = "all"
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
)

type SortField string

const (
	SortCreatedAt SortField = "created_at"
	SortUpdatedAt SortField = "updated_at"
	SortDueDate   SortField = "due_date"
	SortPriority  SortField = "priority"
	SortTitle     SortField = "title"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// TaskFilter is a normalized list query. Tags match any, case-insensitively.
type TaskFilter struct {
	Status    TaskStatus
	Priority  *Priority
	Tags      []string
	Search    string
	SortBy    SortField
	SortOrder SortOrder
}

// TaskPatch carries only the fields an update touches. A Clear flag nulls the
// column and wins over the matching value.
type TaskPatch struct {
	Title            *string
	Description      *string
	ClearDescription bool
	Completed        *bool
	Priority         *Priority
	DueDate          *time.Time
	ClearDueDate     bool
	ReminderAt       *time.Time
	ClearReminderAt  bool
	Recurrence       *string
	ClearRecurrence  bool
	ParentID         *int64
	ClearParent      bool
	// Tags replaces every association when ReplaceTags is set.
	Tags        []string
	ReplaceTags bool
}

func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil &&
		p.Description == nil && !p.ClearDescription &&
		p.Completed == nil &&
		p.Priority == nil &&
		p.DueDate == nil && !p.ClearDueDate &&
		p.ReminderAt == nil && !p.ClearReminderAt &&
		p.Recurrence == nil && !p.ClearRecurrence &&
		p.ParentID == nil && !p.ClearParent &&
		!p.ReplaceTags
}

// Apply mutates t in place; tags are left to the caller.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	switch {
	case p.ClearDescription:
		t.Description = nil
	case p.Description != nil:
		t.Description = clonePtr(p.Description)
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	switch {
	case p.ClearDueDate:
		t.DueDate = nil
	case p.DueDate != nil:
		t.DueDate = clonePtr(p.DueDate)
	}
	switch {
	case p.ClearReminderAt:
		t.ReminderAt = nil
		t.ReminderSent = false
	case p.ReminderAt != nil:
		t.ReminderAt = clonePtr(p.ReminderAt)
		t.ReminderSent = false
	}
	switch {
	case p.ClearRecurrence:
		t.Recurrence = nil
	case p.Recurrence != nil:
		t.Recurrence = clonePtr(p.Recurrence)
	}
	switch {
	case p.ClearParent:
		t.ParentID = nil
	case p.ParentID != nil:
		t.ParentID = clonePtr(p.ParentID)
	}
}
