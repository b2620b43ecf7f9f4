package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriority(t *testing.T) {
	assert.Less(t, PriorityLow.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityUrgent.Rank())
	assert.False(t, Priority("critical").Valid())

	p, ok := ParsePriority("  HIGH ")
	assert.True(t, ok)
	assert.Equal(t, PriorityHigh, p)
}

func TestTaskPatch(t *testing.T) {
	t.Run("Should report empty patches", func(t *testing.T) {
		assert.True(t, TaskPatch{}.IsEmpty())
		assert.False(t, TaskPatch{ClearDueDate: true}.IsEmpty())
		assert.False(t, TaskPatch{ReplaceTags: true}.IsEmpty())
	})

	t.Run("Should only touch supplied fields", func(t *testing.T) {
		desc := "keep me"
		due := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
		task := &Task{Title: "old", Description: &desc, DueDate: &due, Priority: PriorityLow}

		title := "new"
		TaskPatch{Title: &title, ClearDueDate: true}.Apply(task)

		assert.Equal(t, "new", task.Title)
		assert.Equal(t, "keep me", *task.Description)
		assert.Nil(t, task.DueDate)
		assert.Equal(t, PriorityLow, task.Priority)
	})

	t.Run("Should reset reminder_sent when the reminder moves", func(t *testing.T) {
		at := time.Now()
		task := &Task{ReminderSent: true}
		TaskPatch{ReminderAt: &at}.Apply(task)
		assert.False(t, task.ReminderSent)
	})
}

func TestTask_Clone(t *testing.T) {
	desc := "d"
	task := &Task{Description: &desc, Tags: []string{"a"}}
	c := task.Clone()
	*c.Description = "changed"
	c.Tags[0] = "b"
	assert.Equal(t, "d", *task.Description)
	assert.Equal(t, "a", task.Tags[0])
}
