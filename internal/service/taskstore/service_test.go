package taskstore

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todoagent/internal/model"
	"todoagent/internal/repository/memory"
)

const (
	alice = "user-alice"
	bob   = "user-bob"
)

func newTestService() *Service {
	store := memory.New()
	return NewService(store, store, nil)
}

func strPtr(s string) *string { return &s }

func findByTitle(tasks []*model.Task, title string) []*model.Task {
	var out []*model.Task
	for _, t := range tasks {
		if t.Title == title {
			out = append(out, t)
		}
	}
	return out
}

func TestService_Add(t *testing.T) {
	ctx := context.Background()

	t.Run("Should list exactly one pending task per added title", func(t *testing.T) {
		svc := newTestService()
		titles := []string{"buy milk", "a", strings.Repeat("x", 200), "  padded title  ", "日本語のタスク"}
		for _, title := range titles {
			_, err := svc.Add(ctx, alice, AddTaskInput{Title: title})
			require.NoError(t, err)
		}

		list, err := svc.List(ctx, alice, ListTasksInput{Status: "all"})
		require.NoError(t, err)
		assert.Equal(t, len(titles), list.Count)
		for _, title := range titles {
			found := findByTitle(list.Tasks, strings.TrimSpace(title))
			require.Len(t, found, 1, title)
			assert.False(t, found[0].Completed)
			assert.Equal(t, model.PriorityMedium, found[0].Priority)
		}
	})

	t.Run("Should reject blank and oversized fields", func(t *testing.T) {
		svc := newTestService()
		cases := []AddTaskInput{
			{Title: ""},
			{Title: "   \t"},
			{Title: strings.Repeat("x", 201)},
			{Title: "ok", Description: strPtr(strings.Repeat("d", 1001))},
			{Title: "ok", Priority: "critical"},
			{Title: "ok", DueDate: strPtr("next tuesday")},
			{Title: "ok", Recurrence: strPtr("every blue moon")},
			{Title: "ok", Tags: []string{strings.Repeat("t", 51)}},
		}
		for i, in := range cases {
			_, err := svc.Add(ctx, alice, in)
			assert.ErrorIs(t, err, ErrValidation, "case %d", i)
		}
		list, err := svc.List(ctx, alice, ListTasksInput{})
		require.NoError(t, err)
		assert.Zero(t, list.Count)
	})

	t.Run("Should dedupe tags case-insensitively and create missing ones", func(t *testing.T) {
		svc := newTestService()
		task, err := svc.Add(ctx, alice, AddTaskInput{
			Title: "groceries",
			Tags:  []string{"Home", " home ", "errands", ""},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"errands", "Home"}, task.Tags)

		tags, err := svc.ListTags(ctx, alice)
		require.NoError(t, err)
		require.Len(t, tags, 2)
		for _, tag := range tags {
			assert.Equal(t, 1, tag.TaskCount)
		}
	})

	t.Run("Should parse dates and normalize recurrence", func(t *testing.T) {
		svc := newTestService()
		task, err := svc.Add(ctx, alice, AddTaskInput{
			Title:      "standup",
			Priority:   "HIGH",
			DueDate:    strPtr("2026-03-02"),
			ReminderAt: strPtr("2026-03-02T08:45:00Z"),
			Recurrence: strPtr("  Weekly   MON "),
		})
		require.NoError(t, err)
		assert.Equal(t, model.PriorityHigh, task.Priority)
		require.NotNil(t, task.DueDate)
		assert.True(t, task.DueDate.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)))
		require.NotNil(t, task.Recurrence)
		assert.Equal(t, "weekly monday", *task.Recurrence)
	})

	t.Run("Should require the parent to belong to the same user", func(t *testing.T) {
		svc := newTestService()
		parent, err := svc.Add(ctx, bob, AddTaskInput{Title: "bob's project"})
		require.NoError(t, err)

		_, err = svc.Add(ctx, alice, AddTaskInput{Title: "sub", ParentID: &parent.ID})
		assert.ErrorIs(t, err, ErrNotFound)

		mine, err := svc.Add(ctx, alice, AddTaskInput{Title: "alice's project"})
		require.NoError(t, err)
		child, err := svc.Add(ctx, alice, AddTaskInput{Title: "sub", ParentID: &mine.ID})
		require.NoError(t, err)
		assert.Equal(t, mine.ID, *child.ParentID)
	})
}

func TestService_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("Should move the task from pending to completed", func(t *testing.T) {
		svc := newTestService()
		var ids []int64
		for i := range 5 {
			task, err := svc.Add(ctx, alice, AddTaskInput{Title: fmt.Sprintf("task %d", i)})
			require.NoError(t, err)
			ids = append(ids, task.ID)
		}

		for _, id := range ids {
			done, err := svc.Complete(ctx, alice, id)
			require.NoError(t, err)
			assert.True(t, done.Completed)

			completed, err := svc.List(ctx, alice, ListTasksInput{Status: "completed"})
			require.NoError(t, err)
			assert.True(t, containsID(completed.Tasks, id))

			pending, err := svc.List(ctx, alice, ListTasksInput{Status: "pending"})
			require.NoError(t, err)
			assert.False(t, containsID(pending.Tasks, id))
		}
	})

	t.Run("Should return not found for foreign or missing ids without changes", func(t *testing.T) {
		svc := newTestService()
		task, err := svc.Add(ctx, alice, AddTaskInput{Title: "private"})
		require.NoError(t, err)

		_, err = svc.Complete(ctx, bob, task.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = svc.Complete(ctx, alice, task.ID+100)
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := svc.Get(ctx, alice, task.ID)
		require.NoError(t, err)
		assert.False(t, got.Completed)
	})

	t.Run("Should reject non-positive ids", func(t *testing.T) {
		svc := newTestService()
		_, err := svc.Complete(ctx, alice, 0)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("Should remove the task and its tag links but keep the tags", func(t *testing.T) {
		svc := newTestService()
		task, err := svc.Add(ctx, alice, AddTaskInput{Title: "tagged", Tags: []string{"work", "urgent-ish"}})
		require.NoError(t, err)

		deleted, err := svc.Delete(ctx, alice, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, deleted.ID)

		_, err = svc.Get(ctx, alice, task.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		list, err := svc.List(ctx, alice, ListTasksInput{})
		require.NoError(t, err)
		assert.False(t, containsID(list.Tasks, task.ID))

		tags, err := svc.ListTags(ctx, alice)
		require.NoError(t, err)
		require.Len(t, tags, 2)
		for _, tag := range tags {
			assert.Zero(t, tag.TaskCount)
		}
	})

	t.Run("Should not delete another user's task", func(t *testing.T) {
		svc := newTestService()
		task, err := svc.Add(ctx, alice, AddTaskInput{Title: "mine"})
		require.NoError(t, err)

		_, err = svc.Delete(ctx, bob, task.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = svc.Get(ctx, alice, task.ID)
		assert.NoError(t, err)
	})
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, svc *Service) *model.Task {
		task, err := svc.Add(ctx, alice, AddTaskInput{
			Title:       "write report",
			Description: strPtr("quarterly numbers"),
			Priority:    "high",
			DueDate:     strPtr("2026-05-01T17:00:00Z"),
			Tags:        []string{"work"},
		})
		require.NoError(t, err)
		return task
	}

	t.Run("Should change only the supplied fields", func(t *testing.T) {
		svc := newTestService()
		orig := seed(t, svc)

		updated, err := svc.Update(ctx, alice, orig.ID, UpdateTaskInput{Priority: strPtr("low")})
		require.NoError(t, err)
		assert.Equal(t, model.PriorityLow, updated.Priority)
		assert.Equal(t, orig.Title, updated.Title)
		assert.Equal(t, *orig.Description, *updated.Description)
		assert.True(t, orig.DueDate.Equal(*updated.DueDate))
		assert.Equal(t, orig.Tags, updated.Tags)
		assert.Equal(t, orig.Completed, updated.Completed)

		again, err := svc.Update(ctx, alice, orig.ID, UpdateTaskInput{Priority: strPtr("low")})
		require.NoError(t, err)
		assert.Equal(t, updated.Priority, again.Priority)
		assert.Equal(t, updated.Title, again.Title)
	})

	t.Run("Should reject a blank title and keep the stored one", func(t *testing.T) {
		svc := newTestService()
		orig := seed(t, svc)

		for _, title := range []string{"", "   "} {
			_, err := svc.Update(ctx, alice, orig.ID, UpdateTaskInput{Title: strPtr(title)})
			assert.ErrorIs(t, err, ErrValidation)
		}
		got, err := svc.Get(ctx, alice, orig.ID)
		require.NoError(t, err)
		assert.Equal(t, "write report", got.Title)
	})

	t.Run("Should reject an empty patch", func(t *testing.T) {
		svc := newTestService()
		orig := seed(t, svc)
		_, err := svc.Update(ctx, alice, orig.ID, UpdateTaskInput{})
		require.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "no fields to update")
	})

	t.Run("Should replace tags and clear optional fields", func(t *testing.T) {
		svc := newTestService()
		orig := seed(t, svc)

		tags := []string{"home", "weekend"}
		updated, err := svc.Update(ctx, alice, orig.ID, UpdateTaskInput{
			Tags:        &tags,
			Description: strPtr(""),
			DueDate:     strPtr(""),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"home", "weekend"}, updated.Tags)
		assert.Nil(t, updated.Description)
		assert.Nil(t, updated.DueDate)

		none := []string{}
		cleared, err := svc.Update(ctx, alice, orig.ID, UpdateTaskInput{Tags: &none})
		require.NoError(t, err)
		assert.Empty(t, cleared.Tags)
	})

	t.Run("Should toggle completion back to pending", func(t *testing.T) {
		svc := newTestService()
		orig := seed(t, svc)
		_, err := svc.Complete(ctx, alice, orig.ID)
		require.NoError(t, err)

		no := false
		reopened, err := svc.Update(ctx, alice, orig.ID, UpdateTaskInput{Completed: &no})
		require.NoError(t, err)
		assert.False(t, reopened.Completed)
	})

	t.Run("Should refuse self-parenting", func(t *testing.T) {
		svc := newTestService()
		orig := seed(t, svc)
		_, err := svc.Update(ctx, alice, orig.ID, UpdateTaskInput{ParentID: &orig.ID})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Should return not found for another user's task", func(t *testing.T) {
		svc := newTestService()
		orig := seed(t, svc)
		_, err := svc.Update(ctx, bob, orig.ID, UpdateTaskInput{Title: strPtr("hijacked")})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestService_List(t *testing.T) {
	ctx := context.Background()

	t.Run("Should filter by priority in the requested order", func(t *testing.T) {
		svc := newTestService()
		for i, p := range []string{"low", "high", "medium", "urgent", "high", "low", "high"} {
			_, err := svc.Add(ctx, alice, AddTaskInput{Title: fmt.Sprintf("t%d-%s", i, p), Priority: p})
			require.NoError(t, err)
		}

		asc, err := svc.List(ctx, alice, ListTasksInput{Priority: "high", SortBy: "title", SortOrder: "asc"})
		require.NoError(t, err)
		require.Equal(t, 3, asc.Count)
		assert.Equal(t, []string{"t1-high", "t4-high", "t6-high"}, titlesOf(asc.Tasks))
		for _, task := range asc.Tasks {
			assert.Equal(t, model.PriorityHigh, task.Priority)
		}

		desc, err := svc.List(ctx, alice, ListTasksInput{Priority: "high", SortBy: "title", SortOrder: "desc"})
		require.NoError(t, err)
		assert.Equal(t, []string{"t6-high", "t4-high", "t1-high"}, titlesOf(desc.Tasks))
	})

	t.Run("Should sort by priority rank", func(t *testing.T) {
		svc := newTestService()
		for _, p := range []string{"medium", "urgent", "low", "high"} {
			_, err := svc.Add(ctx, alice, AddTaskInput{Title: p, Priority: p})
			require.NoError(t, err)
		}
		list, err := svc.List(ctx, alice, ListTasksInput{SortBy: "priority", SortOrder: "desc"})
		require.NoError(t, err)
		assert.Equal(t, []string{"urgent", "high", "medium", "low"}, titlesOf(list.Tasks))
	})

	t.Run("Should match tags and search case-insensitively", func(t *testing.T) {
		svc := newTestService()
		_, err := svc.Add(ctx, alice, AddTaskInput{Title: "Buy MILK", Tags: []string{"Shopping"}})
		require.NoError(t, err)
		_, err = svc.Add(ctx, alice, AddTaskInput{Title: "call mom", Description: strPtr("about the milk order")})
		require.NoError(t, err)
		_, err = svc.Add(ctx, alice, AddTaskInput{Title: "gym"})
		require.NoError(t, err)

		byTag, err := svc.List(ctx, alice, ListTasksInput{Tags: []string{"shopping", "nope"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"Buy MILK"}, titlesOf(byTag.Tasks))

		bySearch, err := svc.List(ctx, alice, ListTasksInput{Search: "milk", SortBy: "title", SortOrder: "asc"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Buy MILK", "call mom"}, titlesOf(bySearch.Tasks))
	})

	t.Run("Should keep users isolated", func(t *testing.T) {
		svc := newTestService()
		task, err := svc.Add(ctx, alice, AddTaskInput{Title: "alice only"})
		require.NoError(t, err)

		list, err := svc.List(ctx, bob, ListTasksInput{Status: "all"})
		require.NoError(t, err)
		assert.False(t, containsID(list.Tasks, task.ID))
		assert.Zero(t, list.Count)
		assert.NotNil(t, list.Tasks)
	})

	t.Run("Should reject unknown status and sort fields", func(t *testing.T) {
		svc := newTestService()
		_, err := svc.List(ctx, alice, ListTasksInput{Status: "archived"})
		assert.ErrorIs(t, err, ErrValidation)
		_, err = svc.List(ctx, alice, ListTasksInput{SortBy: "id; drop table tasks"})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestService_Tags(t *testing.T) {
	ctx := context.Background()

	t.Run("Should enforce per-user unique names", func(t *testing.T) {
		svc := newTestService()
		_, err := svc.CreateTag(ctx, alice, CreateTagInput{Name: "Work", Color: strPtr("#FF0000")})
		require.NoError(t, err)

		_, err = svc.CreateTag(ctx, alice, CreateTagInput{Name: "work"})
		assert.ErrorIs(t, err, ErrConflict)

		_, err = svc.CreateTag(ctx, bob, CreateTagInput{Name: "work"})
		assert.NoError(t, err)
	})

	t.Run("Should validate name and color", func(t *testing.T) {
		svc := newTestService()
		for _, in := range []CreateTagInput{
			{Name: "  "},
			{Name: strings.Repeat("n", 51)},
			{Name: "ok", Color: strPtr("red")},
			{Name: "ok", Color: strPtr("#fff")},
		} {
			_, err := svc.CreateTag(ctx, alice, in)
			assert.ErrorIs(t, err, ErrValidation, in.Name)
		}
	})

	t.Run("Should delete the tag but keep its tasks", func(t *testing.T) {
		svc := newTestService()
		task, err := svc.Add(ctx, alice, AddTaskInput{Title: "tagged", Tags: []string{"temp"}})
		require.NoError(t, err)
		tags, err := svc.ListTags(ctx, alice)
		require.NoError(t, err)
		require.Len(t, tags, 1)

		_, err = svc.DeleteTag(ctx, bob, tags[0].ID)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = svc.DeleteTag(ctx, alice, tags[0].ID)
		require.NoError(t, err)

		got, err := svc.Get(ctx, alice, task.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Tags)
	})
}

func containsID(tasks []*model.Task, id int64) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}

func titlesOf(tasks []*model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}
