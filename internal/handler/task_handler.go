package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"todoagent/internal/service/taskstore"
	"todoagent/pkg/metrics"
)

type TaskHandler struct {
	tasks  *taskstore.Service
	logger *zap.Logger
}

func NewTaskHandler(tasks *taskstore.Service, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// ListTasks GET /api/tasks?status=&priority=&tags=a,b&search=&sort_by=&sort_order=
func (h *TaskHandler) ListTasks(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	in := taskstore.ListTasksInput{
		Status:    c.Query("status"),
		Priority:  c.Query("priority"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	for _, raw := range c.QueryArray("tags") {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				in.Tags = append(in.Tags, tag)
			}
		}
	}

	list, err := h.tasks.List(c.Request.Context(), userID, in)
	if err != nil {
		respondError(c, h.logger, "ListTasks", err)
		return
	}
	h.logger.Debug("ListTasks: success", zap.String("user_id", userID), zap.Int("task_count", list.Count))
	c.JSON(http.StatusOK, list)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var in taskstore.AddTaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "CreateTask", err)
		return
	}

	task, err := h.tasks.Add(c.Request.Context(), userID, in)
	if err != nil {
		respondError(c, h.logger, "CreateTask", err)
		return
	}
	metrics.IncrementTaskGeneration("api")
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	task, err := h.tasks.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.logger, "GetTask", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in taskstore.UpdateTaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "UpdateTask", err)
		return
	}

	task, err := h.tasks.Update(c.Request.Context(), userID, id, in)
	if err != nil {
		respondError(c, h.logger, "UpdateTask", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) CompleteTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	task, err := h.tasks.Complete(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.logger, "CompleteTask", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	task, err := h.tasks.Delete(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.logger, "DeleteTask", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) ListTags(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	tags, err := h.tasks.ListTags(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, "ListTags", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags, "count": len(tags)})
}

func (h *TaskHandler) CreateTag(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var in taskstore.CreateTagInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "CreateTag", err)
		return
	}
	tag, err := h.tasks.CreateTag(c.Request.Context(), userID, in)
	if err != nil {
		respondError(c, h.logger, "CreateTag", err)
		return
	}
	c.JSON(http.StatusCreated, tag)
}

func (h *TaskHandler) DeleteTag(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tag, err := h.tasks.DeleteTag(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.logger, "DeleteTag", err)
		return
	}
	c.JSON(http.StatusOK, tag)
}
