package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"todoagent/internal/service/auth"
	"todoagent/internal/service/taskstore"
)

// UserIDKey is where the auth middleware stores the caller's id.
const UserIDKey = "user_id"

func currentUser(c *gin.Context) (string, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func requireUser(c *gin.Context) (string, bool) {
	id, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return "", false
	}
	return id, true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// statusOf maps service errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, taskstore.ErrValidation), errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, taskstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, taskstore.ErrConflict), errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the mapped status. 5xx bodies never carry err.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op+": failed", zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	logger.Warn(op+": rejected", zap.Int("status", status), zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, logger *zap.Logger, op string, err error) {
	logger.Warn(op+": invalid request body", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}
