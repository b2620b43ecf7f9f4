package tools

import (
	"context"
	"errors"

	"todoagent/internal/service/taskstore"
)

// ErrorKind classifies a tool failure for the transcript and metrics.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrUnknownTool):
		return "unknown_tool"
	case errors.Is(err, ErrInvalidArgs), errors.Is(err, taskstore.ErrValidation):
		return "validation"
	case errors.Is(err, taskstore.ErrNotFound):
		return "not_found"
	case errors.Is(err, taskstore.ErrConflict):
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "internal"
	}
}

// ErrorMessage is the text the model sees for a failed call. Storage errors
// are not echoed back.
func ErrorMessage(err error) string {
	switch ErrorKind(err) {
	case "internal":
		return "the task store could not complete the request"
	case "timeout":
		return "the request timed out"
	default:
		return err.Error()
	}
}
