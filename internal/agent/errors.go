package agent

import (
	"context"
	"errors"

	"todoagent/internal/agent/llm"
)

var (
	ErrModelTimeout     = llm.ErrTimeout
	ErrModelUnavailable = llm.ErrUnavailable
	ErrModelFailure     = errors.New("model call failed")
)

const (
	apologyTimeout     = "Sorry, the assistant took too long to respond. Please try again."
	apologyUnavailable = "Sorry, the assistant is temporarily unavailable. Please try again in a moment."
	apologyFailure     = "Sorry, something went wrong while processing your request. Please try again."
)

func apologyFor(err error) string {
	switch {
	case errors.Is(err, ErrModelTimeout), errors.Is(err, context.DeadlineExceeded):
		return apologyTimeout
	case errors.Is(err, ErrModelUnavailable):
		return apologyUnavailable
	default:
		return apologyFailure
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrModelTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrModelUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
